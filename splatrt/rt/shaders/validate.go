package shaders

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validate parses, checks and lowers WGSL to SPIR-V with naga. It catches
// syntax and type errors without a GPU.
func Validate(label, code string) error {
	if _, err := naga.Compile(code); err != nil {
		return fmt.Errorf("shader %s: %w", label, err)
	}
	return nil
}

// ValidateAll validates every shader the renderer builds with s.
func ValidateAll(s Settings) error {
	pre, err := Preprocess(s)
	if err != nil {
		return err
	}
	sortSrc, err := Bitonic(s)
	if err != nil {
		return err
	}
	for _, src := range []struct{ label, code string }{
		{PreprocessLabel, pre},
		{BitonicLabel, sortSrc},
		{GaussianLabel, Gaussian()},
		{"text.wgsl", TextWGSL},
	} {
		if err := Validate(src.label, src.code); err != nil {
			return err
		}
	}
	return nil
}
