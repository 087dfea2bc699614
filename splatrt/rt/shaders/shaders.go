package shaders

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed common.wgsl
var commonWGSL string

//go:embed preprocess.wgsl
var preprocessWGSL string

//go:embed bitonic.wgsl
var bitonicWGSL string

//go:embed gaussian.wgsl
var gaussianWGSL string

//go:embed text.wgsl
var TextWGSL string

// Shader labels, as passed in hal.ShaderSource.
const (
	PreprocessLabel = "preprocess.wgsl"
	BitonicLabel    = "bitonic.wgsl"
	GaussianLabel   = "gaussian.wgsl"
)

// Entry points.
const (
	PreprocessEntry = "preprocess"
	BitonicEntry    = "bitonic_step"
	VertexEntry     = "vs_main"
	FragmentEntry   = "fs_main"
)

var shaderTemplate *template.Template

func init() {
	shaderTemplate = template.Must(template.New("common.wgsl").Parse(commonWGSL))
	shaderTemplate = template.Must(shaderTemplate.New(PreprocessLabel).Parse(preprocessWGSL))
	shaderTemplate = template.Must(shaderTemplate.New(BitonicLabel).Parse(bitonicWGSL))
	shaderTemplate = template.Must(shaderTemplate.New(GaussianLabel).Parse(gaussianWGSL))
}

// Settings are the build-time constants substituted into the compute shaders.
type Settings struct {
	WorkgroupSize uint32
}

func render(name string, s Settings) (string, error) {
	if s.WorkgroupSize == 0 || s.WorkgroupSize&(s.WorkgroupSize-1) != 0 {
		return "", fmt.Errorf("%s: workgroup size %d is not a power of two", name, s.WorkgroupSize)
	}
	var buf bytes.Buffer
	if err := shaderTemplate.ExecuteTemplate(&buf, name, s); err != nil {
		return "", fmt.Errorf("failed to execute shader template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Preprocess returns the projection/cull compute shader.
func Preprocess(s Settings) (string, error) {
	return render(PreprocessLabel, s)
}

// Bitonic returns the sort step compute shader.
func Bitonic(s Settings) (string, error) {
	return render(BitonicLabel, s)
}

// Gaussian returns the splat vertex/fragment shader. It has no tunables.
func Gaussian() string {
	var buf bytes.Buffer
	if err := shaderTemplate.ExecuteTemplate(&buf, GaussianLabel, nil); err != nil {
		panic(fmt.Sprintf("failed to execute embedded shader template gaussian.wgsl: %v", err))
	}
	return buf.String()
}
