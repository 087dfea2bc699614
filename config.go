package splat

import (
	"errors"
	"flag"
	"fmt"
)

// Cloud shapes understood by Config.Cloud.
const (
	CloudSphere = "sphere"
	CloudGrid   = "grid"
)

type Config struct {
	Width  int
	Height int

	Cloud  string
	Points int
	Seed   int64

	GaussianScaling float32
	SHDegree        int

	// Headless, when non-empty, renders one frame on the software device
	// and writes it to this PNG path instead of opening a window.
	Headless string

	ValidateShaders bool
	Debug           bool
}

func DefaultConfig() Config {
	return Config{
		Width:           1280,
		Height:          720,
		Cloud:           CloudSphere,
		Points:          100_000,
		Seed:            1,
		GaussianScaling: 1.0,
		SHDegree:        0,
	}
}

// RegisterFlags binds every field to fs using the receiver's current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Width, "width", c.Width, "Window width")
	fs.IntVar(&c.Height, "height", c.Height, "Window height")
	fs.StringVar(&c.Cloud, "cloud", c.Cloud, "Procedural cloud shape (sphere|grid)")
	fs.IntVar(&c.Points, "points", c.Points, "Number of Gaussians to generate")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Random seed for the procedural cloud")
	fs.Func("scale", "Gaussian scaling factor", func(s string) error {
		var v float32
		if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
			return err
		}
		c.GaussianScaling = v
		return nil
	})
	fs.IntVar(&c.SHDegree, "sh", c.SHDegree, "Spherical harmonics degree (0-3)")
	fs.StringVar(&c.Headless, "headless", c.Headless, "Render one frame on the CPU device and write a PNG to this path")
	fs.BoolVar(&c.ValidateShaders, "validate-shaders", c.ValidateShaders, "Compile WGSL with naga before creating pipelines")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging and HUD")
}

func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid window size %dx%d", c.Width, c.Height))
	}
	if c.Points < 0 {
		errs = append(errs, fmt.Errorf("points must be >= 0, got %d", c.Points))
	}
	if c.Cloud != CloudSphere && c.Cloud != CloudGrid {
		errs = append(errs, fmt.Errorf("unknown cloud shape %q", c.Cloud))
	}
	if c.SHDegree < 0 || c.SHDegree > 3 {
		errs = append(errs, fmt.Errorf("sh degree must be in [0,3], got %d", c.SHDegree))
	}
	if c.GaussianScaling <= 0 {
		errs = append(errs, fmt.Errorf("gaussian scaling must be > 0, got %g", c.GaussianScaling))
	}
	return errors.Join(errs...)
}
