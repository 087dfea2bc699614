// Package headless renders single frames on the software device, for
// environments without a GPU or a display.
package headless

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	splat "github.com/gekko3d/splat"
	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/gpu"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/gpu/softgpu"
	"github.com/gekko3d/splat/splatrt/rt/hud"
)

type Options struct {
	Width, Height int
	Camera        *core.CameraState // nil means core.NewCameraState
	Settings      core.RenderSettings
	Logger        splat.Logger
	// HUD composites the stats overlay onto the frame.
	HUD bool
	// ValidateShaders compiles every shader with naga before use.
	ValidateShaders bool
}

// Render draws one frame of cloud and returns it as premultiplied RGBA.
func Render(cloud *core.PointCloud, opts Options) (*image.RGBA, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}
	logger := splat.OrNop(opts.Logger)
	cam := opts.Camera
	if cam == nil {
		cam = core.NewCameraState()
	}

	dev := softgpu.New(softgpu.WithShaderValidation(opts.ValidateShaders))

	pc, err := gpu.UploadPointCloud(dev, cloud)
	if err != nil {
		return nil, err
	}
	defer pc.Release()

	camBuf, err := gpu.NewCameraBuffer(dev)
	if err != nil {
		return nil, err
	}
	defer camBuf.Release()
	if err := gpu.WriteCamera(dev.Queue(), camBuf, cam.Uniform(opts.Width, opts.Height)); err != nil {
		return nil, err
	}

	r, err := gpu.NewRenderer(dev, pc, hal.TextureFormatRGBA8Unorm, camBuf,
		gpu.WithLogger(logger), gpu.WithSettings(opts.Settings))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	target := softgpu.NewTexture(opts.Width, opts.Height)
	defer target.Release()

	start := time.Now()
	enc, err := dev.CreateCommandEncoder("headless frame")
	if err != nil {
		return nil, err
	}
	r.Frame(enc, target)
	cmd, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("record frame: %w", err)
	}
	dev.Queue().Submit(cmd)
	if err := dev.PopError(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	img := target.Image()
	logger.Infof("rendered %d gaussians at %dx%d in %s", r.Count(), opts.Width, opts.Height, elapsed)

	if opts.HUD {
		tr, err := hud.NewTextRenderer(16)
		if err != nil {
			return nil, err
		}
		stats := hud.Stats{
			FPS:       1 / elapsed.Seconds(),
			FrameTime: elapsed,
			Splats:    int(r.Count()),
			Settings:  r.Settings(),
		}
		tr.DrawOnto(img, stats.Items(false))
	}
	return img, nil
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
