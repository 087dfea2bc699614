package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	splat "github.com/gekko3d/splat"
	"github.com/gekko3d/splat/splatrt/rt/app"
	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/headless"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	cfg := splat.DefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	logger := splat.NewDefaultLogger("splat", cfg.Debug)
	if err := cfg.Validate(); err != nil {
		logger.Errorf("invalid flags: %v", err)
		os.Exit(2)
	}

	if cfg.ValidateShaders {
		if err := shaders.ValidateAll(shaders.Settings{WorkgroupSize: depthsort.WorkgroupSize}); err != nil {
			logger.Errorf("shader validation failed: %v", err)
			os.Exit(1)
		}
		logger.Infof("shaders validated")
	}

	cloud := buildCloud(cfg)
	settings := core.RenderSettings{GaussianScaling: cfg.GaussianScaling, SHDegree: uint32(cfg.SHDegree)}

	if cfg.Headless != "" {
		img, err := headless.Render(cloud, headless.Options{
			Width:    cfg.Width,
			Height:   cfg.Height,
			Settings: settings,
			Logger:   logger,
			HUD:      cfg.Debug,

			ValidateShaders: cfg.ValidateShaders,
		})
		if err != nil {
			logger.Errorf("headless render failed: %v", err)
			os.Exit(1)
		}
		if err := headless.WritePNG(cfg.Headless, img); err != nil {
			logger.Errorf("write %s: %v", cfg.Headless, err)
			os.Exit(1)
		}
		logger.Infof("wrote %s", cfg.Headless)
		return
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, "Gaussian Splats", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cloud, settings, logger)
	application.DebugMode = cfg.Debug
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleCursor(xpos, ypos)
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyTab && action == glfw.Press {
			application.MouseCaptured = !application.MouseCaptured
			if application.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if action == glfw.Press || action == glfw.Repeat {
			application.HandleKey(key)
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
}

func buildCloud(cfg splat.Config) *core.PointCloud {
	if cfg.Cloud == splat.CloudGrid {
		return core.GenerateGridCloud(cfg.Points, 0.1, cfg.Seed)
	}
	return core.GenerateSphereCloud(cfg.Points, 2, cfg.Seed)
}
