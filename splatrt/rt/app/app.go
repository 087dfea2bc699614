// Package app runs the splat renderer in a GLFW window.
package app

import (
	"fmt"
	"unsafe"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	splat "github.com/gekko3d/splat"
	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/gpu"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/gpu/wgpudev"
	"github.com/gekko3d/splat/splatrt/rt/hud"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	HAL        *wgpudev.Device
	Cloud      *core.PointCloud
	PointCloud *gpu.PointCloudBuffer
	CameraBuf  hal.Buffer
	Renderer   *gpu.Renderer
	Camera     *core.CameraState
	Settings   core.RenderSettings

	Sampler          *wgpu.Sampler
	TextRenderer     *hud.TextRenderer
	TextPipeline     *wgpu.RenderPipeline
	TextAtlas        *wgpu.Texture
	TextAtlasView    *wgpu.TextureView
	TextBindGroup    *wgpu.BindGroup
	TextVertexBuffer *wgpu.Buffer
	TextItems        []hud.TextItem
	TextVertexCount  uint32

	Logger   splat.Logger
	Profiler *Profiler
	FPS      FPSCounter

	LastTime      float64
	MouseCaptured bool
	MouseX        float64
	MouseY        float64
	DebugMode     bool
	ShowHUD       bool
}

func NewApp(window *glfw.Window, cloud *core.PointCloud, settings core.RenderSettings, logger splat.Logger) *App {
	return &App{
		Window:   window,
		Cloud:    cloud,
		Camera:   core.NewCameraState(),
		Settings: settings,
		Logger:   splat.OrNop(logger),
		Profiler: NewProfiler(),
		ShowHUD:  true,
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.HAL = wgpudev.New(a.Device)

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	format := wgpudev.HalFormat(a.Config.Format)
	if format == hal.TextureFormatUndefined {
		return fmt.Errorf("surface format %v is not supported by the splat renderer", a.Config.Format)
	}

	a.PointCloud, err = gpu.UploadPointCloud(a.HAL, a.Cloud)
	if err != nil {
		return err
	}
	a.CameraBuf, err = gpu.NewCameraBuffer(a.HAL)
	if err != nil {
		return err
	}
	a.Renderer, err = gpu.NewRenderer(a.HAL, a.PointCloud, format, a.CameraBuf,
		gpu.WithLogger(a.Logger), gpu.WithSettings(a.Settings))
	if err != nil {
		return err
	}
	a.Profiler.SetCount("Splats", int(a.Renderer.Count()))

	a.Sampler, err = a.Device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	a.TextRenderer, err = hud.NewTextRenderer(16)
	if err != nil {
		a.Logger.Warnf("text renderer disabled: %v", err)
	} else if err := a.setupTextResources(); err != nil {
		a.Logger.Warnf("text pipeline disabled: %v", err)
		a.TextPipeline = nil
	}

	a.LastTime = glfw.GetTime()
	a.Logger.Infof("window %dx%d, surface %s", width, height, format)
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
		a.Logger.Debugf("resized to %dx%d", w, h)
	}
}

// HandleKey applies render setting keys.
func (a *App) HandleKey(key glfw.Key) {
	if key == glfw.KeyF1 {
		a.ShowHUD = !a.ShowHUD
		return
	}
	s, changed := SettingsForKey(a.Settings, key)
	if !changed {
		return
	}
	if err := a.Renderer.UpdateSettings(a.HAL.Queue(), s); err != nil {
		a.Logger.Warnf("settings rejected: %v", err)
		return
	}
	a.Settings = s
	a.Logger.Debugf("scaling %.3f, sh degree %d", s.GaussianScaling, s.SHDegree)
}

// HandleCursor turns cursor motion into camera rotation while captured.
func (a *App) HandleCursor(x, y float64) {
	if a.MouseCaptured {
		a.Camera.Look(float32(x-a.MouseX), float32(y-a.MouseY))
	}
	a.MouseX, a.MouseY = x, y
}

func (a *App) Update() {
	now := glfw.GetTime()
	dt := float32(now - a.LastTime)
	a.LastTime = now
	a.Camera.Move(MoveInput(a.Window), dt)

	cam := a.Camera.Uniform(int(a.Config.Width), int(a.Config.Height))
	if err := gpu.WriteCamera(a.HAL.Queue(), a.CameraBuf, cam); err != nil {
		a.Logger.Errorf("camera upload: %v", err)
	}

	a.ClearText()
	if a.ShowHUD {
		stats := hud.Stats{
			FPS:       a.FPS.FPS,
			FrameTime: secondsToDuration(a.FPS.FrameTime),
			Splats:    int(a.Renderer.Count()),
			Settings:  a.Settings,
		}
		a.TextItems = append(a.TextItems, stats.Items(a.DebugMode)...)
		if a.DebugMode {
			a.DrawText(a.Profiler.GetStatsString(), 10, 140, 0.8, [4]float32{0.8, 0.8, 0.8, 1})
		}
	}

	if len(a.TextItems) > 0 && a.TextRenderer != nil && a.TextPipeline != nil {
		vertices := a.TextRenderer.BuildVertices(a.TextItems, int(a.Config.Width), int(a.Config.Height))
		if len(vertices) > 0 {
			vSize := uint64(len(vertices) * hud.TextVertexSize)
			if a.TextVertexBuffer == nil || a.TextVertexBuffer.GetSize() < vSize {
				if a.TextVertexBuffer != nil {
					a.TextVertexBuffer.Release()
				}
				var err error
				a.TextVertexBuffer, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
					Label: "Text VB",
					Size:  vSize,
					Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
				})
				if err != nil {
					a.Logger.Errorf("text vertex buffer: %v", err)
					a.TextVertexBuffer = nil
					return
				}
			}
			if err := a.Queue().WriteBuffer(a.TextVertexBuffer, 0, unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), vSize)); err != nil {
				a.Logger.Errorf("text vertex upload: %v", err)
			}
			a.TextVertexCount = uint32(len(vertices))
		}
	}
}

func (a *App) Queue() *wgpu.Queue {
	return a.HAL.Queue().(*wgpudev.Queue).Raw()
}

func (a *App) ClearText() {
	a.TextItems = a.TextItems[:0]
	a.TextVertexCount = 0
}

func (a *App) DrawText(text string, x, y float32, scale float32, color [4]float32) {
	a.TextItems = append(a.TextItems, hud.TextItem{
		Text:     text,
		Position: [2]float32{x, y},
		Scale:    scale,
		Color:    color,
	})
}

func (a *App) Render() {
	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Logger.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer nextTexture.Release()

	raw, err := nextTexture.CreateView(nil)
	if err != nil {
		a.Logger.Errorf("CreateView failed: %v", err)
		return
	}
	view := wgpudev.WrapView(raw)
	defer view.Release()

	encoder, err := a.HAL.CreateCommandEncoder("frame")
	if err != nil {
		a.Logger.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}
	defer encoder.Release()

	a.recordFrame(encoder, view)

	if a.TextVertexCount > 0 && a.TextVertexBuffer != nil && a.TextPipeline != nil {
		pass := encoder.BeginRenderPass(hal.RenderPassDescriptor{Label: "text", Target: view})
		if rp := pass.(*wgpudev.RenderPassEncoder).Raw(); rp != nil {
			rp.SetPipeline(a.TextPipeline)
			rp.SetBindGroup(0, a.TextBindGroup, nil)
			rp.SetVertexBuffer(0, a.TextVertexBuffer, 0, a.TextVertexBuffer.GetSize())
			rp.Draw(a.TextVertexCount, 1, 0, 0)
		}
		pass.End()
	}

	cmd, err := encoder.Finish()
	if err != nil {
		a.Logger.Errorf("frame recording failed: %v", err)
		return
	}
	a.HAL.Queue().Submit(cmd)
	a.Surface.Present()

	a.FPS.Tick(glfw.GetTime())
}

// recordFrame records the same steps as Renderer.Frame, timing each.
func (a *App) recordFrame(enc hal.CommandEncoder, target hal.TextureView) {
	r := a.Renderer
	steps := []func(){
		func() { r.RecordReset(enc) },
		func() { r.RecordPreprocess(enc) },
		func() { r.RecordSort(enc) },
		func() { r.RecordPropagate(enc) },
		func() { r.RecordRender(enc, target) },
	}
	for i, step := range steps {
		a.Profiler.Time(FrameSteps[i], step)
	}
}

type releaser interface{ Release() }

// owned lists what Release frees, in release order. The point cloud and
// camera buffers go after the renderer that references them.
func (a *App) owned() []releaser {
	var out []releaser
	add := func(ok bool, r releaser) {
		if ok {
			out = append(out, r)
		}
	}
	add(a.Renderer != nil, a.Renderer)
	add(a.CameraBuf != nil, a.CameraBuf)
	add(a.PointCloud != nil, a.PointCloud)
	add(a.TextVertexBuffer != nil, a.TextVertexBuffer)
	add(a.TextBindGroup != nil, a.TextBindGroup)
	add(a.TextPipeline != nil, a.TextPipeline)
	add(a.TextAtlasView != nil, a.TextAtlasView)
	add(a.TextAtlas != nil, a.TextAtlas)
	add(a.Sampler != nil, a.Sampler)
	add(a.Surface != nil, a.Surface)
	add(a.Device != nil, a.Device)
	add(a.Adapter != nil, a.Adapter)
	add(a.Instance != nil, a.Instance)
	return out
}

func (a *App) Release() {
	for _, r := range a.owned() {
		r.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}

func (a *App) setupTextResources() error {
	tr := a.TextRenderer
	w, h := tr.AtlasImage.Bounds().Dx(), tr.AtlasImage.Bounds().Dy()
	tex, err := a.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Text Atlas",
		Size:          wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
		Format:        wgpu.TextureFormatR8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return err
	}
	a.TextAtlas = tex
	a.Queue().WriteTexture(tex.AsImageCopy(), tr.AtlasImage.Pix, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(w),
		RowsPerImage: uint32(h),
	}, &wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1})

	a.TextAtlasView, err = tex.CreateView(nil)
	if err != nil {
		return err
	}

	textMod, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Text Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.TextWGSL},
	})
	if err != nil {
		return fmt.Errorf("text shader module: %w", err)
	}
	defer textMod.Release()

	a.TextPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Text Pipeline",
		Vertex: wgpu.VertexState{
			Module:     textMod,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: hud.TextVertexSize,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x4, Offset: 16, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     textMod,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    a.Config.Format,
				Blend:     wgpudev.BlendState(hal.BlendAlpha),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("text render pipeline: %w", err)
	}

	a.TextBindGroup, err = a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: a.TextPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: a.TextAtlasView},
			{Binding: 1, Sampler: a.Sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("text bind group: %w", err)
	}
	return nil
}
