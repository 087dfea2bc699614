package gpu

import (
	"fmt"

	"github.com/google/uuid"

	splat "github.com/gekko3d/splat"
	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// SorterFactory builds the depth sorter for a renderer of the given capacity.
type SorterFactory func(dev hal.Device, capacity uint32, label string) (depthsort.Sorter, error)

type rendererOptions struct {
	logger    splat.Logger
	newSorter SorterFactory
	settings  core.RenderSettings
}

type Option func(*rendererOptions)

func WithLogger(l splat.Logger) Option {
	return func(o *rendererOptions) { o.logger = l }
}

// WithSorter replaces the default bitonic sorter.
func WithSorter(f SorterFactory) Option {
	return func(o *rendererOptions) { o.newSorter = f }
}

// WithSettings sets the render settings the renderer starts with.
func WithSettings(s core.RenderSettings) Option {
	return func(o *rendererOptions) { o.settings = s }
}

func bitonicSorter(dev hal.Device, capacity uint32, label string) (depthsort.Sorter, error) {
	b, err := depthsort.NewBitonic(dev, capacity, label)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Renderer draws one point cloud. It owns every buffer and pipeline it
// creates; the point cloud and camera buffers are only referenced.
//
// A frame is recorded without host readback: the visible count travels
// from the preprocess pass to the sorter and the indirect draw entirely on
// the GPU. Only one frame may be in flight per renderer.
type Renderer struct {
	ID     uuid.UUID
	Logger splat.Logger

	device     hal.Device
	pointCloud *PointCloudBuffer
	camera     hal.Buffer
	format     hal.TextureFormat

	Buffers    *SplatBufferManager
	Sorter     depthsort.Sorter
	Preprocess *PreprocessPass
	Render     *SplatRenderPass
}

// NewRenderer builds the buffers, sorter and pipelines for pc. Allocation
// failures wrap ErrAllocation, shader and pipeline failures ErrPipeline.
func NewRenderer(dev hal.Device, pc *PointCloudBuffer, format hal.TextureFormat, camera hal.Buffer, opts ...Option) (*Renderer, error) {
	o := rendererOptions{
		newSorter: bitonicSorter,
		settings:  core.DefaultRenderSettings(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if pc == nil || pc.Buffer == nil {
		return nil, fmt.Errorf("renderer needs an uploaded point cloud")
	}
	if camera == nil {
		return nil, fmt.Errorf("renderer needs a camera buffer")
	}
	if err := validateSettings(o.settings); err != nil {
		return nil, err
	}

	r := &Renderer{
		ID:         uuid.New(),
		Logger:     splat.OrNop(o.logger),
		device:     dev,
		pointCloud: pc,
		camera:     camera,
		format:     format,
	}
	label := "splat " + r.ID.String()[:8]

	ok := false
	defer func() {
		if !ok {
			r.Release()
		}
	}()

	r.Buffers = NewSplatBufferManager(dev, r.Logger)
	r.Buffers.Settings = o.settings
	if err := r.Buffers.Allocate(pc.Count, label); err != nil {
		return nil, err
	}

	sorter, err := o.newSorter(dev, pc.Count, label)
	if err != nil {
		return nil, err
	}
	if sorter == nil {
		return nil, fmt.Errorf("%w: sorter factory returned no sorter", ErrAllocation)
	}
	r.Sorter = sorter

	r.Preprocess, err = NewPreprocessPass(dev, label, camera, pc, r.Buffers, r.Sorter)
	if err != nil {
		return nil, err
	}

	r.Render, err = NewSplatRenderPass(dev, label, format, camera, r.Buffers, r.Sorter)
	if err != nil {
		return nil, err
	}

	ok = true
	r.Logger.Infof("%s: renderer ready for %d gaussians (%s)", label, pc.Count, format)
	return r, nil
}

// Frame records a complete frame into enc. Errors surface from enc.Finish.
func (r *Renderer) Frame(enc hal.CommandEncoder, target hal.TextureView) {
	r.RecordReset(enc)
	r.RecordPreprocess(enc)
	r.RecordSort(enc)
	r.RecordPropagate(enc)
	r.RecordRender(enc, target)
}

// RecordReset zeroes the visible count and the sort dispatch counter.
func (r *Renderer) RecordReset(enc hal.CommandEncoder) {
	r.Sorter.RecordReset(enc, r.Buffers.ZeroBuf)
}

func (r *Renderer) RecordPreprocess(enc hal.CommandEncoder) {
	r.Preprocess.Record(enc)
}

func (r *Renderer) RecordSort(enc hal.CommandEncoder) {
	r.Sorter.Sort(enc)
}

// RecordPropagate copies the visible count into the draw's instance_count.
func (r *Renderer) RecordPropagate(enc hal.CommandEncoder) {
	enc.CopyBufferToBuffer(r.Sorter.InfoBuffer(), 0, r.Buffers.DrawArgsBuf, InstanceCountOffset, 4)
}

func (r *Renderer) RecordRender(enc hal.CommandEncoder, target hal.TextureView) {
	r.Render.Record(enc, target, r.Buffers.DrawArgsBuf)
}

func (r *Renderer) CameraBuffer() hal.Buffer   { return r.camera }
func (r *Renderer) SettingsBuffer() hal.Buffer { return r.Buffers.SettingsBuf }
func (r *Renderer) DrawArgsBuffer() hal.Buffer { return r.Buffers.DrawArgsBuf }
func (r *Renderer) SplatBuffer() hal.Buffer    { return r.Buffers.SplatBuf }
func (r *Renderer) Format() hal.TextureFormat  { return r.format }

// Count is the number of Gaussians in the point cloud.
func (r *Renderer) Count() uint32 { return r.pointCloud.Count }

func (r *Renderer) Settings() core.RenderSettings { return r.Buffers.Settings }

// UpdateSettings writes new render settings; they apply from the next
// submitted frame.
func (r *Renderer) UpdateSettings(queue hal.Queue, s core.RenderSettings) error {
	if err := r.Buffers.UpdateSettings(queue, s); err != nil {
		return err
	}
	r.Logger.Debugf("render settings: scaling=%.2f sh_degree=%d", s.GaussianScaling, s.SHDegree)
	return nil
}

// Release frees everything the renderer owns. The point cloud and camera
// buffers are left alone.
func (r *Renderer) Release() {
	if r.Render != nil {
		r.Render.Release()
		r.Render = nil
	}
	if r.Preprocess != nil {
		r.Preprocess.Release()
		r.Preprocess = nil
	}
	if r.Sorter != nil {
		r.Sorter.Release()
		r.Sorter = nil
	}
	if r.Buffers != nil {
		r.Buffers.Release()
		r.Buffers = nil
	}
}
