// Package softgpu implements the hal device on the CPU.
//
// Buffers are plain memory, compute pipelines run Go kernels registered by
// entry point, and render pipelines run Go rasterizers registered by shader
// label. Commands are validated while recording, as WebGPU does, and the
// first error is returned from Finish. Errors raised while executing a
// submission go to the device error handler.
package softgpu

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

var (
	ErrForeignResource      = errors.New("softgpu: resource does not belong to this device")
	ErrReleased             = errors.New("softgpu: resource already released")
	ErrUnknownEntryPoint    = errors.New("softgpu: no kernel registered for entry point")
	ErrUnknownProgram       = errors.New("softgpu: no render program registered for shader")
	ErrMissingBinding       = errors.New("softgpu: binding not set")
	ErrMissingUsage         = errors.New("softgpu: buffer lacks required usage")
	ErrCopyRangeOutOfBounds = errors.New("softgpu: copy range out of bounds")
	ErrCopyOverlap          = errors.New("softgpu: source and destination buffers overlap")
	ErrCopyOffsetNotAligned = errors.New("softgpu: copy offset must be 4-byte aligned")
	ErrCopySizeNotAligned   = errors.New("softgpu: copy size must be 4-byte aligned")
	ErrBindingOutOfRange    = errors.New("softgpu: binding range out of bounds")
	ErrEncoderLocked        = errors.New("softgpu: encoder is locked (pass in progress)")
	ErrEncoderFinished      = errors.New("softgpu: encoder already finished")
	ErrPassEnded            = errors.New("softgpu: pass already ended")
	ErrNoPipeline           = errors.New("softgpu: no pipeline set")
	ErrFormatMismatch       = errors.New("softgpu: pipeline format does not match target")
	ErrTooManyWorkgroups    = errors.New("softgpu: dispatch exceeds workgroup limit")
	ErrOutOfBounds          = errors.New("softgpu: kernel access out of bounds")
	ErrConsumed             = errors.New("softgpu: command buffer already submitted")
)

type Option func(*Device)

// WithLimits replaces the WebGPU default limits.
func WithLimits(l hal.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithShaderValidation compiles every shader with naga at pipeline creation.
func WithShaderValidation(enabled bool) Option {
	return func(d *Device) { d.validate = enabled }
}

// WithComputeKernel registers or overrides the kernel for an entry point.
func WithComputeKernel(entry string, k ComputeKernel) Option {
	return func(d *Device) { d.kernels[entry] = k }
}

// WithRenderProgram registers or overrides the rasterizer for a shader label.
func WithRenderProgram(shaderLabel string, p RenderProgram) Option {
	return func(d *Device) { d.programs[shaderLabel] = p }
}

// WithErrorHandler receives errors raised while executing submissions.
// Without a handler they queue up for PopError.
func WithErrorHandler(fn func(error)) Option {
	return func(d *Device) { d.onError = fn }
}

// DispatchRecord describes one executed dispatch.
type DispatchRecord struct {
	Pipeline   string
	Workgroups [3]uint32
	Indirect   bool
}

// DrawRecord describes one executed draw.
type DrawRecord struct {
	Pipeline      string
	Indirect      bool
	VertexCount   uint32
	InstanceCount uint32
	Fragments     int
}

type Device struct {
	limits   hal.Limits
	validate bool
	kernels  map[string]ComputeKernel
	programs map[string]RenderProgram
	onError  func(error)
	queue    *Queue

	// execMu serializes submissions with buffer reads and writes.
	execMu sync.Mutex

	mu         sync.Mutex
	errs       []error
	dispatches []DispatchRecord
	draws      []DrawRecord
}

var _ hal.Device = (*Device)(nil)

// New creates a device with the splat renderer's kernels registered.
func New(opts ...Option) *Device {
	d := &Device{
		limits:   hal.DefaultLimits(),
		kernels:  builtinKernels(),
		programs: builtinPrograms(),
	}
	d.queue = &Queue{dev: d}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Limits() hal.Limits { return d.limits }
func (d *Device) Queue() hal.Queue   { return d.queue }

func (d *Device) CreateBuffer(desc hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("softgpu: buffer %q size %d exceeds max %d", desc.Label, desc.Size, d.limits.MaxBufferSize)
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return nil, fmt.Errorf("softgpu: buffer %q contents (%d bytes) exceed size %d", desc.Label, len(desc.Contents), desc.Size)
	}
	b := newBuffer(desc)
	copy(b.bytes(), desc.Contents)
	return b, nil
}

func (d *Device) checkShader(src hal.ShaderSource, entries ...string) error {
	for _, e := range entries {
		if !strings.Contains(src.Code, "fn "+e+"(") {
			return fmt.Errorf("softgpu: shader %q has no entry point %q", src.Label, e)
		}
	}
	if d.validate {
		return shaders.Validate(src.Label, src.Code)
	}
	return nil
}

func (d *Device) CreateComputePipeline(desc hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	if err := d.checkShader(desc.Shader, desc.EntryPoint); err != nil {
		return nil, err
	}
	k, ok := d.kernels[desc.EntryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, desc.EntryPoint)
	}
	return &ComputePipeline{label: desc.Label, entry: desc.EntryPoint, kernel: k}, nil
}

func (d *Device) CreateRenderPipeline(desc hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if err := d.checkShader(desc.Shader, desc.VertexEntry, desc.FragmentEntry); err != nil {
		return nil, err
	}
	p, ok := d.programs[desc.Shader.Label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProgram, desc.Shader.Label)
	}
	if desc.TargetFormat == hal.TextureFormatUndefined {
		return nil, fmt.Errorf("softgpu: render pipeline %q has no target format", desc.Label)
	}
	return &RenderPipeline{label: desc.Label, program: p, format: desc.TargetFormat, blend: desc.Blend}, nil
}

func (d *Device) CreateBindGroup(desc hal.BindGroupDescriptor) (hal.BindGroup, error) {
	g := &BindGroup{label: desc.Label, group: desc.Group, views: make(map[uint32]View, len(desc.Entries))}
	switch {
	case desc.Compute != nil && desc.Render == nil:
		p, ok := desc.Compute.(*ComputePipeline)
		if !ok {
			return nil, fmt.Errorf("%w: compute pipeline %T", ErrForeignResource, desc.Compute)
		}
		g.compute = p
	case desc.Render != nil && desc.Compute == nil:
		p, ok := desc.Render.(*RenderPipeline)
		if !ok {
			return nil, fmt.Errorf("%w: render pipeline %T", ErrForeignResource, desc.Render)
		}
		g.render = p
	default:
		return nil, fmt.Errorf("softgpu: bind group %q needs exactly one pipeline", desc.Label)
	}
	if desc.Group >= maxBindGroups {
		return nil, fmt.Errorf("softgpu: bind group %q index %d >= %d", desc.Label, desc.Group, maxBindGroups)
	}

	for _, e := range desc.Entries {
		b, err := asBuffer(e.Buffer)
		if err != nil {
			return nil, fmt.Errorf("bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		size := e.Size
		if size == 0 {
			if e.Offset > b.size {
				return nil, fmt.Errorf("%w: %q binding %d offset %d > size %d", ErrBindingOutOfRange, desc.Label, e.Binding, e.Offset, b.size)
			}
			size = b.size - e.Offset
		}
		if e.Offset%4 != 0 || size%4 != 0 {
			return nil, fmt.Errorf("%w: %q binding %d offset %d size %d", ErrBindingOutOfRange, desc.Label, e.Binding, e.Offset, size)
		}
		if e.Offset+size > b.size {
			return nil, fmt.Errorf("%w: %q binding %d range [%d, %d) > size %d", ErrBindingOutOfRange, desc.Label, e.Binding, e.Offset, e.Offset+size, b.size)
		}
		if b.usage.Has(hal.BufferUsageUniform) && !b.usage.Has(hal.BufferUsageStorage) &&
			e.Offset%uint64(d.limits.MinUniformBufferOffsetAlignment) != 0 {
			return nil, fmt.Errorf("%w: %q binding %d uniform offset %d not aligned to %d",
				ErrBindingOutOfRange, desc.Label, e.Binding, e.Offset, d.limits.MinUniformBufferOffsetAlignment)
		}
		if !b.usage.Has(hal.BufferUsageUniform) && !b.usage.Has(hal.BufferUsageStorage) {
			return nil, fmt.Errorf("%w: %q binding %d buffer %q is neither uniform nor storage", ErrMissingUsage, desc.Label, e.Binding, b.label)
		}
		g.views[e.Binding] = View{buf: b, offset: e.Offset, size: size}
	}
	return g, nil
}

func (d *Device) CreateCommandEncoder(label string) (hal.CommandEncoder, error) {
	return &CommandEncoder{dev: d, label: label}, nil
}

// ReadBuffer returns a copy of buf's contents, like a mapped staging copy.
func (d *Device) ReadBuffer(buf hal.Buffer) ([]byte, error) {
	b, err := asBuffer(buf)
	if err != nil {
		return nil, err
	}
	d.execMu.Lock()
	defer d.execMu.Unlock()
	return append([]byte(nil), b.bytes()...), nil
}

// PopError returns and clears the oldest unhandled execution error.
func (d *Device) PopError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) == 0 {
		return nil
	}
	err := d.errs[0]
	d.errs = d.errs[1:]
	return err
}

// Dispatches returns the dispatches executed since the last ResetLog.
func (d *Device) Dispatches() []DispatchRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DispatchRecord(nil), d.dispatches...)
}

// Draws returns the draws executed since the last ResetLog.
func (d *Device) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

func (d *Device) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = nil
	d.draws = nil
}

func (d *Device) report(err error) {
	if d.onError != nil {
		d.onError(err)
		return
	}
	d.mu.Lock()
	d.errs = append(d.errs, err)
	d.mu.Unlock()
}

type Queue struct {
	dev *Device
}

func (q *Queue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(buf)
	if err != nil {
		return err
	}
	if !b.usage.Has(hal.BufferUsageCopyDst) {
		return fmt.Errorf("%w: write to %q needs COPY_DST", ErrMissingUsage, b.label)
	}
	if offset%4 != 0 {
		return fmt.Errorf("%w: write offset %d", ErrCopyOffsetNotAligned, offset)
	}
	if uint64(len(data))%4 != 0 {
		return fmt.Errorf("%w: write size %d", ErrCopySizeNotAligned, len(data))
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write [%d, %d) into %q of size %d",
			ErrCopyRangeOutOfBounds, offset, offset+uint64(len(data)), b.label, b.size)
	}
	q.dev.execMu.Lock()
	defer q.dev.execMu.Unlock()
	copy(b.bytes()[offset:], data)
	return nil
}

// Submit executes the command buffers in order on the calling goroutine.
func (q *Queue) Submit(cmds ...hal.CommandBuffer) {
	for _, c := range cmds {
		cb, ok := c.(*CommandBuffer)
		if !ok || cb == nil {
			q.dev.report(fmt.Errorf("%w: command buffer %T", ErrForeignResource, c))
			continue
		}
		if cb.consumed {
			q.dev.report(fmt.Errorf("%w: %q", ErrConsumed, cb.label))
			continue
		}
		cb.consumed = true
		if err := q.dev.execute(cb); err != nil {
			q.dev.report(fmt.Errorf("submit %q: %w", cb.label, err))
		}
	}
}
