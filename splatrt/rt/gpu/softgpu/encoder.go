package softgpu

import (
	"fmt"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

type command interface {
	execute(d *Device) error
}

type CommandBuffer struct {
	label    string
	cmds     []command
	consumed bool
}

func (c *CommandBuffer) Release() {}

// CommandEncoder records commands. The first invalid command poisons the
// encoder; later commands are dropped and Finish returns that error.
type CommandEncoder struct {
	dev      *Device
	label    string
	cmds     []command
	err      error
	inPass   bool
	finished bool
}

func (e *CommandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *CommandEncoder) recording(op string) bool {
	switch {
	case e.finished:
		e.fail(fmt.Errorf("%s: %w", op, ErrEncoderFinished))
		return false
	case e.inPass:
		e.fail(fmt.Errorf("%s: %w", op, ErrEncoderLocked))
		return false
	}
	return e.err == nil
}

func (e *CommandEncoder) CopyBufferToBuffer(src hal.Buffer, srcOffset uint64, dst hal.Buffer, dstOffset uint64, size uint64) {
	if !e.recording("copy buffer to buffer") {
		return
	}
	if err := validateCopy(src, srcOffset, dst, dstOffset, size); err != nil {
		e.fail(fmt.Errorf("copy buffer to buffer: %w", err))
		return
	}
	e.cmds = append(e.cmds, &copyCmd{
		src: src.(*Buffer), srcOffset: srcOffset,
		dst: dst.(*Buffer), dstOffset: dstOffset,
		size: size,
	})
}

func validateCopy(srcBuf hal.Buffer, srcOffset uint64, dstBuf hal.Buffer, dstOffset uint64, size uint64) error {
	src, err := asBuffer(srcBuf)
	if err != nil {
		return err
	}
	dst, err := asBuffer(dstBuf)
	if err != nil {
		return err
	}
	if !src.usage.Has(hal.BufferUsageCopySrc) {
		return fmt.Errorf("%w: source %q needs COPY_SRC", ErrMissingUsage, src.label)
	}
	if !dst.usage.Has(hal.BufferUsageCopyDst) {
		return fmt.Errorf("%w: destination %q needs COPY_DST", ErrMissingUsage, dst.label)
	}

	const alignment uint64 = 4
	if srcOffset%alignment != 0 {
		return fmt.Errorf("%w: source offset %d", ErrCopyOffsetNotAligned, srcOffset)
	}
	if dstOffset%alignment != 0 {
		return fmt.Errorf("%w: destination offset %d", ErrCopyOffsetNotAligned, dstOffset)
	}
	if size%alignment != 0 {
		return fmt.Errorf("%w: size %d", ErrCopySizeNotAligned, size)
	}

	if srcOffset+size > src.size {
		return fmt.Errorf("%w: source offset %d + size %d > buffer size %d",
			ErrCopyRangeOutOfBounds, srcOffset, size, src.size)
	}
	if dstOffset+size > dst.size {
		return fmt.Errorf("%w: destination offset %d + size %d > buffer size %d",
			ErrCopyRangeOutOfBounds, dstOffset, size, dst.size)
	}
	if src == dst {
		return fmt.Errorf("%w: %q", ErrCopyOverlap, src.label)
	}
	return nil
}

func (e *CommandEncoder) BeginComputePass(label string) hal.ComputePassEncoder {
	p := &ComputePassEncoder{enc: e, label: label}
	if !e.recording("begin compute pass") {
		p.ended = true
		return p
	}
	e.inPass = true
	return p
}

func (e *CommandEncoder) BeginRenderPass(desc hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &RenderPassEncoder{enc: e, label: desc.Label}
	if !e.recording("begin render pass") {
		p.ended = true
		return p
	}
	target, err := asTexture(desc.Target)
	if err != nil {
		e.fail(fmt.Errorf("begin render pass %q: %w", desc.Label, err))
		p.ended = true
		return p
	}
	p.target = target
	e.inPass = true
	if desc.Clear != nil {
		e.cmds = append(e.cmds, &clearCmd{target: target, color: *desc.Clear})
	}
	return p
}

func (e *CommandEncoder) Finish() (hal.CommandBuffer, error) {
	if e.finished {
		return nil, ErrEncoderFinished
	}
	if e.inPass {
		e.fail(fmt.Errorf("finish: %w", ErrEncoderLocked))
	}
	e.finished = true
	if e.err != nil {
		return nil, fmt.Errorf("encoder %q: %w", e.label, e.err)
	}
	return &CommandBuffer{label: e.label, cmds: e.cmds}, nil
}

func (e *CommandEncoder) Release() {}

type ComputePassEncoder struct {
	enc      *CommandEncoder
	label    string
	pipeline *ComputePipeline
	groups   Bindings
	ended    bool
}

func (p *ComputePassEncoder) active(op string) bool {
	if p.ended {
		p.enc.fail(fmt.Errorf("compute pass %q %s: %w", p.label, op, ErrPassEnded))
		return false
	}
	return p.enc.err == nil
}

func (p *ComputePassEncoder) SetPipeline(pl hal.ComputePipeline) {
	if !p.active("set pipeline") {
		return
	}
	cp, ok := pl.(*ComputePipeline)
	if !ok || cp == nil {
		p.enc.fail(fmt.Errorf("%w: compute pipeline %T", ErrForeignResource, pl))
		return
	}
	p.pipeline = cp
}

func (p *ComputePassEncoder) SetBindGroup(index uint32, group hal.BindGroup) {
	if !p.active("set bind group") {
		return
	}
	g, ok := group.(*BindGroup)
	if !ok || g == nil || index >= maxBindGroups {
		p.enc.fail(fmt.Errorf("%w: bind group %T at %d", ErrForeignResource, group, index))
		return
	}
	p.groups[index] = g
}

func (p *ComputePassEncoder) checkDispatch() bool {
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("compute pass %q dispatch: %w", p.label, ErrNoPipeline))
		return false
	}
	return true
}

func (p *ComputePassEncoder) DispatchWorkgroups(x, y, z uint32) {
	if !p.active("dispatch") || !p.checkDispatch() {
		return
	}
	limit := p.enc.dev.limits.MaxComputeWorkgroupsPerDimension
	if x > limit || y > limit || z > limit {
		p.enc.fail(fmt.Errorf("%w: (%d, %d, %d) > %d", ErrTooManyWorkgroups, x, y, z, limit))
		return
	}
	p.enc.cmds = append(p.enc.cmds, &dispatchCmd{
		pipeline: p.pipeline, groups: p.groups, size: [3]uint32{x, y, z},
	})
}

func (p *ComputePassEncoder) DispatchWorkgroupsIndirect(args hal.Buffer, offset uint64) {
	if !p.active("dispatch indirect") || !p.checkDispatch() {
		return
	}
	b, err := indirectBuffer(args, offset, 12)
	if err != nil {
		p.enc.fail(fmt.Errorf("compute pass %q dispatch indirect: %w", p.label, err))
		return
	}
	p.enc.cmds = append(p.enc.cmds, &dispatchCmd{
		pipeline: p.pipeline, groups: p.groups, indirect: b, offset: offset,
	})
}

func (p *ComputePassEncoder) End() {
	if !p.ended {
		p.ended = true
		p.enc.inPass = false
	}
}

type RenderPassEncoder struct {
	enc      *CommandEncoder
	label    string
	target   *Texture
	pipeline *RenderPipeline
	groups   Bindings
	ended    bool
}

func (p *RenderPassEncoder) active(op string) bool {
	if p.ended {
		p.enc.fail(fmt.Errorf("render pass %q %s: %w", p.label, op, ErrPassEnded))
		return false
	}
	return p.enc.err == nil
}

func (p *RenderPassEncoder) SetPipeline(pl hal.RenderPipeline) {
	if !p.active("set pipeline") {
		return
	}
	rp, ok := pl.(*RenderPipeline)
	if !ok || rp == nil {
		p.enc.fail(fmt.Errorf("%w: render pipeline %T", ErrForeignResource, pl))
		return
	}
	if rp.format != p.target.format {
		p.enc.fail(fmt.Errorf("%w: %s vs %s", ErrFormatMismatch, rp.format, p.target.format))
		return
	}
	p.pipeline = rp
}

func (p *RenderPassEncoder) SetBindGroup(index uint32, group hal.BindGroup) {
	if !p.active("set bind group") {
		return
	}
	g, ok := group.(*BindGroup)
	if !ok || g == nil || index >= maxBindGroups {
		p.enc.fail(fmt.Errorf("%w: bind group %T at %d", ErrForeignResource, group, index))
		return
	}
	p.groups[index] = g
}

func (p *RenderPassEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !p.active("draw") {
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("render pass %q draw: %w", p.label, ErrNoPipeline))
		return
	}
	p.enc.cmds = append(p.enc.cmds, &drawCmd{
		pipeline: p.pipeline, groups: p.groups, target: p.target,
		args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance},
	})
}

func (p *RenderPassEncoder) DrawIndirect(args hal.Buffer, offset uint64) {
	if !p.active("draw indirect") {
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("render pass %q draw indirect: %w", p.label, ErrNoPipeline))
		return
	}
	b, err := indirectBuffer(args, offset, 16)
	if err != nil {
		p.enc.fail(fmt.Errorf("render pass %q draw indirect: %w", p.label, err))
		return
	}
	p.enc.cmds = append(p.enc.cmds, &drawCmd{
		pipeline: p.pipeline, groups: p.groups, target: p.target,
		indirect: b, offset: offset,
	})
}

func (p *RenderPassEncoder) End() {
	if !p.ended {
		p.ended = true
		p.enc.inPass = false
	}
}

func indirectBuffer(args hal.Buffer, offset, size uint64) (*Buffer, error) {
	b, err := asBuffer(args)
	if err != nil {
		return nil, err
	}
	if !b.usage.Has(hal.BufferUsageIndirect) {
		return nil, fmt.Errorf("%w: %q needs INDIRECT", ErrMissingUsage, b.label)
	}
	if offset%4 != 0 {
		return nil, fmt.Errorf("%w: indirect offset %d", ErrCopyOffsetNotAligned, offset)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: indirect args [%d, %d) in %q of size %d",
			ErrCopyRangeOutOfBounds, offset, offset+size, b.label, b.size)
	}
	return b, nil
}
