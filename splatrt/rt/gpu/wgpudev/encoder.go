package wgpudev

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

type CommandBuffer struct {
	Raw *wgpu.CommandBuffer
}

func (c *CommandBuffer) Release() { c.Raw.Release() }

// CommandEncoder keeps the first error returned by a recording call and
// reports it from Finish.
type CommandEncoder struct {
	Raw *wgpu.CommandEncoder
	err error
}

func (e *CommandEncoder) fail(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

func (e *CommandEncoder) CopyBufferToBuffer(src hal.Buffer, srcOffset uint64, dst hal.Buffer, dstOffset uint64, size uint64) {
	s, d := asBuffer(src), asBuffer(dst)
	if s == nil || d == nil {
		e.fail(fmt.Errorf("copy buffer to buffer: %T -> %T is not a wgpu copy", src, dst))
		return
	}
	e.fail(e.Raw.CopyBufferToBuffer(s, srcOffset, d, dstOffset, size))
}

func (e *CommandEncoder) BeginComputePass(label string) hal.ComputePassEncoder {
	return &ComputePassEncoder{
		raw:   e.Raw.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label}),
		enc:   e,
		label: label,
	}
}

func (e *CommandEncoder) BeginRenderPass(desc hal.RenderPassDescriptor) hal.RenderPassEncoder {
	view, ok := desc.Target.(*TextureView)
	if !ok || view == nil {
		e.fail(fmt.Errorf("render pass %s: target %T is not a wgpu view", desc.Label, desc.Target))
		return &RenderPassEncoder{enc: e, label: desc.Label}
	}
	attachment := wgpu.RenderPassColorAttachment{
		View:    view.Raw,
		LoadOp:  wgpu.LoadOpLoad,
		StoreOp: wgpu.StoreOpStore,
	}
	if desc.Clear != nil {
		attachment.LoadOp = wgpu.LoadOpClear
		attachment.ClearValue = wgpu.Color{R: desc.Clear.R, G: desc.Clear.G, B: desc.Clear.B, A: desc.Clear.A}
	}
	return &RenderPassEncoder{
		raw: e.Raw.BeginRenderPass(&wgpu.RenderPassDescriptor{
			Label:            desc.Label,
			ColorAttachments: []wgpu.RenderPassColorAttachment{attachment},
		}),
		enc:   e,
		label: desc.Label,
	}
}

func (e *CommandEncoder) Finish() (hal.CommandBuffer, error) {
	if e.err != nil {
		return nil, e.err
	}
	raw, err := e.Raw.Finish(nil)
	if err != nil {
		return nil, err
	}
	return &CommandBuffer{Raw: raw}, nil
}

func (e *CommandEncoder) Release() { e.Raw.Release() }

type ComputePassEncoder struct {
	raw   *wgpu.ComputePassEncoder
	enc   *CommandEncoder
	label string
}

func (p *ComputePassEncoder) SetPipeline(pl hal.ComputePipeline) {
	cp, ok := pl.(*ComputePipeline)
	if !ok || cp == nil {
		p.enc.fail(fmt.Errorf("compute pass %s: pipeline %T is not a wgpu pipeline", p.label, pl))
		return
	}
	p.raw.SetPipeline(cp.Raw)
}

func (p *ComputePassEncoder) SetBindGroup(index uint32, group hal.BindGroup) {
	bg, ok := group.(*BindGroup)
	if !ok || bg == nil {
		p.enc.fail(fmt.Errorf("compute pass %s: bind group %T is not a wgpu bind group", p.label, group))
		return
	}
	p.raw.SetBindGroup(index, bg.Raw, nil)
}

func (p *ComputePassEncoder) DispatchWorkgroups(x, y, z uint32) {
	p.raw.DispatchWorkgroups(x, y, z)
}

func (p *ComputePassEncoder) DispatchWorkgroupsIndirect(args hal.Buffer, offset uint64) {
	buf := asBuffer(args)
	if buf == nil {
		p.enc.fail(fmt.Errorf("compute pass %s: indirect buffer %T is not a wgpu buffer", p.label, args))
		return
	}
	p.raw.DispatchWorkgroupsIndirect(buf, offset)
}

func (p *ComputePassEncoder) End() {
	if err := p.raw.End(); err != nil {
		p.enc.fail(fmt.Errorf("compute pass %s: %w", p.label, err))
	}
	p.raw.Release()
}

// RenderPassEncoder drops every call when the pass could not be started.
type RenderPassEncoder struct {
	raw   *wgpu.RenderPassEncoder
	enc   *CommandEncoder
	label string
}

func (p *RenderPassEncoder) SetPipeline(pl hal.RenderPipeline) {
	rp, ok := pl.(*RenderPipeline)
	if p.raw == nil {
		return
	}
	if !ok || rp == nil {
		p.enc.fail(fmt.Errorf("render pass %s: pipeline %T is not a wgpu pipeline", p.label, pl))
		return
	}
	p.raw.SetPipeline(rp.Raw)
}

func (p *RenderPassEncoder) SetBindGroup(index uint32, group hal.BindGroup) {
	bg, ok := group.(*BindGroup)
	if p.raw == nil {
		return
	}
	if !ok || bg == nil {
		p.enc.fail(fmt.Errorf("render pass %s: bind group %T is not a wgpu bind group", p.label, group))
		return
	}
	p.raw.SetBindGroup(index, bg.Raw, nil)
}

func (p *RenderPassEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if p.raw != nil {
		p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (p *RenderPassEncoder) DrawIndirect(args hal.Buffer, offset uint64) {
	if p.raw == nil {
		return
	}
	buf := asBuffer(args)
	if buf == nil {
		p.enc.fail(fmt.Errorf("render pass %s: indirect buffer %T is not a wgpu buffer", p.label, args))
		return
	}
	p.raw.DrawIndirect(buf, offset)
}

// Raw exposes the pass for draws the hal does not model, such as the
// textured HUD overlay. It is nil if the pass failed to start.
func (p *RenderPassEncoder) Raw() *wgpu.RenderPassEncoder { return p.raw }

func (p *RenderPassEncoder) End() {
	if p.raw == nil {
		return
	}
	if err := p.raw.End(); err != nil {
		p.enc.fail(fmt.Errorf("render pass %s: %w", p.label, err))
	}
	p.raw.Release()
}
