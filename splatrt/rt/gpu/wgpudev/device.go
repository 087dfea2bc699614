// Package wgpudev implements the hal device on a WebGPU device.
package wgpudev

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

type Device struct {
	Raw    *wgpu.Device
	queue  *Queue
	limits hal.Limits
}

var _ hal.Device = (*Device)(nil)

// New wraps a device and reads its limits once.
func New(device *wgpu.Device) *Device {
	supported := device.GetLimits()
	d := &Device{
		Raw: device,
		limits: hal.Limits{
			MaxBufferSize:                    uint64(supported.Limits.MaxBufferSize),
			MaxStorageBufferBindingSize:      uint64(supported.Limits.MaxStorageBufferBindingSize),
			MaxComputeWorkgroupsPerDimension: uint32(supported.Limits.MaxComputeWorkgroupsPerDimension),
			MinUniformBufferOffsetAlignment:  uint32(supported.Limits.MinUniformBufferOffsetAlignment),
		},
	}
	d.queue = &Queue{raw: device.GetQueue()}
	return d
}

func (d *Device) Limits() hal.Limits { return d.limits }
func (d *Device) Queue() hal.Queue   { return d.queue }

type Buffer struct {
	Raw   *wgpu.Buffer
	label string
	usage hal.BufferUsage
}

func (b *Buffer) Label() string          { return b.label }
func (b *Buffer) Size() uint64           { return b.Raw.GetSize() }
func (b *Buffer) Usage() hal.BufferUsage { return b.usage }
func (b *Buffer) Release()               { b.Raw.Release() }

func (d *Device) CreateBuffer(desc hal.BufferDescriptor) (hal.Buffer, error) {
	var raw *wgpu.Buffer
	var err error
	if len(desc.Contents) > 0 {
		contents := desc.Contents
		if uint64(len(contents)) < desc.Size {
			contents = make([]byte, desc.Size)
			copy(contents, desc.Contents)
		}
		raw, err = d.Raw.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    desc.Label,
			Contents: contents,
			Usage:    wgpu.BufferUsage(desc.Usage),
		})
	} else {
		raw, err = d.Raw.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: wgpu.BufferUsage(desc.Usage),
		})
	}
	if err != nil {
		return nil, err
	}
	return &Buffer{Raw: raw, label: desc.Label, usage: desc.Usage}, nil
}

func asBuffer(b hal.Buffer) *wgpu.Buffer {
	if wb, ok := b.(*Buffer); ok && wb != nil {
		return wb.Raw
	}
	return nil
}

type ComputePipeline struct {
	Raw   *wgpu.ComputePipeline
	label string
}

func (p *ComputePipeline) Label() string { return p.label }
func (p *ComputePipeline) Release()      { p.Raw.Release() }

type RenderPipeline struct {
	Raw   *wgpu.RenderPipeline
	label string
}

func (p *RenderPipeline) Label() string { return p.label }
func (p *RenderPipeline) Release()      { p.Raw.Release() }

type BindGroup struct {
	Raw *wgpu.BindGroup
}

func (g *BindGroup) Release() { g.Raw.Release() }

// TextureView wraps a surface or offscreen view for use as a render target.
type TextureView struct {
	Raw *wgpu.TextureView
}

// WrapView adapts a view owned by the caller. Releasing the wrapper
// releases the view.
func WrapView(view *wgpu.TextureView) *TextureView {
	return &TextureView{Raw: view}
}

func (v *TextureView) Release() { v.Raw.Release() }

func (d *Device) shaderModule(src hal.ShaderSource) (*wgpu.ShaderModule, error) {
	return d.Raw.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Code},
	})
}

func (d *Device) CreateComputePipeline(desc hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	module, err := d.shaderModule(desc.Shader)
	if err != nil {
		return nil, fmt.Errorf("shader module %s: %w", desc.Shader.Label, err)
	}
	defer module.Release()

	// Layout auto
	raw, err := d.Raw.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: desc.Label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, err
	}
	return &ComputePipeline{Raw: raw, label: desc.Label}, nil
}

func (d *Device) CreateRenderPipeline(desc hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	format, err := TextureFormat(desc.TargetFormat)
	if err != nil {
		return nil, err
	}
	module, err := d.shaderModule(desc.Shader)
	if err != nil {
		return nil, fmt.Errorf("shader module %s: %w", desc.Shader.Label, err)
	}
	defer module.Release()

	raw, err := d.Raw.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: desc.Label,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				Blend:     BlendState(desc.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, err
	}
	return &RenderPipeline{Raw: raw, label: desc.Label}, nil
}

func (d *Device) CreateBindGroup(desc hal.BindGroupDescriptor) (hal.BindGroup, error) {
	var layout *wgpu.BindGroupLayout
	switch {
	case desc.Compute != nil:
		p, ok := desc.Compute.(*ComputePipeline)
		if !ok {
			return nil, fmt.Errorf("bind group %s: compute pipeline %T is not a wgpu pipeline", desc.Label, desc.Compute)
		}
		layout = p.Raw.GetBindGroupLayout(desc.Group)
	case desc.Render != nil:
		p, ok := desc.Render.(*RenderPipeline)
		if !ok {
			return nil, fmt.Errorf("bind group %s: render pipeline %T is not a wgpu pipeline", desc.Label, desc.Render)
		}
		layout = p.Raw.GetBindGroupLayout(desc.Group)
	default:
		return nil, fmt.Errorf("bind group %s has no pipeline", desc.Label)
	}
	defer layout.Release()

	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		buf := asBuffer(e.Buffer)
		if buf == nil {
			return nil, fmt.Errorf("bind group %s binding %d: buffer %T is not a wgpu buffer", desc.Label, e.Binding, e.Buffer)
		}
		size := e.Size
		if size == 0 {
			size = wgpu.WholeSize
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  buf,
			Offset:  e.Offset,
			Size:    size,
		}
	}

	raw, err := d.Raw.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return &BindGroup{Raw: raw}, nil
}

func (d *Device) CreateCommandEncoder(label string) (hal.CommandEncoder, error) {
	raw, err := d.Raw.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &CommandEncoder{Raw: raw}, nil
}

type Queue struct {
	raw *wgpu.Queue
}

func (q *Queue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	raw := asBuffer(buf)
	if raw == nil {
		return fmt.Errorf("write buffer: %T is not a wgpu buffer", buf)
	}
	return q.raw.WriteBuffer(raw, offset, data)
}

func (q *Queue) Submit(cmds ...hal.CommandBuffer) {
	raw := make([]*wgpu.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		if cb, ok := c.(*CommandBuffer); ok && cb != nil {
			raw = append(raw, cb.Raw)
		}
	}
	q.raw.Submit(raw...)
}

// Raw exposes the wgpu queue for uploads the hal does not cover.
func (q *Queue) Raw() *wgpu.Queue { return q.raw }
