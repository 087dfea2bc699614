package gpu

import (
	"fmt"

	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

// SplatRenderPass draws one alpha-blended quad per sorted splat.
type SplatRenderPass struct {
	Pipeline   hal.RenderPipeline
	BindGroup0 hal.BindGroup // camera
	BindGroup1 hal.BindGroup // splats, sorted indices

	label string
	Clear hal.Color
}

func NewSplatRenderPass(dev hal.Device, label string, format hal.TextureFormat, camera hal.Buffer, m *SplatBufferManager, sorter depthsort.Sorter) (*SplatRenderPass, error) {
	rp := &SplatRenderPass{label: label}
	ok := false
	defer func() {
		if !ok {
			rp.Release()
		}
	}()

	var err error
	rp.Pipeline, err = dev.CreateRenderPipeline(hal.RenderPipelineDescriptor{
		Label:         label + " splat render",
		Shader:        hal.ShaderSource{Label: shaders.GaussianLabel, Code: shaders.Gaussian()},
		VertexEntry:   shaders.VertexEntry,
		FragmentEntry: shaders.FragmentEntry,
		TargetFormat:  format,
		Blend:         hal.BlendAlpha,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: splat render: %w", ErrPipeline, err)
	}

	rp.BindGroup0, err = dev.CreateBindGroup(hal.BindGroupDescriptor{
		Label:  label + " render camera",
		Render: rp.Pipeline,
		Group:  0,
		Entries: []hal.BindGroupEntry{
			{Binding: 0, Buffer: camera},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render bind group 0: %w", ErrPipeline, err)
	}

	rp.BindGroup1, err = dev.CreateBindGroup(hal.BindGroupDescriptor{
		Label:  label + " render splats",
		Render: rp.Pipeline,
		Group:  1,
		Entries: []hal.BindGroupEntry{
			{Binding: 0, Buffer: m.SplatBuf},
			{Binding: 1, Buffer: sorter.IndicesBuffer()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render bind group 1: %w", ErrPipeline, err)
	}

	ok = true
	return rp, nil
}

// Record clears target and issues a single indirect draw.
func (rp *SplatRenderPass) Record(enc hal.CommandEncoder, target hal.TextureView, drawArgs hal.Buffer) {
	bg := rp.Clear
	pass := enc.BeginRenderPass(hal.RenderPassDescriptor{
		Label:  rp.label + " splat render",
		Target: target,
		Clear:  &bg,
	})
	pass.SetPipeline(rp.Pipeline)
	pass.SetBindGroup(0, rp.BindGroup0)
	pass.SetBindGroup(1, rp.BindGroup1)
	pass.DrawIndirect(drawArgs, 0)
	pass.End()
}

func (rp *SplatRenderPass) Release() {
	for _, bg := range []*hal.BindGroup{&rp.BindGroup0, &rp.BindGroup1} {
		if *bg != nil {
			(*bg).Release()
			*bg = nil
		}
	}
	if rp.Pipeline != nil {
		rp.Pipeline.Release()
		rp.Pipeline = nil
	}
}
