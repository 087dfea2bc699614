package gpu

import (
	"fmt"

	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

// PreprocessPass projects every Gaussian, culls it and appends the visible
// ones to the splat, key and index buffers.
type PreprocessPass struct {
	Pipeline   hal.ComputePipeline
	BindGroup0 hal.BindGroup // camera
	BindGroup1 hal.BindGroup // gaussians, splats, settings
	BindGroup2 hal.BindGroup // sort info, keys, indices, dispatch

	label      string
	workgroups uint32
}

func NewPreprocessPass(dev hal.Device, label string, camera hal.Buffer, pc *PointCloudBuffer, m *SplatBufferManager, sorter depthsort.Sorter) (*PreprocessPass, error) {
	groups := (uint64(pc.Count) + depthsort.WorkgroupSize - 1) / depthsort.WorkgroupSize
	if err := hal.CheckWorkgroups(dev.Limits(), label+" preprocess", groups); err != nil {
		return nil, err
	}

	code, err := shaders.Preprocess(shaders.Settings{WorkgroupSize: depthsort.WorkgroupSize})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}

	p := &PreprocessPass{label: label, workgroups: uint32(groups)}
	ok := false
	defer func() {
		if !ok {
			p.Release()
		}
	}()

	p.Pipeline, err = dev.CreateComputePipeline(hal.ComputePipelineDescriptor{
		Label:      label + " preprocess",
		Shader:     hal.ShaderSource{Label: shaders.PreprocessLabel, Code: code},
		EntryPoint: shaders.PreprocessEntry,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preprocess: %w", ErrPipeline, err)
	}

	p.BindGroup0, err = dev.CreateBindGroup(hal.BindGroupDescriptor{
		Label:   label + " preprocess camera",
		Compute: p.Pipeline,
		Group:   0,
		Entries: []hal.BindGroupEntry{
			{Binding: 0, Buffer: camera},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preprocess bind group 0: %w", ErrPipeline, err)
	}

	p.BindGroup1, err = dev.CreateBindGroup(hal.BindGroupDescriptor{
		Label:   label + " preprocess splats",
		Compute: p.Pipeline,
		Group:   1,
		Entries: []hal.BindGroupEntry{
			{Binding: 0, Buffer: pc.Buffer},
			{Binding: 1, Buffer: m.SplatBuf},
			{Binding: 2, Buffer: m.SettingsBuf},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preprocess bind group 1: %w", ErrPipeline, err)
	}

	p.BindGroup2, err = dev.CreateBindGroup(hal.BindGroupDescriptor{
		Label:   label + " preprocess sort",
		Compute: p.Pipeline,
		Group:   2,
		Entries: []hal.BindGroupEntry{
			{Binding: 0, Buffer: sorter.InfoBuffer(), Size: depthsort.InfoSize},
			{Binding: 1, Buffer: sorter.KeysBuffer()},
			{Binding: 2, Buffer: sorter.IndicesBuffer()},
			{Binding: 3, Buffer: sorter.DispatchBuffer(), Size: depthsort.DispatchSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preprocess bind group 2: %w", ErrPipeline, err)
	}

	ok = true
	return p, nil
}

// Record dispatches one invocation per Gaussian. Nothing is recorded for an
// empty cloud.
func (p *PreprocessPass) Record(enc hal.CommandEncoder) {
	if p.workgroups == 0 {
		return
	}
	pass := enc.BeginComputePass(p.label + " preprocess")
	pass.SetPipeline(p.Pipeline)
	pass.SetBindGroup(0, p.BindGroup0)
	pass.SetBindGroup(1, p.BindGroup1)
	pass.SetBindGroup(2, p.BindGroup2)
	pass.DispatchWorkgroups(p.workgroups, 1, 1)
	pass.End()
}

func (p *PreprocessPass) Release() {
	for _, bg := range []*hal.BindGroup{&p.BindGroup0, &p.BindGroup1, &p.BindGroup2} {
		if *bg != nil {
			(*bg).Release()
			*bg = nil
		}
	}
	if p.Pipeline != nil {
		p.Pipeline.Release()
		p.Pipeline = nil
	}
}
