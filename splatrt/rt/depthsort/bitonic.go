package depthsort

import (
	"encoding/binary"
	"fmt"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

// Bitonic sorts up to capacity entries with a bitonic network recorded for
// the padded capacity. Each stage is one indirect dispatch sized by the
// preprocess pass, so a frame with few visible splats runs few workgroups.
type Bitonic struct {
	label    string
	capacity uint32
	padded   uint32

	keys     hal.Buffer
	indices  hal.Buffer
	info     hal.Buffer
	dispatch hal.Buffer
	params   hal.Buffer

	pipeline hal.ComputePipeline
	steps    []hal.BindGroup
}

var _ Sorter = (*Bitonic)(nil)

// NewBitonic allocates a sorter for up to capacity entries. Failures wrap
// hal.ErrAllocation or hal.ErrPipeline.
func NewBitonic(dev hal.Device, capacity uint32, label string) (*Bitonic, error) {
	limits := dev.Limits()
	padded := NextPow2(capacity)
	network := Network(padded)

	groups := (uint64(capacity) + WorkgroupSize - 1) / WorkgroupSize
	if err := hal.CheckWorkgroups(limits, label+" sort", groups); err != nil {
		return nil, err
	}

	b := &Bitonic{label: label, capacity: capacity, padded: padded}
	ok := false
	defer func() {
		if !ok {
			b.Release()
		}
	}()

	var err error
	// An empty runtime array binding still needs one element.
	entryBytes := uint64(max(capacity, 1)) * 4
	b.keys, err = hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label: label + " sort keys",
		Size:  entryBytes,
		Usage: hal.BufferUsageStorage | hal.BufferUsageCopySrc | hal.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	b.indices, err = hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label: label + " sort indices",
		Size:  entryBytes,
		Usage: hal.BufferUsageStorage | hal.BufferUsageCopySrc | hal.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	b.info, err = hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label: label + " sort info",
		Size:  InfoSize,
		Usage: hal.BufferUsageStorage | hal.BufferUsageCopySrc | hal.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}

	// y and z stay 1 for the renderer's lifetime; x is reset every frame.
	dispatchInit := make([]byte, DispatchSize)
	binary.LittleEndian.PutUint32(dispatchInit[4:], 1)
	binary.LittleEndian.PutUint32(dispatchInit[8:], 1)
	b.dispatch, err = hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label:    label + " sort dispatch",
		Size:     DispatchSize,
		Usage:    hal.BufferUsageStorage | hal.BufferUsageIndirect | hal.BufferUsageCopySrc | hal.BufferUsageCopyDst,
		Contents: dispatchInit,
	})
	if err != nil {
		return nil, err
	}

	if len(network) == 0 {
		ok = true
		return b, nil
	}

	stride := hal.AlignUp(StepSize, uint64(max(limits.MinUniformBufferOffsetAlignment, 4)))
	paramData := make([]byte, stride*uint64(len(network)))
	for i, s := range network {
		s.Marshal(paramData[uint64(i)*stride:])
	}
	b.params, err = hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label:    label + " sort steps",
		Size:     uint64(len(paramData)),
		Usage:    hal.BufferUsageUniform | hal.BufferUsageCopyDst,
		Contents: paramData,
	})
	if err != nil {
		return nil, err
	}

	code, err := shaders.Bitonic(shaders.Settings{WorkgroupSize: WorkgroupSize})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hal.ErrPipeline, err)
	}
	b.pipeline, err = dev.CreateComputePipeline(hal.ComputePipelineDescriptor{
		Label:      label + " bitonic",
		Shader:     hal.ShaderSource{Label: shaders.BitonicLabel, Code: code},
		EntryPoint: shaders.BitonicEntry,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bitonic: %w", hal.ErrPipeline, err)
	}

	b.steps = make([]hal.BindGroup, len(network))
	for i := range network {
		b.steps[i], err = dev.CreateBindGroup(hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s sort step %d", label, i),
			Compute: b.pipeline,
			Group:   0,
			Entries: []hal.BindGroupEntry{
				{Binding: 0, Buffer: b.info, Size: InfoSize},
				{Binding: 1, Buffer: b.keys},
				{Binding: 2, Buffer: b.indices},
				{Binding: 3, Buffer: b.params, Offset: uint64(i) * stride, Size: StepSize},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: bitonic step %d bind group: %w", hal.ErrPipeline, i, err)
		}
	}

	ok = true
	return b, nil
}

func (b *Bitonic) KeysBuffer() hal.Buffer     { return b.keys }
func (b *Bitonic) IndicesBuffer() hal.Buffer  { return b.indices }
func (b *Bitonic) InfoBuffer() hal.Buffer     { return b.info }
func (b *Bitonic) DispatchBuffer() hal.Buffer { return b.dispatch }

// Capacity is the number of entries the sorter was sized for.
func (b *Bitonic) Capacity() uint32 { return b.capacity }

// Stages is the number of dispatches Sort records.
func (b *Bitonic) Stages() int { return len(b.steps) }

func (b *Bitonic) RecordReset(enc hal.CommandEncoder, zero hal.Buffer) {
	enc.CopyBufferToBuffer(zero, 0, b.info, 0, 4)
	enc.CopyBufferToBuffer(zero, 0, b.dispatch, 0, 4)
}

func (b *Bitonic) Sort(enc hal.CommandEncoder) {
	if len(b.steps) == 0 {
		return
	}
	pass := enc.BeginComputePass(b.label + " sort")
	pass.SetPipeline(b.pipeline)
	for _, bg := range b.steps {
		pass.SetBindGroup(0, bg)
		pass.DispatchWorkgroupsIndirect(b.dispatch, 0)
	}
	pass.End()
}

func (b *Bitonic) Release() {
	if b == nil {
		return
	}
	for _, bg := range b.steps {
		if bg != nil {
			bg.Release()
		}
	}
	b.steps = nil
	if b.pipeline != nil {
		b.pipeline.Release()
		b.pipeline = nil
	}
	for _, buf := range []*hal.Buffer{&b.keys, &b.indices, &b.info, &b.dispatch, &b.params} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
}
