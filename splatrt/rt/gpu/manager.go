package gpu

import (
	"fmt"

	splat "github.com/gekko3d/splat"
	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// SplatBufferManager owns the per-renderer buffers that are not part of
// the sorter: splat records, draw arguments, the zero word and the render
// settings uniform.
type SplatBufferManager struct {
	Device hal.Device
	Logger splat.Logger

	SplatBuf    hal.Buffer
	DrawArgsBuf hal.Buffer
	ZeroBuf     hal.Buffer
	SettingsBuf hal.Buffer

	Capacity uint32
	Settings core.RenderSettings
}

func NewSplatBufferManager(device hal.Device, logger splat.Logger) *SplatBufferManager {
	return &SplatBufferManager{
		Device:   device,
		Logger:   splat.OrNop(logger),
		Settings: core.DefaultRenderSettings(),
	}
}

// Allocate sizes every buffer for n Gaussians, all of them visible. Sizes
// are checked against the device limits before anything is created.
// Errors wrap ErrAllocation.
func (m *SplatBufferManager) Allocate(n uint32, label string) error {
	m.Release()

	// An empty runtime array binding still needs one element.
	splatBytes := uint64(max(n, 1)) * core.SplatRecordStride
	if err := hal.CheckBufferSize(m.Device.Limits(), label+" splats", splatBytes, true); err != nil {
		return err
	}

	var err error
	m.SplatBuf, err = hal.CreateBuffer(m.Device, hal.BufferDescriptor{
		Label: label + " splats",
		Size:  splatBytes,
		Usage: hal.BufferUsageStorage,
	})
	if err != nil {
		return err
	}

	// instance_count is overwritten by GPU copy every frame; the rest is constant.
	m.DrawArgsBuf, err = hal.CreateBuffer(m.Device, hal.BufferDescriptor{
		Label:    label + " draw args",
		Size:     DrawArgsSize,
		Usage:    hal.BufferUsageIndirect | hal.BufferUsageCopyDst,
		Contents: DrawIndirectArgs{VertexCount: QuadVertices}.Marshal(),
	})
	if err != nil {
		m.Release()
		return err
	}

	m.ZeroBuf, err = hal.CreateBuffer(m.Device, hal.BufferDescriptor{
		Label:    label + " zero",
		Size:     4,
		Usage:    hal.BufferUsageCopySrc,
		Contents: make([]byte, 4),
	})
	if err != nil {
		m.Release()
		return err
	}

	m.SettingsBuf, err = hal.CreateBuffer(m.Device, hal.BufferDescriptor{
		Label:    label + " settings",
		Size:     core.SettingsSize,
		Usage:    hal.BufferUsageUniform | hal.BufferUsageCopyDst,
		Contents: m.Settings.Marshal(),
	})
	if err != nil {
		m.Release()
		return err
	}

	m.Capacity = n
	m.Logger.Debugf("%s: allocated buffers for %d splats (%d bytes)", label, n, splatBytes)
	return nil
}

// UpdateSettings validates s and writes it to the settings uniform.
func (m *SplatBufferManager) UpdateSettings(queue hal.Queue, s core.RenderSettings) error {
	if err := validateSettings(s); err != nil {
		return err
	}
	if m.SettingsBuf == nil {
		return fmt.Errorf("settings buffer not allocated")
	}
	if err := queue.WriteBuffer(m.SettingsBuf, 0, s.Marshal()); err != nil {
		return fmt.Errorf("failed to write render settings: %w", err)
	}
	m.Settings = s
	return nil
}

func (m *SplatBufferManager) Release() {
	for _, buf := range []*hal.Buffer{&m.SplatBuf, &m.DrawArgsBuf, &m.ZeroBuf, &m.SettingsBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	m.Capacity = 0
}

func validateSettings(s core.RenderSettings) error {
	if s.SHDegree > core.MaxSHDegree {
		return fmt.Errorf("sh degree %d out of range [0, %d]", s.SHDegree, core.MaxSHDegree)
	}
	if !(s.GaussianScaling > 0) {
		return fmt.Errorf("gaussian scaling must be positive, got %v", s.GaussianScaling)
	}
	return nil
}
