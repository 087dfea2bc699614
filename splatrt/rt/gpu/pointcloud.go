package gpu

import (
	"fmt"

	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// PointCloudBuffer is an uploaded point cloud. The caller owns it and must
// keep it alive for as long as any renderer built on it.
type PointCloudBuffer struct {
	Buffer hal.Buffer
	Count  uint32
}

// UploadPointCloud copies pc to a read-only storage buffer.
func UploadPointCloud(dev hal.Device, pc *core.PointCloud) (*PointCloudBuffer, error) {
	n := pc.Len()
	data := make([]byte, core.GaussianStride)
	if n > 0 {
		data = pc.Bytes()
	} // else one zeroed record keeps the binding valid; Count stays 0.
	buf, err := hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label:    "point cloud",
		Size:     uint64(len(data)),
		Usage:    hal.BufferUsageStorage | hal.BufferUsageCopyDst,
		Contents: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload point cloud of %d gaussians: %w", n, err)
	}
	return &PointCloudBuffer{Buffer: buf, Count: uint32(n)}, nil
}

func (p *PointCloudBuffer) Release() {
	if p != nil && p.Buffer != nil {
		p.Buffer.Release()
		p.Buffer = nil
	}
}

// NewCameraBuffer creates a camera uniform buffer for the caller to own.
func NewCameraBuffer(dev hal.Device) (hal.Buffer, error) {
	return hal.CreateBuffer(dev, hal.BufferDescriptor{
		Label: "camera",
		Size:  core.CameraUniformSize,
		Usage: hal.BufferUsageUniform | hal.BufferUsageCopyDst,
	})
}

// WriteCamera uploads cam to an externally owned camera buffer.
func WriteCamera(queue hal.Queue, buf hal.Buffer, cam core.CameraUniform) error {
	if err := queue.WriteBuffer(buf, 0, cam.Marshal()); err != nil {
		return fmt.Errorf("failed to write camera: %w", err)
	}
	return nil
}
