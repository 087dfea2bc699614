package hal

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation reports a buffer that the device cannot provide, either
	// because it exceeds a device limit or because creation failed.
	ErrAllocation = errors.New("gpu allocation failed")
	// ErrPipeline reports a shader module or pipeline that failed to build.
	ErrPipeline = errors.New("gpu pipeline creation failed")
)

// CheckBufferSize validates a buffer of size bytes against the device
// limits. Storage buffers must also fit in a single binding.
func CheckBufferSize(limits Limits, label string, size uint64, storage bool) error {
	if size > limits.MaxBufferSize {
		return fmt.Errorf("%w: %s needs %d bytes, device max buffer size is %d",
			ErrAllocation, label, size, limits.MaxBufferSize)
	}
	if storage && size > limits.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: %s needs %d bytes, device max storage binding is %d",
			ErrAllocation, label, size, limits.MaxStorageBufferBindingSize)
	}
	return nil
}

// CheckWorkgroups validates a 1D dispatch size against the device limits.
func CheckWorkgroups(limits Limits, label string, groups uint64) error {
	if groups > uint64(limits.MaxComputeWorkgroupsPerDimension) {
		return fmt.Errorf("%w: %s needs %d workgroups, device max per dimension is %d",
			ErrAllocation, label, groups, limits.MaxComputeWorkgroupsPerDimension)
	}
	return nil
}

// CreateBuffer checks desc against the device limits, rounds its size up to
// a non-zero multiple of 4 and creates it. Failures wrap ErrAllocation.
func CreateBuffer(dev Device, desc BufferDescriptor) (Buffer, error) {
	desc.Size = AlignUp(max(desc.Size, 4), 4)
	if err := CheckBufferSize(dev.Limits(), desc.Label, desc.Size, desc.Usage.Has(BufferUsageStorage)); err != nil {
		return nil, err
	}
	buf, err := dev.CreateBuffer(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %w", ErrAllocation, desc.Label, err)
	}
	return buf, nil
}
