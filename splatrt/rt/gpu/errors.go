package gpu

import "github.com/gekko3d/splat/splatrt/rt/gpu/hal"

// Construction errors. Both are matched with errors.Is; the wrapped error
// carries the device's message.
var (
	ErrAllocation = hal.ErrAllocation
	ErrPipeline   = hal.ErrPipeline
)
