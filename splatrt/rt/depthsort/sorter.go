// Package depthsort orders the per-frame splat list by depth key on the GPU.
//
// The preprocess pass fills the first keys_size slots of the key and index
// buffers and counts them in the info buffer; a Sorter then permutes the
// index buffer so that keys ascend. Neither side ever sees the count on the
// host.
package depthsort

import (
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// WorkgroupSize is shared by the preprocess and sort kernels. The preprocess
// pass bumps the dispatch counter once per WorkgroupSize entries, so the
// sort's indirect dispatch covers exactly the populated slots.
const WorkgroupSize = 256

const (
	// InfoSize is the byte size of the info buffer; keys_size is the word at offset 0.
	InfoSize = 16
	// DispatchSize is the byte size of the indirect dispatch args {x, y, z}.
	DispatchSize = 12
)

type Sorter interface {
	// KeysBuffer holds one u32 depth key per slot.
	KeysBuffer() hal.Buffer
	// IndicesBuffer holds one u32 payload per slot and is sorted in place.
	IndicesBuffer() hal.Buffer
	// InfoBuffer holds keys_size, the number of populated slots, at offset 0.
	InfoBuffer() hal.Buffer
	// DispatchBuffer holds the indirect dispatch args for the sort kernels.
	DispatchBuffer() hal.Buffer
	// RecordReset zeroes keys_size and the dispatch x counter by copying
	// from zero, a buffer holding at least 4 zero bytes.
	RecordReset(enc hal.CommandEncoder, zero hal.Buffer)
	// Sort records the passes that order [0, keys_size) by ascending
	// (key, index).
	Sort(enc hal.CommandEncoder)
	Release()
}
