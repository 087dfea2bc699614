package depthsort

import (
	"encoding/binary"
	"math/bits"
)

// StepSize is the byte size of one StepParams uniform.
const StepSize = 16

// Step is one compare-exchange stage of the bitonic network. Every stage
// sorts towards ascending order: a flip stage mirrors pairs across a block
// of Block elements, a disperse stage compares elements Dist apart.
type Step struct {
	Flip     bool
	Block    uint32
	Dist     uint32
	HalfSize uint32
}

// NextPow2 returns the smallest power of two >= n, and 1 for n == 0.
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// Network returns the stages that sort a padded array of size elements.
// size must be a power of two.
func Network(size uint32) []Step {
	var steps []Step
	half := size / 2
	for block := uint32(2); block <= size; block <<= 1 {
		steps = append(steps, Step{Flip: true, Block: block, HalfSize: half})
		for dist := block / 4; dist > 0; dist >>= 1 {
			steps = append(steps, Step{Dist: dist, HalfSize: half})
		}
	}
	return steps
}

// Pair maps invocation t to the pair (i, p) it compares, with i < p.
// ok is false for invocations past the end of the network.
func (s Step) Pair(t uint32) (i, p uint32, ok bool) {
	if t >= s.HalfSize {
		return 0, 0, false
	}
	if s.Flip {
		half := s.Block / 2
		base := (t / half) * s.Block
		off := t % half
		return base + off, base + s.Block - 1 - off, true
	}
	i = (t/s.Dist)*2*s.Dist + t%s.Dist
	return i, i + s.Dist, true
}

// CompareExchange runs invocation t of s over keys and values, of which the
// first count are populated. Slots at or past count act as +inf and are
// never read or written.
func (s Step) CompareExchange(keys, values []uint32, count, t uint32) {
	i, p, ok := s.Pair(t)
	if !ok || p >= count {
		return
	}
	if keys[i] > keys[p] || (keys[i] == keys[p] && values[i] > values[p]) {
		keys[i], keys[p] = keys[p], keys[i]
		values[i], values[p] = values[p], values[i]
	}
}

// Marshal packs s as the StepParams uniform.
func (s Step) Marshal(buf []byte) {
	var flip uint32
	if s.Flip {
		flip = 1
	}
	binary.LittleEndian.PutUint32(buf[0:], flip)
	binary.LittleEndian.PutUint32(buf[4:], s.Block)
	binary.LittleEndian.PutUint32(buf[8:], s.Dist)
	binary.LittleEndian.PutUint32(buf[12:], s.HalfSize)
}

func UnmarshalStep(buf []byte) Step {
	return Step{
		Flip:     binary.LittleEndian.Uint32(buf[0:]) != 0,
		Block:    binary.LittleEndian.Uint32(buf[4:]),
		Dist:     binary.LittleEndian.Uint32(buf[8:]),
		HalfSize: binary.LittleEndian.Uint32(buf[12:]),
	}
}
