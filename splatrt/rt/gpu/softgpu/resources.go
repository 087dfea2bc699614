package softgpu

import (
	"fmt"
	"image"
	"image/color"
	"unsafe"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
)

// Buffer is backed by 32-bit words so kernels can use sync/atomic on
// counters. Bytes are little-endian, like every WebGPU host.
type Buffer struct {
	label    string
	usage    hal.BufferUsage
	size     uint64
	words    []uint32
	released bool
}

func newBuffer(desc hal.BufferDescriptor) *Buffer {
	return &Buffer{
		label: desc.Label,
		usage: desc.Usage,
		size:  desc.Size,
		words: make([]uint32, hal.AlignUp(desc.Size, 4)/4),
	}
}

func (b *Buffer) Label() string          { return b.label }
func (b *Buffer) Size() uint64           { return b.size }
func (b *Buffer) Usage() hal.BufferUsage { return b.usage }
func (b *Buffer) Release()               { b.released = true }

// bytes aliases the word storage.
func (b *Buffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), len(b.words)*4)[:b.size]
}

func asBuffer(buf hal.Buffer) (*Buffer, error) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: buffer %T", ErrForeignResource, buf)
	}
	if b.released {
		return nil, fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	return b, nil
}

// View is a bound buffer range.
type View struct {
	buf    *Buffer
	offset uint64
	size   uint64
}

func (v View) Len() uint64 { return v.size }

func (v View) Bytes() []byte {
	return v.buf.bytes()[v.offset : v.offset+v.size]
}

// Words returns the range as u32 words. Offsets are always 4-byte aligned.
func (v View) Words() []uint32 {
	return v.buf.words[v.offset/4 : (v.offset+v.size)/4]
}

// Word returns a pointer to word i of the range for atomic access.
func (v View) Word(i int) *uint32 {
	return &v.Words()[i]
}

// Texture is a CPU render target in linear RGBA float, converted to 8-bit
// on readout.
type Texture struct {
	width, height int
	format        hal.TextureFormat
	pix           []float32
	released      bool
}

// NewTexture creates an rgba8unorm render target cleared to transparent black.
func NewTexture(width, height int) *Texture {
	return &Texture{
		width:  width,
		height: height,
		format: hal.TextureFormatRGBA8Unorm,
		pix:    make([]float32, width*height*4),
	}
}

func (t *Texture) Width() int                 { return t.width }
func (t *Texture) Height() int                { return t.height }
func (t *Texture) Format() hal.TextureFormat  { return t.format }
func (t *Texture) Release()                   { t.released = true }
func (t *Texture) Bounds() image.Rectangle    { return image.Rect(0, 0, t.width, t.height) }
func (t *Texture) RGBA(x, y int) [4]float32   { return *(*[4]float32)(t.pix[t.index(x, y):]) }
func (t *Texture) index(x, y int) int         { return (y*t.width + x) * 4 }
func (t *Texture) set(x, y int, c [4]float32) { copy(t.pix[t.index(x, y):], c[:]) }
func (t *Texture) clear(c hal.Color) {
	v := [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
	for i := 0; i < len(t.pix); i += 4 {
		copy(t.pix[i:], v[:])
	}
}

// Image converts the target to 8-bit RGBA. Over a transparent black clear
// the alpha blend accumulates premultiplied color, which is what
// image.RGBA stores.
func (t *Texture) Image() *image.RGBA {
	img := image.NewRGBA(t.Bounds())
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			c := t.RGBA(x, y)
			a := unorm8(c[3])
			img.SetRGBA(x, y, color.RGBA{
				R: min(unorm8(c[0]), a),
				G: min(unorm8(c[1]), a),
				B: min(unorm8(c[2]), a),
				A: a,
			})
		}
	}
	return img
}

func unorm8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func asTexture(view hal.TextureView) (*Texture, error) {
	t, ok := view.(*Texture)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: texture view %T", ErrForeignResource, view)
	}
	if t.released {
		return nil, fmt.Errorf("%w: texture", ErrReleased)
	}
	return t, nil
}

type ComputePipeline struct {
	label  string
	entry  string
	kernel ComputeKernel
}

func (p *ComputePipeline) Label() string { return p.label }
func (p *ComputePipeline) Release()      {}

type RenderPipeline struct {
	label   string
	program RenderProgram
	format  hal.TextureFormat
	blend   hal.BlendMode
}

func (p *RenderPipeline) Label() string { return p.label }
func (p *RenderPipeline) Release()      {}

type BindGroup struct {
	label   string
	group   uint32
	compute *ComputePipeline
	render  *RenderPipeline
	views   map[uint32]View
}

func (g *BindGroup) Release() {}

// maxBindGroups matches the WebGPU default maxBindGroups limit.
const maxBindGroups = 4

// Bindings is the bind group state at the time of a dispatch or draw.
type Bindings [maxBindGroups]*BindGroup

// Buffer returns the range bound at (group, binding).
func (b Bindings) Buffer(group, binding uint32) (View, error) {
	if group >= maxBindGroups || b[group] == nil {
		return View{}, fmt.Errorf("%w: group %d", ErrMissingBinding, group)
	}
	v, ok := b[group].views[binding]
	if !ok {
		return View{}, fmt.Errorf("%w: group %d binding %d", ErrMissingBinding, group, binding)
	}
	return v, nil
}
