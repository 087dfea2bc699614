package softgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/shaders"
)

func builtinKernels() map[string]ComputeKernel {
	return map[string]ComputeKernel{
		shaders.PreprocessEntry: {WorkgroupSize: depthsort.WorkgroupSize, Bind: bindPreprocess},
		shaders.BitonicEntry:    {WorkgroupSize: depthsort.WorkgroupSize, Bind: bindBitonicStep},
	}
}

func builtinPrograms() map[string]RenderProgram {
	return map[string]RenderProgram{
		shaders.GaussianLabel: drawGaussians,
	}
}

func bindingsOf(b Bindings, slots ...[2]uint32) ([]View, error) {
	views := make([]View, len(slots))
	for i, s := range slots {
		v, err := b.Buffer(s[0], s[1])
		if err != nil {
			return nil, err
		}
		views[i] = v
	}
	return views, nil
}

func bindPreprocess(b Bindings) (func(uint32) error, error) {
	v, err := bindingsOf(b,
		[2]uint32{0, 0}, // camera
		[2]uint32{1, 0}, // gaussians
		[2]uint32{1, 1}, // splats
		[2]uint32{1, 2}, // settings
		[2]uint32{2, 0}, // sort info
		[2]uint32{2, 1}, // sort keys
		[2]uint32{2, 2}, // sort indices
		[2]uint32{2, 3}, // sort dispatch
	)
	if err != nil {
		return nil, err
	}
	if v[0].Len() < core.CameraUniformSize || v[3].Len() < core.SettingsSize {
		return nil, fmt.Errorf("%w: camera or settings binding too small", ErrOutOfBounds)
	}
	if v[4].Len() < 4 || v[7].Len() < 4 {
		return nil, fmt.Errorf("%w: sort counters binding too small", ErrOutOfBounds)
	}
	cam := core.UnmarshalCameraUniform(v[0].Bytes())
	settings := core.UnmarshalRenderSettings(v[3].Bytes())
	gaussians := v[1].Bytes()
	count := uint32(len(gaussians) / core.GaussianStride)
	splats := v[2].Bytes()
	keys := v[5].Words()
	indices := v[6].Words()
	visible := v[4].Word(0)
	dispatchX := v[7].Word(0)

	return func(id uint32) error {
		if id >= count {
			return nil
		}
		g := core.UnmarshalGaussian(gaussians[int(id)*core.GaussianStride:])
		rec, depth, ok := core.ProjectGaussian(g, cam, settings)
		if !ok {
			return nil
		}
		slot := atomic.AddUint32(visible, 1) - 1
		if slot%depthsort.WorkgroupSize == 0 {
			atomic.AddUint32(dispatchX, 1)
		}
		if int(slot) >= len(keys) || int(slot) >= len(indices) || (int(slot)+1)*core.SplatRecordStride > len(splats) {
			return fmt.Errorf("%w: preprocess slot %d", ErrOutOfBounds, slot)
		}
		rec.Marshal(splats[int(slot)*core.SplatRecordStride:])
		keys[slot] = core.DepthKey(depth)
		indices[slot] = slot
		return nil
	}, nil
}

func bindBitonicStep(b Bindings) (func(uint32) error, error) {
	v, err := bindingsOf(b,
		[2]uint32{0, 0}, // sort info
		[2]uint32{0, 1}, // keys
		[2]uint32{0, 2}, // values
		[2]uint32{0, 3}, // step params
	)
	if err != nil {
		return nil, err
	}
	if v[3].Len() < depthsort.StepSize || v[0].Len() < 4 {
		return nil, fmt.Errorf("%w: step params or info binding too small", ErrOutOfBounds)
	}
	step := depthsort.UnmarshalStep(v[3].Bytes())
	keys := v[1].Words()
	values := v[2].Words()
	count := v[0].Words()[0]
	count = min(count, uint32(len(keys)), uint32(len(values)))

	return func(id uint32) error {
		step.CompareExchange(keys, values, count, id)
		return nil
	}, nil
}

// drawGaussians rasterizes one quad per instance, looking the splat up
// through the sorted index buffer.
func drawGaussians(ctx *DrawContext) error {
	v, err := bindingsOf(ctx.Bindings,
		[2]uint32{0, 0}, // camera
		[2]uint32{1, 0}, // splats
		[2]uint32{1, 1}, // sorted indices
	)
	if err != nil {
		return err
	}
	if ctx.VertexCount < 6 || v[0].Len() < core.CameraUniformSize {
		return nil
	}
	cam := core.UnmarshalCameraUniform(v[0].Bytes())
	splats := v[1].Bytes()
	sorted := v[2].Words()

	w, h := float32(ctx.Target.width), float32(ctx.Target.height)
	end := ctx.FirstInstance + ctx.InstanceCount
	for inst := ctx.FirstInstance; inst < end; inst++ {
		if int(inst) >= len(sorted) {
			return fmt.Errorf("%w: instance %d of %d sorted indices", ErrOutOfBounds, inst, len(sorted))
		}
		idx := int(sorted[inst])
		if (idx+1)*core.SplatRecordStride > len(splats) {
			return fmt.Errorf("%w: splat %d", ErrOutOfBounds, idx)
		}
		s := core.UnmarshalSplatRecord(splats[idx*core.SplatRecordStride:])

		// Quad bounds in framebuffer pixels, y down.
		minX := (s.Center.X() - s.Extent.X() + 1) / 2 * w
		maxX := (s.Center.X() + s.Extent.X() + 1) / 2 * w
		minY := (1 - (s.Center.Y() + s.Extent.Y())) / 2 * h
		maxY := (1 - (s.Center.Y() - s.Extent.Y())) / 2 * h

		x0, x1 := pixelSpan(minX, maxX, ctx.Target.width)
		y0, y1 := pixelSpan(minY, maxY, ctx.Target.height)
		for py := y0; py < y1; py++ {
			ndcY := 1 - (float32(py)+0.5)/h*2
			for px := x0; px < x1; px++ {
				ndcX := (float32(px)+0.5)/w*2 - 1
				d := mgl32.Vec2{
					(ndcX - s.Center.X()) * cam.Viewport.X() * 0.5,
					(ndcY - s.Center.Y()) * cam.Viewport.Y() * 0.5,
				}
				alpha := core.SplatAlpha(s, d)
				if alpha < 1.0/255.0 {
					continue
				}
				ctx.Shade(px, py, [4]float32{s.Color[0], s.Color[1], s.Color[2], alpha})
			}
		}
	}
	return nil
}

// pixelSpan returns the pixels whose centers fall in [lo, hi), clamped to
// [0, limit).
func pixelSpan(lo, hi float32, limit int) (int, int) {
	start := int(math.Ceil(float64(lo) - 0.5))
	end := int(math.Ceil(float64(hi) - 0.5))
	return max(start, 0), min(end, limit)
}

// ReadUint32 reads the little-endian word at offset of a buffer snapshot.
func ReadUint32(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset:])
}
