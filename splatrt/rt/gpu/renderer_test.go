package gpu_test

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/splat/splatrt/rt/core"
	"github.com/gekko3d/splat/splatrt/rt/depthsort"
	"github.com/gekko3d/splat/splatrt/rt/gpu"
	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/gpu/softgpu"
)

const targetSize = 64

var (
	red   = mgl32.Vec3{1, 0, 0}
	green = mgl32.Vec3{0, 1, 0}
	blue  = mgl32.Vec3{0, 0, 1}
)

type harness struct {
	dev    *softgpu.Device
	cam    hal.Buffer
	pc     *gpu.PointCloudBuffer
	r      *gpu.Renderer
	target *softgpu.Texture
}

// newHarness renders gaussians from the origin looking down -Z.
func newHarness(t *testing.T, gaussians []core.Gaussian, opts ...softgpu.Option) *harness {
	t.Helper()
	dev := softgpu.New(opts...)

	pc, err := gpu.UploadPointCloud(dev, core.NewPointCloud(gaussians))
	require.NoError(t, err)
	camBuf, err := gpu.NewCameraBuffer(dev)
	require.NoError(t, err)

	state := core.NewCameraState()
	state.Position = mgl32.Vec3{0, 0, 0}
	require.NoError(t, gpu.WriteCamera(dev.Queue(), camBuf, state.Uniform(targetSize, targetSize)))

	r, err := gpu.NewRenderer(dev, pc, hal.TextureFormatRGBA8Unorm, camBuf)
	require.NoError(t, err)

	h := &harness{dev: dev, cam: camBuf, pc: pc, r: r, target: softgpu.NewTexture(targetSize, targetSize)}
	t.Cleanup(func() {
		r.Release()
		pc.Release()
		camBuf.Release()
	})
	return h
}

func (h *harness) submit(t *testing.T, record func(enc hal.CommandEncoder)) {
	t.Helper()
	enc, err := h.dev.CreateCommandEncoder("test frame")
	require.NoError(t, err)
	record(enc)
	cb, err := enc.Finish()
	require.NoError(t, err)
	h.dev.Queue().Submit(cb)
	require.NoError(t, h.dev.PopError())
}

func (h *harness) frame(t *testing.T) {
	t.Helper()
	h.submit(t, func(enc hal.CommandEncoder) { h.r.Frame(enc, h.target) })
}

func (h *harness) read(t *testing.T, buf hal.Buffer) []byte {
	t.Helper()
	data, err := h.dev.ReadBuffer(buf)
	require.NoError(t, err)
	return data
}

func (h *harness) visibleCount(t *testing.T) uint32 {
	return softgpu.ReadUint32(h.read(t, h.r.Sorter.InfoBuffer()), 0)
}

func (h *harness) drawArgs(t *testing.T) gpu.DrawIndirectArgs {
	return gpu.UnmarshalDrawIndirectArgs(h.read(t, h.r.DrawArgsBuffer()))
}

// sorted returns the first count (key, splat) pairs in draw order.
func (h *harness) sorted(t *testing.T) ([]uint32, []uint32, []core.SplatRecord) {
	t.Helper()
	count := int(h.visibleCount(t))
	keys := h.read(t, h.r.Sorter.KeysBuffer())
	indices := h.read(t, h.r.Sorter.IndicesBuffer())
	splats := h.read(t, h.r.SplatBuffer())

	outKeys := make([]uint32, count)
	outIdx := make([]uint32, count)
	outSplats := make([]core.SplatRecord, count)
	for i := 0; i < count; i++ {
		outKeys[i] = softgpu.ReadUint32(keys, i*4)
		outIdx[i] = softgpu.ReadUint32(indices, i*4)
		outSplats[i] = core.UnmarshalSplatRecord(splats[int(outIdx[i])*core.SplatRecordStride:])
	}
	return outKeys, outIdx, outSplats
}

func depthOf(key uint32) float32 {
	return math.Float32frombits(^key)
}

func onAxis(depth float32, color mgl32.Vec3) core.Gaussian {
	return core.NewGaussian(mgl32.Vec3{0, 0, -depth}, 0.1, color, 1)
}

func TestFrameSortsBackToFront(t *testing.T) {
	h := newHarness(t, []core.Gaussian{
		onAxis(5, red),
		onAxis(1, green),
		onAxis(3, blue),
	})
	h.frame(t)

	assert.Equal(t, uint32(3), h.visibleCount(t))
	keys, _, splats := h.sorted(t)
	require.Len(t, keys, 3)
	for i, want := range []float32{5, 3, 1} {
		assert.InDelta(t, want, depthOf(keys[i]), 1e-4)
	}
	assert.InDelta(t, 1, splats[0].Color.X(), 1e-4, "farthest is red")
	assert.InDelta(t, 1, splats[1].Color.Z(), 1e-4, "middle is blue")
	assert.InDelta(t, 1, splats[2].Color.Y(), 1e-4, "nearest is green")

	assert.Equal(t, gpu.DrawIndirectArgs{VertexCount: 6, InstanceCount: 3}, h.drawArgs(t))

	draws := h.dev.Draws()
	require.Len(t, draws, 1)
	assert.True(t, draws[0].Indirect)
	assert.Equal(t, uint32(3), draws[0].InstanceCount)
	assert.Greater(t, draws[0].Fragments, 0)

	// Painter's order leaves the nearest splat on top.
	center := h.target.RGBA(targetSize/2, targetSize/2)
	assert.Greater(t, center[1], center[0])
	assert.Greater(t, center[1], center[2])
}

func TestFrameCullsBehindCamera(t *testing.T) {
	var gaussians []core.Gaussian
	for i := 0; i < 10; i++ {
		if i%5 < 2 {
			// Four of these sit behind the camera.
			gaussians = append(gaussians, core.NewGaussian(mgl32.Vec3{0, 0, float32(i + 1)}, 0.1, red, 1))
			continue
		}
		gaussians = append(gaussians, onAxis(float32(i+1), green))
	}
	h := newHarness(t, gaussians)
	h.frame(t)

	require.Equal(t, uint32(6), h.visibleCount(t))
	keys, indices, splats := h.sorted(t)

	slots := append([]uint32(nil), indices...)
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, slots)
	for i, s := range splats {
		assert.InDelta(t, 1, s.Color.Y(), 1e-4, "slot %d holds a culled gaussian", indices[i])
		assert.InDelta(t, 0, s.Color.X(), 1e-4)
	}
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))
	assert.Equal(t, uint32(6), h.drawArgs(t).InstanceCount)
}

func TestFrameEmptyCloud(t *testing.T) {
	h := newHarness(t, nil)
	h.frame(t)

	assert.Equal(t, uint32(0), h.r.Count())
	assert.Equal(t, uint32(0), h.visibleCount(t))
	assert.Equal(t, gpu.DrawIndirectArgs{VertexCount: 6}, h.drawArgs(t))
	assert.Empty(t, h.dev.Dispatches(), "nothing to preprocess or sort")

	draws := h.dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(0), draws[0].InstanceCount)
	assert.Equal(t, 0, draws[0].Fragments)
}

func TestFrameAllCulled(t *testing.T) {
	var gaussians []core.Gaussian
	for i := 0; i < 5; i++ {
		gaussians = append(gaussians, core.NewGaussian(mgl32.Vec3{0, 0, float32(i + 1)}, 0.1, red, 1))
	}
	h := newHarness(t, gaussians)
	h.frame(t)

	assert.Equal(t, uint32(0), h.visibleCount(t))
	assert.Equal(t, uint32(0), h.drawArgs(t).InstanceCount)
	for _, d := range h.dev.Dispatches() {
		if d.Indirect {
			assert.Equal(t, uint32(0), d.Workgroups[0], "sort must not run workgroups with no visible splats")
		}
	}

	draws := h.dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 0, draws[0].Fragments)
	for y := 0; y < targetSize; y++ {
		for x := 0; x < targetSize; x++ {
			require.Equal(t, [4]float32{}, h.target.RGBA(x, y))
		}
	}
}

func sphereHarness(t *testing.T, n int) *harness {
	t.Helper()
	pc := core.GenerateSphereCloud(n, 1, 42)
	// Push the sphere in front of the origin camera.
	for i := range pc.Gaussians {
		pc.Gaussians[i].Position = pc.Gaussians[i].Position.Add(mgl32.Vec3{0, 0, -4})
	}
	return newHarness(t, pc.Gaussians)
}

func TestFrameOrdersLargeCloud(t *testing.T) {
	const n = 3000
	h := sphereHarness(t, n)
	h.frame(t)

	count := h.visibleCount(t)
	assert.LessOrEqual(t, count, uint32(n))
	assert.Greater(t, count, uint32(0))

	keys, indices, _ := h.sorted(t)
	for i := 1; i < len(keys); i++ {
		require.True(t, keys[i-1] < keys[i] || (keys[i-1] == keys[i] && indices[i-1] < indices[i]),
			"position %d out of order", i)
		require.GreaterOrEqual(t, depthOf(keys[i-1]), depthOf(keys[i]))
	}

	seen := make([]bool, count)
	for _, idx := range indices {
		require.Less(t, idx, count)
		require.False(t, seen[idx], "slot %d sorted twice", idx)
		seen[idx] = true
	}

	preprocess := 0
	for _, d := range h.dev.Dispatches() {
		if !d.Indirect {
			preprocess++
			assert.Equal(t, [3]uint32{(n + depthsort.WorkgroupSize - 1) / depthsort.WorkgroupSize, 1, 1}, d.Workgroups)
			continue
		}
		assert.Equal(t, (count+depthsort.WorkgroupSize-1)/depthsort.WorkgroupSize, d.Workgroups[0])
	}
	assert.Equal(t, 1, preprocess)
}

func TestFrameIsIdempotent(t *testing.T) {
	h := sphereHarness(t, 500)

	h.frame(t)
	count := h.visibleCount(t)
	keys, _, splats := h.sorted(t)
	img := h.target.Image()

	h.frame(t)
	assert.Equal(t, count, h.visibleCount(t))
	keys2, _, splats2 := h.sorted(t)
	assert.Equal(t, keys, keys2)
	assert.Equal(t, splats, splats2)
	assert.Equal(t, img.Pix, h.target.Image().Pix)
	assert.Equal(t, count, h.drawArgs(t).InstanceCount)
}

func TestResetZeroesCounters(t *testing.T) {
	h := sphereHarness(t, 300)
	h.frame(t)
	require.NotZero(t, h.visibleCount(t))

	h.submit(t, h.r.RecordReset)

	assert.Equal(t, uint32(0), h.visibleCount(t))
	dispatch := h.read(t, h.r.Sorter.DispatchBuffer())
	assert.Equal(t, uint32(0), softgpu.ReadUint32(dispatch, 0))
	assert.Equal(t, uint32(1), softgpu.ReadUint32(dispatch, 4))
	assert.Equal(t, uint32(1), softgpu.ReadUint32(dispatch, 8))
}

func TestStepwiseRecordingMatchesFrame(t *testing.T) {
	h := newHarness(t, []core.Gaussian{onAxis(2, red), onAxis(4, blue)})
	h.submit(t, func(enc hal.CommandEncoder) {
		h.r.RecordReset(enc)
		h.r.RecordPreprocess(enc)
		h.r.RecordSort(enc)
	})
	assert.Equal(t, uint32(2), h.visibleCount(t))
	assert.Equal(t, uint32(0), h.drawArgs(t).InstanceCount, "count is not propagated yet")

	h.submit(t, func(enc hal.CommandEncoder) {
		h.r.RecordPropagate(enc)
		h.r.RecordRender(enc, h.target)
	})
	assert.Equal(t, uint32(2), h.drawArgs(t).InstanceCount)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t, []core.Gaussian{onAxis(3, red)})
	h.frame(t)
	_, _, before := h.sorted(t)
	require.Len(t, before, 1)

	wide := core.RenderSettings{GaussianScaling: 2, SHDegree: 0}
	require.NoError(t, h.r.UpdateSettings(h.dev.Queue(), wide))
	assert.Equal(t, wide, core.UnmarshalRenderSettings(h.read(t, h.r.SettingsBuffer())))
	assert.Equal(t, wide, h.r.Settings())

	h.frame(t)
	_, _, after := h.sorted(t)
	require.Len(t, after, 1)
	assert.Greater(t, after[0].Extent.X(), before[0].Extent.X())

	assert.Error(t, h.r.UpdateSettings(h.dev.Queue(), core.RenderSettings{GaussianScaling: 1, SHDegree: 4}))
	assert.Error(t, h.r.UpdateSettings(h.dev.Queue(), core.RenderSettings{GaussianScaling: 0}))
	assert.Equal(t, wide, h.r.Settings())
}

func TestCameraBufferIsShared(t *testing.T) {
	h := newHarness(t, []core.Gaussian{onAxis(3, red)})
	assert.Same(t, h.cam, h.r.CameraBuffer())

	// Turning around culls the splat without touching the renderer.
	state := core.NewCameraState()
	state.Position = mgl32.Vec3{0, 0, 0}
	state.Yaw = math.Pi
	require.NoError(t, gpu.WriteCamera(h.dev.Queue(), h.cam, state.Uniform(targetSize, targetSize)))
	h.frame(t)
	assert.Equal(t, uint32(0), h.visibleCount(t))
}

func TestAllocationErrors(t *testing.T) {
	limits := hal.DefaultLimits()
	limits.MaxStorageBufferBindingSize = 10 * core.GaussianStride
	dev := softgpu.New(softgpu.WithLimits(limits))

	pc := core.GenerateGridCloud(100, 1, 1)
	_, err := gpu.UploadPointCloud(dev, pc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrAllocation))

	limits = hal.DefaultLimits()
	limits.MaxComputeWorkgroupsPerDimension = 1
	dev = softgpu.New(softgpu.WithLimits(limits))
	buf, err := gpu.UploadPointCloud(dev, core.GenerateGridCloud(600, 1, 1))
	require.NoError(t, err)
	camBuf, err := gpu.NewCameraBuffer(dev)
	require.NoError(t, err)

	_, err = gpu.NewRenderer(dev, buf, hal.TextureFormatRGBA8Unorm, camBuf)
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrAllocation)
}

func TestSorterFactoryFailures(t *testing.T) {
	limits := hal.DefaultLimits()
	limits.MaxComputeWorkgroupsPerDimension = 1
	dev := softgpu.New(softgpu.WithLimits(limits))
	buf, err := gpu.UploadPointCloud(dev, core.GenerateGridCloud(600, 1, 1))
	require.NoError(t, err)
	camBuf, err := gpu.NewCameraBuffer(dev)
	require.NoError(t, err)

	tests := []struct {
		name    string
		factory gpu.SorterFactory
	}{
		{
			name: "Typed nil with error",
			factory: func(dev hal.Device, n uint32, label string) (depthsort.Sorter, error) {
				return depthsort.NewBitonic(dev, n, label)
			},
		},
		{
			name: "No sorter and no error",
			factory: func(hal.Device, uint32, string) (depthsort.Sorter, error) {
				return nil, nil
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var r *gpu.Renderer
			require.NotPanics(t, func() {
				r, err = gpu.NewRenderer(dev, buf, hal.TextureFormatRGBA8Unorm, camBuf, gpu.WithSorter(tc.factory))
			})
			assert.Nil(t, r)
			assert.ErrorIs(t, err, gpu.ErrAllocation)
		})
	}
}

func TestPipelineErrors(t *testing.T) {
	dev := softgpu.New()
	buf, err := gpu.UploadPointCloud(dev, core.GenerateGridCloud(8, 1, 1))
	require.NoError(t, err)
	camBuf, err := gpu.NewCameraBuffer(dev)
	require.NoError(t, err)

	_, err = gpu.NewRenderer(dev, buf, hal.TextureFormatUndefined, camBuf)
	require.Error(t, err)
	assert.ErrorIs(t, err, gpu.ErrPipeline)
}

func TestCustomSorter(t *testing.T) {
	dev := softgpu.New()
	buf, err := gpu.UploadPointCloud(dev, core.GenerateGridCloud(8, 1, 1))
	require.NoError(t, err)
	camBuf, err := gpu.NewCameraBuffer(dev)
	require.NoError(t, err)

	var capacity uint32
	r, err := gpu.NewRenderer(dev, buf, hal.TextureFormatRGBA8Unorm, camBuf,
		gpu.WithSorter(func(dev hal.Device, n uint32, label string) (depthsort.Sorter, error) {
			capacity = n
			return depthsort.NewBitonic(dev, n, label)
		}))
	require.NoError(t, err)
	defer r.Release()
	assert.Equal(t, uint32(8), capacity)
}
