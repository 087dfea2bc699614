package softgpu_test

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/splat/splatrt/rt/gpu/hal"
	"github.com/gekko3d/splat/splatrt/rt/gpu/softgpu"
)

const quadShader = "fn vs_main() {} fn fs_main() {}"

// shadeFirstPixel shades pixel (0, 0) once per instance, alternating red
// and green at half alpha.
func shadeFirstPixel(ctx *softgpu.DrawContext) error {
	for i := uint32(0); i < ctx.InstanceCount; i++ {
		src := [4]float32{1, 0, 0, 0.5}
		if i%2 == 1 {
			src = [4]float32{0, 1, 0, 0.5}
		}
		ctx.Shade(0, 0, src)
		ctx.Shade(-1, 0, src)
	}
	return nil
}

func newQuadPipeline(t *testing.T, dev *softgpu.Device, format hal.TextureFormat, blend hal.BlendMode) hal.RenderPipeline {
	t.Helper()
	p, err := dev.CreateRenderPipeline(hal.RenderPipelineDescriptor{
		Label:         "quad",
		Shader:        hal.ShaderSource{Label: "quad.wgsl", Code: quadShader},
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		TargetFormat:  format,
		Blend:         blend,
	})
	require.NoError(t, err)
	return p
}

func draw(t *testing.T, dev *softgpu.Device, pipeline hal.RenderPipeline, target *softgpu.Texture, instances uint32) {
	t.Helper()
	enc, err := dev.CreateCommandEncoder("draw")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(hal.RenderPassDescriptor{Label: "quad", Target: target, Clear: &hal.Color{}})
	pass.SetPipeline(pipeline)
	pass.Draw(6, instances, 0, 0)
	pass.End()
	cb, err := enc.Finish()
	require.NoError(t, err)
	dev.Queue().Submit(cb)
	require.NoError(t, dev.PopError())
}

func TestAlphaBlendIsOrdered(t *testing.T) {
	dev := softgpu.New(softgpu.WithRenderProgram("quad.wgsl", shadeFirstPixel))
	pipeline := newQuadPipeline(t, dev, hal.TextureFormatRGBA8Unorm, hal.BlendAlpha)
	target := softgpu.NewTexture(2, 2)

	draw(t, dev, pipeline, target, 2)

	// Red then green, both over transparent black.
	got := target.RGBA(0, 0)
	assert.InDelta(t, 0.25, got[0], 1e-6)
	assert.InDelta(t, 0.5, got[1], 1e-6)
	assert.InDelta(t, 0, got[2], 1e-6)
	assert.InDelta(t, 0.75, got[3], 1e-6)
	assert.Equal(t, [4]float32{}, target.RGBA(1, 1))

	assert.Equal(t, color.RGBA{R: 64, G: 128, B: 0, A: 191}, target.Image().RGBAAt(0, 0))

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.Equal(t, 2, draws[0].Fragments, "off-target fragments are not counted")
	assert.False(t, draws[0].Indirect)
}

func TestBlendNoneOverwrites(t *testing.T) {
	dev := softgpu.New(softgpu.WithRenderProgram("quad.wgsl", shadeFirstPixel))
	pipeline := newQuadPipeline(t, dev, hal.TextureFormatRGBA8Unorm, hal.BlendNone)
	target := softgpu.NewTexture(1, 1)

	draw(t, dev, pipeline, target, 2)
	assert.Equal(t, [4]float32{0, 1, 0, 0.5}, target.RGBA(0, 0))
}

func TestClearEachPass(t *testing.T) {
	dev := softgpu.New(softgpu.WithRenderProgram("quad.wgsl", shadeFirstPixel))
	pipeline := newQuadPipeline(t, dev, hal.TextureFormatRGBA8Unorm, hal.BlendAlpha)
	target := softgpu.NewTexture(1, 1)

	draw(t, dev, pipeline, target, 1)
	first := target.RGBA(0, 0)
	draw(t, dev, pipeline, target, 1)
	assert.Equal(t, first, target.RGBA(0, 0))
}

func TestIndirectDrawWithZeroInstances(t *testing.T) {
	dev := softgpu.New(softgpu.WithRenderProgram("quad.wgsl", shadeFirstPixel))
	pipeline := newQuadPipeline(t, dev, hal.TextureFormatRGBA8Unorm, hal.BlendAlpha)
	target := softgpu.NewTexture(1, 1)
	args, err := dev.CreateBuffer(hal.BufferDescriptor{
		Label: "draw args", Size: 16, Usage: hal.BufferUsageIndirect,
		Contents: []byte{6, 0, 0, 0},
	})
	require.NoError(t, err)

	enc, _ := dev.CreateCommandEncoder("indirect")
	pass := enc.BeginRenderPass(hal.RenderPassDescriptor{Target: target, Clear: &hal.Color{}})
	pass.SetPipeline(pipeline)
	pass.DrawIndirect(args, 0)
	pass.End()
	cb, err := enc.Finish()
	require.NoError(t, err)
	dev.Queue().Submit(cb)
	require.NoError(t, dev.PopError())

	draws := dev.Draws()
	require.Len(t, draws, 1)
	assert.True(t, draws[0].Indirect)
	assert.Equal(t, uint32(6), draws[0].VertexCount)
	assert.Equal(t, uint32(0), draws[0].InstanceCount)
	assert.Equal(t, 0, draws[0].Fragments)
}

func TestRenderPassValidation(t *testing.T) {
	dev := softgpu.New(softgpu.WithRenderProgram("quad.wgsl", shadeFirstPixel))
	target := softgpu.NewTexture(1, 1)

	t.Run("Format mismatch", func(t *testing.T) {
		pipeline := newQuadPipeline(t, dev, hal.TextureFormatBGRA8Unorm, hal.BlendAlpha)
		enc, _ := dev.CreateCommandEncoder("mismatch")
		pass := enc.BeginRenderPass(hal.RenderPassDescriptor{Target: target})
		pass.SetPipeline(pipeline)
		pass.End()
		_, err := enc.Finish()
		assert.ErrorIs(t, err, softgpu.ErrFormatMismatch)
	})

	t.Run("Draw args need indirect usage", func(t *testing.T) {
		pipeline := newQuadPipeline(t, dev, hal.TextureFormatRGBA8Unorm, hal.BlendAlpha)
		args := newBuffer(t, dev, "args", 16, hal.BufferUsageStorage)
		enc, _ := dev.CreateCommandEncoder("usage")
		pass := enc.BeginRenderPass(hal.RenderPassDescriptor{Target: target})
		pass.SetPipeline(pipeline)
		pass.DrawIndirect(args, 0)
		pass.End()
		_, err := enc.Finish()
		assert.ErrorIs(t, err, softgpu.ErrMissingUsage)
	})

	t.Run("Foreign target", func(t *testing.T) {
		enc, _ := dev.CreateCommandEncoder("foreign")
		enc.BeginRenderPass(hal.RenderPassDescriptor{Target: nil})
		_, err := enc.Finish()
		assert.ErrorIs(t, err, softgpu.ErrForeignResource)
	})

	t.Run("Unknown program", func(t *testing.T) {
		_, err := dev.CreateRenderPipeline(hal.RenderPipelineDescriptor{
			Label:         "other",
			Shader:        hal.ShaderSource{Label: "other.wgsl", Code: quadShader},
			VertexEntry:   "vs_main",
			FragmentEntry: "fs_main",
			TargetFormat:  hal.TextureFormatRGBA8Unorm,
		})
		assert.ErrorIs(t, err, softgpu.ErrUnknownProgram)
	})
}
