package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// originCamera looks down -Z from the origin onto a square viewport.
func originCamera() CameraUniform {
	cam := NewCameraState()
	cam.Position = mgl32.Vec3{0, 0, 0}
	return cam.Uniform(100, 100)
}

func TestProjectGaussianCulling(t *testing.T) {
	cam := originCamera()
	settings := DefaultRenderSettings()
	white := mgl32.Vec3{1, 1, 1}

	tests := []struct {
		name      string
		pos       mgl32.Vec3
		visible   bool
		wantDepth float32
	}{
		{name: "In front", pos: mgl32.Vec3{0, 0, -5}, visible: true, wantDepth: 5},
		{name: "Near but past culling plane", pos: mgl32.Vec3{0, 0, -0.5}, visible: true, wantDepth: 0.5},
		{name: "Inside near culling distance", pos: mgl32.Vec3{0, 0, -0.1}, visible: false, wantDepth: 0.1},
		{name: "Behind camera", pos: mgl32.Vec3{0, 0, 2}, visible: false, wantDepth: -2},
		{name: "Off screen left", pos: mgl32.Vec3{-50, 0, -5}, visible: false, wantDepth: 5},
		{name: "Off screen top", pos: mgl32.Vec3{0, 50, -5}, visible: false, wantDepth: 5},
		{name: "Slightly outside edge survives", pos: mgl32.Vec3{3.1, 0, -5}, visible: true, wantDepth: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGaussian(tc.pos, 0.1, white, 1)
			_, depth, ok := ProjectGaussian(g, cam, settings)
			assert.Equal(t, tc.visible, ok)
			assert.InDelta(t, tc.wantDepth, depth, 1e-4)
		})
	}
}

func TestProjectGaussianDegenerate(t *testing.T) {
	cam := originCamera()
	g := NewGaussian(mgl32.Vec3{0, 0, -5}, 0.1, mgl32.Vec3{1, 1, 1}, 1)
	g.Scale = mgl32.Vec3{float32(math.NaN()), 0, 0}

	_, _, ok := ProjectGaussian(g, cam, DefaultRenderSettings())
	assert.False(t, ok)
}

func TestProjectGaussianFootprint(t *testing.T) {
	cam := originCamera()
	g := NewGaussian(mgl32.Vec3{0, 0, -5}, 0.1, mgl32.Vec3{0.2, 0.4, 0.6}, 0.7)

	rec, _, ok := ProjectGaussian(g, cam, DefaultRenderSettings())
	require.True(t, ok)

	assert.InDelta(t, 0, rec.Center.X(), 1e-5)
	assert.InDelta(t, 0, rec.Center.Y(), 1e-5)
	// Isotropic Gaussian on the optical axis projects to a circle.
	assert.InDelta(t, 0, rec.Conic[1], 1e-5)
	assert.InDelta(t, rec.Conic[0], rec.Conic[2], 1e-4)
	assert.Greater(t, rec.Extent.X(), float32(0))
	assert.InDelta(t, rec.Extent.X(), rec.Extent.Y(), 1e-6)
	assert.Equal(t, float32(0.7), rec.Opacity)

	// Degree 0 evaluates back to the flat color.
	assert.InDelta(t, 0.2, rec.Color.X(), 1e-5)
	assert.InDelta(t, 0.4, rec.Color.Y(), 1e-5)
	assert.InDelta(t, 0.6, rec.Color.Z(), 1e-5)

	// Doubling the scaling widens the footprint.
	wide, _, ok := ProjectGaussian(g, cam, RenderSettings{GaussianScaling: 2})
	require.True(t, ok)
	assert.Greater(t, wide.Extent.X(), rec.Extent.X())
}

func TestDepthKeyOrdersFarFirst(t *testing.T) {
	depths := []float32{5, 1, 3, 0.25, 1000}
	for i := range depths {
		for j := range depths {
			if depths[i] > depths[j] {
				assert.Less(t, DepthKey(depths[i]), DepthKey(depths[j]),
					"depth %v should sort before %v", depths[i], depths[j])
			}
		}
	}
}

func TestEvalSHClampsAndUsesDegree(t *testing.T) {
	var sh [SHCoefficients]mgl32.Vec3
	sh[0] = ColorToSH(mgl32.Vec3{0.5, 0.5, 0.5})
	sh[2] = mgl32.Vec3{2, 2, 2}
	dir := mgl32.Vec3{0, 0, 1}

	flat := EvalSH(sh, 0, dir)
	assert.InDelta(t, 0.5, flat.X(), 1e-5)

	lit := EvalSH(sh, 1, dir)
	assert.InDelta(t, 0.5+2*shC1, lit.X(), 1e-5)

	dark := EvalSH(sh, 1, dir.Mul(-1))
	assert.Equal(t, float32(0), dark.X(), "negative color must clamp to zero")
}

func TestSplatAlpha(t *testing.T) {
	s := SplatRecord{Conic: mgl32.Vec3{1, 0, 1}, Opacity: 0.5}
	assert.InDelta(t, 0.5, SplatAlpha(s, mgl32.Vec2{0, 0}), 1e-6)
	assert.InDelta(t, 0.5*math.Exp(-0.5), SplatAlpha(s, mgl32.Vec2{1, 0}), 1e-6)
	assert.Less(t, SplatAlpha(s, mgl32.Vec2{10, 10}), float32(1.0/255))
}

func TestCameraUniform(t *testing.T) {
	cam := NewCameraState()
	u := cam.Uniform(200, 100)

	assert.Equal(t, mgl32.Vec2{200, 100}, u.Viewport)
	camPos := u.ViewInv.Col(3).Vec3()
	assert.InDelta(t, cam.Position.Z(), camPos.Z(), 1e-4)
	// Square pixels: both focal lengths agree.
	assert.InDelta(t, u.Focal.X(), u.Focal.Y(), 1e-3)

	buf := u.Marshal()
	require.Len(t, buf, CameraUniformSize)
	assert.Equal(t, u, UnmarshalCameraUniform(buf))
}

func TestCameraLookClampsPitch(t *testing.T) {
	cam := NewCameraState()
	cam.Look(0, -1e6)
	assert.Less(t, cam.Pitch, float32(math.Pi/2))
	cam.Look(0, 1e6)
	assert.Greater(t, cam.Pitch, float32(-math.Pi/2))
}

func TestGaussianLayout(t *testing.T) {
	g := NewGaussian(mgl32.Vec3{1, 2, 3}, 0.5, mgl32.Vec3{1, 0, 0}, 0.25)
	pc := NewPointCloud([]Gaussian{g, g})

	buf := pc.Bytes()
	require.Len(t, buf, 2*GaussianStride)
	assert.Equal(t, float32(0.25), getF32(buf[12:]), "opacity packs into pos.w")
	assert.Equal(t, float32(1), getF32(buf[32:]), "rotation w comes first")
	assert.Equal(t, g, UnmarshalGaussian(buf[GaussianStride:]))
}

func TestProceduralCloudsAreDeterministic(t *testing.T) {
	a := GenerateSphereCloud(64, 2, 7)
	b := GenerateSphereCloud(64, 2, 7)
	require.Equal(t, 64, a.Len())
	assert.Equal(t, a.Gaussians, b.Gaussians)
	for _, g := range a.Gaussians {
		assert.InDelta(t, 2, g.Position.Len(), 1e-4)
	}

	grid := GenerateGridCloud(30, 1, 1)
	assert.Equal(t, 30, grid.Len())

	var empty *PointCloud
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 0, GenerateSphereCloud(0, 1, 1).Len())
}
