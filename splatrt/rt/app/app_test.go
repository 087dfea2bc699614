package app

import (
	"strings"
	"testing"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/splat/splatrt/rt/core"
)

func TestSettingsForKey(t *testing.T) {
	base := core.RenderSettings{GaussianScaling: 1, SHDegree: 0}

	tests := []struct {
		name    string
		key     glfw.Key
		want    core.RenderSettings
		changed bool
	}{
		{name: "Grow", key: glfw.KeyRightBracket, want: core.RenderSettings{GaussianScaling: 1.1}, changed: true},
		{name: "Shrink", key: glfw.KeyLeftBracket, want: core.RenderSettings{GaussianScaling: 1 / 1.1}, changed: true},
		{name: "Degree 3", key: glfw.Key3, want: core.RenderSettings{GaussianScaling: 1, SHDegree: 3}, changed: true},
		{name: "Same degree", key: glfw.Key0, want: base, changed: false},
		{name: "Unbound key", key: glfw.KeyZ, want: base, changed: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := SettingsForKey(base, tc.key)
			assert.Equal(t, tc.changed, changed)
			assert.InDelta(t, tc.want.GaussianScaling, got.GaussianScaling, 1e-6)
			assert.Equal(t, tc.want.SHDegree, got.SHDegree)
		})
	}
}

type heldKeys map[glfw.Key]bool

func (h heldKeys) GetKey(key glfw.Key) glfw.Action {
	if h[key] {
		return glfw.Press
	}
	return glfw.Release
}

func TestMoveInput(t *testing.T) {
	assert.Equal(t, mgl32.Vec3{}, MoveInput(heldKeys{}))
	assert.Equal(t, mgl32.Vec3{1, 0, 1}, MoveInput(heldKeys{glfw.KeyW: true, glfw.KeyD: true}))
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, MoveInput(heldKeys{glfw.KeyW: true, glfw.KeyS: true}))
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, MoveInput(heldKeys{glfw.KeyQ: true}))
}

func TestFPSCounter(t *testing.T) {
	var c FPSCounter
	c.Tick(10)
	assert.Zero(t, c.FPS, "first frame only sets the baseline")

	for i := 1; i <= 30; i++ {
		c.Tick(10 + float64(i)*0.04)
	}
	assert.InDelta(t, 25, c.FPS, 1e-6)
	assert.InDelta(t, 0.04, c.FrameTime, 1e-9)
}

func TestProfilerFrameSteps(t *testing.T) {
	p := NewProfiler()
	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }

	for i, name := range FrameSteps {
		p.Time(name, func() { clock = clock.Add(time.Duration(i+1) * time.Millisecond) })
	}
	assert.Equal(t, FrameSteps, p.Order)
	assert.Equal(t, 15*time.Millisecond, p.FrameTotal())

	// Later samples pull the average toward them without replacing it.
	p.Time("Sort", func() { clock = clock.Add(13 * time.Millisecond) })
	sortScope := p.Scopes["Sort"]
	assert.Equal(t, 13*time.Millisecond, sortScope.Last)
	assert.Equal(t, 4*time.Millisecond, sortScope.Avg)
	assert.Equal(t, 2, sortScope.Hits)
	assert.Len(t, p.Order, len(FrameSteps), "repeat samples keep the order")

	p.EndScope("Never started")
	assert.NotContains(t, p.Scopes, "Never started")

	p.SetCount("Splats", 42)
	stats := p.GetStatsString()
	require.True(t, strings.HasPrefix(stats, "Record (CPU, avg):\n"))
	assert.Contains(t, stats, "  Preprocess   2.000 ms\n")
	assert.Contains(t, stats, "  Frame       25.000 ms\n")
	assert.Contains(t, stats, "  Splats      42\n")
}

func TestOwnedResourcesIncludeTextAtlas(t *testing.T) {
	assert.Empty(t, (&App{}).owned())

	atlas := &wgpu.Texture{}
	view := &wgpu.TextureView{}
	a := &App{TextAtlas: atlas, TextAtlasView: view}
	owned := a.owned()
	require.Len(t, owned, 2)
	assert.Same(t, view, owned[0], "views go before their texture")
	assert.Same(t, atlas, owned[1])
}
