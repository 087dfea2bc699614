package app

import (
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/splat/splatrt/rt/core"
)

const scalingStep = 1.1

// SettingsForKey returns the settings after key is pressed, and whether
// the key changed anything. [ and ] shrink and grow the Gaussians, 0-3
// pick the spherical harmonics degree.
func SettingsForKey(s core.RenderSettings, key glfw.Key) (core.RenderSettings, bool) {
	switch key {
	case glfw.KeyLeftBracket:
		s.GaussianScaling /= scalingStep
	case glfw.KeyRightBracket:
		s.GaussianScaling *= scalingStep
	case glfw.Key0, glfw.Key1, glfw.Key2, glfw.Key3:
		degree := uint32(key - glfw.Key0)
		if degree == s.SHDegree {
			return s, false
		}
		s.SHDegree = degree
	default:
		return s, false
	}
	return s, true
}

type keyState interface {
	GetKey(key glfw.Key) glfw.Action
}

var moveKeys = []struct {
	key glfw.Key
	dir mgl32.Vec3
}{
	{glfw.KeyW, mgl32.Vec3{0, 0, 1}},
	{glfw.KeyS, mgl32.Vec3{0, 0, -1}},
	{glfw.KeyD, mgl32.Vec3{1, 0, 0}},
	{glfw.KeyA, mgl32.Vec3{-1, 0, 0}},
	{glfw.KeyE, mgl32.Vec3{0, 1, 0}},
	{glfw.KeyQ, mgl32.Vec3{0, -1, 0}},
}

// MoveInput sums the held movement keys into a camera-local direction.
func MoveInput(keys keyState) mgl32.Vec3 {
	var dir mgl32.Vec3
	for _, m := range moveKeys {
		if keys.GetKey(m.key) == glfw.Press {
			dir = dir.Add(m.dir)
		}
	}
	return dir
}

// FPSCounter averages frames over windows of at least one second.
type FPSCounter struct {
	FPS       float64
	FrameTime float64 // seconds, last frame

	last   float64
	frames int
	window float64
}

// Tick records a frame presented at now (seconds).
func (c *FPSCounter) Tick(now float64) {
	if c.last > 0 {
		c.FrameTime = now - c.last
		c.frames++
		c.window += c.FrameTime
		if c.window >= 1.0 {
			c.FPS = float64(c.frames) / c.window
			c.frames = 0
			c.window = 0
		}
	}
	c.last = now
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
