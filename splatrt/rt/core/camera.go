package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32

	FovY float32 // radians
	Near float32
	Far  float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 0, 6},
		Yaw:         0,
		Pitch:       0,
		Speed:       3.0,
		Sensitivity: 0.003,
		FovY:        mgl32.DegToRad(60),
		Near:        0.1,
		Far:         1000.0,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	// Y-up, yaw 0 looks down -Z
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.GetForward())
	return mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
}

func (c *CameraState) GetProjectionMatrix(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
}

// Move applies a local-space move (x right, y up, z forward) scaled by Speed*dt.
func (c *CameraState) Move(local mgl32.Vec3, dt float32) {
	if local.Len() == 0 {
		return
	}
	world := c.GetRight().Mul(local.X()).
		Add(mgl32.Vec3{0, 1, 0}.Mul(local.Y())).
		Add(c.GetForward().Mul(local.Z()))
	c.Position = c.Position.Add(world.Normalize().Mul(c.Speed * dt))
}

// Look rotates by a mouse delta in pixels. Pitch is clamped short of the poles.
func (c *CameraState) Look(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	const limit = math.Pi/2 - 0.01
	if c.Pitch > limit {
		c.Pitch = limit
	}
	if c.Pitch < -limit {
		c.Pitch = -limit
	}
}

// Uniform packs the camera for a width x height target.
func (c *CameraState) Uniform(width, height int) CameraUniform {
	w, h := float32(width), float32(height)
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	view := c.GetViewMatrix()
	proj := c.GetProjectionMatrix(w / h)
	return CameraUniform{
		View:     view,
		ViewInv:  view.Inv(),
		Proj:     proj,
		ProjInv:  proj.Inv(),
		Viewport: mgl32.Vec2{w, h},
		Focal:    mgl32.Vec2{proj[0] * w / 2, proj[5] * h / 2},
	}
}
