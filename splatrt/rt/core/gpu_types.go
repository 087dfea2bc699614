package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Byte sizes of the GPU-side structs. Must match the WGSL declarations in
// the shaders package.
const (
	CameraUniformSize  = 272
	SettingsSize       = 16
	GaussianStride     = 304
	SplatRecordStride  = 48
	SHCoefficients     = 16
	MaxSHDegree        = 3
	DefaultNearCulling = 0.2
)

// CameraUniform mirrors
//
//	struct CameraUniforms {
//	  view: mat4x4<f32>,     -- 0
//	  view_inv: mat4x4<f32>, -- 64
//	  proj: mat4x4<f32>,     -- 128
//	  proj_inv: mat4x4<f32>, -- 192
//	  viewport: vec2<f32>,   -- 256
//	  focal: vec2<f32>,      -- 264
//	} -> 272 bytes
type CameraUniform struct {
	View     mgl32.Mat4
	ViewInv  mgl32.Mat4
	Proj     mgl32.Mat4
	ProjInv  mgl32.Mat4
	Viewport mgl32.Vec2
	Focal    mgl32.Vec2
}

func (c CameraUniform) Marshal() []byte {
	buf := make([]byte, CameraUniformSize)
	putMat4(buf[0:], c.View)
	putMat4(buf[64:], c.ViewInv)
	putMat4(buf[128:], c.Proj)
	putMat4(buf[192:], c.ProjInv)
	putF32(buf[256:], c.Viewport[0])
	putF32(buf[260:], c.Viewport[1])
	putF32(buf[264:], c.Focal[0])
	putF32(buf[268:], c.Focal[1])
	return buf
}

func UnmarshalCameraUniform(buf []byte) CameraUniform {
	var c CameraUniform
	c.View = getMat4(buf[0:])
	c.ViewInv = getMat4(buf[64:])
	c.Proj = getMat4(buf[128:])
	c.ProjInv = getMat4(buf[192:])
	c.Viewport = mgl32.Vec2{getF32(buf[256:]), getF32(buf[260:])}
	c.Focal = mgl32.Vec2{getF32(buf[264:]), getF32(buf[268:])}
	return c
}

// RenderSettings is the small uniform external code may update between frames.
//
//	struct RenderSettings {
//	  gaussian_scaling: f32,
//	  sh_deg: u32,
//	  _pad: vec2<u32>,
//	}
type RenderSettings struct {
	GaussianScaling float32
	SHDegree        uint32
}

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{GaussianScaling: 1.0, SHDegree: 0}
}

func (s RenderSettings) Marshal() []byte {
	buf := make([]byte, SettingsSize)
	putF32(buf[0:], s.GaussianScaling)
	binary.LittleEndian.PutUint32(buf[4:], s.SHDegree)
	return buf
}

func UnmarshalRenderSettings(buf []byte) RenderSettings {
	return RenderSettings{
		GaussianScaling: getF32(buf[0:]),
		SHDegree:        binary.LittleEndian.Uint32(buf[4:]),
	}
}

// Gaussian layout on the GPU:
//
//	struct Gaussian {
//	  pos_opacity: vec4<f32>,       -- 0
//	  scale: vec4<f32>,             -- 16 (w unused)
//	  rot: vec4<f32>,               -- 32 (w, x, y, z)
//	  sh: array<vec4<f32>, 16>,     -- 48 (rgb, a unused)
//	} -> 304 bytes
func (g Gaussian) Marshal(buf []byte) {
	putF32(buf[0:], g.Position[0])
	putF32(buf[4:], g.Position[1])
	putF32(buf[8:], g.Position[2])
	putF32(buf[12:], g.Opacity)
	putF32(buf[16:], g.Scale[0])
	putF32(buf[20:], g.Scale[1])
	putF32(buf[24:], g.Scale[2])
	putF32(buf[32:], g.Rotation.W)
	putF32(buf[36:], g.Rotation.V[0])
	putF32(buf[40:], g.Rotation.V[1])
	putF32(buf[44:], g.Rotation.V[2])
	for i, c := range g.SH {
		off := 48 + i*16
		putF32(buf[off:], c[0])
		putF32(buf[off+4:], c[1])
		putF32(buf[off+8:], c[2])
	}
}

func UnmarshalGaussian(buf []byte) Gaussian {
	var g Gaussian
	g.Position = mgl32.Vec3{getF32(buf[0:]), getF32(buf[4:]), getF32(buf[8:])}
	g.Opacity = getF32(buf[12:])
	g.Scale = mgl32.Vec3{getF32(buf[16:]), getF32(buf[20:]), getF32(buf[24:])}
	g.Rotation = mgl32.Quat{
		W: getF32(buf[32:]),
		V: mgl32.Vec3{getF32(buf[36:]), getF32(buf[40:]), getF32(buf[44:])},
	}
	for i := range g.SH {
		off := 48 + i*16
		g.SH[i] = mgl32.Vec3{getF32(buf[off:]), getF32(buf[off+4:]), getF32(buf[off+8:])}
	}
	return g
}

// SplatRecord is the per-visible-Gaussian output of the preprocess pass.
//
//	struct Splat {
//	  center: vec2<f32>,        -- 0  NDC
//	  extent: vec2<f32>,        -- 8  NDC half size
//	  conic_opacity: vec4<f32>, -- 16 inverse 2D covariance (pixels) + opacity
//	  color: vec4<f32>,         -- 32 rgb, a unused
//	} -> 48 bytes
type SplatRecord struct {
	Center  mgl32.Vec2
	Extent  mgl32.Vec2
	Conic   mgl32.Vec3
	Opacity float32
	Color   mgl32.Vec3
}

func (s SplatRecord) Marshal(buf []byte) {
	putF32(buf[0:], s.Center[0])
	putF32(buf[4:], s.Center[1])
	putF32(buf[8:], s.Extent[0])
	putF32(buf[12:], s.Extent[1])
	putF32(buf[16:], s.Conic[0])
	putF32(buf[20:], s.Conic[1])
	putF32(buf[24:], s.Conic[2])
	putF32(buf[28:], s.Opacity)
	putF32(buf[32:], s.Color[0])
	putF32(buf[36:], s.Color[1])
	putF32(buf[40:], s.Color[2])
	putF32(buf[44:], 0)
}

func UnmarshalSplatRecord(buf []byte) SplatRecord {
	return SplatRecord{
		Center:  mgl32.Vec2{getF32(buf[0:]), getF32(buf[4:])},
		Extent:  mgl32.Vec2{getF32(buf[8:]), getF32(buf[12:])},
		Conic:   mgl32.Vec3{getF32(buf[16:]), getF32(buf[20:]), getF32(buf[24:])},
		Opacity: getF32(buf[28:]),
		Color:   mgl32.Vec3{getF32(buf[32:]), getF32(buf[36:]), getF32(buf[40:])},
	}
}

// Helpers
func putF32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func getF32(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}

func putMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(buf[i*4:], v)
	}
}

func getMat4(buf []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = getF32(buf[i*4:])
	}
	return m
}
