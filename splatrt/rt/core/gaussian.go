package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Gaussian struct {
	Position mgl32.Vec3
	Scale    mgl32.Vec3
	Rotation mgl32.Quat
	Opacity  float32
	// SH holds RGB spherical-harmonics coefficients, band-major up to degree 3.
	// SH[0] is the DC term.
	SH [SHCoefficients]mgl32.Vec3
}

// NewGaussian builds an isotropic Gaussian with a flat color.
func NewGaussian(pos mgl32.Vec3, radius float32, color mgl32.Vec3, opacity float32) Gaussian {
	g := Gaussian{
		Position: pos,
		Scale:    mgl32.Vec3{radius, radius, radius},
		Rotation: mgl32.QuatIdent(),
		Opacity:  opacity,
	}
	g.SH[0] = ColorToSH(color)
	return g
}

// ColorToSH returns the DC coefficient that evaluates to rgb.
func ColorToSH(rgb mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		(rgb[0] - 0.5) / shC0,
		(rgb[1] - 0.5) / shC0,
		(rgb[2] - 0.5) / shC0,
	}
}

// PointCloud is read-only once handed to the renderer.
type PointCloud struct {
	Gaussians []Gaussian
}

func NewPointCloud(gaussians []Gaussian) *PointCloud {
	return &PointCloud{Gaussians: gaussians}
}

func (pc *PointCloud) Len() int {
	if pc == nil {
		return 0
	}
	return len(pc.Gaussians)
}

// Bytes packs every Gaussian in GPU layout.
func (pc *PointCloud) Bytes() []byte {
	buf := make([]byte, pc.Len()*GaussianStride)
	if pc == nil {
		return buf
	}
	for i, g := range pc.Gaussians {
		g.Marshal(buf[i*GaussianStride:])
	}
	return buf
}
