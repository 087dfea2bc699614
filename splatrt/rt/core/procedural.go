package core

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// GenerateSphereCloud scatters n Gaussians over the surface of a sphere of
// the given radius, colored by their direction. The same seed always yields
// the same cloud.
func GenerateSphereCloud(n int, radius float32, seed int64) *PointCloud {
	rng := rand.New(rand.NewSource(seed))
	gaussians := make([]Gaussian, 0, n)
	splatSize := radius * 0.02
	if n > 0 {
		splatSize = radius * 2 / float32(math.Sqrt(float64(n)))
	}

	for i := 0; i < n; i++ {
		// Uniform direction via normalized gaussian vector
		dir := mgl32.Vec3{
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
		}
		if dir.Len() == 0 {
			dir = mgl32.Vec3{0, 1, 0}
		}
		dir = dir.Normalize()

		color := mgl32.Vec3{
			0.5 + 0.5*dir.X(),
			0.5 + 0.5*dir.Y(),
			0.5 + 0.5*dir.Z(),
		}
		g := NewGaussian(dir.Mul(radius), splatSize, color, 0.6+0.4*rng.Float32())

		// Flatten along the normal so the splats tile the surface.
		g.Scale = mgl32.Vec3{splatSize, splatSize, splatSize * 0.2}
		g.Rotation = mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, 1}, dir)

		// Small first-order term so SH degree changes are visible.
		g.SH[1] = mgl32.Vec3{0.1, 0, -0.1}
		g.SH[3] = mgl32.Vec3{0, 0.1, 0}
		gaussians = append(gaussians, g)
	}
	return NewPointCloud(gaussians)
}

// GenerateGridCloud lays out an axis-aligned grid of about n Gaussians
// centered on the origin with the given spacing.
func GenerateGridCloud(n int, spacing float32, seed int64) *PointCloud {
	rng := rand.New(rand.NewSource(seed))
	side := int(math.Ceil(math.Cbrt(float64(n))))
	half := float32(side-1) * spacing / 2
	gaussians := make([]Gaussian, 0, n)

	for x := 0; x < side && len(gaussians) < n; x++ {
		for y := 0; y < side && len(gaussians) < n; y++ {
			for z := 0; z < side && len(gaussians) < n; z++ {
				pos := mgl32.Vec3{
					float32(x)*spacing - half,
					float32(y)*spacing - half,
					float32(z)*spacing - half,
				}
				color := mgl32.Vec3{
					float32(x) / float32(max(side-1, 1)),
					float32(y) / float32(max(side-1, 1)),
					float32(z) / float32(max(side-1, 1)),
				}
				g := NewGaussian(pos, spacing*0.3, color, 0.8)
				g.Rotation = mgl32.AnglesToQuat(
					rng.Float32()*math.Pi, rng.Float32()*math.Pi, 0, mgl32.XYZ)
				gaussians = append(gaussians, g)
			}
		}
	}
	return NewPointCloud(gaussians)
}
