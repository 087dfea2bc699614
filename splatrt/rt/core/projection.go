package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CPU reference of preprocess.wgsl. The software device runs this per
// invocation, so the two must stay in step.

const (
	shC0 = 0.28209479177387814
	shC1 = 0.4886025119029199

	// Low-pass dilation added to the 2D covariance diagonal (pixels²).
	covarianceDilation = 0.3
	// Centers beyond this NDC bound are culled; splats straddling the edge survive.
	ndcCullBound = 1.2
)

var shC2 = [5]float32{
	1.0925484305920792,
	-1.0925484305920792,
	0.31539156525252005,
	-1.0925484305920792,
	0.5462742152960396,
}

var shC3 = [7]float32{
	-0.5900435899266435,
	2.890611442640554,
	-0.4570457994644658,
	0.3731763325901154,
	-0.4570457994644658,
	1.445305721320277,
	-0.5900435899266435,
}

// ProjectGaussian projects g for cam. It returns the splat, the camera-space
// depth (distance along the view direction) and whether the Gaussian is
// visible. A Gaussian is culled when it is behind the near culling plane,
// its center falls outside the widened NDC box, or its projected footprint
// is degenerate.
func ProjectGaussian(g Gaussian, cam CameraUniform, settings RenderSettings) (SplatRecord, float32, bool) {
	viewPos := cam.View.Mul4x1(g.Position.Vec4(1))
	depth := -viewPos.Z()
	if depth <= DefaultNearCulling {
		return SplatRecord{}, depth, false
	}

	clip := cam.Proj.Mul4x1(viewPos)
	if clip.W() <= 0 {
		return SplatRecord{}, depth, false
	}
	ndc := mgl32.Vec2{clip.X() / clip.W(), clip.Y() / clip.W()}
	if abs32(ndc.X()) > ndcCullBound || abs32(ndc.Y()) > ndcCullBound {
		return SplatRecord{}, depth, false
	}

	a, b, c, ok := projectCovariance(g, cam, viewPos.Vec3(), depth, settings.GaussianScaling)
	if !ok {
		return SplatRecord{}, depth, false
	}
	det := a*c - b*b
	if det <= 0 {
		return SplatRecord{}, depth, false
	}
	mid := 0.5 * (a + c)
	lambda := mid + float32(math.Sqrt(float64(max32(0.1, mid*mid-det))))
	radius := float32(math.Ceil(3 * math.Sqrt(float64(lambda))))
	if radius <= 0 {
		return SplatRecord{}, depth, false
	}

	camPos := cam.ViewInv.Col(3).Vec3()
	dir := g.Position.Sub(camPos)
	if dir.Len() > 0 {
		dir = dir.Normalize()
	}
	color := EvalSH(g.SH, settings.SHDegree, dir)

	return SplatRecord{
		Center:  ndc,
		Extent:  mgl32.Vec2{radius * 2 / cam.Viewport.X(), radius * 2 / cam.Viewport.Y()},
		Conic:   mgl32.Vec3{c / det, -b / det, a / det},
		Opacity: g.Opacity,
		Color:   color,
	}, depth, true
}

// projectCovariance returns the dilated 2D covariance (a, b; b, c) in pixels.
func projectCovariance(g Gaussian, cam CameraUniform, t mgl32.Vec3, depth, scaling float32) (float32, float32, float32, bool) {
	rot := g.Rotation.Normalize().Mat4().Mat3()
	s := g.Scale.Mul(scaling)
	m := rot.Mul3(mgl32.Diag3(s))
	sigma := m.Mul3(m.Transpose())

	fx, fy := cam.Focal.X(), cam.Focal.Y()
	d2 := depth * depth
	j := [2][3]float32{
		{fx / depth, 0, fx * t.X() / d2},
		{0, fy / depth, fy * t.Y() / d2},
	}
	w := cam.View.Mat3()

	var jw [2][3]float32
	for r := 0; r < 2; r++ {
		for col := 0; col < 3; col++ {
			jw[r][col] = j[r][0]*w.At(0, col) + j[r][1]*w.At(1, col) + j[r][2]*w.At(2, col)
		}
	}

	var cov [2][2]float32
	for r := 0; r < 2; r++ {
		for col := 0; col < 2; col++ {
			var sum float32
			for k := 0; k < 3; k++ {
				for l := 0; l < 3; l++ {
					sum += jw[r][k] * sigma.At(k, l) * jw[col][l]
				}
			}
			cov[r][col] = sum
		}
	}

	a := cov[0][0] + covarianceDilation
	b := cov[0][1]
	c := cov[1][1] + covarianceDilation
	if isBad(a) || isBad(b) || isBad(c) {
		return 0, 0, 0, false
	}
	return a, b, c, true
}

// EvalSH evaluates view-dependent color up to degree (clamped to 3).
// dir is the normalized direction from the camera to the Gaussian.
func EvalSH(sh [SHCoefficients]mgl32.Vec3, degree uint32, dir mgl32.Vec3) mgl32.Vec3 {
	result := sh[0].Mul(shC0)
	if degree > 0 {
		x, y, z := dir.X(), dir.Y(), dir.Z()
		result = result.
			Sub(sh[1].Mul(shC1 * y)).
			Add(sh[2].Mul(shC1 * z)).
			Sub(sh[3].Mul(shC1 * x))
		if degree > 1 {
			xx, yy, zz := x*x, y*y, z*z
			xy, yz, xz := x*y, y*z, x*z
			result = result.
				Add(sh[4].Mul(shC2[0] * xy)).
				Add(sh[5].Mul(shC2[1] * yz)).
				Add(sh[6].Mul(shC2[2] * (2*zz - xx - yy))).
				Add(sh[7].Mul(shC2[3] * xz)).
				Add(sh[8].Mul(shC2[4] * (xx - yy)))
			if degree > 2 {
				result = result.
					Add(sh[9].Mul(shC3[0] * y * (3*xx - yy))).
					Add(sh[10].Mul(shC3[1] * xy * z)).
					Add(sh[11].Mul(shC3[2] * y * (4*zz - xx - yy))).
					Add(sh[12].Mul(shC3[3] * z * (2*zz - 3*xx - 3*yy))).
					Add(sh[13].Mul(shC3[4] * x * (4*zz - xx - yy))).
					Add(sh[14].Mul(shC3[5] * z * (xx - yy))).
					Add(sh[15].Mul(shC3[6] * x * (xx - 3*yy)))
			}
		}
	}
	result = result.Add(mgl32.Vec3{0.5, 0.5, 0.5})
	return mgl32.Vec3{max32(result[0], 0), max32(result[1], 0), max32(result[2], 0)}
}

// DepthKey maps a positive depth to a sort key that ascends as depth
// descends, so an ascending key sort yields back-to-front order.
func DepthKey(depth float32) uint32 {
	return ^math.Float32bits(depth)
}

// SplatAlpha is the fragment coverage at a pixel offset d from the center.
func SplatAlpha(s SplatRecord, d mgl32.Vec2) float32 {
	power := -0.5*(s.Conic[0]*d[0]*d[0]+s.Conic[2]*d[1]*d[1]) - s.Conic[1]*d[0]*d[1]
	if power > 0 {
		return 0
	}
	return min32(0.99, s.Opacity*float32(math.Exp(float64(power))))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func isBad(v float32) bool {
	return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}
