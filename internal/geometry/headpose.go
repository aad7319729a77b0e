package geometry

import "math"

// Canonical 3D anchor points of a generic face model (nose tip at the
// origin, millimeter-ish units): nose tip, chin, left eye corner, right
// eye corner, left mouth corner, right mouth corner.
var faceModelPoints = [6][3]float64{
	{0, 0, 0},
	{0, -330, -65},
	{-225, 170, -135},
	{225, 170, -135},
	{-150, -150, -125},
	{150, -150, -125},
}

// HeadPose holds Euler angles in degrees.
type HeadPose struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// EstimateHeadPose solves the 6-point perspective-n-point problem for a
// pinhole camera with focal length equal to the image width, principal
// point at the image center and no lens distortion, then decomposes the
// rotation into pitch/yaw/roll. Returns ok=false when the solve fails to
// converge; callers should treat that like a missing measurement.
//
// imagePoints must be ordered like faceModelPoints.
func EstimateHeadPose(imagePoints [6]Point2, imageWidth, imageHeight int) (HeadPose, bool) {
	focal := float64(imageWidth)
	cx := float64(imageWidth) / 2
	cy := float64(imageHeight) / 2

	// Pose parameters: rotation vector (Rodrigues) then translation.
	// Start facing the camera at roughly arm's length in model units.
	params := [6]float64{0, 0, 0, 0, 0, focal}

	residual := func(p [6]float64) ([12]float64, bool) {
		var r [12]float64
		rot := rodrigues([3]float64{p[0], p[1], p[2]})
		for i, m := range faceModelPoints {
			x := rot[0][0]*m[0] + rot[0][1]*m[1] + rot[0][2]*m[2] + p[3]
			y := rot[1][0]*m[0] + rot[1][1]*m[1] + rot[1][2]*m[2] + p[4]
			z := rot[2][0]*m[0] + rot[2][1]*m[1] + rot[2][2]*m[2] + p[5]
			if z <= 1e-6 {
				return r, false // point behind the camera
			}
			u := focal*x/z + cx
			v := focal*y/z + cy
			r[i*2] = u - imagePoints[i].X
			r[i*2+1] = v - imagePoints[i].Y
		}
		return r, true
	}

	sumSq := func(r [12]float64) float64 {
		var s float64
		for _, v := range r {
			s += v * v
		}
		return s
	}

	res, ok := residual(params)
	if !ok {
		return HeadPose{}, false
	}
	err := sumSq(res)
	lambda := 1e-3

	// Levenberg-Marquardt with a finite-difference Jacobian. The problem
	// is tiny (6 params, 12 residuals) and well conditioned for faces
	// that roughly face the camera.
	for iter := 0; iter < 100 && err > 1e-10; iter++ {
		var jac [12][6]float64
		const h = 1e-5
		for j := 0; j < 6; j++ {
			pp := params
			pp[j] += h
			rp, ok := residual(pp)
			if !ok {
				return HeadPose{}, false
			}
			for i := 0; i < 12; i++ {
				jac[i][j] = (rp[i] - res[i]) / h
			}
		}

		// Normal equations (JtJ + λ·diag(JtJ)) δ = −Jt·r.
		var jtj [6][6]float64
		var jtr [6]float64
		for a := 0; a < 6; a++ {
			for b := 0; b < 6; b++ {
				for i := 0; i < 12; i++ {
					jtj[a][b] += jac[i][a] * jac[i][b]
				}
			}
			for i := 0; i < 12; i++ {
				jtr[a] += jac[i][a] * res[i]
			}
		}

		improved := false
		for attempt := 0; attempt < 8; attempt++ {
			aug := jtj
			for d := 0; d < 6; d++ {
				aug[d][d] += lambda * (jtj[d][d] + 1e-9)
			}
			delta, solvable := solve6(aug, jtr)
			if !solvable {
				lambda *= 10
				continue
			}
			next := params
			for d := 0; d < 6; d++ {
				next[d] -= delta[d]
			}
			nres, ok := residual(next)
			if !ok {
				lambda *= 10
				continue
			}
			nerr := sumSq(nres)
			if nerr < err {
				params, res, err = next, nres, nerr
				lambda = math.Max(lambda/10, 1e-9)
				improved = true
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}

	// Real landmarks never fit the generic face model exactly, so only a
	// wildly off RMS reprojection error counts as a failed solve.
	if math.Sqrt(err/12) > 50 {
		return HeadPose{}, false
	}

	rot := rodrigues([3]float64{params[0], params[1], params[2]})
	return eulerFromRotation(rot), true
}

// rodrigues converts a rotation vector to a rotation matrix.
func rodrigues(rv [3]float64) [3][3]float64 {
	theta := math.Sqrt(rv[0]*rv[0] + rv[1]*rv[1] + rv[2]*rv[2])
	if theta < 1e-12 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	kx, ky, kz := rv[0]/theta, rv[1]/theta, rv[2]/theta
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c
	return [3][3]float64{
		{c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s},
		{ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s},
		{kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v},
	}
}

// eulerFromRotation decomposes R into pitch/yaw/roll degrees, with a
// separate branch for the gimbal-lock singularity.
func eulerFromRotation(r [3][3]float64) HeadPose {
	sy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])
	var x, y, z float64
	if sy >= 1e-6 {
		x = math.Atan2(r[2][1], r[2][2])
		y = math.Atan2(-r[2][0], sy)
		z = math.Atan2(r[1][0], r[0][0])
	} else {
		x = math.Atan2(-r[1][2], r[1][1])
		y = math.Atan2(-r[2][0], sy)
		z = 0
	}
	const toDeg = 180 / math.Pi
	return HeadPose{Pitch: x * toDeg, Yaw: y * toDeg, Roll: z * toDeg}
}

// solve6 solves a 6x6 linear system by Gaussian elimination with
// partial pivoting.
func solve6(a [6][6]float64, b [6]float64) ([6]float64, bool) {
	for col := 0; col < 6; col++ {
		pivot := col
		for row := col + 1; row < 6; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [6]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for row := col + 1; row < 6; row++ {
			f := a[row][col] / a[col][col]
			for k := col; k < 6; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}
	var x [6]float64
	for row := 5; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < 6; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, true
}
