// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problems

import (
	"github.com/curioloop/nlsq/manifold"
	"gonum.org/v1/gonum/mat"
)

// Camera is a pinhole camera without distortion.
type Camera struct {
	Fx, Fy, Cx, Cy float64
}

// Project maps a point in the camera frame to pixel coordinates.
func (c Camera) Project(p manifold.Vec3) [2]float64 {
	return [2]float64{c.Fx*p[0]/p[2] + c.Cx, c.Fy*p[1]/p[2] + c.Cy}
}

// projectionJacobian returns ∂π/∂p at the camera frame point p.
func (c Camera) projectionJacobian(p manifold.Vec3) [][3]float64 {
	x, y, z := p[0], p[1], p[2]
	return [][3]float64{
		{c.Fx / z, 0, -c.Fx * x / (z * z)},
		{0, c.Fy / z, -c.Fy * y / (z * z)},
	}
}

// Reprojection estimates a world-to-camera pose from 2D observations of known 3D points.
// Each observation contributes the 2-vector block π(𝐑Pᵢ + 𝐭) - uvᵢ.
type Reprojection struct {
	Camera
	Points []manifold.Vec3
	Pixels [][2]float64
	Storage
}

// Size returns 2·len(Points).
func (p Reprojection) Size() int { return 2 * len(p.Points) }

// Residual writes the reprojection errors in pixels.
func (p Reprojection) Residual(x, r []float64) {
	pose := p.Decode(x)
	for i, pt := range p.Points {
		uv := p.Project(pose.Transform(pt))
		r[2*i] = uv[0] - p.Pixels[i][0]
		r[2*i+1] = uv[1] - p.Pixels[i][1]
	}
}

// Jacobian writes the blocks ∂π/∂p · [𝐈 | -𝐑[Pᵢ]×].
func (p Reprojection) Jacobian(x []float64, jac *mat.Dense) {
	pose := p.Decode(x)
	for i, pt := range p.Points {
		poseJacobian(jac, 2*i, p.projectionJacobian(pose.Transform(pt)), pose.R, pt)
	}
}

// Observe projects the points through pose and cam.
func Observe(cam Camera, pose manifold.Pose, pts []manifold.Vec3) [][2]float64 {
	uv := make([][2]float64, len(pts))
	for i, p := range pts {
		uv[i] = cam.Project(pose.Transform(p))
	}
	return uv
}
