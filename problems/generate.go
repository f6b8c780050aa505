// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problems

import (
	"math/rand/v2"

	"github.com/curioloop/nlsq/manifold"
)

func uniform(rng *rand.Rand, scale float64) manifold.Vec3 {
	return manifold.Vec3{
		scale * (2*rng.Float64() - 1),
		scale * (2*rng.Float64() - 1),
		scale * (2*rng.Float64() - 1),
	}
}

func gaussian(rng *rand.Rand, sigma float64) manifold.Vec3 {
	return manifold.Vec3{sigma * rng.NormFloat64(), sigma * rng.NormFloat64(), sigma * rng.NormFloat64()}
}

// RandomPose draws a rotation vector uniformly in [-maxAngle, maxAngle]³
// and a translation uniformly in [-maxShift, maxShift]³.
func RandomPose(rng *rand.Rand, maxAngle, maxShift float64) manifold.Pose {
	return manifold.Pose{R: manifold.Exp(uniform(rng, maxAngle)), T: uniform(rng, maxShift)}
}

// Perturb composes p with a gaussian rotation increment on the right and
// adds gaussian noise to the translation.
func Perturb(p manifold.Pose, rng *rand.Rand, rotSigma, shiftSigma float64) manifold.Pose {
	return manifold.Pose{
		R: p.R.Mul(manifold.Exp(gaussian(rng, rotSigma))),
		T: p.T.Add(gaussian(rng, shiftSigma)),
	}
}

// RandomPoints draws n points uniformly in the cube center ± halfSize.
func RandomPoints(rng *rand.Rand, n int, center manifold.Vec3, halfSize float64) []manifold.Vec3 {
	pts := make([]manifold.Vec3, n)
	for i := range pts {
		pts[i] = center.Add(uniform(rng, halfSize))
	}
	return pts
}

// Jitter returns a copy of pts with gaussian noise added.
func Jitter(pts []manifold.Vec3, rng *rand.Rand, sigma float64) []manifold.Vec3 {
	out := make([]manifold.Vec3, len(pts))
	for i, p := range pts {
		out[i] = p.Add(gaussian(rng, sigma))
	}
	return out
}

// Transform applies pose to every point.
func Transform(pose manifold.Pose, pts []manifold.Vec3) []manifold.Vec3 {
	out := make([]manifold.Vec3, len(pts))
	for i, p := range pts {
		out[i] = pose.Transform(p)
	}
	return out
}
