// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package problems collects residual functions used to exercise the solvers:
// curve and line fitting, point cloud alignment and camera pose estimation,
// together with seeded data generators.
package problems

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// ExpCurve fits y = a·exp(b·x) with parameters [a, b].
type ExpCurve struct {
	X, Y []float64
}

// Size returns the number of samples.
func (e ExpCurve) Size() int { return len(e.X) }

// Residual writes a·exp(b·xᵢ) - yᵢ.
func (e ExpCurve) Residual(p, r []float64) {
	a, b := p[0], p[1]
	for i, x := range e.X {
		r[i] = a*math.Exp(b*x) - e.Y[i]
	}
}

// Jacobian writes [exp(b·xᵢ), a·xᵢ·exp(b·xᵢ)] on each row.
func (e ExpCurve) Jacobian(p []float64, jac *mat.Dense) {
	a, b := p[0], p[1]
	for i, x := range e.X {
		v := math.Exp(b * x)
		jac.Set(i, 0, v)
		jac.Set(i, 1, a*x*v)
	}
}

// ExpSamples returns a·exp(b·x) at xs with gaussian noise of the given standard deviation.
// A zero noise level yields exact samples and leaves rng untouched.
func ExpSamples(xs []float64, a, b, noise float64, rng *rand.Rand) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = a * math.Exp(b*x)
		if noise > 0 {
			ys[i] += noise * rng.NormFloat64()
		}
	}
	return ys
}

// Line fits y = a + b·x with parameters [a, b].
type Line struct {
	X, Y []float64
}

// Size returns the number of samples.
func (l Line) Size() int { return len(l.X) }

// Residual writes a + b·xᵢ - yᵢ.
func (l Line) Residual(p, r []float64) {
	for i, x := range l.X {
		r[i] = p[0] + p[1]*x - l.Y[i]
	}
}

// Jacobian writes [1, xᵢ] on each row.
func (l Line) Jacobian(_ []float64, jac *mat.Dense) {
	for i, x := range l.X {
		jac.Set(i, 0, 1)
		jac.Set(i, 1, x)
	}
}

// WeightedLine is a Line whose residuals are scaled by fixed per-sample weights: √wᵢ(a + b·xᵢ - yᵢ).
type WeightedLine struct {
	Line
	W []float64
}

// Residual writes the weighted residuals.
func (l WeightedLine) Residual(p, r []float64) {
	l.Line.Residual(p, r)
	for i, w := range l.W {
		r[i] *= math.Sqrt(w)
	}
}

// Jacobian writes the weighted rows.
func (l WeightedLine) Jacobian(p []float64, jac *mat.Dense) {
	for i, x := range l.X {
		s := math.Sqrt(l.W[i])
		jac.Set(i, 0, s)
		jac.Set(i, 1, s*x)
	}
}

// Atan is the scalar residual r(x) = atan(x).
//
// Its minimum is x = 0, but a full Gauss-Newton step x - atan(x)(1+x²)
// overshoots for |x| ≳ 1.39 and increases the cost.
type Atan struct{}

// Size returns 1.
func (Atan) Size() int { return 1 }

// Residual writes atan(x).
func (Atan) Residual(x, r []float64) { r[0] = math.Atan(x[0]) }

// Jacobian writes 1/(1+x²).
func (Atan) Jacobian(x []float64, jac *mat.Dense) { jac.Set(0, 0, 1/(1+x[0]*x[0])) }
