// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates Jacobians of residual functions by finite
// differences, either in euclidean coordinates or along the tangent space
// of a manifold parameterization.
package numdiff

import (
	"errors"
	"math"

	"github.com/curioloop/nlsq/manifold"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

// DefaultTangentStep is the perturbation used along manifold tangent directions
// when no AbsStep is given.
const DefaultTangentStep = 1e-6

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// ApproxSpec represents a numerical differentiation algorithms to estimate the derivative of a mathematical function.
//
// Without a Manifold the i-th column is obtained by perturbing the i-th coordinate
// of x0 in place. With a Manifold the argument x0 is a point in storage coordinates
// and the i-th column is obtained through the retraction:
//
//	𝐉[:,i] = (𝐫(x ⊞ h𝐞ᵢ) - 𝐫(x ⊞ -h𝐞ᵢ)) / 2h
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type ApproxSpec struct {
	// N is the number of independent variables (the tangent dimension when Manifold is set).
	// M is the number of function values.
	N, M int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is a point in storage coordinates.
	// The result is store in an m-vector y.
	Object func(x, y []float64)
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size in euclidean mode.
	// The default absolute step size is computed as h = RelStep * sign(x0) * max(1, abs(x0)) with RelStep being selected automatically.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	// Ignored when Manifold is set.
	RelStep float64
	// Absolute step size to use.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
	// Manifold on which x0 lives. Nil means euclidean coordinates.
	Manifold manifold.Parameterization
	// Whether transpose the Jacobian matrix.
	TransJac bool
	approxCtx
}

type approxCtx struct {
	f0, fx  []float64
	absStep []float64
	delta   []float64
}

// Check the parameters and initialize approxCtx.
func (as *ApproxSpec) Check(x0, diff []float64) (err error) {

	dim := as.N
	if as.Manifold != nil {
		dim = as.Manifold.Dim()
	}

	switch {
	case as.N <= 0 || as.M <= 0:
		err = errors.New("negative dimensions")
	case as.Method != Forward && as.Method != Central:
		err = errors.New("unknown method")
	case as.Object == nil:
		err = errors.New("object function is required")
	case as.Manifold != nil && as.Manifold.LocalDim() != as.N:
		err = errors.New("manifold tangent dimension mismatch")
	case dim != len(x0):
		err = errors.New("invalid x0 dimensions")
	case as.N*as.M != len(diff):
		err = errors.New("invalid diff dimensions")
	case math.IsNaN(as.AbsStep) || math.IsInf(as.AbsStep, 0):
		err = errors.New("invalid absolute step")
	}
	if err != nil {
		return
	}

	if len(as.fx) != as.M*(int(as.Method)+1) {
		as.f0 = make([]float64, as.M)
		as.fx = make([]float64, as.M*(int(as.Method)+1))
	}
	if len(as.absStep) != as.N {
		as.absStep = make([]float64, as.N)
	}
	if as.Manifold != nil && len(as.delta) != as.N {
		as.delta = make([]float64, as.N)
	}
	return
}

// Diff calculate approximation of derivatives by finite differences.
// The result is written in row-major order (M×N), or N×M when TransJac is set.
func (as *ApproxSpec) Diff(x0, diff []float64) error {

	if err := as.Check(x0, diff); err != nil {
		return err
	}

	if as.Manifold != nil {
		as.tangentStep()
	} else {
		as.absoluteStep(x0)
	}
	if as.Method == Central {
		for i, v := range as.absStep {
			as.absStep[i] = math.Abs(v)
		}
	}

	if as.Method == Forward {
		as.Object(x0, as.f0)
	}
	for i, s := range as.absStep {
		if as.Method == Central {
			as.eval(x0, i, -s, as.fx[:as.M])
			as.eval(x0, i, s, as.fx[as.M:])
			as.store(diff, i, as.fx[as.M:], as.fx[:as.M], 1/(2*s))
		} else {
			as.eval(x0, i, s, as.fx)
			as.store(diff, i, as.fx, as.f0, 1/s)
		}
	}
	return nil
}

// eval writes f(x ⊞ s𝐞ᵢ) into y; x0 is restored before returning.
// On a manifold 𝐞ᵢ is the i-th tangent basis vector.
func (as *ApproxSpec) eval(x0 []float64, i int, s float64, y []float64) {
	if as.Manifold == nil {
		t := x0[i]
		x0[i] = t + s
		as.Object(x0, y)
		x0[i] = t
		return
	}
	d := as.delta
	for j, e := range as.Manifold.Basis(i) {
		d[j] = s * e
	}
	as.Object(as.Manifold.Retract(x0, d), y)
}

func (as *ApproxSpec) store(df []float64, i int, hi, lo []float64, d float64) {
	n, m := as.N, as.M
	if len(hi) != m || len(lo) != m {
		panic("bound check error")
	}
	if !as.TransJac {
		for j := range hi {
			df[i+j*n] = (hi[j] - lo[j]) * d
		}
	} else {
		t := df[i*m : (i+1)*m]
		for j := range hi {
			t[j] = (hi[j] - lo[j]) * d
		}
	}
}

func (as *ApproxSpec) tangentStep() {
	s := as.AbsStep
	if s == 0 {
		s = DefaultTangentStep
		if as.Method == Forward {
			s = sqrtEps
		}
	}
	for i := range as.absStep {
		as.absStep[i] = s
	}
}

func (as *ApproxSpec) absoluteStep(x0 []float64) {
	h := as.absStep
	if len(h) != len(x0) {
		panic("bound check error")
	}

	var eps float64
	switch as.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	abs := as.AbsStep
	rel := as.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i, v := range x0 {
			s := abs
			if s == 0 {
				s = math.Copysign(rel, v) * math.Abs(v)
			}
			d := (v + s) - v
			if d == 0 {
				s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = s
		}
	}
}

// Compare returns the largest absolute entry of a - b.
func Compare(a, b mat.Matrix) float64 {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic("bound check error")
	}
	x := mat.DenseCopyOf(a).RawMatrix().Data
	y := mat.DenseCopyOf(b).RawMatrix().Data
	return floats.Distance(x, y, math.Inf(1))
}
