// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifold defines how an unknown is updated by a tangent-space
// increment. Euclidean unknowns are updated additively, rotations and rigid
// poses are updated through the exponential map so that every iterate stays
// on the manifold.
//
// # Reference:
//
//   - https://arxiv.org/abs/1812.01537 (A micro Lie theory for state estimation in robotics)
package manifold

// Parameterization describes the storage and tangent space of an unknown.
//
// Jacobian columns always correspond to tangent-space increments, so a solver
// sizes its linear systems with LocalDim and never with Dim.
type Parameterization interface {
	// Dim returns the dense storage size of a state.
	Dim() int
	// LocalDim returns the tangent-space dimension.
	LocalDim() int
	// Retract applies the increment delta (length LocalDim) to x (length Dim)
	// and returns the new state. The argument x is never modified.
	Retract(x, delta []float64) []float64
	// Basis returns the i-th canonical tangent direction.
	Basis(i int) []float64
}

// Euclidean is the vector space ℝⁿ where retraction is plain addition.
type Euclidean int

// Dim returns n.
func (e Euclidean) Dim() int { return int(e) }

// LocalDim returns n.
func (e Euclidean) LocalDim() int { return int(e) }

// Retract returns x + delta.
func (e Euclidean) Retract(x, delta []float64) []float64 {
	checkDims(x, delta, e.Dim(), e.LocalDim())
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = v + delta[i]
	}
	return y
}

// Basis returns the i-th unit vector of ℝⁿ.
func (e Euclidean) Basis(i int) []float64 {
	return basis(i, e.LocalDim())
}

func basis(i, n int) []float64 {
	if i < 0 || i >= n {
		panic("basis index out of range")
	}
	b := make([]float64, n)
	b[i] = 1
	return b
}

func checkDims(x, delta []float64, dim, local int) {
	if len(x) != dim || len(delta) != local {
		panic("bound check error")
	}
}
