// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linalg provides the dense linear algebra consumed by the
// least-squares solvers: SPD and general linear solves, least squares,
// minimum-norm solves and singular value decomposition.
package linalg

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingularSystem is returned when a linear system has no numerically
	// reliable solution (rank deficiency or a condition number beyond the limit).
	ErrSingularSystem = errors.New("linalg: singular system")

	// ErrShape is returned when operand dimensions are incompatible.
	ErrShape = errors.New("linalg: dimension mismatch")

	// ErrNotConverged is returned when a decomposition fails to converge.
	ErrNotConverged = errors.New("linalg: decomposition did not converge")
)

// Provider solves dense linear systems and computes decompositions.
type Provider interface {
	// SolveSPD solves 𝐇𝐱 = 𝐠 for a symmetric positive definite 𝐇.
	SolveSPD(h mat.Symmetric, g mat.Vector, dst *mat.VecDense) error
	// SolveGeneral solves 𝐀𝐱 = 𝐛 for a square 𝐀.
	SolveGeneral(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error
	// SolveLeastSquares minimizes ‖𝐀𝐱 - 𝐛‖₂ for a full column rank 𝐀.
	SolveLeastSquares(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error
	// SolveMinNorm computes the minimum norm solution 𝐀⁺𝐛.
	SolveMinNorm(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error
	// SVD factorizes 𝐀 = 𝐔𝚺𝐕ᵀ and returns the singular values in decreasing order.
	SVD(a mat.Matrix) (u, v *mat.Dense, s []float64, err error)
}
