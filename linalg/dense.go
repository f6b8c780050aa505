// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultCondLimit is the condition number above which a system is
// treated as singular.
const DefaultCondLimit = 1e14

// Dense implements Provider on top of gonum dense factorizations.
// The zero value is ready to use.
type Dense struct {
	// CondLimit bounds the accepted condition number. Zero means DefaultCondLimit.
	CondLimit float64
	// RankTol is the relative singular value cutoff of SolveMinNorm.
	// Zero means max(m,n)·𝚎𝚙𝚜·σ₁.
	RankTol float64
}

func (d Dense) condLimit() float64 {
	if d.CondLimit > 0 {
		return d.CondLimit
	}
	return DefaultCondLimit
}

// SolveSPD solves 𝐇𝐱 = 𝐠 using a Cholesky factorization.
// It fails with ErrSingularSystem when 𝐇 is not positive definite.
func (d Dense) SolveSPD(h mat.Symmetric, g mat.Vector, dst *mat.VecDense) error {
	n := h.SymmetricDim()
	if g.Len() != n {
		return fmt.Errorf("spd solve %d×%d with rhs %d: %w", n, n, g.Len(), ErrShape)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(h); !ok {
		return fmt.Errorf("cholesky: matrix is not positive definite: %w", ErrSingularSystem)
	}
	if c := chol.Cond(); c > d.condLimit() || math.IsNaN(c) {
		return fmt.Errorf("cholesky: %w: %w", mat.Condition(c), ErrSingularSystem)
	}
	if err := chol.SolveVecTo(dst, g); err != nil {
		return d.wrap("cholesky", err)
	}
	return nil
}

// SolveGeneral solves 𝐀𝐱 = 𝐛 using an LU factorization with partial pivoting.
func (d Dense) SolveGeneral(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error {
	r, c := a.Dims()
	switch {
	case r != c:
		return fmt.Errorf("general solve on %d×%d: %w", r, c, ErrShape)
	case b.Len() != r:
		return fmt.Errorf("general solve %d×%d with rhs %d: %w", r, c, b.Len(), ErrShape)
	}
	var lu mat.LU
	lu.Factorize(a)
	if cond := lu.Cond(); cond > d.condLimit() || math.IsNaN(cond) {
		return fmt.Errorf("lu: %w: %w", mat.Condition(cond), ErrSingularSystem)
	}
	if err := lu.SolveVecTo(dst, false, b); err != nil {
		return d.wrap("lu", err)
	}
	return nil
}

// SolveLeastSquares minimizes ‖𝐀𝐱 - 𝐛‖₂ using a QR factorization.
// 𝐀 must have at least as many rows as columns.
func (d Dense) SolveLeastSquares(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error {
	r, c := a.Dims()
	switch {
	case r < c:
		return fmt.Errorf("least squares on %d×%d: %w", r, c, ErrShape)
	case b.Len() != r:
		return fmt.Errorf("least squares %d×%d with rhs %d: %w", r, c, b.Len(), ErrShape)
	}
	var qr mat.QR
	qr.Factorize(a)
	if cond := qr.Cond(); cond > d.condLimit() || math.IsNaN(cond) {
		return fmt.Errorf("qr: %w: %w", mat.Condition(cond), ErrSingularSystem)
	}
	if err := qr.SolveVecTo(dst, false, b); err != nil {
		return d.wrap("qr", err)
	}
	return nil
}

// SolveMinNorm computes 𝐱 = 𝐀⁺𝐛 by truncating the singular values below the rank tolerance.
func (d Dense) SolveMinNorm(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error {
	r, c := a.Dims()
	if b.Len() != r {
		return fmt.Errorf("min-norm solve %d×%d with rhs %d: %w", r, c, b.Len(), ErrShape)
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("svd: %w", ErrNotConverged)
	}
	s := svd.Values(nil)
	rank := numericalRank(s, d.RankTol, max(r, c))
	if rank == 0 {
		return fmt.Errorf("svd: zero rank: %w", ErrSingularSystem)
	}
	svd.SolveVecTo(dst, b, rank)
	return nil
}

// SVD computes the full singular value decomposition 𝐀 = 𝐔𝚺𝐕ᵀ.
func (d Dense) SVD(a mat.Matrix) (u, v *mat.Dense, s []float64, err error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, nil, nil, fmt.Errorf("svd: %w", ErrNotConverged)
	}
	u, v = new(mat.Dense), new(mat.Dense)
	svd.UTo(u)
	svd.VTo(v)
	return u, v, svd.Values(nil), nil
}

func (d Dense) wrap(op string, err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return fmt.Errorf("%s: %w: %w", op, err, ErrSingularSystem)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func numericalRank(s []float64, tol float64, dim int) int {
	if len(s) == 0 || s[0] == 0 {
		return 0
	}
	if tol <= 0 {
		tol = float64(dim) * eps
	}
	cut := tol * s[0]
	rank := 0
	for _, v := range s {
		if v > cut {
			rank++
		}
	}
	return rank
}

var eps = math.Nextafter(1, 2) - 1
