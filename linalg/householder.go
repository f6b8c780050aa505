// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Householder implements Provider with the HFTI (Householder Forward Triangulation
// with column Interchanges) least-squares solver. SolveSPD, SolveGeneral and SVD
// come from the embedded Dense.
//
// HFTI factors 𝐐𝐀𝐏 = [𝐑₁₁ 𝐑₁₂; ೦ 𝐑₂₂] with column pivoting, drops 𝐑₂₂ below the
// pseudo-rank tolerance and triangulates [𝐑₁₁ 𝐑₁₂]𝐊 = [𝐖 ೦]. The minimum length
// solution is 𝐱 = 𝐏𝐊[𝐖⁻¹𝐜₁ ೦]ᵀ with 𝐜 = 𝐐𝐛.
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice Hall, 1974.
//	Chapters 14, Algorithm 14.9.
type Householder struct {
	Dense
	// Tau is the absolute pseudo-rank tolerance on the diagonal of 𝐑.
	// Zero means max(m,n)·𝚎𝚙𝚜·|r₁₁|.
	Tau float64
}

// SolveLeastSquares minimizes ‖𝐀𝐱 - 𝐛‖₂ and fails with ErrSingularSystem when
// 𝐀 does not have full column rank.
func (h Householder) SolveLeastSquares(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error {
	r, c := a.Dims()
	if r < c {
		return fmt.Errorf("least squares on %d×%d: %w", r, c, ErrShape)
	}
	rank, err := h.solve(a, b, dst)
	if err == nil && rank < c {
		err = fmt.Errorf("hfti: rank %d < %d: %w", rank, c, ErrSingularSystem)
	}
	return err
}

// SolveMinNorm computes the minimum length solution of 𝐀𝐱 ≅ 𝐛 at the pseudo-rank of 𝐀.
func (h Householder) SolveMinNorm(a mat.Matrix, b mat.Vector, dst *mat.VecDense) error {
	rank, err := h.solve(a, b, dst)
	if err == nil && rank == 0 {
		err = fmt.Errorf("hfti: zero rank: %w", ErrSingularSystem)
	}
	return err
}

func (h Householder) solve(a mat.Matrix, b mat.Vector, dst *mat.VecDense) (int, error) {
	m, n := a.Dims()
	switch {
	case b.Len() != m:
		return 0, fmt.Errorf("hfti %d×%d with rhs %d: %w", m, n, b.Len(), ErrShape)
	case !dst.IsEmpty() && dst.Len() != n:
		return 0, fmt.Errorf("hfti %d×%d into %d: %w", m, n, dst.Len(), ErrShape)
	}

	// column-major copy of 𝐀 and a right-hand side long enough to hold 𝐱
	cm := make([]float64, m*n)
	for j := 0; j < n; j++ {
		for i := 0; i < m; i++ {
			cm[i+m*j] = a.At(i, j)
		}
	}
	x := make([]float64, max(m, n))
	for i := 0; i < m; i++ {
		x[i] = b.AtVec(i)
	}

	rank, _ := hfti(cm, m, n, x, h.Tau)

	if dst.IsEmpty() {
		dst.ReuseAsVec(n)
	}
	for i := 0; i < n; i++ {
		dst.SetVec(i, x[i])
	}
	return rank, nil
}

// hfti solves 𝐀𝐱 ≅ 𝐛 where a holds the m × n matrix 𝐀 column by column and
// b holds 𝐛 in its first m entries (len(b) ≥ max(m,n)).
// On return b[:n] holds 𝐱 and a is overwritten by the factorization.
// It returns the pseudo-rank and the residual norm ‖𝐀𝐱 - 𝐛‖₂.
func hfti(a []float64, m, n int, b []float64, tau float64) (rank int, resid float64) {

	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 {
		return
	}

	col := func(j int) []float64 { return a[m*j : m*j+m] }

	norms := make([]float64, n) // squared column lengths, then the pivot scalars of 𝐐
	piv := make([]int, diag)
	hmax := 0.0

	for j := 0; j < diag; j++ {
		lmax := j
		if j > 0 {
			// downdate the squared lengths of the remaining columns
			best := math.Inf(-1)
			for l := j; l < n; l++ {
				t := a[(j-1)+m*l]
				if norms[l] -= t * t; norms[l] > best {
					lmax, best = l, norms[l]
				}
			}
		}
		// recompute when cancellation makes the downdated lengths unreliable
		if j == 0 || factor*norms[lmax] < hmax*eps {
			best := math.Inf(-1)
			for l := j; l < n; l++ {
				var sm float64
				for _, t := range col(l)[j:] {
					sm += t * t
				}
				if norms[l] = sm; sm > best {
					lmax, best = l, sm
				}
			}
			hmax = norms[lmax]
		}

		piv[j] = lmax
		if lmax != j {
			cj, cl := col(j), col(lmax)
			for i := range cj {
				cj[i], cl[i] = cl[i], cj[i]
			}
			norms[lmax] = norms[j]
		}

		// 𝐑 = 𝐐𝐀𝐏 and 𝐜 = 𝐐𝐛
		up := house(col(j), 1, j, j+1, m)
		norms[j] = up
		for l := j + 1; l < n; l++ {
			reflect(col(j), 1, j, j+1, m, up, col(l), 1)
		}
		reflect(col(j), 1, j, j+1, m, up, b, 1)
	}

	if tau <= 0 {
		tau = float64(max(m, n)) * eps * math.Abs(a[0])
	}
	rank = diag
	for j := 0; j < diag; j++ {
		if math.Abs(a[j+m*j]) <= tau {
			rank = j
			break
		}
	}

	// ‖𝐜₂‖
	for _, t := range b[rank:m] {
		resid += t * t
	}
	resid = math.Sqrt(resid)

	if rank == 0 {
		clear(b[:n])
		return
	}

	k := rank
	g := make([]float64, k) // pivot scalars of 𝐊
	if k < n {
		// [𝐑₁₁ 𝐑₁₂]𝐊 = [𝐖 ೦] row by row from the bottom
		for i := k - 1; i >= 0; i-- {
			g[i] = house(a[i:], m, i, k, n)
			for r := 0; r < i; r++ {
				reflect(a[i:], m, i, k, n, g[i], a[r:], m)
			}
		}
	}

	// 𝐖𝐲₁ = 𝐜₁
	for i := k - 1; i >= 0; i-- {
		var sm float64
		for j := i + 1; j < k; j++ {
			sm += a[i+m*j] * b[j]
		}
		b[i] = (b[i] - sm) / a[i+m*i]
	}

	// 𝐱 = 𝐏𝐊[𝐲₁ ೦]ᵀ
	if k < n {
		clear(b[k:n])
		for i := 0; i < k; i++ {
			reflect(a[i:], m, i, k, n, g[i], b, 1)
		}
	}
	for j := diag - 1; j >= 0; j-- {
		if l := piv[j]; l != j {
			b[l], b[j] = b[j], b[l]
		}
	}
	return
}

// house constructs the Householder reflection that zeroes v[l..m) into the pivot v[p],
// reading element i at v[i·stride]. The pivot is replaced by s = -sgn(vₚ)‖v‖ and the
// returned scalar uₚ = vₚ - s defines the reflection together with v[l..m).
// A zero vector or an empty range yields uₚ = 0, the identity.
func house(v []float64, stride, p, l, m int) (up float64) {
	if p < 0 || p >= l || l >= m {
		return
	}
	vmax := math.Abs(v[p*stride])
	for i := l; i < m; i++ {
		vmax = math.Max(vmax, math.Abs(v[i*stride]))
	}
	if vmax == 0 {
		return
	}

	inv := 1 / vmax
	sum := math.Pow(v[p*stride]*inv, 2)
	for i := l; i < m; i++ {
		sum += math.Pow(v[i*stride]*inv, 2)
	}
	s := vmax * math.Sqrt(sum)
	if v[p*stride] > 0 {
		s = -s
	}
	up = v[p*stride] - s
	v[p*stride] = s
	return
}

// reflect applies the reflection built by house to c: c += (uᵀc / (s·uₚ))·u.
func reflect(u []float64, ustride, p, l, m int, up float64, c []float64, cstride int) {
	if p < 0 || p >= l || l >= m {
		return
	}
	bb := u[p*ustride] * up
	if bb >= 0 {
		return
	}
	sm := c[p*cstride] * up
	for i := l; i < m; i++ {
		sm += c[i*cstride] * u[i*ustride]
	}
	if sm == 0 {
		return
	}
	sm /= bb
	c[p*cstride] += sm * up
	for i := l; i < m; i++ {
		c[i*cstride] += sm * u[i*ustride]
	}
}
