// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package robust

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Reweight applies one IRLS step in place.
//
// The residual vector is split into consecutive blocks of blockSize entries
// (one block per observation); the kernel is evaluated on the euclidean norm
// of each block. Both the block residual entries and the matching Jacobian
// rows are scaled by √w so that the normal equations become
//
//	𝐉ᵀ𝐖𝐉 δ = -𝐉ᵀ𝐖𝐫
//
// jac may be nil when only the cost is needed. The returned slice holds the
// weight of every block.
func Reweight(k Kernel, blockSize int, r []float64, jac *mat.Dense) []float64 {
	if blockSize <= 0 || len(r)%blockSize != 0 {
		panic("bound check error")
	}
	if jac != nil {
		if m, _ := jac.Dims(); m != len(r) {
			panic("bound check error")
		}
	}

	w := make([]float64, len(r)/blockSize)
	for b := range w {
		lo, hi := b*blockSize, (b+1)*blockSize
		w[b] = k.Weight(floats.Norm(r[lo:hi], 2))
		if w[b] == 1 {
			continue
		}
		s := math.Sqrt(w[b])
		floats.Scale(s, r[lo:hi])
		if jac != nil {
			for i := lo; i < hi; i++ {
				floats.Scale(s, jac.RawRowView(i))
			}
		}
	}
	return w
}

// Cost returns Σ w·r² over the (unweighted) residual vector, the objective
// minimized by IRLS with weights frozen at their current values.
func Cost(k Kernel, blockSize int, r []float64) float64 {
	if blockSize <= 0 || len(r)%blockSize != 0 {
		panic("bound check error")
	}
	var c float64
	for lo := 0; lo < len(r); lo += blockSize {
		n := floats.Norm(r[lo:lo+blockSize], 2)
		c += k.Weight(n) * n * n
	}
	return c
}

// Loss returns Σ ρ(‖r_b‖), the true robust objective.
func Loss(k Kernel, blockSize int, r []float64) float64 {
	if blockSize <= 0 || len(r)%blockSize != 0 {
		panic("bound check error")
	}
	var c float64
	for lo := 0; lo < len(r); lo += blockSize {
		c += k.Cost(floats.Norm(r[lo:lo+blockSize], 2))
	}
	return c
}
