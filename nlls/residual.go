// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"github.com/curioloop/nlsq/manifold"
	"github.com/curioloop/nlsq/numdiff"
	"gonum.org/v1/gonum/mat"
)

// Residual evaluates the residual vector 𝐫(𝐱) ∈ ℝᵐ of a least-squares problem.
type Residual interface {
	// Size returns m, the length of the residual vector.
	Size() int
	// Residual writes 𝐫(𝐱) into r. The argument x is in storage coordinates and must not be modified.
	Residual(x, r []float64)
}

// Jacobian is a Residual that also provides its derivative.
type Jacobian interface {
	Residual
	// Jacobian writes the m×D matrix ∂𝐫(𝐱 ⊞ δ)/∂δ at δ = 0 into jac, where D is
	// the tangent dimension of the parameterization. The matrix is zeroed before the call.
	Jacobian(x []float64, jac *mat.Dense)
}

// Func adapts a plain function to Residual.
type Func struct {
	M    int
	Eval func(x, r []float64)
}

// Size returns M.
func (f Func) Size() int { return f.M }

// Residual calls Eval.
func (f Func) Residual(x, r []float64) { f.Eval(x, r) }

// Analytic adapts a residual function and its hand-written Jacobian.
type Analytic struct {
	M    int
	Eval func(x, r []float64)
	Jac  func(x []float64, jac *mat.Dense)
}

// Size returns M.
func (a Analytic) Size() int { return a.M }

// Residual calls Eval.
func (a Analytic) Residual(x, r []float64) { a.Eval(x, r) }

// Jacobian calls Jac.
func (a Analytic) Jacobian(x []float64, jac *mat.Dense) { a.Jac(x, jac) }

// Numeric estimates the Jacobian of a Residual by finite differences along the tangent basis:
//
//	𝐉[:,j] = (𝐫(𝐱 ⊞ ε𝐞ⱼ) - 𝐫(𝐱 ⊞ -ε𝐞ⱼ)) / 2ε
type Numeric struct {
	Res      Residual
	Manifold manifold.Parameterization
	// Step is the perturbation ε (default numdiff.DefaultTangentStep).
	Step float64
	// Method is the difference scheme (default central).
	Method numdiff.Method
}

// NumericJacobian wraps res with a central finite-difference Jacobian on m.
func NumericJacobian(res Residual, m manifold.Parameterization) *Numeric {
	return &Numeric{Res: res, Manifold: m, Step: numdiff.DefaultTangentStep, Method: numdiff.Central}
}

// Size returns the size of the wrapped residual.
func (n *Numeric) Size() int { return n.Res.Size() }

// Residual evaluates the wrapped residual.
func (n *Numeric) Residual(x, r []float64) { n.Res.Residual(x, r) }

// Jacobian fills jac by finite differences. It panics when the dimensions
// of x or jac do not match the parameterization.
func (n *Numeric) Jacobian(x []float64, jac *mat.Dense) {
	rows, cols := jac.Dims()
	spec := numdiff.ApproxSpec{
		N: n.Manifold.LocalDim(), M: n.Size(),
		Object:   n.Res.Residual,
		Method:   n.Method,
		AbsStep:  n.Step,
		Manifold: n.Manifold,
	}
	if rows != spec.M || cols != spec.N {
		panic("bound check error")
	}
	raw := jac.RawMatrix()
	if raw.Stride == cols {
		if err := spec.Diff(x, raw.Data[:rows*cols]); err != nil {
			panic(err)
		}
		return
	}
	buf := make([]float64, rows*cols)
	if err := spec.Diff(x, buf); err != nil {
		panic(err)
	}
	jac.Copy(mat.NewDense(rows, cols, buf))
}
