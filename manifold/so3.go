// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifold

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a 3-vector.
type Vec3 [3]float64

// Mat3 is a 3×3 matrix stored in row-major order.
type Mat3 [9]float64

// Identity3 returns the 3×3 identity.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// At returns the element at row i and column j.
func (m Mat3) At(i, j int) float64 { return m[3*i+j] }

// T returns the transpose.
func (m Mat3) T() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) (p Mat3) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p[3*i+j] = m[3*i]*n[j] + m[3*i+1]*n[3+j] + m[3*i+2]*n[6+j]
		}
	}
	return
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// Det returns the determinant.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Dense returns a gonum copy of m.
func (m Mat3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, m[:])
}

// Add returns u + v.
func (u Vec3) Add(v Vec3) Vec3 { return Vec3{u[0] + v[0], u[1] + v[1], u[2] + v[2]} }

// Sub returns u - v.
func (u Vec3) Sub(v Vec3) Vec3 { return Vec3{u[0] - v[0], u[1] - v[1], u[2] - v[2]} }

// Scale returns f·u.
func (u Vec3) Scale(f float64) Vec3 { return Vec3{f * u[0], f * u[1], f * u[2]} }

// Dot returns u·v.
func (u Vec3) Dot(v Vec3) float64 { return u[0]*v[0] + u[1]*v[1] + u[2]*v[2] }

// Cross returns u×v.
func (u Vec3) Cross(v Vec3) Vec3 {
	return Vec3{
		u[1]*v[2] - u[2]*v[1],
		u[2]*v[0] - u[0]*v[2],
		u[0]*v[1] - u[1]*v[0],
	}
}

// Norm returns the euclidean length of u.
func (u Vec3) Norm() float64 { return math.Sqrt(u.Dot(u)) }

// Skew returns the skew-symmetric matrix [v]× such that [v]×·u = v×u.
func Skew(v Vec3) Mat3 {
	return Mat3{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	}
}

// Vee is the inverse of Skew.
func Vee(m Mat3) Vec3 {
	return Vec3{m[7], m[2], m[3]}
}

// small angle threshold where the series expansions replace the closed forms.
const smallAngle = 1e-8

// Exp maps a rotation vector ω to 𝐑 = exp([ω]×) using Rodrigues' formula:
//
//	𝐑 = 𝐈 + (sin θ / θ)[ω]× + ((1 - cos θ) / θ²)[ω]×²,  θ = ‖ω‖
func Exp(w Vec3) Mat3 {
	theta := w.Norm()
	k := Skew(w)
	k2 := k.Mul(k)

	var a, b float64
	if theta < smallAngle {
		a, b = 1-theta*theta/6, 0.5-theta*theta/24
	} else {
		s, c := math.Sincos(theta)
		a, b = s/theta, (1-c)/(theta*theta)
	}

	r := Identity3()
	for i := range r {
		r[i] += a*k[i] + b*k2[i]
	}
	return r
}

// Log maps a rotation matrix to its rotation vector ω with ‖ω‖ ∈ [0, π].
func Log(r Mat3) Vec3 {
	c := (r[0] + r[4] + r[8] - 1) / 2
	c = math.Max(-1, math.Min(1, c))
	theta := math.Acos(c)

	// ½(𝐑 - 𝐑ᵀ) = sin θ [ω̂]×
	v := Vee(r).Sub(Vee(r.T())).Scale(0.5)

	switch {
	case theta < smallAngle:
		return v
	case math.Pi-theta < 1e-6:
		// sin θ vanishes, recover the axis from the symmetric part 𝐑 = 2ω̂ω̂ᵀ - 𝐈.
		axis := Vec3{
			math.Sqrt(math.Max(0, (r[0]+1)/2)),
			math.Sqrt(math.Max(0, (r[4]+1)/2)),
			math.Sqrt(math.Max(0, (r[8]+1)/2)),
		}
		// fix relative signs using the largest component
		k := 0
		for i := 1; i < 3; i++ {
			if axis[i] > axis[k] {
				k = i
			}
		}
		for i := 0; i < 3; i++ {
			if i != k && r[3*k+i] < 0 {
				axis[i] = -axis[i]
			}
		}
		return axis.Scale(theta / axis.Norm())
	default:
		return v.Scale(theta / math.Sin(theta))
	}
}

// AngleAxis returns the rotation of angle radians around axis.
func AngleAxis(angle float64, axis Vec3) Mat3 {
	n := axis.Norm()
	if n == 0 {
		return Identity3()
	}
	return Exp(axis.Scale(angle / n))
}

// Orthonormalize projects m onto the nearest rotation in Frobenius norm
// 𝐑 = 𝐔𝐕ᵀ with the sign of the last singular pair fixed so that det 𝐑 = +1.
func Orthonormalize(m Mat3) Mat3 {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDFull); !ok {
		panic("rotation orthonormalization failed")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r.At(i, j)
		}
	}
	return out
}

// OrthogonalityError returns ‖𝐑ᵀ𝐑 - 𝐈‖_F.
func OrthogonalityError(r Mat3) float64 {
	p := r.T().Mul(r)
	id := Identity3()
	var s float64
	for i := range p {
		d := p[i] - id[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// SO3 parameterizes a pure rotation stored as 9 row-major entries.
// Increments are rotation vectors composed on the right: 𝐑' = 𝐑·exp([ω]×).
type SO3 struct{}

// Dim returns 9.
func (SO3) Dim() int { return 9 }

// LocalDim returns 3.
func (SO3) LocalDim() int { return 3 }

// Retract returns 𝐑·exp([ω]×), renormalized onto SO(3).
func (s SO3) Retract(x, delta []float64) []float64 {
	checkDims(x, delta, s.Dim(), s.LocalDim())
	var r Mat3
	copy(r[:], x)
	r = Orthonormalize(r.Mul(Exp(Vec3{delta[0], delta[1], delta[2]})))
	out := make([]float64, 9)
	copy(out, r[:])
	return out
}

// Basis returns the i-th unit rotation vector.
func (s SO3) Basis(i int) []float64 { return basis(i, s.LocalDim()) }
