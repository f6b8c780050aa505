// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifold

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// SE3Quat parameterizes a rigid pose stored as [tx ty tz qw qx qy qz].
//
// The tangent space is the same as SE3: LocalDim is 6 although the storage
// carries 7 redundant coordinates. The rotation increment is applied as
// 𝐪' = 𝐪 ⊗ exp(ω/2) and rescaled to unit length on the hemisphere of 𝐪,
// so a zero increment returns the stored quaternion unchanged.
type SE3Quat struct{}

// Dim returns 7.
func (SE3Quat) Dim() int { return 7 }

// LocalDim returns 6.
func (SE3Quat) LocalDim() int { return 6 }

// Retract applies [δt, ω] and renormalizes the quaternion.
func (s SE3Quat) Retract(x, delta []float64) []float64 {
	checkDims(x, delta, s.Dim(), s.LocalDim())
	q := quat.Number{Real: x[3], Imag: x[4], Jmag: x[5], Kmag: x[6]}
	dq := quat.Exp(quat.Number{Imag: delta[3] / 2, Jmag: delta[4] / 2, Kmag: delta[5] / 2})
	r := unit(quat.Mul(q, dq))
	if r.Real*q.Real+r.Imag*q.Imag+r.Jmag*q.Jmag+r.Kmag*q.Kmag < 0 {
		r = quat.Scale(-1, r)
	}
	q = r
	return []float64{
		x[0] + delta[0], x[1] + delta[1], x[2] + delta[2],
		q.Real, q.Imag, q.Jmag, q.Kmag,
	}
}

// Basis returns the i-th canonical tangent direction.
func (s SE3Quat) Basis(i int) []float64 { return basis(i, s.LocalDim()) }

// PoseQuat encodes p in SE3Quat storage.
func PoseQuat(p Pose) []float64 {
	q := ToQuaternion(p.R)
	return []float64{p.T[0], p.T[1], p.T[2], q.Real, q.Imag, q.Jmag, q.Kmag}
}

// PoseFromQuat decodes SE3Quat storage.
func PoseFromQuat(x []float64) Pose {
	if len(x) != 7 {
		panic("bound check error")
	}
	q := quat.Number{Real: x[3], Imag: x[4], Jmag: x[5], Kmag: x[6]}
	return Pose{R: FromQuaternion(q), T: Vec3{x[0], x[1], x[2]}}
}

// FromQuaternion converts a (not necessarily unit) quaternion to a rotation matrix.
func FromQuaternion(q quat.Number) Mat3 {
	q = unit(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// ToQuaternion converts a rotation matrix to a unit quaternion with 𝚚𝚠 ≥ 0.
//
// # Reference:
//
//   - Shepperd, S.W. "Quaternion from rotation matrix", J. Guidance and Control 1(3), 1978.
func ToQuaternion(r Mat3) quat.Number {
	tr := r[0] + r[4] + r[8]
	var q quat.Number
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (r[7] - r[5]) / s, Jmag: (r[2] - r[6]) / s, Kmag: (r[3] - r[1]) / s}
	case r[0] > r[4] && r[0] > r[8]:
		s := 2 * math.Sqrt(1+r[0]-r[4]-r[8])
		q = quat.Number{Real: (r[7] - r[5]) / s, Imag: s / 4, Jmag: (r[1] + r[3]) / s, Kmag: (r[2] + r[6]) / s}
	case r[4] > r[8]:
		s := 2 * math.Sqrt(1+r[4]-r[0]-r[8])
		q = quat.Number{Real: (r[2] - r[6]) / s, Imag: (r[1] + r[3]) / s, Jmag: s / 4, Kmag: (r[5] + r[7]) / s}
	default:
		s := 2 * math.Sqrt(1+r[8]-r[0]-r[4])
		q = quat.Number{Real: (r[3] - r[1]) / s, Imag: (r[2] + r[6]) / s, Jmag: (r[5] + r[7]) / s, Kmag: s / 4}
	}
	return normalize(q)
}

// unit scales q to unit length.
func unit(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		panic("zero quaternion")
	}
	return quat.Scale(1/n, q)
}

// normalize scales q to unit length and picks the 𝚚𝚠 ≥ 0 representative.
func normalize(q quat.Number) quat.Number {
	q = unit(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}
