// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifold

// Pose is a rigid transform p ↦ 𝐑p + 𝐭.
type Pose struct {
	R Mat3
	T Vec3
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{R: Identity3()}
}

// Transform applies the pose to a point.
func (p Pose) Transform(v Vec3) Vec3 {
	return p.R.MulVec(v).Add(p.T)
}

// Compose returns the pose p∘q, that is x ↦ p(q(x)).
func (p Pose) Compose(q Pose) Pose {
	return Pose{R: p.R.Mul(q.R), T: p.R.MulVec(q.T).Add(p.T)}
}

// Inverse returns the inverse transform.
func (p Pose) Inverse() Pose {
	rt := p.R.T()
	return Pose{R: rt, T: rt.MulVec(p.T).Scale(-1)}
}

// SE3 parameterizes a rigid pose stored as [tx ty tz r00 r01 … r22].
//
// The increment is [δt, ω]: the translation part is added to 𝐭 and the
// rotation part is composed on the right 𝐑' = 𝐑·exp([ω]×). Addition on the
// rotation entries would leave SO(3), so it is never used.
type SE3 struct{}

// Dim returns 12.
func (SE3) Dim() int { return 12 }

// LocalDim returns 6.
func (SE3) LocalDim() int { return 6 }

// Retract applies [δt, ω] and renormalizes the rotation.
func (s SE3) Retract(x, delta []float64) []float64 {
	checkDims(x, delta, s.Dim(), s.LocalDim())
	p := PoseFromMatrix(x)
	p.T = p.T.Add(Vec3{delta[0], delta[1], delta[2]})
	p.R = Orthonormalize(p.R.Mul(Exp(Vec3{delta[3], delta[4], delta[5]})))
	return PoseMatrix(p)
}

// Basis returns the i-th canonical tangent direction.
func (s SE3) Basis(i int) []float64 { return basis(i, s.LocalDim()) }

// PoseMatrix encodes p in SE3 storage.
func PoseMatrix(p Pose) []float64 {
	x := make([]float64, 12)
	copy(x[:3], p.T[:])
	copy(x[3:], p.R[:])
	return x
}

// PoseFromMatrix decodes SE3 storage.
func PoseFromMatrix(x []float64) (p Pose) {
	if len(x) != 12 {
		panic("bound check error")
	}
	copy(p.T[:], x[:3])
	copy(p.R[:], x[3:])
	return
}
