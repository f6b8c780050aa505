// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package manifold

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randVec3(rng *rand.Rand, scale float64) Vec3 {
	return Vec3{
		scale * (2*rng.Float64() - 1),
		scale * (2*rng.Float64() - 1),
		scale * (2*rng.Float64() - 1),
	}
}

func randPose(rng *rand.Rand) Pose {
	return Pose{R: Exp(randVec3(rng, 2)), T: randVec3(rng, 5)}
}

func assertRotation(t *testing.T, r Mat3) {
	t.Helper()
	assert.Less(t, OrthogonalityError(r), 1e-9)
	assert.InDelta(t, 1, r.Det(), 1e-9)
}

func TestDims(t *testing.T) {
	for _, tc := range []struct {
		name       string
		p          Parameterization
		dim, local int
	}{
		{"euclidean", Euclidean(4), 4, 4},
		{"so3", SO3{}, 9, 3},
		{"se3", SE3{}, 12, 6},
		{"se3quat", SE3Quat{}, 7, 6},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.dim, tc.p.Dim())
			assert.Equal(t, tc.local, tc.p.LocalDim())
			for i := 0; i < tc.local; i++ {
				b := tc.p.Basis(i)
				require.Len(t, b, tc.local)
				assert.Equal(t, 1.0, b[i])
				assert.Equal(t, 1.0, b[0]*b[0]+sumSquares(b[1:]))
			}
			assert.Panics(t, func() { tc.p.Basis(tc.local) })
			assert.Panics(t, func() { tc.p.Retract(make([]float64, tc.dim+1), make([]float64, tc.local)) })
		})
	}
}

func sl(v Vec3) []float64 { return v[:] }

func sumSquares(s []float64) (v float64) {
	for _, x := range s {
		v += x * x
	}
	return
}

func TestRetractZeroIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	pose := randPose(rng)
	for _, tc := range []struct {
		name string
		p    Parameterization
		x    []float64
	}{
		{"euclidean", Euclidean(3), []float64{1.5, -2, 0.25}},
		{"so3", SO3{}, pose.R[:]},
		{"se3", SE3{}, PoseMatrix(pose)},
		{"se3quat", SE3Quat{}, PoseQuat(pose)},
		{"se3quat negative qw", SE3Quat{}, []float64{1, 2, 3, -0.5, 0.5, 0.5, 0.5}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			x0 := slices.Clone(tc.x)
			y := tc.p.Retract(tc.x, make([]float64, tc.p.LocalDim()))
			assert.InDeltaSlice(t, tc.x, y, 1e-12)
			assert.Equal(t, x0, tc.x, "retract must not modify its argument")
		})
	}
}

func TestEuclideanRetract(t *testing.T) {
	x := []float64{1, 2}
	y := Euclidean(2).Retract(x, []float64{0.5, -1})
	assert.Equal(t, []float64{1.5, 1}, y)
	assert.Equal(t, []float64{1, 2}, x)
}

// Case Sources : chapter 3.10 small angle approximation (𝐑 ≈ 𝐈 + [ω]×)
func TestExpSmallAngle(t *testing.T) {
	w := Vec3{0.01, 0.02, 0.03}
	r := Exp(w)
	approx := Identity3()
	k := Skew(w)
	for i := range approx {
		approx[i] += k[i]
	}
	for i := range r {
		assert.InDelta(t, approx[i], r[i], 1e-3)
	}
	assertRotation(t, r)

	tiny := Vec3{1e-12, -2e-12, 3e-12}
	assert.InDeltaSlice(t, sl(tiny), sl(Log(Exp(tiny))), 1e-20)
}

func TestExpLogRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		w := randVec3(rng, 1.7)
		r := Exp(w)
		assertRotation(t, r)
		assert.InDeltaSlice(t, sl(w), sl(Log(r)), 1e-9)
	}

	// rotation by π keeps the axis up to sign
	r := AngleAxis(math.Pi, Vec3{0, 0, 1})
	w := Log(r)
	assert.InDelta(t, math.Pi, w.Norm(), 1e-9)
	assert.InDelta(t, math.Pi, math.Abs(w[2]), 1e-9)
	back := Exp(w)
	for i := range r {
		assert.InDelta(t, r[i], back[i], 1e-9)
	}

	r = AngleAxis(math.Pi-1e-9, Vec3{1, 1, 0})
	back = Exp(Log(r))
	for i := range r {
		assert.InDelta(t, r[i], back[i], 1e-6)
	}
}

func TestSkewVee(t *testing.T) {
	u, v := Vec3{1, 2, 3}, Vec3{-4, 0.5, 2}
	assert.InDeltaSlice(t, sl(u.Cross(v)), sl(Skew(u).MulVec(v)), 1e-15)
	assert.Equal(t, u, Vee(Skew(u)))
}

func TestOrthonormalize(t *testing.T) {
	r := AngleAxis(0.3, Vec3{1, 2, 3})
	noisy := r
	noisy[0] += 1e-4
	noisy[5] -= 2e-4
	require.Greater(t, OrthogonalityError(noisy), 1e-5)
	fixed := Orthonormalize(noisy)
	assertRotation(t, fixed)
	for i := range r {
		assert.InDelta(t, r[i], fixed[i], 1e-3)
	}

	// a reflection is mapped to a proper rotation
	reflect := Mat3{1, 0, 0, 0, 1, 0, 0, 0, -1}
	assertRotation(t, Orthonormalize(reflect))
}

func TestRotationClosure(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	so3 := SO3{}
	x := Identity3()
	state := x[:]
	for i := 0; i < 5000; i++ {
		w := randVec3(rng, 0.5)
		state = so3.Retract(state, w[:])
	}
	var r Mat3
	copy(r[:], state)
	assertRotation(t, r)

	se3, se3q := SE3{}, SE3Quat{}
	xm, xq := PoseMatrix(IdentityPose()), PoseQuat(IdentityPose())
	for i := 0; i < 2000; i++ {
		d := append(sl(randVec3(rng, 0.1)), sl(randVec3(rng, 0.4))...)
		xm = se3.Retract(xm, d)
		xq = se3q.Retract(xq, d)
	}
	pm, pq := PoseFromMatrix(xm), PoseFromQuat(xq)
	assertRotation(t, pm.R)
	assertRotation(t, pq.R)
	assert.InDelta(t, 1, math.Sqrt(sumSquares(xq[3:])), 1e-12)
	assert.GreaterOrEqual(t, xq[3], 0.0)

	// both storages follow the same trajectory
	for i := range pm.R {
		assert.InDelta(t, pm.R[i], pq.R[i], 1e-8)
	}
	assert.InDeltaSlice(t, pm.T[:], pq.T[:], 1e-9)
}

func TestSE3RetractComposesOnTheRight(t *testing.T) {
	p := Pose{R: AngleAxis(0.4, Vec3{0, 1, 0}), T: Vec3{1, 2, 3}}
	d := []float64{0.1, -0.2, 0.3, 0.05, 0.02, -0.1}
	got := PoseFromMatrix(SE3{}.Retract(PoseMatrix(p), d))
	want := p.R.Mul(Exp(Vec3{d[3], d[4], d[5]}))
	for i := range want {
		assert.InDelta(t, want[i], got.R[i], 1e-12)
	}
	assert.InDeltaSlice(t, []float64{1.1, 1.8, 3.3}, got.T[:], 1e-12)
}

func TestSE3QuatRetractKeepsHemisphere(t *testing.T) {
	x := []float64{0, 0, 0, -0.5, 0.5, 0.5, 0.5}
	y := SE3Quat{}.Retract(x, []float64{0, 0, 0, 0.01, -0.02, 0.03})
	assert.Negative(t, y[3])
	assert.InDelta(t, 1.0, sumSquares(y[3:]), 1e-12)
	assert.Greater(t, x[3]*y[3]+x[4]*y[4]+x[5]*y[5]+x[6]*y[6], 0.99)

	// same rotation as the canonical representative
	want := PoseFromQuat(SE3Quat{}.Retract([]float64{0, 0, 0, 0.5, -0.5, -0.5, -0.5}, []float64{0, 0, 0, 0.01, -0.02, 0.03}))
	got := PoseFromQuat(y)
	for i := range want.R {
		assert.InDelta(t, want.R[i], got.R[i], 1e-12)
	}
}

func TestQuaternionRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 100; i++ {
		r := Exp(randVec3(rng, 3))
		q := ToQuaternion(r)
		assert.GreaterOrEqual(t, q.Real, 0.0)
		back := FromQuaternion(q)
		for j := range r {
			assert.InDelta(t, r[j], back[j], 1e-12)
		}
	}
	// each Shepperd branch
	for _, r := range []Mat3{
		AngleAxis(math.Pi, Vec3{1, 0, 0}),
		AngleAxis(math.Pi, Vec3{0, 1, 0}),
		AngleAxis(math.Pi, Vec3{0, 0, 1}),
	} {
		back := FromQuaternion(ToQuaternion(r))
		for j := range r {
			assert.InDelta(t, r[j], back[j], 1e-12)
		}
	}
}

func TestPoseAlgebra(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	p, q := randPose(rng), randPose(rng)
	v := randVec3(rng, 1)

	pq := p.Compose(q)
	assert.InDeltaSlice(t, sl(p.Transform(q.Transform(v))), sl(pq.Transform(v)), 1e-12)

	id := p.Compose(p.Inverse())
	assert.InDeltaSlice(t, sl(v), sl(id.Transform(v)), 1e-12)
}
