// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"testing"

	"github.com/curioloop/nlsq/manifold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func objV2(x, y []float64) {
	y[0] = x[0] * math.Sin(x[1])
	y[1] = x[1] * math.Cos(x[0])
	y[2] = math.Pow(x[0], 3) * math.Pow(x[1], -0.5)
}

func jacV2(x []float64) []float64 {
	return []float64{
		math.Sin(x[1]), x[0] * math.Cos(x[1]),
		-x[1] * math.Sin(x[0]), math.Cos(x[0]),
		3 * math.Pow(x[0], 2) * math.Pow(x[1], -0.5), -0.5 * math.Pow(x[0], 3) * math.Pow(x[1], -1.5),
	}
}

func objZero(x, y []float64) {
	y[0] = x[0] * x[1]
	y[1] = math.Cos(x[0] * x[1])
}

func jacZero(x []float64) []float64 {
	return []float64{
		x[1], x[0],
		-x[1] * math.Sin(x[0]*x[1]), -x[0] * math.Sin(x[0]*x[1]),
	}
}

func TestCheck(t *testing.T) {
	dummy := make([]float64, 2)
	for name, as := range map[string]ApproxSpec{
		"dims":     {N: 0, M: 1, Object: objZero},
		"method":   {N: 2, M: 1, Method: Method(7), Object: objZero},
		"object":   {N: 2, M: 1},
		"step":     {N: 2, M: 1, Object: objZero, AbsStep: math.NaN()},
		"manifold": {N: 2, M: 1, Object: objZero, Manifold: manifold.SO3{}},
	} {
		assert.Error(t, as.Check([]float64{0, 0}, dummy), name)
	}

	as := ApproxSpec{N: 2, M: 1, Object: objZero}
	assert.Error(t, as.Check([]float64{0}, dummy))
	assert.Error(t, as.Check([]float64{0, 0}, make([]float64, 3)))
	assert.NoError(t, as.Check([]float64{0, 0}, dummy))

	as = ApproxSpec{N: 3, M: 1, Object: objZero, Manifold: manifold.SO3{}}
	assert.Error(t, as.Check(make([]float64, 3), make([]float64, 3)))
	assert.NoError(t, as.Check(make([]float64, 9), make([]float64, 3)))
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py (test_absolute_step_sign)
func TestComputeAbsStp(t *testing.T) {

	x0 := []float64{1e-5, 0, 1, 1e5}
	dummy := make([]float64, 4)

	// auto select relative step
	for method, relStep := range map[Method]float64{
		Forward: sqrtEps,
		Central: cubeEps,
	} {
		expected := []float64{relStep, relStep, relStep, relStep * math.Abs(x0[3])}

		as := ApproxSpec{N: 4, M: 1, Method: method, Object: objZero}
		require.NoError(t, as.Check(x0, dummy))

		as.absoluteStep(x0)
		assert.InEpsilonSlice(t, expected, as.absStep, 1e-12)

		negX0 := make([]float64, len(x0))
		for i, v := range x0 {
			negX0[i] = -v
			expected[i] = math.Copysign(expected[i], -v)
		}
		as.absoluteStep(negX0)
		assert.InEpsilonSlice(t, expected, as.absStep, 1e-12)
	}

	// user-specified relative step
	for _, relStep := range []float64{0.1, 1, 10, 100} {
		expected := []float64{relStep * x0[0], sqrtEps, relStep * x0[2], relStep * x0[3]}

		as := ApproxSpec{N: 4, M: 1, Method: Forward, Object: objZero, RelStep: relStep}
		require.NoError(t, as.Check(x0, dummy))

		as.absoluteStep(x0)
		assert.InEpsilonSlice(t, expected, as.absStep, 1e-12)
	}
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py (test_absolute_step_sign)
func TestAbsStpSign(t *testing.T) {

	obj := func(x, y []float64) {
		y[0] = -math.Abs(x[0]+1) + math.Abs(x[1]+1)
	}

	x0 := []float64{-1, -1}
	grad := []float64{0, 0}

	as := ApproxSpec{N: 2, M: 1, Method: Forward, Object: obj, AbsStep: 1e-8}
	require.NoError(t, as.Diff(x0, grad))
	assert.InEpsilonSlice(t, []float64{-1, 1}, grad, 1e-7)

	as = ApproxSpec{N: 2, M: 1, Method: Forward, Object: obj, AbsStep: -1e-8}
	require.NoError(t, as.Diff(x0, grad))
	assert.InEpsilonSlice(t, []float64{1, -1}, grad, 1e-7)

	// x0 is restored after every perturbation
	assert.Equal(t, []float64{-1, -1}, x0)
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py
// (TestApproxDerivativesDense.test_scalar_vector)
func TestScalarVec(t *testing.T) {
	x0 := []float64{0.5}
	obj := func(x, y []float64) {
		y[0] = x[0] * x[0]
		y[1] = math.Tan(x[0])
		y[2] = math.Exp(x[0])
	}

	jac1 := []float64{
		2 * x0[0],
		1 / (math.Cos(x0[0]) * math.Cos(x0[0])),
		math.Exp(x0[0]),
	}
	jac2 := make([]float64, 3)
	jac3 := make([]float64, 3)

	as := ApproxSpec{N: 1, M: 3, Method: Forward, Object: obj}
	require.NoError(t, as.Diff(x0, jac2))
	as = ApproxSpec{N: 1, M: 3, Method: Central, Object: obj}
	require.NoError(t, as.Diff(x0, jac3))

	assert.InEpsilonSlice(t, jac1, jac2, 1e-6)
	assert.InEpsilonSlice(t, jac1, jac3, 1e-9)
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py
// (TestApproxDerivativesDense.test_vector_vector)
func TestVector(t *testing.T) {

	x0 := []float64{-100.0, 0.2}
	jac1 := jacV2(x0)
	jac2 := make([]float64, 6)
	jac3 := make([]float64, 6)

	as := ApproxSpec{N: 2, M: 3, Method: Forward, Object: objV2}
	require.NoError(t, as.Diff(x0, jac2))
	as = ApproxSpec{N: 2, M: 3, Method: Central, Object: objV2}
	require.NoError(t, as.Diff(x0, jac3))

	assert.InEpsilonSlice(t, jac1, jac2, 1e-5)
	assert.InEpsilonSlice(t, jac1, jac3, 1e-6)

	// transposed layout
	jacT := make([]float64, 6)
	as = ApproxSpec{N: 2, M: 3, Method: Central, Object: objV2, TransJac: true}
	require.NoError(t, as.Diff(x0, jacT))
	want := mat.NewDense(3, 2, jac3)
	got := mat.NewDense(2, 3, jacT)
	assert.Zero(t, Compare(want, got.T()))
}

// Case Sources : https://github.com/scipy/scipy/blob/main/scipy/optimize/tests/test__numdiff.py
// (TestApproxDerivativesDense.test_check_derivative)
func TestAccuracy(t *testing.T) {

	checkDerivative := func(n, m int, x0 []float64, fun func(x, y []float64), jac func(x []float64) []float64) float64 {
		jacDiff := make([]float64, n*m)
		approx := ApproxSpec{N: n, M: m, Method: Central, Object: fun}
		require.NoError(t, approx.Diff(x0, jacDiff))
		return Compare(mat.NewDense(m, n, jac(x0)), mat.NewDense(m, n, jacDiff))
	}

	assert.Less(t, checkDerivative(2, 3, []float64{-10.0, 10}, objV2, jacV2), 1e-6)
	assert.Zero(t, checkDerivative(2, 2, []float64{0, 0}, objZero, jacZero))
}

func TestEuclideanManifold(t *testing.T) {
	x0 := []float64{1.0, 2.0}
	plain := make([]float64, 6)
	tangent := make([]float64, 6)

	as := ApproxSpec{N: 2, M: 3, Method: Central, Object: objV2, AbsStep: 1e-6}
	require.NoError(t, as.Diff(x0, plain))
	as = ApproxSpec{N: 2, M: 3, Method: Central, Object: objV2, AbsStep: 1e-6, Manifold: manifold.Euclidean(2)}
	require.NoError(t, as.Diff(x0, tangent))

	assert.InDeltaSlice(t, plain, tangent, 1e-12)
	assert.InEpsilonSlice(t, jacV2(x0), tangent, 1e-8)
}

// Rotating a fixed point: d(𝐑·exp([ω]×)·p)/dω = -𝐑[p]×
func TestRotationTangent(t *testing.T) {
	r := manifold.AngleAxis(0.7, manifold.Vec3{1, -2, 0.5})
	p := manifold.Vec3{0.3, -1.2, 2}

	obj := func(x, y []float64) {
		var m manifold.Mat3
		copy(m[:], x)
		v := m.MulVec(p)
		copy(y, v[:])
	}

	diff := make([]float64, 9)
	as := ApproxSpec{N: 3, M: 3, Method: Central, Object: obj, Manifold: manifold.SO3{}}
	require.NoError(t, as.Diff(r[:], diff))

	want := r.Mul(manifold.Skew(p))
	for i := range want {
		want[i] = -want[i]
	}
	assert.Less(t, Compare(want.Dense(), mat.NewDense(3, 3, diff)), 1e-8)
}

func TestPoseTangent(t *testing.T) {
	pose := manifold.Pose{R: manifold.AngleAxis(-1.1, manifold.Vec3{0, 1, 1}), T: manifold.Vec3{1, 2, 3}}
	p := manifold.Vec3{-0.5, 0.25, 4}

	// analytic [𝐈 | -𝐑[p]×]
	rp := pose.R.Mul(manifold.Skew(p))
	want := mat.NewDense(3, 6, nil)
	for i := 0; i < 3; i++ {
		want.Set(i, i, 1)
		for j := 0; j < 3; j++ {
			want.Set(i, 3+j, -rp.At(i, j))
		}
	}

	for _, tc := range []struct {
		name string
		m    manifold.Parameterization
		x    []float64
		dec  func([]float64) manifold.Pose
	}{
		{"matrix", manifold.SE3{}, manifold.PoseMatrix(pose), manifold.PoseFromMatrix},
		{"quaternion", manifold.SE3Quat{}, manifold.PoseQuat(pose), manifold.PoseFromQuat},
	} {
		t.Run(tc.name, func(t *testing.T) {
			obj := func(x, y []float64) {
				v := tc.dec(x).Transform(p)
				copy(y, v[:])
			}
			diff := make([]float64, 18)
			as := ApproxSpec{N: 6, M: 3, Method: Central, Object: obj, Manifold: tc.m}
			require.NoError(t, as.Diff(tc.x, diff))
			assert.Less(t, Compare(want, mat.NewDense(3, 6, diff)), 1e-7)

			fwd := make([]float64, 18)
			as = ApproxSpec{N: 6, M: 3, Method: Forward, Object: obj, Manifold: tc.m}
			require.NoError(t, as.Diff(tc.x, fwd))
			assert.Less(t, Compare(want, mat.NewDense(3, 6, fwd)), 1e-5)
		})
	}
}

func TestCompare(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{1, 2.5, 2, 4})
	assert.Equal(t, 1.0, Compare(a, b))
	assert.Panics(t, func() { Compare(a, mat.NewDense(1, 2, nil)) })
}

type basisCounter struct {
	manifold.Parameterization
	calls int
}

func (b *basisCounter) Basis(i int) []float64 {
	b.calls++
	return b.Parameterization.Basis(i)
}

func TestEvaluationCount(t *testing.T) {
	var evals int
	obj := func(x, y []float64) {
		evals++
		objV2(x, y)
	}
	diff := make([]float64, 6)

	as := ApproxSpec{N: 2, M: 3, Method: Central, Object: obj}
	require.NoError(t, as.Diff([]float64{1, 2}, diff))
	assert.Equal(t, 4, evals, "central differences never read f(x0)")

	evals = 0
	as = ApproxSpec{N: 2, M: 3, Method: Forward, Object: obj}
	require.NoError(t, as.Diff([]float64{1, 2}, diff))
	assert.Equal(t, 3, evals)

	evals = 0
	m := &basisCounter{Parameterization: manifold.Euclidean(2)}
	as = ApproxSpec{N: 2, M: 3, Method: Central, Object: obj, Manifold: m}
	require.NoError(t, as.Diff([]float64{1, 2}, diff))
	assert.Equal(t, 4, evals)
	assert.Equal(t, 4, m.calls, "tangent directions come from the manifold basis")
}
