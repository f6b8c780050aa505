// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problems_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/curioloop/nlsq/linalg"
	"github.com/curioloop/nlsq/manifold"
	"github.com/curioloop/nlsq/nlls"
	"github.com/curioloop/nlsq/numdiff"
	. "github.com/curioloop/nlsq/problems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var cam = Camera{Fx: 500, Fy: 520, Cx: 320, Cy: 240}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// jacobians evaluates the analytic and the numeric Jacobian of res at x.
func jacobians(res nlls.Jacobian, m manifold.Parameterization, x []float64) (analytic, numeric *mat.Dense) {
	analytic = mat.NewDense(res.Size(), m.LocalDim(), nil)
	numeric = mat.NewDense(res.Size(), m.LocalDim(), nil)
	res.Jacobian(x, analytic)
	nlls.NumericJacobian(res, m).Jacobian(x, numeric)
	return
}

func assertPose(t *testing.T, want, got manifold.Pose, tol float64) {
	t.Helper()
	assert.Less(t, manifold.OrthogonalityError(got.R), 1e-9)
	assert.InDelta(t, 1, got.R.Det(), 1e-9)
	assert.InDelta(t, 0, manifold.Log(want.R.T().Mul(got.R)).Norm(), tol)
	assert.InDelta(t, 0, want.T.Sub(got.T).Norm(), tol)
}

func TestAnalyticJacobians(t *testing.T) {
	rng := newRand(1)

	t.Run("exp curve", func(t *testing.T) {
		xs := []float64{0, 0.5, 1, 1.5, 2}
		res := ExpCurve{X: xs, Y: ExpSamples(xs, 2, 0.5, 0.1, rng)}
		a, n := jacobians(res, manifold.Euclidean(2), []float64{1.3, 0.7})
		assert.Less(t, numdiff.Compare(a, n), 1e-5)
	})

	t.Run("weighted line", func(t *testing.T) {
		res := WeightedLine{Line: Line{X: []float64{0, 1, 2}, Y: []float64{1, 2, 4}}, W: []float64{1, 4, 0.25}}
		a, n := jacobians(res, manifold.Euclidean(2), []float64{0.3, -1})
		assert.Less(t, numdiff.Compare(a, n), 1e-5)
	})

	t.Run("atan", func(t *testing.T) {
		a, n := jacobians(Atan{}, manifold.Euclidean(1), []float64{1.7})
		assert.Less(t, numdiff.Compare(a, n), 1e-5)
	})

	for _, storage := range []Storage{MatrixStorage, QuatStorage} {
		pose := RandomPose(rng, 1, 2)
		x := storage.Encode(pose)

		t.Run("alignment", func(t *testing.T) {
			src := RandomPoints(rng, 6, manifold.Vec3{}, 2)
			res := PointAlignment{Src: src, Dst: Jitter(src, rng, 0.5), Storage: storage}
			a, n := jacobians(res, storage.Manifold(), x)
			assert.Less(t, numdiff.Compare(a, n), 1e-5)
		})

		t.Run("reprojection", func(t *testing.T) {
			pose := manifold.Pose{R: manifold.Exp(manifold.Vec3{0.1, -0.2, 0.05}), T: manifold.Vec3{0.2, -0.1, 0.3}}
			pts := RandomPoints(rng, 8, manifold.Vec3{0, 0, 5}, 1)
			res := Reprojection{Camera: cam, Points: pts, Pixels: Observe(cam, pose, pts), Storage: storage}
			a, n := jacobians(res, storage.Manifold(), storage.Encode(Perturb(pose, rng, 0.05, 0.1)))
			assert.Less(t, numdiff.Compare(a, n), 1e-4)
		})
	}
}

func TestExpSamples(t *testing.T) {
	xs := []float64{0, 1, 2}
	ys := ExpSamples(xs, 2, 0.5, 0, nil)
	assert.InDeltaSlice(t, []float64{2, 2 * math.Exp(0.5), 2 * math.E}, ys, 1e-12)

	a := ExpSamples(xs, 2, 0.5, 0.1, newRand(3))
	b := ExpSamples(xs, 2, 0.5, 0.1, newRand(3))
	assert.Equal(t, a, b)
	assert.NotEqual(t, ys, a)
}

func TestExpCurveFit(t *testing.T) {
	xs := make([]float64, 20)
	for i := range xs {
		xs[i] = 0.15 * float64(i)
	}
	res := ExpCurve{X: xs, Y: ExpSamples(xs, 2, 0.5, 0.01, newRand(4))}
	p := nlls.Problem{
		Manifold: manifold.Euclidean(2),
		Residual: res,
		Stop:     nlls.Termination{MaxIterations: 100, StepTolerance: 1e-10, CostTolerance: 1e-14},
	}
	opt, err := p.New(nlls.LevenbergMarquardt, nil)
	require.NoError(t, err)
	r, err := opt.Fit([]float64{1, 1})
	require.NoError(t, err)
	assert.True(t, r.OK, r.Status.String())
	assert.InDelta(t, 2, r.X[0], 0.05)
	assert.InDelta(t, 0.5, r.X[1], 0.02)
}

func TestAlignSVD(t *testing.T) {
	rng := newRand(5)

	t.Run("exact", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			truth := RandomPose(rng, math.Pi/2, 5)
			src := RandomPoints(rng, 10, manifold.Vec3{}, 3)
			got, err := AlignSVD(src, Transform(truth, src), nil)
			require.NoError(t, err)
			assertPose(t, truth, got, 1e-9)
		}
	})

	t.Run("reflection", func(t *testing.T) {
		// planar points admit a reflection with the same residual
		truth := RandomPose(rng, 1, 1)
		src := []manifold.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}, {2, -1, 0}}
		got, err := AlignSVD(src, Transform(truth, src), linalg.Dense{})
		require.NoError(t, err)
		assertPose(t, truth, got, 1e-9)
	})

	t.Run("degenerate", func(t *testing.T) {
		_, err := AlignSVD([]manifold.Vec3{{0, 0, 0}, {1, 0, 0}}, []manifold.Vec3{{0, 0, 0}, {1, 0, 0}}, nil)
		assert.ErrorIs(t, err, ErrDegenerate)

		line := []manifold.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
		_, err = AlignSVD(line, line, nil)
		assert.ErrorIs(t, err, ErrDegenerate)

		_, err = AlignSVD(line, line[:3], nil)
		assert.ErrorIs(t, err, linalg.ErrShape)
	})
}

// Case Sources : chapter 7.9 ICP solved by SVD and by nonlinear optimization
func TestPointAlignment(t *testing.T) {
	rng := newRand(6)
	truth := RandomPose(rng, 0.6, 2)
	src := RandomPoints(rng, 30, manifold.Vec3{}, 2)
	dst := Jitter(Transform(truth, src), rng, 0.01)

	closed, err := AlignSVD(src, dst, nil)
	require.NoError(t, err)

	for _, storage := range []Storage{MatrixStorage, QuatStorage} {
		for _, method := range []nlls.Method{nlls.GaussNewton, nlls.LevenbergMarquardt} {
			t.Run(method.String(), func(t *testing.T) {
				p := nlls.Problem{
					Manifold:  storage.Manifold(),
					Residual:  PointAlignment{Src: src, Dst: dst, Storage: storage},
					Stop:      nlls.Termination{MaxIterations: 50, StepTolerance: 1e-12, CostTolerance: 1e-16},
					BlockSize: 3,
				}
				opt, err := p.New(method, nil)
				require.NoError(t, err)
				r, err := opt.Fit(storage.Encode(manifold.IdentityPose()))
				require.NoError(t, err)
				assert.True(t, r.OK, r.Status.String())

				got := storage.Decode(r.X)
				// both minimize the same sum of squares
				assertPose(t, closed, got, 1e-6)
				assertPose(t, truth, got, 0.05)
			})
		}
	}
}

// Case Sources : chapter 7.7 PnP solved by bundle adjustment
func TestPnP(t *testing.T) {
	rng := newRand(7)
	truth := manifold.Pose{R: manifold.Exp(manifold.Vec3{0.05, -0.1, 0.08}), T: manifold.Vec3{0.3, -0.2, 0.4}}
	pts := RandomPoints(rng, 20, manifold.Vec3{0, 0, 5}, 1)
	pixels := Observe(cam, truth, pts)

	for _, storage := range []Storage{MatrixStorage, QuatStorage} {
		t.Run("exact", func(t *testing.T) {
			p := nlls.Problem{
				Manifold:  storage.Manifold(),
				Residual:  Reprojection{Camera: cam, Points: pts, Pixels: pixels, Storage: storage},
				Stop:      nlls.Termination{MaxIterations: 100, StepTolerance: 1e-12, CostTolerance: 1e-16},
				BlockSize: 2,
			}
			opt, err := p.New(nlls.LevenbergMarquardt, nil)
			require.NoError(t, err)
			r, err := opt.Fit(storage.Encode(manifold.IdentityPose()))
			require.NoError(t, err)
			assert.True(t, r.OK, r.Status.String())
			assert.Less(t, r.Cost, 1e-12)
			assertPose(t, truth, storage.Decode(r.X), 1e-6)
		})
	}
}

func TestObserve(t *testing.T) {
	uv := Observe(cam, manifold.IdentityPose(), []manifold.Vec3{{0, 0, 2}, {1, -1, 2}})
	assert.Equal(t, [2]float64{320, 240}, uv[0])
	assert.InDeltaSlice(t, []float64{570, -20}, uv[1][:], 1e-12)
}
