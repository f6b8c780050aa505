// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problems

import (
	"errors"
	"fmt"

	"github.com/curioloop/nlsq/linalg"
	"github.com/curioloop/nlsq/manifold"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerate is returned when a point configuration cannot determine a pose.
var ErrDegenerate = errors.New("problems: degenerate point configuration")

// Storage selects how a pose estimate is stored.
type Storage int

const (
	// MatrixStorage stores [t, R] and is parameterized by manifold.SE3.
	MatrixStorage Storage = iota
	// QuatStorage stores [t, q] and is parameterized by manifold.SE3Quat.
	QuatStorage
)

// Manifold returns the parameterization of the storage.
func (s Storage) Manifold() manifold.Parameterization {
	if s == QuatStorage {
		return manifold.SE3Quat{}
	}
	return manifold.SE3{}
}

// Encode returns p in the storage layout.
func (s Storage) Encode(p manifold.Pose) []float64 {
	if s == QuatStorage {
		return manifold.PoseQuat(p)
	}
	return manifold.PoseMatrix(p)
}

// Decode reads a pose from the storage layout.
func (s Storage) Decode(x []float64) manifold.Pose {
	if s == QuatStorage {
		return manifold.PoseFromQuat(x)
	}
	return manifold.PoseFromMatrix(x)
}

// poseJacobian writes d(𝐑p + 𝐭)/d[δt, ω] = [𝐈 | -𝐑[p]×] premultiplied by a (rows×3) into
// the block of jac starting at row.
func poseJacobian(jac *mat.Dense, row int, a [][3]float64, r manifold.Mat3, p manifold.Vec3) {
	rp := r.Mul(manifold.Skew(p))
	for i, ai := range a {
		for j := 0; j < 3; j++ {
			var rot float64
			for k := 0; k < 3; k++ {
				rot -= ai[k] * rp.At(k, j)
			}
			jac.Set(row+i, j, ai[j])
			jac.Set(row+i, 3+j, rot)
		}
	}
}

var identityRows = [][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// PointAlignment estimates the pose that maps Src onto Dst.
// Each correspondence contributes the 3-vector block 𝐑pᵢ + 𝐭 - qᵢ.
type PointAlignment struct {
	Src, Dst []manifold.Vec3
	Storage
}

// Size returns 3·len(Src).
func (a PointAlignment) Size() int { return 3 * len(a.Src) }

// Residual writes the alignment errors.
func (a PointAlignment) Residual(x, r []float64) {
	pose := a.Decode(x)
	for i, p := range a.Src {
		e := pose.Transform(p).Sub(a.Dst[i])
		copy(r[3*i:3*i+3], e[:])
	}
}

// Jacobian writes the [𝐈 | -𝐑[pᵢ]×] blocks.
func (a PointAlignment) Jacobian(x []float64, jac *mat.Dense) {
	pose := a.Decode(x)
	for i, p := range a.Src {
		poseJacobian(jac, 3*i, identityRows, pose.R, p)
	}
}

// AlignSVD computes the least-squares rigid transform from src to dst in closed form.
//
// With centered point sets the cross covariance 𝐇 = Σ(pᵢ - p̄)(qᵢ - q̄)ᵀ = 𝐔𝚺𝐕ᵀ gives
//
//	𝐑 = 𝐕·𝚍𝚒𝚊𝚐(1, 1, 𝚍𝚎𝚝(𝐕𝐔ᵀ))·𝐔ᵀ,  𝐭 = q̄ - 𝐑p̄
//
// # Reference:
//
//   - W. Kabsch: "A solution for the best rotation to relate two sets of vectors", 1976.
func AlignSVD(src, dst []manifold.Vec3, provider linalg.Provider) (manifold.Pose, error) {
	if len(src) != len(dst) {
		return manifold.Pose{}, fmt.Errorf("align %d points to %d: %w", len(src), len(dst), linalg.ErrShape)
	}
	if len(src) < 3 {
		return manifold.Pose{}, fmt.Errorf("align %d points: %w", len(src), ErrDegenerate)
	}
	if provider == nil {
		provider = linalg.Dense{}
	}

	ps, qs := centroid(src), centroid(dst)
	h := mat.NewDense(3, 3, nil)
	for i := range src {
		p, q := src[i].Sub(ps), dst[i].Sub(qs)
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				h.Set(j, k, h.At(j, k)+p[j]*q[k])
			}
		}
	}

	u, v, s, err := provider.SVD(h)
	if err != nil {
		return manifold.Pose{}, fmt.Errorf("align: %w", err)
	}
	if s[1] <= 1e-12*s[0] {
		return manifold.Pose{}, fmt.Errorf("align: rank %v: %w", s, ErrDegenerate)
	}

	var r mat.Dense
	r.Mul(v, u.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(v, u.T())
	}

	var pose manifold.Pose
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pose.R[3*i+j] = r.At(i, j)
		}
	}
	pose.T = qs.Sub(pose.R.MulVec(ps))
	return pose, nil
}

func centroid(pts []manifold.Vec3) (c manifold.Vec3) {
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(pts)))
}
