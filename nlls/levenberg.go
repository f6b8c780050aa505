// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type lmState int

const (
	lmInit lmState = iota
	lmEvaluate
	lmLinearSolve
	lmTrialRetract
	lmAcceptOrReject
	lmDecrease
	lmIncrease
	lmCheck
	lmTerminated
)

// dampen returns 𝐇 + λ𝐈 or 𝐇 + λ·𝚍𝚒𝚊𝚐(𝐇) as a new matrix.
func dampen(h *mat.SymDense, lambda float64, mode DampMode) *mat.SymDense {
	n := h.SymmetricDim()
	a := mat.NewSymDense(n, nil)
	a.CopySym(h)
	for i := 0; i < n; i++ {
		v := a.At(i, i)
		if mode == DampDiagonal {
			a.SetSym(i, i, v+lambda*v)
		} else {
			a.SetSym(i, i, v+lambda)
		}
	}
	return a
}

// levenbergMarquardt iterates
//
//	(𝐇 + λ𝐃) δ = 𝐠,  𝐱ₖ₊₁ = 𝐱ₖ ⊞ δ  if f(𝐱ₖ ⊞ δ) < f(𝐱ₖ)
//
// An accepted step divides λ by the damping factor, a rejected step (including a
// singular damped system or a non-finite trial cost) multiplies it and solves again
// with the same linearization.
//
// # Reference:
//
//   - K. Madsen, H.B. Nielsen, O. Tingleff: "Methods for Non-Linear Least Squares Problems", 2004.
func (d *fitDriver) levenbergMarquardt() (status Status, err error) {

	o := d.optimizer
	damp := o.damping

	var (
		state   = lmInit
		rejects int
		h       *mat.SymDense
		g       *mat.VecDense
		step    []float64
		trial   *location
		prev    float64
	)

	for state != lmTerminated {
		switch state {

		case lmInit:
			d.iter = 0
			d.lambda = damp.Initial
			d.printInit()
			trial, status = d.nextLocation(d.cur.x)
			if trial != nil {
				d.cur = trial
			} else {
				d.cur.cost = math.NaN()
			}
			if status != Continue {
				state = lmTerminated
				break
			}
			state = lmEvaluate

		case lmEvaluate:
			if status = d.linearize(d.cur); status != Continue {
				state = lmTerminated
				break
			}
			h, g = normalEquations(d.cur)
			d.iter++
			state = lmLinearSolve

		case lmLinearSolve:
			var e error
			if step, e = d.solve(dampen(h, d.lambda, damp.Mode), g); e != nil {
				d.record(Record{Iter: d.iter, Cost: math.NaN(), Lambda: d.lambda})
				step = nil
				state = lmIncrease
				break
			}
			state = lmTrialRetract

		case lmTrialRetract:
			trial, status = d.nextLocation(o.manifold.Retract(d.cur.x, step))
			switch status {
			case Continue, HaltNonFinite:
				status = Continue
				state = lmAcceptOrReject
			default:
				state = lmTerminated
			}

		case lmAcceptOrReject:
			ok := trial.cost < d.cur.cost
			d.record(Record{Iter: d.iter, Cost: trial.cost, StepNorm: floats.Norm(step, 2), Accepted: ok, Lambda: d.lambda})
			if ok {
				state = lmDecrease
			} else {
				state = lmIncrease
			}

		case lmDecrease:
			prev = d.cur.cost
			d.cur = trial
			rejects = 0
			d.lambda = math.Max(d.lambda/damp.Factor, damp.Min)
			state = lmCheck

		case lmIncrease:
			d.sum.NumReject++
			rejects++
			d.lambda *= damp.Factor
			switch {
			case d.lambda > damp.Max:
				status = OverDampLimit
			case rejects > damp.MaxRejections:
				status = OverRejectLimit
			case step != nil && floats.Norm(step, 2) < o.monitor.StepTolerance:
				// the damped step is too small to make further progress
				status = ConvergedBySmallStep
			case d.overTime():
				status = OverTimeLimit
			}
			if status != Continue {
				state = lmTerminated
				break
			}
			state = lmLinearSolve

		case lmCheck:
			if status = o.monitor.Check(prev, d.cur.cost, step, d.iter); status != Continue {
				state = lmTerminated
				break
			}
			state = lmEvaluate
		}
	}

	if status == HaltEvalPanic {
		err = d.evalErr
	}
	return
}
