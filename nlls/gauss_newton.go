// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type gnState int

const (
	gnInit gnState = iota
	gnEvaluate
	gnLinearSolve
	gnRetract
	gnCheck
	gnTerminated
)

// gaussNewton iterates
//
//	𝐉ᵀ𝐖𝐉 δ = -𝐉ᵀ𝐖𝐫,  𝐱ₖ₊₁ = 𝐱ₖ ⊞ δ
//
// taking every step in full. A step that increases the cost is counted in
// Summary.NumNonDescent but still taken; a singular system is fatal.
func (d *fitDriver) gaussNewton() (status Status, err error) {

	o := d.optimizer

	var (
		state = gnInit
		h     *mat.SymDense
		g     *mat.VecDense
		step  []float64
		next  *location
	)

	for state != gnTerminated {
		switch state {

		case gnInit:
			d.iter = 0
			d.printInit()
			next, status = d.nextLocation(d.cur.x)
			if next != nil {
				d.cur = next
			} else {
				d.cur.cost = math.NaN()
			}
			if status != Continue {
				state = gnTerminated
				break
			}
			state = gnEvaluate

		case gnEvaluate:
			if status = d.linearize(d.cur); status != Continue {
				state = gnTerminated
				break
			}
			h, g = normalEquations(d.cur)
			d.iter++
			state = gnLinearSolve

		case gnLinearSolve:
			var e error
			if step, e = d.solve(h, g); e != nil {
				err = fmt.Errorf("gauss-newton iteration %d: %w", d.iter, e)
				status = HaltSingular
				state = gnTerminated
				break
			}
			state = gnRetract

		case gnRetract:
			next, status = d.nextLocation(d.optimizer.manifold.Retract(d.cur.x, step))
			if status == HaltNonFinite {
				d.record(Record{Iter: d.iter, Cost: next.cost, StepNorm: floats.Norm(step, 2)})
			}
			if status != Continue {
				state = gnTerminated
				break
			}
			state = gnCheck

		case gnCheck:
			prev := d.cur.cost
			if next.cost > prev {
				d.sum.NumNonDescent++
			}
			d.cur = next
			d.record(Record{Iter: d.iter, Cost: next.cost, StepNorm: floats.Norm(step, 2), Accepted: true})
			if status = o.monitor.Check(prev, next.cost, step, d.iter); status != Continue {
				state = gnTerminated
				break
			}
			state = gnEvaluate
		}
	}

	if status == HaltEvalPanic {
		err = d.evalErr
	}
	return
}
