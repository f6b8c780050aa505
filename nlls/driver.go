// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/curioloop/nlsq/robust"
	"gonum.org/v1/gonum/mat"
)

// location is one evaluated estimate.
type location struct {
	x    []float64  // estimate in storage coordinates
	raw  []float64  // residual 𝐫(𝐱)
	r    []float64  // weighted residual √w·𝐫
	cost float64    // Σ w‖𝐫‖²
	jac  *mat.Dense // weighted Jacobian √w·𝐉, nil until linearized
}

// fitDriver owns the state of one Fit call.
type fitDriver struct {
	optimizer *Optimizer
	start     time.Time
	cur       *location
	iter      int
	lambda    float64
	records   []Record
	sum       Summary
	evalErr   error
}

func (d *fitDriver) overTime() bool {
	o := d.optimizer
	return o.timeout > 0 && time.Since(d.start) >= o.timeout
}

// guard runs a user callback and converts a panic into HaltEvalPanic.
func (d *fitDriver) guard(call func()) (status Status) {
	status = Continue
	defer func() {
		if r := recover(); r != nil {
			d.evalErr = fmt.Errorf("%w: %v", ErrEvaluation, r)
			status = HaltEvalPanic
		}
	}()
	call()
	return
}

// nextLocation evaluates the residual and the robust cost at x.
// The location is nil when the time budget is spent or the callback panicked;
// a non-finite cost yields the location together with HaltNonFinite.
func (d *fitDriver) nextLocation(x []float64) (*location, Status) {
	o := d.optimizer
	if d.overTime() {
		return nil, OverTimeLimit
	}
	loc := &location{x: x, raw: make([]float64, o.residual.Size())}
	if status := d.guard(func() { o.residual.Residual(x, loc.raw) }); status != Continue {
		return nil, status
	}
	d.sum.NumEval++

	loc.r = slices.Clone(loc.raw)
	robust.Reweight(o.kernel, o.block, loc.r, nil)
	loc.cost = robust.Cost(o.kernel, o.block, loc.raw)
	if math.IsNaN(loc.cost) || math.IsInf(loc.cost, 0) {
		return loc, HaltNonFinite
	}
	return loc, Continue
}

// linearize evaluates the Jacobian at loc and applies the robust weights of loc's residual.
func (d *fitDriver) linearize(loc *location) Status {
	o := d.optimizer
	if d.overTime() {
		return OverTimeLimit
	}
	jac := mat.NewDense(len(loc.raw), o.manifold.LocalDim(), nil)
	if status := d.guard(func() { o.residual.Jacobian(loc.x, jac) }); status != Continue {
		return status
	}
	d.sum.NumJac++
	robust.Reweight(o.kernel, o.block, slices.Clone(loc.raw), jac)
	loc.jac = jac
	return Continue
}

// normalEquations forms 𝐇 = 𝐉ᵀ𝐖𝐉 and 𝐠 = -𝐉ᵀ𝐖𝐫 from the weighted linearization.
func normalEquations(loc *location) (*mat.SymDense, *mat.VecDense) {
	_, n := loc.jac.Dims()
	h := mat.NewSymDense(n, nil)
	h.SymOuterK(1, loc.jac.T())
	g := mat.NewVecDense(n, nil)
	g.MulVec(loc.jac.T(), mat.NewVecDense(len(loc.r), loc.r))
	g.ScaleVec(-1, g)
	return h, g
}

// solve tries Cholesky, then LU, then (optionally) the SVD minimum-norm solution.
func (d *fitDriver) solve(a mat.Symmetric, g *mat.VecDense) ([]float64, error) {
	o := d.optimizer
	var dst mat.VecDense
	err := o.provider.SolveSPD(a, g, &dst)
	if err != nil {
		err = o.provider.SolveGeneral(a, g, &dst)
	}
	if err != nil && o.pseudo {
		err = o.provider.SolveMinNorm(a, g, &dst)
	}
	if err != nil {
		return nil, err
	}
	step := make([]float64, dst.Len())
	for i := range step {
		step[i] = dst.AtVec(i)
	}
	return step, nil
}

func (d *fitDriver) record(rec Record) {
	d.records = append(d.records, rec)
	d.printIter(rec)
}

// printInit logs the problem dimensions and the initial estimate.
func (d *fitDriver) printInit() {

	o := d.optimizer
	log := o.logger

	if log.enable(LogLast) {
		log.log("RUNNING THE %s CODE\n", o.method)
		log.log("           * * *\n")
		log.log("N = %d    D = %d    M = %d\n", o.manifold.Dim(), o.manifold.LocalDim(), o.residual.Size())
		if o.method == LevenbergMarquardt {
			log.log("Lambda = %10.3e    Factor = %g\n", o.damping.Initial, o.damping.Factor)
		}

		if log.enable(LogEval) {
			log.out("RUNNING THE %s CODE\n\n", o.method)
			log.out("\n   it   nf   nj        cost       |step|     lambda  acc\n")

			if log.enable(LogVerbose) {
				log.vec("X0", d.cur.x)
			}
		}
	}
}

// printIter logs one trial step.
func (d *fitDriver) printIter(rec Record) {

	log := d.optimizer.logger

	acc := "rej"
	if rec.Accepted {
		acc = "acc"
	}

	if log.enable(LogTrace) {
		log.log("At iterate %5d    cost= %12.5e    |step|= %12.5e    lambda= %9.2e    %s\n",
			rec.Iter, rec.Cost, rec.StepNorm, rec.Lambda, acc)
		if log.enable(LogVerbose) && rec.Accepted {
			log.vec("X", d.cur.x)
		}
	} else if log.enable(LogEval) && rec.Accepted {
		if rec.Iter%int(log.Level) == 0 {
			log.log("At iterate %5d    cost= %12.5e    |step|= %12.5e\n", rec.Iter, rec.Cost, rec.StepNorm)
		}
	}

	if log.enable(LogEval) {
		log.out("%5d %4d %4d %12.5e %10.3e %10.3e  %s\n",
			rec.Iter, d.sum.NumEval, d.sum.NumJac, rec.Cost, rec.StepNorm, rec.Lambda, acc)
	}
}

// printExit logs the final statistics and exit conditions of the optimization process.
func (d *fitDriver) printExit(status Status, err error) {

	o := d.optimizer
	log := o.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit   = total number of iterations\n")
	log.log("Tnf   = total number of residual evaluations\n")
	log.log("Tnj   = total number of Jacobian evaluations\n")
	log.log("Rej   = number of rejected steps\n")
	log.log("Asc   = number of ascent steps taken\n")
	log.log("F     = final cost\n")
	log.log("\n           * * *\n")
	log.log("\n   N      Tit      Tnf    Tnj    Rej    Asc        F\n")
	log.log("%5d %6d %7d %6d %6d %6d %9.5e\n",
		o.manifold.Dim(), d.iter, d.sum.NumEval, d.sum.NumJac, d.sum.NumReject, d.sum.NumNonDescent, d.cur.cost)

	if log.enable(LogVerbose) {
		log.vec("X", d.cur.x)
	}
	if o.method == LevenbergMarquardt && log.enable(LogEval) {
		log.log(" Lambda = %.3e\n", d.lambda)
	}

	log.log("\n%s\n", status)
	if err != nil {
		log.log("\n %v\n", err)
	}
	log.log("\n Total User time: %s\n", formatDuration(d.sum.Elapsed))
}
