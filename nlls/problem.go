// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlls implements Gauss-Newton and Levenberg-Marquardt solvers for
// nonlinear least-squares problems
//
//	min Σᵢ wᵢ‖𝐫ᵢ(𝐱)‖²
//
// whose parameters may live on a manifold (rotations, rigid poses). Each
// iteration linearizes the residual in the tangent space, solves the normal
// equations through a linalg.Provider and moves the estimate with the
// parameterization's retraction.
package nlls

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/curioloop/nlsq/linalg"
	"github.com/curioloop/nlsq/manifold"
	"github.com/curioloop/nlsq/robust"
)

// Method selects the solver.
type Method int

const (
	// GaussNewton solves 𝐉ᵀ𝐉δ = -𝐉ᵀ𝐫 and always takes the full step.
	// It assumes a well-conditioned problem and an initial estimate near a minimum.
	GaussNewton Method = iota
	// LevenbergMarquardt damps the normal equations and only accepts steps that decrease the cost.
	LevenbergMarquardt
)

func (m Method) String() string {
	switch m {
	case GaussNewton:
		return "Gauss-Newton"
	case LevenbergMarquardt:
		return "Levenberg-Marquardt"
	default:
		return "Unknown"
	}
}

// Termination specifies the stopping criteria for the optimization algorithm.
type Termination struct {
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int
	// The iteration will stop when the increment satisfied:
	//   ‖ δₖ ‖₂ < 𝚡𝚝𝚘𝚕
	StepTolerance float64
	// The iteration will stop when the cost satisfied:
	//   | fₖ - fₖ₊₁ | < 𝚏𝚝𝚘𝚕
	CostTolerance float64
	// The iteration stop when the wall-clock time spent exceeds limit (zero means unlimited).
	MaxDuration time.Duration
}

// DampMode selects the matrix added to the normal equations by Levenberg-Marquardt.
type DampMode int

const (
	// DampIdentity solves (𝐇 + λ𝐈)δ = 𝐠.
	DampIdentity DampMode = iota
	// DampDiagonal solves (𝐇 + λ·𝚍𝚒𝚊𝚐(𝐇))δ = 𝐠, which is invariant to parameter scaling.
	DampDiagonal
)

// Damping configures the Levenberg-Marquardt damping schedule.
// Zero fields take the default values.
type Damping struct {
	Mode DampMode
	// Initial λ₀ of every run (default 1e-3).
	Initial float64
	// λ is divided by Factor after an accepted step and multiplied by it after a rejection (default 2).
	Factor float64
	// Lower clamp of λ after acceptance (default min(1e-12, Initial)).
	Min float64
	// The run diverges once λ exceeds Max (default 1e12).
	Max float64
	// The run stops after that many consecutive rejections (default 50).
	MaxRejections int
}

// DefaultDamping returns the default damping schedule.
func DefaultDamping() Damping {
	return Damping{
		Mode:          DampIdentity,
		Initial:       1e-3,
		Factor:        2,
		Min:           1e-12,
		Max:           1e12,
		MaxRejections: 50,
	}
}

// Problem specifies a nonlinear least-squares problem.
type Problem struct {
	Manifold manifold.Parameterization // Parameterization of the estimate (required)
	Residual Residual                  // Residual function; a numeric Jacobian is used unless it implements Jacobian
	Stop     Termination               // Stop condition
	Kernel   robust.Kernel             // Optional robust kernel
	// Number of consecutive residual entries forming one observation (default 1).
	// The robust weight is computed from the norm of each block.
	BlockSize int
	Damping   *Damping        // Optional Levenberg-Marquardt damping config
	Provider  linalg.Provider // Optional linear solver (default linalg.Dense)
	// Fall back to the SVD minimum-norm solution when the normal equations are singular.
	Pseudo bool
}

// New creates a new optimizer for given problem.
func (p *Problem) New(method Method, logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	log := *logger
	if log.Msg == nil {
		log.Msg = os.Stdout
	}
	if log.Out == nil {
		log.Out = io.Discard
	}

	damp := DefaultDamping()
	if p.Damping != nil {
		d := *p.Damping
		damp.Mode = d.Mode
		if d.Initial != 0 {
			damp.Initial = d.Initial
		}
		if d.Factor != 0 {
			damp.Factor = d.Factor
		}
		if d.Min != 0 {
			damp.Min = d.Min
		} else {
			damp.Min = min(damp.Min, damp.Initial)
		}
		if d.Max != 0 {
			damp.Max = d.Max
		}
		if d.MaxRejections != 0 {
			damp.MaxRejections = d.MaxRejections
		}
	}

	stop := p.Stop
	bs := max(p.BlockSize, 1)
	kernel := p.Kernel
	if kernel == nil {
		kernel = robust.Trivial{}
	}
	provider := p.Provider
	if provider == nil {
		provider = linalg.Dense{}
	}

	switch {
	case method != GaussNewton && method != LevenbergMarquardt:
		err = errors.New("unknown method")
	case p.Manifold == nil:
		err = errors.New("manifold is required")
	case p.Residual == nil:
		err = errors.New("residual function is required")
	case p.Residual.Size() <= 0:
		err = errors.New("residual size must greater than 0")
	case p.Residual.Size()%bs != 0:
		err = errors.New("residual size must be a multiple of block size")
	case p.Residual.Size() < p.Manifold.LocalDim() && !p.Pseudo:
		err = errors.New("residual size must not less than tangent dimension")
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 0")
	case math.IsNaN(stop.StepTolerance) || stop.StepTolerance < 0:
		err = errors.New("step tolerance must not less than 0")
	case math.IsNaN(stop.CostTolerance) || stop.CostTolerance < 0:
		err = errors.New("cost tolerance must not less than 0")
	case stop.MaxDuration < 0:
		err = errors.New("max duration must not less than 0")
	case !(damp.Initial > 0):
		err = errors.New("initial damping must greater than 0")
	case !(damp.Factor > 1):
		err = errors.New("damping factor must greater than 1")
	case !(damp.Min >= 0) || damp.Min > damp.Initial:
		err = errors.New("minimal damping must within [0, initial]")
	case !(damp.Max > damp.Initial):
		err = errors.New("maximal damping must greater than initial")
	case damp.MaxRejections < 0:
		err = errors.New("max rejections must not less than 0")
	case damp.Mode != DampIdentity && damp.Mode != DampDiagonal:
		err = errors.New("unknown damping mode")
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidProblem, err)
		return
	}

	res, ok := p.Residual.(Jacobian)
	if !ok {
		res = NumericJacobian(p.Residual, p.Manifold)
	}

	optimizer = &Optimizer{
		method:   method,
		manifold: p.Manifold,
		residual: res,
		monitor: Monitor{
			MaxIterations: stop.MaxIterations,
			StepTolerance: stop.StepTolerance,
			CostTolerance: stop.CostTolerance,
		},
		timeout:  stop.MaxDuration,
		kernel:   kernel,
		block:    bs,
		damping:  damp,
		provider: provider,
		pseudo:   p.Pseudo,
		logger:   log,
	}
	return
}

// Optimizer is an immutable solver configuration.
// Fit may be called concurrently since each run owns its state.
type Optimizer struct {
	method   Method
	manifold manifold.Parameterization
	residual Jacobian
	monitor  Monitor
	timeout  time.Duration
	kernel   robust.Kernel
	block    int
	damping  Damping
	provider linalg.Provider
	pseudo   bool
	logger   Logger
}

// Record is the diagnostic entry of one trial step.
type Record struct {
	Iter     int     // Iteration index, starting from 1.
	Cost     float64 // Cost of the trial estimate.
	StepNorm float64 // ‖δ‖₂ of the increment.
	Accepted bool    // Whether the estimate moved.
	Lambda   float64 // Damping used to compute the step (zero for Gauss-Newton).
}

// Result contains the final result of the optimization process.
type Result struct {
	OK      bool      // Whether the optimization was converged.
	Outcome Outcome   // Outcome category.
	X       []float64 // Final estimate in storage coordinates.
	Cost    float64   // Cost Σ w‖𝐫‖² at X.
	Log     []Record  // One record per trial step.
	Summary           // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status        Status        // Final status after optimization.
	NumIter       int           // Number of iterations performed.
	NumEval       int           // Number of residual evaluations.
	NumJac        int           // Number of Jacobian evaluations.
	NumReject     int           // Number of rejected Levenberg-Marquardt steps.
	NumNonDescent int           // Number of Gauss-Newton steps that increased the cost.
	Lambda        float64       // Final damping.
	Elapsed       time.Duration // Wall-clock time of the run.
}

// Method returns the solver kind.
func (o *Optimizer) Method() Method { return o.method }

// Fit runs the optimization process from the initial estimate x0, which is not modified.
//
// The returned result is never nil once x0 has been accepted: on a fatal error
// (ErrEvaluation, or linalg.ErrSingularSystem for Gauss-Newton) it carries the
// last valid estimate.
func (o *Optimizer) Fit(x0 []float64) (*Result, error) {

	if len(x0) != o.manifold.Dim() {
		return nil, fmt.Errorf("%w: initial x dimension %d does not match %d", ErrInvalidProblem, len(x0), o.manifold.Dim())
	}

	d := fitDriver{
		optimizer: o,
		start:     time.Now(),
		cur:       &location{x: slices.Clone(x0)},
	}

	var status Status
	var err error
	if o.method == GaussNewton {
		status, err = d.gaussNewton()
	} else {
		status, err = d.levenbergMarquardt()
	}

	d.sum.Status = status
	d.sum.NumIter = d.iter
	d.sum.Lambda = d.lambda
	d.sum.Elapsed = time.Since(d.start)
	d.printExit(status, err)

	return &Result{
		OK:      status.Outcome() == Converged,
		Outcome: status.Outcome(),
		X:       d.cur.x,
		Cost:    d.cur.cost,
		Log:     d.records,
		Summary: d.sum,
	}, err
}
