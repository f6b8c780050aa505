// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import "errors"

var (
	// ErrInvalidProblem wraps every configuration error reported by Problem.New and Optimizer.Fit.
	ErrInvalidProblem = errors.New("nlls: invalid problem")
	// ErrEvaluation is returned when the residual or Jacobian callback panics.
	ErrEvaluation = errors.New("nlls: residual evaluation failed")
)

// Outcome is the coarse result category of one Fit.
type Outcome int

const (
	// Converged the step size or the cost change fell below tolerance.
	Converged Outcome = iota
	// MaxIterationsExceeded an iteration, rejection or time budget ran out; the best estimate is returned.
	MaxIterationsExceeded
	// DivergenceDetected the cost became non-finite, the damping overflowed,
	// or no linear solve was possible.
	DivergenceDetected
)

func (o Outcome) String() string {
	switch o {
	case Converged:
		return "Converged"
	case MaxIterationsExceeded:
		return "MaxIterationsExceeded"
	case DivergenceDetected:
		return "DivergenceDetected"
	default:
		return "Unknown"
	}
}

// Status is the detailed reason a solver stopped.
type Status int

const (
	// Continue no stopping criterion is met.
	Continue Status = iota
	// ConvergedBySmallStep ‖δ‖ fell below Termination.StepTolerance.
	ConvergedBySmallStep
	// ConvergedBySmallCostChange |fₖ - fₖ₊₁| fell below Termination.CostTolerance.
	ConvergedBySmallCostChange
	// OverIterLimit the number of iterations reached Termination.MaxIterations.
	OverIterLimit
	// OverRejectLimit too many consecutive rejected LM steps.
	OverRejectLimit
	// OverTimeLimit the wall-clock time exceeded Termination.MaxDuration.
	OverTimeLimit
	// OverDampLimit the LM damping grew beyond Damping.Max.
	OverDampLimit
	// HaltNonFinite the cost evaluated to NaN or ±Inf.
	HaltNonFinite
	// HaltSingular the Gauss-Newton normal equations could not be solved.
	HaltSingular
	// HaltEvalPanic the residual or Jacobian callback panicked.
	HaltEvalPanic
)

// Outcome maps a terminal status to its outcome category.
func (s Status) Outcome() Outcome {
	switch s {
	case ConvergedBySmallStep, ConvergedBySmallCostChange:
		return Converged
	case OverIterLimit, OverRejectLimit, OverTimeLimit:
		return MaxIterationsExceeded
	default:
		return DivergenceDetected
	}
}

func (s Status) String() string {
	switch s {
	case Continue:
		return "CONTINUE"
	case ConvergedBySmallStep:
		return "CONVERGENCE: NORM_OF_STEP_<=_XTOL"
	case ConvergedBySmallCostChange:
		return "CONVERGENCE: COST_CHANGE_<=_FTOL"
	case OverIterLimit:
		return "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case OverRejectLimit:
		return "STOP: TOTAL NO. of CONSECUTIVE REJECTIONS REACHED LIMIT"
	case OverTimeLimit:
		return "STOP: TIME LIMIT EXCEEDED"
	case OverDampLimit:
		return "ABNORMAL_TERMINATION: DAMPING EXCEEDS LIMIT"
	case HaltNonFinite:
		return "ABNORMAL_TERMINATION: NON-FINITE COST"
	case HaltSingular:
		return "ABNORMAL_TERMINATION: SINGULAR NORMAL EQUATIONS"
	case HaltEvalPanic:
		return "STOP: CALLBACK REQUESTED HALT"
	default:
		return "UNKNOWN TASK"
	}
}
