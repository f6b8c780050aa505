// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Monitor is the stateless stopping policy shared by both solvers.
type Monitor struct {
	MaxIterations int
	StepTolerance float64
	CostTolerance float64
}

// Check decides whether to stop after iteration iter (counted from 1)
// moved the cost from prevCost to newCost with the increment step.
//
// The criteria are tested in order:
//
//	‖δ‖₂ < 𝚡𝚝𝚘𝚕         → ConvergedBySmallStep
//	|fₖ - fₖ₊₁| < 𝚏𝚝𝚘𝚕  → ConvergedBySmallCostChange
//	k ≥ 𝚖𝚊𝚡𝚒𝚝𝚎𝚛          → OverIterLimit
func (m Monitor) Check(prevCost, newCost float64, step []float64, iter int) Status {
	switch {
	case floats.Norm(step, 2) < m.StepTolerance:
		return ConvergedBySmallStep
	case math.Abs(prevCost-newCost) < m.CostTolerance:
		return ConvergedBySmallCostChange
	case iter >= m.MaxIterations:
		return OverIterLimit
	}
	return Continue
}
