// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlls

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorCheck(t *testing.T) {
	m := Monitor{MaxIterations: 10, StepTolerance: 1e-8, CostTolerance: 1e-6}

	for _, tc := range []struct {
		name       string
		prev, next float64
		step       []float64
		iter       int
		want       Status
	}{
		{"progress", 10, 5, []float64{1, 1}, 1, Continue},
		{"small step", 10, 5, []float64{1e-9, 0}, 1, ConvergedBySmallStep},
		{"small cost change", 1, 1 - 1e-7, []float64{0.1}, 3, ConvergedBySmallCostChange},
		{"cost increase counts as change", 1, 2, []float64{0.1}, 3, Continue},
		{"budget", 10, 5, []float64{1}, 10, OverIterLimit},
		// step is tested before cost, cost before budget
		{"step before cost", 1, 1, []float64{0}, 10, ConvergedBySmallStep},
		{"cost before budget", 1, 1, []float64{1}, 10, ConvergedBySmallCostChange},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Check(tc.prev, tc.next, tc.step, tc.iter))
		})
	}

	// zero tolerances never report convergence
	z := Monitor{MaxIterations: 3}
	assert.Equal(t, Continue, z.Check(1, 1, []float64{0}, 1))
	assert.Equal(t, OverIterLimit, z.Check(1, 1, []float64{0}, 3))
}

func TestStatusOutcome(t *testing.T) {
	for s, want := range map[Status]Outcome{
		ConvergedBySmallStep:       Converged,
		ConvergedBySmallCostChange: Converged,
		OverIterLimit:              MaxIterationsExceeded,
		OverRejectLimit:            MaxIterationsExceeded,
		OverTimeLimit:              MaxIterationsExceeded,
		OverDampLimit:              DivergenceDetected,
		HaltNonFinite:              DivergenceDetected,
		HaltSingular:               DivergenceDetected,
		HaltEvalPanic:              DivergenceDetected,
	} {
		assert.Equal(t, want, s.Outcome(), s.String())
		assert.NotEqual(t, "UNKNOWN TASK", s.String())
	}
	assert.Equal(t, "DivergenceDetected", DivergenceDetected.String())
}
