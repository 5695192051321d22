//go:build property
// +build property

package governance_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

// TestRecalibrationNeverLowersGoals verifies newGoal ≥ goal for every ratchet outcome.
func TestRecalibrationNeverLowersGoals(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("ratchet never lowers a goal", prop.ForAll(
		func(value, goal float64) bool {
			next, _ := governance.Ratchet(value, goal)
			return next >= goal
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("plans never lower goals", prop.ForAll(
		func(values, goals []float64) bool {
			rec := planning.GovernanceRecord{KPIs: map[string]planning.KPIResult{}}
			for i := 0; i < len(values) && i < len(goals); i++ {
				metric := string(rune('a' + i%26))
				rec.KPIs[metric] = planning.KPIResult{Metric: metric, Value: values[i], Goal: goals[i]}
			}
			plan := governance.Recalibrate(rec, nil, nil)
			for _, adj := range plan.GoalAdjustments {
				if adj.New < adj.Previous {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1e4)),
		gen.SliceOf(gen.Float64Range(0, 1e4)),
	))

	properties.TestingRun(t)
}
