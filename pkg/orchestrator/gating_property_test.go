//go:build property
// +build property

package orchestrator

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

var severities = []planning.Severity{
	planning.SeverityCritical,
	planning.SeverityHigh,
	planning.SeverityMedium,
	planning.SeverityLow,
}

func reportOf(picks []int) planning.GapReport {
	r := planning.GapReport{}
	for _, p := range picks {
		r.Gaps = append(r.Gaps, planning.Gap{Severity: severities[p]})
	}
	r.HealthScore = HealthScore(r.Gaps)
	r.CriticalCount = len(r.Critical())
	return r
}

// TestGatingProperties verifies that no report with a critical gap ever
// passes the gate and that the health score stays within [0, 100].
func TestGatingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	readiness, err := NewReadiness("")
	if err != nil {
		t.Fatal(err)
	}

	properties.Property("health score is bounded", prop.ForAll(
		func(picks []int) bool {
			s := reportOf(picks).HealthScore
			return s >= 0 && s <= 100
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("critical gaps always block", prop.ForAll(
		func(picks []int) bool {
			r := reportOf(picks)
			ready, err := readiness.Evaluate(r)
			if err != nil {
				return false
			}
			r.Ready = ready
			gate := gatingFailure(r)
			if r.CriticalCount > 0 {
				return gate != nil && len(gate.Gaps) == r.CriticalCount
			}
			return (gate == nil) == ready
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("adding a gap never raises the score", prop.ForAll(
		func(picks []int, extra int) bool {
			before := reportOf(picks).HealthScore
			after := reportOf(append(append([]int(nil), picks...), extra)).HealthScore
			return after <= before
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
