package orchestrator

import (
	"fmt"
	"math"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Bands that turn observed numbers into directional evidence.
const (
	strongVaultScore  = 70.0
	weakVaultScore    = 50.0
	strongExecution   = 90.0
	weakExecution     = 70.0
	strongAchievement = 100.0
	weakAchievement   = 80.0
	neutralStrength   = 0.5
	keyDatesForFull   = 3.0
)

// signals gathers one piece of evidence per source, plus one performance
// signal per non-stable KPI trend.
func (o *Orchestrator) signals(rec planning.GovernanceRecord, plan planning.RecalibrationPlan) []weights.Signal {
	var out []weights.Signal

	if len(o.state.VaultAnalyses) > 0 {
		var sum float64
		for _, a := range o.state.VaultAnalyses {
			sum += a.Score
		}
		avg := sum / float64(len(o.state.VaultAnalyses))
		out = append(out, banded(weights.SourceVaults, avg, strongVaultScore, weakVaultScore,
			fmt.Sprintf("average vault score %.0f", avg)))
	}

	if rs := rec.RoadmapSummary; rs.Total > 0 {
		out = append(out, banded(weights.SourceGovernanca, rs.ExecutionRate, strongExecution, weakExecution,
			fmt.Sprintf("roadmap execution %.0f%% (%d/%d done)", rs.ExecutionRate, rs.Done, rs.Total)))
	}

	var achieved float64
	var measured int
	for _, k := range rec.KPIs {
		if k.Goal > 0 {
			achieved += k.Achievement
			measured++
		}
	}
	if measured > 0 {
		avg := achieved / float64(measured)
		out = append(out, banded(weights.SourcePerformance, avg, strongAchievement, weakAchievement,
			fmt.Sprintf("average KPI achievement %.0f%%", avg)))
	}

	for _, t := range plan.Trends {
		var dir weights.Direction
		switch t.Direction {
		case planning.TrendIncreasing:
			dir = weights.DirectionIncrease
		case planning.TrendDecreasing:
			dir = weights.DirectionDecrease
		default:
			continue
		}
		out = append(out, weights.Signal{
			Source:      weights.SourcePerformance,
			Strength:    t.Strength,
			Direction:   dir,
			Description: fmt.Sprintf("%s %s %+.1f%% per cycle over %d cycles", t.Metric, t.Direction, t.AvgChangePercent, t.Cycles),
		})
	}

	if n := o.keyDatesIn(plan.Window); n > 0 {
		out = append(out, weights.Signal{
			Source:      weights.SourceCalendario,
			Strength:    math.Min(1, float64(n)/keyDatesForFull),
			Direction:   weights.DirectionIncrease,
			Description: fmt.Sprintf("%d key date(s) in the next window", n),
		})
	}
	return out
}

// banded maps v to increase at or above strong, decrease below weak and
// maintain in between.
func banded(src weights.Source, v, strong, weak float64, desc string) weights.Signal {
	s := weights.Signal{Source: src, Description: desc}
	switch {
	case v >= strong:
		s.Direction = weights.DirectionIncrease
		s.Strength = math.Min(1, v/(strong*1.5))
	case v < weak:
		s.Direction = weights.DirectionDecrease
		s.Strength = math.Min(1, (weak-v)/weak+neutralStrength)
	default:
		s.Direction = weights.DirectionMaintain
		s.Strength = neutralStrength
	}
	return s
}

func (o *Orchestrator) keyDatesIn(w *planning.Window) int {
	if w == nil || o.state.CalendarContext == nil {
		return 0
	}
	start, err := w.Start.Time()
	if err != nil {
		return 0
	}
	end, err := w.End.Time()
	if err != nil {
		return 0
	}
	n := 0
	for _, kd := range o.state.CalendarContext.KeyDates {
		d, err := kd.Date.Time()
		if err != nil {
			continue
		}
		if !d.Before(start) && !d.After(end) {
			n++
		}
	}
	return n
}
