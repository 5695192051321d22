package governance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

const (
	// RatchetRatio is the achievement ratio from which a goal is raised.
	RatchetRatio  = 1.2
	// RatchetFactor is applied to goals that met RatchetRatio.
	RatchetFactor = 1.10

	lowExecutionRate   = 70.0
	lowRevenue         = 80.0
	maxBacklog         = 10
	commerceMultiplier = 1.5
	opsMultiplier      = 1.3
	audienceMultiplier = 1.2
)

// Focus and alert codes.
const (
	FocusLowExecution   = "low_execution_rate"
	FocusContentBacklog = "content_backlog"
	FocusRevenue        = "revenue_below_target"

	AlertDelayedItems = "delayed_items"
	AlertOpenRisks    = "open_risks"
)

// RevenueMetrics are the KPI metric names treated as revenue.
var RevenueMetrics = []string{"revenue", "faturamento"}

// Ratchet returns the next goal for a KPI. Goals are raised by RatchetFactor
// when value/goal ≥ RatchetRatio and are otherwise kept; they are never lowered.
func Ratchet(value, goal float64) (newGoal, ratio float64) {
	if goal <= 0 {
		return goal, 0
	}
	ratio = value / goal
	if ratio >= RatchetRatio {
		next := round2(goal * RatchetFactor)
		if next < goal {
			next = goal
		}
		return next, ratio
	}
	return goal, ratio
}

// Recalibrate derives the adjustment plan for the next cycle from a record,
// the vault contents and the current roadmap. The plan id and creation time
// are left for the caller to stamp.
func Recalibrate(rec planning.GovernanceRecord, vaults map[planning.VaultID]planning.Content, roadmap []planning.RoadmapItem) planning.RecalibrationPlan {
	plan := planning.RecalibrationPlan{
		RecordID:         rec.ID,
		CycleID:          rec.CycleID,
		VaultMultipliers: make(map[planning.VaultID]float64),
	}

	for _, metric := range sortedMetrics(rec.KPIs) {
		k := rec.KPIs[metric]
		next, ratio := Ratchet(k.Value, k.Goal)
		plan.GoalAdjustments = append(plan.GoalAdjustments, planning.GoalAdjustment{
			Metric:   metric,
			Value:    k.Value,
			Previous: k.Goal,
			New:      next,
			Ratio:    ratio,
			Changed:  next != k.Goal,
		})
	}

	rate := rec.RoadmapSummary.ExecutionRate
	lowExecution := rec.RoadmapSummary.Total > 0 && rate < lowExecutionRate
	contentBacklog := rec.Production.NotExecuted > rec.Production.Published
	revenue, hasRevenue := revenueKPI(rec)

	if lowExecution {
		plan.ExecutionFocus = append(plan.ExecutionFocus, planning.FocusFlag{
			Code:        FocusLowExecution,
			Description: fmt.Sprintf("roadmap execution rate %.1f%% is below %.0f%%", rate, lowExecutionRate),
			Value:       rate,
		})
	}
	if contentBacklog {
		plan.ExecutionFocus = append(plan.ExecutionFocus, planning.FocusFlag{
			Code:        FocusContentBacklog,
			Description: fmt.Sprintf("%d planned items not executed against %d published", rec.Production.NotExecuted, rec.Production.Published),
			Value:       float64(rec.Production.NotExecuted - rec.Production.Published),
		})
	}
	if hasRevenue && revenue.Goal > 0 && revenue.Achievement < lowRevenue {
		plan.ExecutionFocus = append(plan.ExecutionFocus, planning.FocusFlag{
			Code:        FocusRevenue,
			Description: fmt.Sprintf("revenue achievement %.1f%% is below %.0f%%", revenue.Achievement, lowRevenue),
			Value:       revenue.Achievement,
		})
	}

	if n := rec.RoadmapSummary.Delayed; n > 0 {
		plan.Alerts = append(plan.Alerts, planning.Alert{Code: AlertDelayedItems, Message: fmt.Sprintf("%d roadmap items delayed", n), Count: n})
	}
	if n := len(rec.Learnings.Risks); n > 0 {
		plan.Alerts = append(plan.Alerts, planning.Alert{Code: AlertOpenRisks, Message: fmt.Sprintf("%d risks raised in the cycle", n), Count: n})
	}

	for id := range vaults {
		plan.VaultMultipliers[id] = 1.0
	}
	if hasRevenue && revenue.Gap > 0 {
		plan.VaultMultipliers[planning.VaultCommerce] = commerceMultiplier
	}
	if lowExecution {
		plan.VaultMultipliers[planning.VaultOperations] = opsMultiplier
	}
	if contentBacklog {
		plan.VaultMultipliers[planning.VaultAudience] = audienceMultiplier
	}

	plan.Backlog = PrioritizeBacklog(roadmap)
	return plan
}

// PrioritizeBacklog keeps draft and pending items, sorts them by scheduled
// date with undated items last, caps the list and ranks from 1.
func PrioritizeBacklog(roadmap []planning.RoadmapItem) []planning.BacklogItem {
	type dated struct {
		item planning.RoadmapItem
		key  int64
		ok   bool
	}
	var pending []dated
	for _, it := range roadmap {
		if it.Status != planning.RoadmapDraft && it.Status != planning.RoadmapPending {
			continue
		}
		d := dated{item: it}
		if t, err := it.ScheduledDate.Time(); err == nil {
			d.key, d.ok = t.Unix(), true
		}
		pending = append(pending, d)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.key < b.key
	})
	if len(pending) > maxBacklog {
		pending = pending[:maxBacklog]
	}
	out := make([]planning.BacklogItem, 0, len(pending))
	for i, d := range pending {
		out = append(out, planning.BacklogItem{Rank: i + 1, Item: d.item})
	}
	return out
}

func revenueKPI(rec planning.GovernanceRecord) (planning.KPIResult, bool) {
	for _, name := range RevenueMetrics {
		for metric, k := range rec.KPIs {
			if strings.EqualFold(metric, name) {
				return k, true
			}
		}
	}
	return planning.KPIResult{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
