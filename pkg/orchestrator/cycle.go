package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/artifacts"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// CompleteGovernanceCycle freezes a cycle submission into a governance record.
func (o *Orchestrator) CompleteGovernanceCycle(ctx context.Context, sub governance.Submission, meta eventlog.Metadata) (_ planning.GovernanceRecord, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "complete_governance_cycle", meta)
	defer func() { done(err) }()

	rec, err := governance.GenerateRecord(sub)
	if err != nil {
		return planning.GovernanceRecord{}, err
	}
	for _, prior := range o.state.GovernanceCycles {
		if prior.CycleID == rec.CycleID {
			return planning.GovernanceRecord{}, &ValidationError{Field: "cycle_id", Reason: fmt.Sprintf("cycle %s is already recorded", rec.CycleID)}
		}
	}

	_, err = o.emit(ctx, EventGovernanceRecordGenerated, recordGeneratedPayload{
		CycleID:  rec.CycleID,
		RecordID: rec.ID,
		Hash:     rec.Hash,
		Record:   rec,
	}, meta)
	if err != nil {
		return planning.GovernanceRecord{}, err
	}
	return rec, nil
}

func (o *Orchestrator) onRecordGenerated(ctx context.Context, e eventlog.Event) error {
	var p recordGeneratedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if err := governance.Verify(p.Record); err != nil {
		return err
	}
	ref, err := o.archive.Put(ctx, artifacts.KindGovernanceRecord, p.Record)
	if err != nil {
		return fmt.Errorf("orchestrator: archive record %s: %w", p.RecordID, err)
	}
	summary := governance.Summarize(p.Record)
	summary.ArchiveRef = ref

	o.state.AddRecord(p.Record)
	o.state.GovernanceSummaries[p.CycleID] = summary
	o.commit(ctx, e)
	o.logger.InfoContext(ctx, "governance record generated",
		"cycle_id", p.CycleID,
		"record_id", p.RecordID,
		"execution_rate", summary.ExecutionRate,
		"archive_ref", ref,
	)
	return nil
}

// Recalibrate derives the adjustment plan for the next cycle from the latest
// governance record and stores it as pending until applied.
func (o *Orchestrator) Recalibrate(ctx context.Context, meta eventlog.Metadata) (_ planning.RecalibrationPlan, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "recalibrate", meta)
	defer func() { done(err) }()

	rec, ok := o.state.LatestRecord()
	if !ok {
		return planning.RecalibrationPlan{}, ErrNoGovernanceCycle
	}
	var roadmap []planning.RoadmapItem
	if o.state.CommandCenter != nil {
		roadmap = o.state.CommandCenter.Roadmap
	}

	plan := governance.Recalibrate(rec, o.state.Vaults, roadmap)
	plan.ID = "plan-" + uuid.NewString()
	plan.CreatedAt = o.now()
	plan.Trends = EstimateTrends(o.state.GovernanceCycles)

	window, err := governance.NextWindow(rec, o.frequency, o.calendarRule)
	if err != nil {
		return planning.RecalibrationPlan{}, err
	}
	for _, adj := range plan.GoalAdjustments {
		if window.PeriodGoals == nil {
			window.PeriodGoals = make(map[string]float64, len(plan.GoalAdjustments))
		}
		window.PeriodGoals[adj.Metric] = adj.New
	}
	plan.Window = &window

	recommendation, err := o.weights.GenerateRecommendation(o.signals(rec, plan), weights.DefaultThreshold)
	if err != nil {
		return planning.RecalibrationPlan{}, err
	}
	plan.Recommendation = &recommendation

	_, err = o.emit(ctx, EventRecalibrationGenerated, recalibrationGeneratedPayload{PlanID: plan.ID, Plan: plan}, meta)
	if err != nil {
		return planning.RecalibrationPlan{}, err
	}
	return *o.state.PendingRecalibration, nil
}

func (o *Orchestrator) onRecalibrationGenerated(ctx context.Context, e eventlog.Event) error {
	var p recalibrationGeneratedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	plan := p.Plan
	o.state.PendingRecalibration = &plan
	o.commit(ctx, e)
	o.logger.InfoContext(ctx, "recalibration generated",
		"plan_id", plan.ID,
		"cycle_id", plan.CycleID,
		"adjustments", len(plan.GoalAdjustments),
		"alerts", len(plan.Alerts),
	)
	return nil
}

// ApplyRecalibration is the human gate that turns the pending plan into a new
// approved command center at the next minor version. The prior version is
// archived.
func (o *Orchestrator) ApplyRecalibration(ctx context.Context, planID, approver string, meta eventlog.Metadata) (_ planning.CommandCenter, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "apply_recalibration", meta)
	defer func() { done(err) }()

	approver = strings.TrimSpace(approver)
	if approver == "" {
		return planning.CommandCenter{}, &ValidationError{Field: "approved_by", Reason: "is required"}
	}
	plan := o.state.PendingRecalibration
	if plan == nil || plan.ID != planID {
		return planning.CommandCenter{}, fmt.Errorf("%w: pending recalibration %q", ErrNotFound, planID)
	}
	cur := o.state.CommandCenter
	if cur == nil {
		return planning.CommandCenter{}, ErrNoCommandCenter
	}

	next := recalibrated(*cur, *plan)
	now := o.now()
	next.ID = "cc-" + uuid.NewString()
	next.Version = cur.Version.BumpMinor()
	next.Status = planning.StatusApproved
	next.ApprovedBy = approver
	next.ApprovedAt = &now
	next.RecalibrationID = plan.ID
	next.ArchiveRef = ""
	next.CreatedAt = now
	next.UpdatedAt = now

	_, err = o.emit(ctx, EventRecalibrationApplied, recalibrationAppliedPayload{
		PlanID:                  plan.ID,
		PreviousCommandCenterID: cur.ID,
		PreviousVersion:         cur.Version,
		Version:                 next.Version,
		ApprovedBy:              approver,
		CommandCenter:           next,
	}, meta)
	if err != nil {
		return planning.CommandCenter{}, err
	}
	return *o.state.CommandCenter, nil
}

// recalibrated copies cur with the plan's goals and the re-ranked backlog
// first in the roadmap. Targets are never lowered.
func recalibrated(cur planning.CommandCenter, plan planning.RecalibrationPlan) planning.CommandCenter {
	next := cur
	next.KPIs = append([]planning.KPI(nil), cur.KPIs...)
	for i, k := range next.KPIs {
		if goal, ok := plan.NewGoal(k.Metric); ok && goal > k.Target {
			next.KPIs[i].Target = goal
		}
	}

	ranked := make(map[string]int, len(plan.Backlog))
	for _, b := range plan.Backlog {
		ranked[b.Item.ID] = b.Rank
	}
	next.Roadmap = append([]planning.RoadmapItem(nil), cur.Roadmap...)
	sort.SliceStable(next.Roadmap, func(i, j int) bool {
		ri, rj := ranked[next.Roadmap[i].ID], ranked[next.Roadmap[j].ID]
		switch {
		case ri > 0 && rj > 0:
			return ri < rj
		default:
			return ri > 0 && rj == 0
		}
	})
	return next
}

func (o *Orchestrator) onRecalibrationApplied(ctx context.Context, e eventlog.Event) error {
	var p recalibrationAppliedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if err := o.archiveCurrent(ctx, p.CommandCenter.ID, e); err != nil {
		return err
	}
	cc := p.CommandCenter
	o.state.CommandCenter = &cc
	o.state.PendingRecalibration = nil
	o.commit(ctx, e)
	o.logger.InfoContext(ctx, "recalibration applied",
		"plan_id", p.PlanID,
		"command_center_id", cc.ID,
		"from_version", p.PreviousVersion.String(),
		"to_version", cc.Version.String(),
		"approved_by", p.ApprovedBy,
	)
	return nil
}
