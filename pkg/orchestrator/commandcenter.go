package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/artifacts"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventbus"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/versioning"
)

// commandCenterDraft is the command_center agent's answer.
type commandCenterDraft struct {
	KPIs                []planning.KPI           `json:"kpis"`
	Roadmap             []planning.RoadmapItem   `json:"roadmap"`
	Calendar            []planning.CalendarEvent `json:"calendar"`
	ValidationChecklist []planning.ChecklistItem `json:"validation_checklist"`
}

// GenerateCommandCenter produces a new command center at version 1.0.0 and
// submits it for review. Generation is refused with a *GatingError while the
// gap report has critical gaps or fails the readiness rule.
func (o *Orchestrator) GenerateCommandCenter(ctx context.Context, meta eventlog.Metadata) (_ planning.CommandCenter, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "generate_command_center", meta)
	defer func() { done(err) }()

	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}

	report := o.state.LastGapReport
	if o.gapsStale() {
		fresh, err := o.detectGaps(ctx, meta)
		if err != nil {
			return planning.CommandCenter{}, err
		}
		report = &fresh
	}

	if gate := gatingFailure(*report); gate != nil {
		_, err := o.emit(ctx, EventGenerationBlocked, generationBlockedPayload{
			EntityType:  "gap_report",
			EntityID:    report.ID,
			Reason:      gate.Reason,
			HealthScore: gate.HealthScore,
			Gaps:        gate.Gaps,
			Questions:   gate.Questions,
		}, meta)
		if err != nil {
			return planning.CommandCenter{}, err
		}
		o.logger.WarnContext(ctx, "command center generation blocked", "reason", gate.Reason, "report_id", report.ID)
		return planning.CommandCenter{}, gate
	}

	res := o.agents[generator.TemplateCommandCenter].Run(ctx, map[string]any{
		"vaults":           o.state.Vaults,
		"vault_analyses":   o.state.VaultAnalyses,
		"calendar_context": o.state.CalendarContext,
		"gap_report":       report,
		"weights":          o.weights.Current(),
	})
	if !res.Success {
		return planning.CommandCenter{}, o.stepFailed(ctx, StepCommandCenter, "", res, meta)
	}
	var draft commandCenterDraft
	if err := res.Output.Decode(&draft); err != nil {
		return planning.CommandCenter{}, o.stepFailed(ctx, StepCommandCenter, "", decodeFailure(res, err), meta)
	}

	now := o.now()
	cc := planning.CommandCenter{
		ID:                  "cc-" + uuid.NewString(),
		Version:             versioning.Initial,
		Status:              planning.StatusDraft,
		KPIs:                draft.KPIs,
		Roadmap:             draft.Roadmap,
		Calendar:            draft.Calendar,
		ValidationChecklist: draft.ValidationChecklist,
		SourceMapping:       res.Output.SourceMapping,
		Warnings:            res.Warnings,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	fillCommandCenterIDs(&cc)

	_, err = o.emit(ctx, EventCommandCenterGenerated, commandCenterPayload{
		CommandCenterID: cc.ID,
		Version:         cc.Version,
		CommandCenter:   cc,
	}, meta)
	if err != nil {
		return planning.CommandCenter{}, err
	}
	return *o.state.CommandCenter, nil
}

// gatingFailure returns the refusal for a report that may not feed generation.
func gatingFailure(r planning.GapReport) *GatingError {
	critical := r.Critical()
	switch {
	case len(critical) > 0:
		return &GatingError{
			ReportID:    r.ID,
			Reason:      fmt.Sprintf("%d critical gap(s)", len(critical)),
			HealthScore: r.HealthScore,
			Gaps:        critical,
			Questions:   r.Questions,
		}
	case !r.Ready:
		return &GatingError{
			ReportID:    r.ID,
			Reason:      fmt.Sprintf("readiness rule not satisfied (health score %.0f)", r.HealthScore),
			HealthScore: r.HealthScore,
			Gaps:        r.Gaps,
			Questions:   r.Questions,
		}
	}
	return nil
}

func fillCommandCenterIDs(cc *planning.CommandCenter) {
	for i := range cc.KPIs {
		if cc.KPIs[i].ID == "" {
			cc.KPIs[i].ID = fmt.Sprintf("kpi-%d", i+1)
		}
		if cc.KPIs[i].Name == "" {
			cc.KPIs[i].Name = cc.KPIs[i].Metric
		}
	}
	for i := range cc.Roadmap {
		if cc.Roadmap[i].ID == "" {
			cc.Roadmap[i].ID = fmt.Sprintf("roadmap-%d", i+1)
		}
		if cc.Roadmap[i].Status == "" {
			cc.Roadmap[i].Status = planning.RoadmapDraft
		}
	}
	for i := range cc.Calendar {
		if cc.Calendar[i].ID == "" {
			cc.Calendar[i].ID = fmt.Sprintf("calendar-%d", i+1)
		}
	}
	for i := range cc.ValidationChecklist {
		if cc.ValidationChecklist[i].ID == "" {
			cc.ValidationChecklist[i].ID = fmt.Sprintf("check-%d", i+1)
		}
	}
}

// ApproveCommandCenter is the human gate from pending_review to approved.
func (o *Orchestrator) ApproveCommandCenter(ctx context.Context, approver string, meta eventlog.Metadata) (_ planning.CommandCenter, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "approve_command_center", meta)
	defer func() { done(err) }()

	approver = strings.TrimSpace(approver)
	if approver == "" {
		return planning.CommandCenter{}, &ValidationError{Field: "approved_by", Reason: "is required"}
	}
	return o.transition(ctx, EventCommandCenterApproved, planning.StatusApproved, approver, meta)
}

// ActivateCommandCenter moves an approved command center into execution.
func (o *Orchestrator) ActivateCommandCenter(ctx context.Context, meta eventlog.Metadata) (_ planning.CommandCenter, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "activate_command_center", meta)
	defer func() { done(err) }()

	return o.transition(ctx, EventCommandCenterActivated, planning.StatusActive, "", meta)
}

func (o *Orchestrator) transition(ctx context.Context, eventType string, to planning.Status, actor string, meta eventlog.Metadata) (planning.CommandCenter, error) {
	cc := o.state.CommandCenter
	if cc == nil {
		return planning.CommandCenter{}, ErrNoCommandCenter
	}
	if !planning.CanTransition(cc.Status, to) {
		return planning.CommandCenter{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cc.Status, to)
	}
	_, err := o.emit(ctx, eventType, transitionPayload{
		CommandCenterID: cc.ID,
		Version:         cc.Version,
		From:            cc.Status,
		To:              to,
		Actor:           actor,
	}, meta)
	if err != nil {
		return planning.CommandCenter{}, err
	}
	return *o.state.CommandCenter, nil
}

// UpdateCommandCenter edits the current command center in place and bumps
// its patch version.
func (o *Orchestrator) UpdateCommandCenter(ctx context.Context, edit planning.CommandCenterEdit, meta eventlog.Metadata) (_ planning.CommandCenter, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "update_command_center", meta)
	defer func() { done(err) }()

	cc := o.state.CommandCenter
	if cc == nil {
		return planning.CommandCenter{}, ErrNoCommandCenter
	}
	if cc.Status == planning.StatusArchived {
		return planning.CommandCenter{}, fmt.Errorf("%w: archived command center cannot be edited", ErrInvalidTransition)
	}
	if err := validateEdit(*cc, edit); err != nil {
		return planning.CommandCenter{}, err
	}

	_, err = o.emit(ctx, EventCommandCenterUpdated, commandCenterUpdatedPayload{
		CommandCenterID: cc.ID,
		PreviousVersion: cc.Version,
		Version:         cc.Version.BumpPatch(),
		Edit:            edit,
	}, meta)
	if err != nil {
		return planning.CommandCenter{}, err
	}
	return *o.state.CommandCenter, nil
}

func validateEdit(cc planning.CommandCenter, edit planning.CommandCenterEdit) error {
	if edit.IsEmpty() {
		return &ValidationError{Field: "edit", Reason: "changes nothing"}
	}
	for metric, target := range edit.KPITargets {
		if _, ok := cc.KPI(metric); !ok {
			return &ValidationError{Field: "kpi_targets." + metric, Reason: "unknown metric"}
		}
		if math.IsNaN(target) || math.IsInf(target, 0) || target < 0 {
			return &ValidationError{Field: "kpi_targets." + metric, Reason: "target must be finite and non-negative"}
		}
	}
	for id, status := range edit.RoadmapStatus {
		if !status.Valid() {
			return &ValidationError{Field: "roadmap_status." + id, Reason: fmt.Sprintf("unknown status %q", status)}
		}
		if roadmapIndex(cc.Roadmap, id) < 0 {
			return &ValidationError{Field: "roadmap_status." + id, Reason: "unknown roadmap item"}
		}
	}
	for i, ev := range edit.Calendar {
		if strings.TrimSpace(ev.Title) == "" {
			return &ValidationError{Field: fmt.Sprintf("calendar[%d].title", i), Reason: "is required"}
		}
		if _, err := ev.Date.Time(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("calendar[%d].date", i), Reason: err.Error()}
		}
	}
	for i, item := range edit.ValidationChecklist {
		if strings.TrimSpace(item.Description) == "" {
			return &ValidationError{Field: fmt.Sprintf("validation_checklist[%d].description", i), Reason: "is required"}
		}
	}
	return nil
}

func roadmapIndex(items []planning.RoadmapItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (o *Orchestrator) onCommandCenterGenerated(ctx context.Context, e eventlog.Event) error {
	var p commandCenterPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if err := o.archiveCurrent(ctx, p.CommandCenterID, e); err != nil {
		return err
	}
	cc := p.CommandCenter
	o.state.CommandCenter = &cc
	o.commit(ctx, e)
	o.logger.InfoContext(ctx, "command center generated", "command_center_id", cc.ID, "version", cc.Version.String())

	_, err := o.emit(ctx, EventCommandCenterSubmitted, transitionPayload{
		CommandCenterID: cc.ID,
		Version:         cc.Version,
		From:            planning.StatusDraft,
		To:              planning.StatusPendingReview,
	}, eventbus.CausedBy(e))
	return err
}

func (o *Orchestrator) onStatusTransition(ctx context.Context, e eventlog.Event) error {
	var p transitionPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	cc := o.state.CommandCenter
	if cc == nil || cc.ID != p.CommandCenterID {
		return fmt.Errorf("%w: command center %s", ErrNotFound, p.CommandCenterID)
	}
	if !planning.CanTransition(cc.Status, p.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cc.Status, p.To)
	}
	cc.Status = p.To
	cc.UpdatedAt = e.Timestamp
	if p.To == planning.StatusApproved {
		at := e.Timestamp
		cc.ApprovedBy = p.Actor
		cc.ApprovedAt = &at
	}
	o.commit(ctx, e)
	o.logger.InfoContext(ctx, "command center status changed",
		"command_center_id", cc.ID, "from", p.From, "to", p.To, "actor", p.Actor)
	return nil
}

func (o *Orchestrator) onCommandCenterUpdated(ctx context.Context, e eventlog.Event) error {
	var p commandCenterUpdatedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	cc := o.state.CommandCenter
	if cc == nil || cc.ID != p.CommandCenterID {
		return fmt.Errorf("%w: command center %s", ErrNotFound, p.CommandCenterID)
	}
	for i := range cc.KPIs {
		if target, ok := p.Edit.KPITargets[cc.KPIs[i].Metric]; ok {
			cc.KPIs[i].Target = target
		}
	}
	for id, status := range p.Edit.RoadmapStatus {
		if i := roadmapIndex(cc.Roadmap, id); i >= 0 {
			cc.Roadmap[i].Status = status
		}
	}
	if p.Edit.Calendar != nil {
		cc.Calendar = p.Edit.Calendar
	}
	if p.Edit.ValidationChecklist != nil {
		cc.ValidationChecklist = p.Edit.ValidationChecklist
	}
	fillCommandCenterIDs(cc)
	cc.Version = p.Version
	cc.UpdatedAt = e.Timestamp
	o.commit(ctx, e)
	return nil
}

func (o *Orchestrator) onCommandCenterArchived(ctx context.Context, e eventlog.Event) error {
	var p commandCenterArchivedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	archived := p.CommandCenter
	archived.Status = planning.StatusArchived
	archived.ArchiveRef = p.ArchiveRef
	archived.UpdatedAt = e.Timestamp
	o.state.ArchivedCommandCenters = append(o.state.ArchivedCommandCenters, archived)
	o.commit(ctx, e)
	return nil
}

// archiveCurrent retires the current command center in favor of replacement.
func (o *Orchestrator) archiveCurrent(ctx context.Context, replacement string, parent eventlog.Event) error {
	cur := o.state.CommandCenter
	if cur == nil {
		return nil
	}
	retired := *cur
	retired.Status = planning.StatusArchived
	ref, err := o.archive.Put(ctx, artifacts.KindCommandCenter, retired)
	if err != nil {
		return fmt.Errorf("orchestrator: archive command center %s: %w", retired.ID, err)
	}
	_, err = o.emit(ctx, EventCommandCenterArchived, commandCenterArchivedPayload{
		CommandCenterID: retired.ID,
		Version:         retired.Version,
		ArchiveRef:      ref,
		ReplacedBy:      replacement,
		CommandCenter:   retired,
	}, eventbus.CausedBy(parent))
	return err
}
