package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventbus"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

// MarkVaultComplete stores a vault's content and analyzes it. Once enough
// distinct vaults are analyzed, gap detection runs in the same workflow run.
func (o *Orchestrator) MarkVaultComplete(ctx context.Context, vault string, content planning.Content, meta eventlog.Metadata) (_ planning.Analysis, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "mark_vault_complete", meta)
	defer func() { done(err) }()

	id, err := planning.ParseVaultID(strings.ToLower(strings.TrimSpace(vault)))
	if err != nil {
		return planning.Analysis{}, &ValidationError{Field: "vault_id", Reason: err.Error()}
	}
	if len(content) == 0 {
		return planning.Analysis{}, &ValidationError{Field: "content", Reason: "is empty"}
	}

	_, err = o.emit(ctx, EventVaultCompleted, vaultCompletedPayload{VaultID: id, Content: content}, meta)
	analysis, ok := o.state.VaultAnalyses[id]
	if err != nil {
		// A failure after the analysis (automatic gap detection) still
		// returns the analysis.
		return analysis, err
	}
	if !ok {
		return planning.Analysis{}, fmt.Errorf("orchestrator: vault %s was not analyzed", id)
	}
	return analysis, nil
}

// DetectGaps checks the vaults for missing or inconsistent data and records
// the report.
func (o *Orchestrator) DetectGaps(ctx context.Context, meta eventlog.Metadata) (_ planning.GapReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "detect_gaps", meta)
	defer func() { done(err) }()

	return o.detectGaps(ctx, meta)
}

func (o *Orchestrator) onVaultCompleted(ctx context.Context, e eventlog.Event) error {
	var p vaultCompletedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	o.state.Vaults[p.VaultID] = p.Content
	delete(o.state.VaultAnalyses, p.VaultID)
	o.commit(ctx, e)

	res := o.agents[generator.TemplateVaultAnalysis].Run(ctx, map[string]any{
		"vault_id":         p.VaultID,
		"content":          p.Content,
		"calendar_context": o.state.CalendarContext,
	})
	if !res.Success {
		return o.stepFailed(ctx, StepVaultAnalysis, p.VaultID, res, eventbus.CausedBy(e))
	}

	var analysis planning.Analysis
	if err := res.Output.Decode(&analysis); err != nil {
		return o.stepFailed(ctx, StepVaultAnalysis, p.VaultID, decodeFailure(res, err), eventbus.CausedBy(e))
	}
	analysis.VaultID = p.VaultID
	analysis.SourceMapping = res.Output.SourceMapping
	analysis.Confidence = res.Output.Confidence
	analysis.Warnings = res.Warnings
	analysis.ExecutionID = res.ExecutionID
	analysis.AnalyzedAt = res.Timestamp

	_, err := o.emit(ctx, EventVaultAnalyzed, vaultAnalyzedPayload{VaultID: p.VaultID, Analysis: analysis}, eventbus.CausedBy(e))
	return err
}

func (o *Orchestrator) onVaultAnalyzed(ctx context.Context, e eventlog.Event) error {
	var p vaultAnalyzedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	o.state.VaultAnalyses[p.VaultID] = p.Analysis
	o.commit(ctx, e)

	if len(o.state.VaultAnalyses) < o.minAnalyzed {
		return nil
	}
	_, err := o.detectGaps(ctx, eventbus.CausedBy(e))
	return err
}

func (o *Orchestrator) onGapsDetected(ctx context.Context, e eventlog.Event) error {
	var p gapsDetectedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	report := p.Report
	o.state.LastGapReport = &report
	o.commit(ctx, e)
	return nil
}

// gapDetectionOutput is the gap_detection agent's answer.
type gapDetectionOutput struct {
	Gaps      []planning.Gap `json:"gaps"`
	Questions []string       `json:"questions"`
}

func (o *Orchestrator) detectGaps(ctx context.Context, meta eventlog.Metadata) (planning.GapReport, error) {
	report := planning.GapReport{
		ID:             "gaps-" + uuid.NewString(),
		AnalyzedVaults: o.analyzedVaults(),
	}
	gaps := o.structuralGaps(&report)

	if len(o.state.VaultAnalyses) > 0 {
		res := o.agents[generator.TemplateGapDetection].Run(ctx, map[string]any{
			"vaults":           o.state.Vaults,
			"vault_analyses":   o.state.VaultAnalyses,
			"calendar_context": o.state.CalendarContext,
		})
		if !res.Success {
			return planning.GapReport{}, o.stepFailed(ctx, StepGapDetection, "", res, meta)
		}
		var out gapDetectionOutput
		if err := res.Output.Decode(&out); err != nil {
			return planning.GapReport{}, o.stepFailed(ctx, StepGapDetection, "", decodeFailure(res, err), meta)
		}
		for i := range out.Gaps {
			if out.Gaps[i].Source == "" {
				out.Gaps[i].Source = generator.TemplateGapDetection
			}
		}
		gaps = mergeGaps(gaps, out.Gaps)
		report.Questions = out.Questions
		report.Warnings = res.Warnings
		report.ExecutionID = res.ExecutionID
	}

	for i := range gaps {
		if gaps[i].ID == "" {
			gaps[i].ID = fmt.Sprintf("gap-%d", i+1)
		}
	}
	report.Gaps = gaps
	report.Questions = questionsOf(gaps, report.Questions)
	report.HealthScore = HealthScore(gaps)
	report.CriticalCount = len(report.Critical())
	report.GeneratedAt = o.now()

	ready, err := o.readiness.Evaluate(report)
	if err != nil {
		return planning.GapReport{}, err
	}
	report.Ready = ready

	_, err = o.emit(ctx, EventGapsDetected, gapsDetectedPayload{
		EntityType:    "gap_report",
		EntityID:      report.ID,
		HealthScore:   report.HealthScore,
		CriticalCount: report.CriticalCount,
		Ready:         report.Ready,
		Report:        report,
	}, meta)
	if err != nil {
		return planning.GapReport{}, err
	}
	o.logger.InfoContext(ctx, "gaps detected",
		"report_id", report.ID,
		"gaps", len(report.Gaps),
		"critical", report.CriticalCount,
		"health_score", report.HealthScore,
		"ready", report.Ready,
	)
	return report, nil
}

// structuralGaps flags required vaults that are missing, empty or unanalyzed.
func (o *Orchestrator) structuralGaps(report *planning.GapReport) []planning.Gap {
	var gaps []planning.Gap
	for _, id := range o.required {
		content, completed := o.state.Vaults[id]
		_, analyzed := o.state.VaultAnalyses[id]
		switch {
		case !completed:
			report.MissingVaults = append(report.MissingVaults, id)
			gaps = append(gaps, planning.Gap{
				VaultID:     id,
				Description: fmt.Sprintf("required vault %s has not been completed", id),
				Severity:    planning.SeverityCritical,
				Question:    fmt.Sprintf("Can you fill in the %s vault?", id),
				Source:      "structural",
			})
		case len(content) == 0:
			gaps = append(gaps, planning.Gap{
				VaultID:     id,
				Description: fmt.Sprintf("required vault %s is empty", id),
				Severity:    planning.SeverityHigh,
				Question:    fmt.Sprintf("What should the %s vault contain?", id),
				Source:      "structural",
			})
		case !analyzed:
			gaps = append(gaps, planning.Gap{
				VaultID:     id,
				Description: fmt.Sprintf("required vault %s could not be analyzed", id),
				Severity:    planning.SeverityHigh,
				Source:      "structural",
			})
		}
	}
	return gaps
}

func (o *Orchestrator) analyzedVaults() []planning.VaultID {
	var out []planning.VaultID
	for _, id := range planning.AllVaults {
		if _, ok := o.state.VaultAnalyses[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// gapsStale reports whether the last gap report predates a vault analysis.
func (o *Orchestrator) gapsStale() bool {
	r := o.state.LastGapReport
	if r == nil {
		return true
	}
	for _, a := range o.state.VaultAnalyses {
		if a.AnalyzedAt.After(r.GeneratedAt) {
			return true
		}
	}
	return len(r.AnalyzedVaults) != len(o.state.VaultAnalyses)
}

// HealthScore is 100 minus the severity penalties of gaps, floored at 0.
func HealthScore(gaps []planning.Gap) float64 {
	score := 100.0
	for _, g := range gaps {
		score -= g.Severity.Penalty()
	}
	if score < 0 {
		return 0
	}
	return score
}

var severityRank = map[planning.Severity]int{
	planning.SeverityCritical: 4,
	planning.SeverityHigh:     3,
	planning.SeverityMedium:   2,
	planning.SeverityLow:      1,
}

// mergeGaps appends extra to base. Gaps on the same vault field collapse into
// the more severe one.
func mergeGaps(base, extra []planning.Gap) []planning.Gap {
	out := append([]planning.Gap(nil), base...)
	index := make(map[string]int)
	for i, g := range out {
		if k := gapKey(g); k != "" {
			index[k] = i
		}
	}
	for _, g := range extra {
		k := gapKey(g)
		if i, dup := index[k]; k != "" && dup {
			if severityRank[g.Severity] > severityRank[out[i].Severity] {
				out[i] = g
			}
			continue
		}
		if k != "" {
			index[k] = len(out)
		}
		out = append(out, g)
	}
	return out
}

func gapKey(g planning.Gap) string {
	if g.Field == "" {
		return ""
	}
	return string(g.VaultID) + "/" + g.Field
}

// questionsOf collects the gap questions followed by the extra ones, without
// blanks or repeats.
func questionsOf(gaps []planning.Gap, extra []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q != "" && !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	for _, g := range gaps {
		add(g.Question)
	}
	for _, q := range extra {
		add(q)
	}
	return out
}

// decodeFailure turns a successful run whose output could not be decoded
// into a failed one.
func decodeFailure(res generator.Result, err error) generator.Result {
	res.Success = false
	res.Err = fmt.Errorf("decode %s output: %w", res.Template, err)
	res.Error = res.Err.Error()
	return res
}
