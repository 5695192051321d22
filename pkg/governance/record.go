// Package governance turns governance cycle submissions into immutable,
// hash-sealed records (ATA), derives recalibration plans from them and
// schedules the next cycle. Every function in this package is pure.
package governance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/canonicalize"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

// ErrTampered is returned by Verify when a record no longer matches its hash.
var ErrTampered = errors.New("governance: record hash mismatch")

// ValidationError rejects a malformed submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("governance: invalid %s: %s", e.Field, e.Reason)
}

// KPIInput is the realized value of one metric.
type KPIInput struct {
	Metric string  `json:"metric" yaml:"metric"`
	Value  float64 `json:"value" yaml:"value"`
	Goal   float64 `json:"goal" yaml:"goal"`
	Unit   string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// RoadmapTally counts roadmap items by outcome.
type RoadmapTally struct {
	Total     int `json:"total" yaml:"total"`
	Done      int `json:"done" yaml:"done"`
	Delayed   int `json:"delayed" yaml:"delayed"`
	Cancelled int `json:"cancelled" yaml:"cancelled"`
}

// TallyRoadmap counts items by status.
func TallyRoadmap(items []planning.RoadmapItem) RoadmapTally {
	t := RoadmapTally{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case planning.RoadmapDone:
			t.Done++
		case planning.RoadmapDelayed:
			t.Delayed++
		case planning.RoadmapCancelled:
			t.Cancelled++
		}
	}
	return t
}

// Submission is the raw input of a governance cycle.
type Submission struct {
	CycleID        string                 `json:"cycle_id,omitempty" yaml:"cycle_id,omitempty"`
	PeriodStart    planning.Date          `json:"period_start,omitempty" yaml:"period_start,omitempty"`
	PeriodEnd      planning.Date          `json:"period_end" yaml:"period_end"`
	ClosedAt       time.Time              `json:"closed_at" yaml:"closed_at"`
	Responsible    string                 `json:"responsible" yaml:"responsible"`
	Type           string                 `json:"type,omitempty" yaml:"type,omitempty"`
	KPIs           []KPIInput             `json:"kpis" yaml:"kpis"`
	Roadmap        RoadmapTally           `json:"roadmap" yaml:"roadmap"`
	Production     planning.Production    `json:"production" yaml:"production"`
	Execution      planning.Execution     `json:"execution" yaml:"execution"`
	Decisions      []string               `json:"decisions,omitempty" yaml:"decisions,omitempty"`
	Learnings      planning.Learnings     `json:"learnings" yaml:"learnings"`
	Observations   []planning.Observation `json:"observations,omitempty" yaml:"observations,omitempty"`
	NextPriorities []string               `json:"next_priorities,omitempty" yaml:"next_priorities,omitempty"`
}

func (s Submission) validate() error {
	if s.PeriodEnd.IsZero() {
		return &ValidationError{Field: "period_end", Reason: "is required"}
	}
	end, err := s.PeriodEnd.Time()
	if err != nil {
		return &ValidationError{Field: "period_end", Reason: err.Error()}
	}
	if !s.PeriodStart.IsZero() {
		start, err := s.PeriodStart.Time()
		if err != nil {
			return &ValidationError{Field: "period_start", Reason: err.Error()}
		}
		if start.After(end) {
			return &ValidationError{Field: "period_start", Reason: "is after period_end"}
		}
	}
	if s.ClosedAt.IsZero() {
		return &ValidationError{Field: "closed_at", Reason: "is required"}
	}
	if clean(s.Responsible) == "" {
		return &ValidationError{Field: "responsible", Reason: "is required"}
	}
	seen := make(map[string]bool, len(s.KPIs))
	for i, k := range s.KPIs {
		metric := clean(k.Metric)
		if metric == "" {
			return &ValidationError{Field: fmt.Sprintf("kpis[%d].metric", i), Reason: "is required"}
		}
		if seen[metric] {
			return &ValidationError{Field: fmt.Sprintf("kpis[%d].metric", i), Reason: fmt.Sprintf("duplicate metric %q", metric)}
		}
		seen[metric] = true
		if !finite(k.Value) || !finite(k.Goal) || k.Goal < 0 {
			return &ValidationError{Field: fmt.Sprintf("kpis[%d]", i), Reason: "value and goal must be finite and goal non-negative"}
		}
	}
	r := s.Roadmap
	if r.Total < 0 || r.Done < 0 || r.Delayed < 0 || r.Cancelled < 0 {
		return &ValidationError{Field: "roadmap", Reason: "counts must be non-negative"}
	}
	if r.Done+r.Delayed+r.Cancelled > r.Total {
		return &ValidationError{Field: "roadmap", Reason: "done + delayed + cancelled exceeds total"}
	}
	p := s.Production
	if p.Planned < 0 || p.Published < 0 || p.NotExecuted < 0 {
		return &ValidationError{Field: "production", Reason: "counts must be non-negative"}
	}
	return nil
}

// GenerateRecord validates the submission and freezes it into a record.
// Free text is NFC-normalized and trimmed; blank entries are dropped. The
// record id and hash are derived from the canonical body, so the same
// submission always yields the same record.
func GenerateRecord(sub Submission) (planning.GovernanceRecord, error) {
	if err := sub.validate(); err != nil {
		return planning.GovernanceRecord{}, err
	}

	rec := planning.GovernanceRecord{
		CycleID: clean(sub.CycleID),
		Signature: planning.Signature{
			PeriodStart: sub.PeriodStart,
			PeriodEnd:   sub.PeriodEnd,
			ClosedAt:    sub.ClosedAt.UTC(),
			Responsible: clean(sub.Responsible),
			Type:        clean(sub.Type),
		},
		KPIs:           make(map[string]planning.KPIResult, len(sub.KPIs)),
		RoadmapSummary: summarize(sub.Roadmap),
		Production:     sub.Production,
		Execution: planning.Execution{
			Impact:        clean(sub.Execution.Impact),
			TopPerformers: cleanList(sub.Execution.TopPerformers),
			LowPerformers: cleanList(sub.Execution.LowPerformers),
		},
		Decisions: cleanList(sub.Decisions),
		Learnings: planning.Learnings{
			Worked:  cleanList(sub.Learnings.Worked),
			Failed:  cleanList(sub.Learnings.Failed),
			Changes: cleanList(sub.Learnings.Changes),
			Risks:   cleanList(sub.Learnings.Risks),
		},
		NextPriorities: cleanList(sub.NextPriorities),
		GeneratedAt:    sub.ClosedAt.UTC(),
	}
	if rec.CycleID == "" {
		rec.CycleID = "cycle-" + string(sub.PeriodEnd)
	}
	if rec.Signature.Type == "" {
		rec.Signature.Type = "regular"
	}
	for _, k := range sub.KPIs {
		metric := clean(k.Metric)
		rec.KPIs[metric] = planning.KPIResult{
			Metric:      metric,
			Value:       k.Value,
			Goal:        k.Goal,
			Gap:         k.Goal - k.Value,
			Achievement: Achievement(k.Value, k.Goal),
			Unit:        clean(k.Unit),
		}
	}
	for _, o := range sub.Observations {
		text := clean(o.Text)
		if text == "" {
			continue
		}
		category := clean(o.Category)
		if category == "" {
			category = "general"
		}
		rec.Observations = append(rec.Observations, planning.Observation{Category: category, Text: text})
	}

	hash, err := Hash(rec)
	if err != nil {
		return planning.GovernanceRecord{}, err
	}
	rec.Hash = hash
	rec.ID = "ata-" + strings.TrimPrefix(hash, "sha256:")[:16]
	return rec, nil
}

// Achievement is value/goal×100, or 0 when the goal is not positive.
func Achievement(value, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return value / goal * 100
}

func summarize(t RoadmapTally) planning.RoadmapSummary {
	s := planning.RoadmapSummary{Total: t.Total, Done: t.Done, Delayed: t.Delayed, Cancelled: t.Cancelled}
	if t.Total > 0 {
		s.ExecutionRate = float64(t.Done) / float64(t.Total) * 100
	}
	return s
}

// Hash returns the canonical SHA-256 of the record body. The id and hash
// fields are excluded.
func Hash(rec planning.GovernanceRecord) (string, error) {
	rec.ID = ""
	rec.Hash = ""
	h, err := canonicalize.CanonicalHash(rec)
	if err != nil {
		return "", fmt.Errorf("governance: hash record: %w", err)
	}
	return "sha256:" + h, nil
}

// Verify recomputes the record hash.
func Verify(rec planning.GovernanceRecord) error {
	h, err := Hash(rec)
	if err != nil {
		return err
	}
	if h != rec.Hash {
		return fmt.Errorf("%w: record %s", ErrTampered, rec.ID)
	}
	return nil
}

// Summarize derives the compact digest kept per cycle.
func Summarize(rec planning.GovernanceRecord) planning.GovernanceSummary {
	s := planning.GovernanceSummary{
		CycleID:       rec.CycleID,
		RecordID:      rec.ID,
		PeriodEnd:     rec.Signature.PeriodEnd,
		ClosedAt:      rec.Signature.ClosedAt,
		ExecutionRate: rec.RoadmapSummary.ExecutionRate,
		RiskCount:     len(rec.Learnings.Risks),
		Hash:          rec.Hash,
	}
	var sum float64
	var n int
	for _, metric := range sortedMetrics(rec.KPIs) {
		if k := rec.KPIs[metric]; k.Goal > 0 {
			sum += k.Achievement
			n++
		}
	}
	if n > 0 {
		s.AverageAchievement = sum / float64(n)
	}
	return s
}

func sortedMetrics(kpis map[string]planning.KPIResult) []string {
	out := make([]string, 0, len(kpis))
	for m := range kpis {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if c := clean(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
