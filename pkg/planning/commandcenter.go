package planning

import (
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/versioning"
)

// Status is the lifecycle state of a command center.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusActive        Status = "active"
	StatusArchived      Status = "archived"
)

// CanTransition reports whether from → to is a legal lifecycle step.
// Approved may also be entered from active when a recalibration is applied,
// which is modeled as a new command center rather than a transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusPendingReview || to == StatusArchived
	case StatusPendingReview:
		return to == StatusApproved || to == StatusArchived
	case StatusApproved:
		return to == StatusActive || to == StatusArchived
	case StatusActive:
		return to == StatusArchived
	default:
		return false
	}
}

// KPI is a tracked metric with a target.
type KPI struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Metric   string  `json:"metric"`
	Target   float64 `json:"target"`
	Baseline float64 `json:"baseline,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	VaultID  VaultID `json:"vault_id,omitempty"`
}

// RoadmapStatus is the progress of a roadmap item.
type RoadmapStatus string

const (
	RoadmapDraft      RoadmapStatus = "draft"
	RoadmapPending    RoadmapStatus = "pending"
	RoadmapInProgress RoadmapStatus = "in_progress"
	RoadmapDone       RoadmapStatus = "done"
	RoadmapDelayed    RoadmapStatus = "delayed"
	RoadmapCancelled  RoadmapStatus = "cancelled"
)

// Valid reports whether s is a known roadmap status.
func (s RoadmapStatus) Valid() bool {
	switch s {
	case RoadmapDraft, RoadmapPending, RoadmapInProgress, RoadmapDone, RoadmapDelayed, RoadmapCancelled:
		return true
	}
	return false
}

// RoadmapItem is one planned initiative.
type RoadmapItem struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	VaultID       VaultID       `json:"vault_id,omitempty"`
	Status        RoadmapStatus `json:"status"`
	ScheduledDate Date          `json:"scheduled_date,omitempty"`
	Owner         string        `json:"owner,omitempty"`
}

// CalendarEvent is a dated publication or milestone.
type CalendarEvent struct {
	ID      string  `json:"id,omitempty" yaml:"id,omitempty"`
	Title   string  `json:"title" yaml:"title"`
	Date    Date    `json:"date" yaml:"date"`
	Channel string  `json:"channel,omitempty" yaml:"channel,omitempty"`
	VaultID VaultID `json:"vault_id,omitempty" yaml:"vault_id,omitempty"`
}

// ChecklistItem is a validation step a reviewer ticks off.
type ChecklistItem struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Description string `json:"description" yaml:"description"`
	Done        bool   `json:"done" yaml:"done"`
}

// CommandCenter is the operating plan: KPIs, roadmap and calendar.
type CommandCenter struct {
	ID                  string             `json:"id"`
	Version             versioning.Version `json:"version"`
	Status              Status             `json:"status"`
	KPIs                []KPI              `json:"kpis"`
	Roadmap             []RoadmapItem      `json:"roadmap"`
	Calendar            []CalendarEvent    `json:"calendar"`
	ValidationChecklist []ChecklistItem    `json:"validation_checklist"`
	SourceMapping       map[string]string  `json:"source_mapping,omitempty"`
	Warnings            []string           `json:"warnings,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	ApprovedBy          string             `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time         `json:"approved_at,omitempty"`
	RecalibrationID     string             `json:"recalibration_id,omitempty"`
	ArchiveRef          string             `json:"archive_ref,omitempty"`
}

// KPI returns the KPI tracking metric, if any.
func (c CommandCenter) KPI(metric string) (KPI, bool) {
	for _, k := range c.KPIs {
		if k.Metric == metric {
			return k, true
		}
	}
	return KPI{}, false
}

// CommandCenterEdit is an in-place edit. Nil slices and maps leave the
// corresponding part untouched.
type CommandCenterEdit struct {
	KPITargets          map[string]float64       `json:"kpi_targets,omitempty" yaml:"kpi_targets,omitempty"`
	RoadmapStatus       map[string]RoadmapStatus `json:"roadmap_status,omitempty" yaml:"roadmap_status,omitempty"`
	Calendar            []CalendarEvent          `json:"calendar,omitempty" yaml:"calendar,omitempty"`
	ValidationChecklist []ChecklistItem          `json:"validation_checklist,omitempty" yaml:"validation_checklist,omitempty"`
	Reason              string                   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// IsEmpty reports whether the edit changes nothing.
func (e CommandCenterEdit) IsEmpty() bool {
	return len(e.KPITargets) == 0 && len(e.RoadmapStatus) == 0 && e.Calendar == nil && e.ValidationChecklist == nil
}
