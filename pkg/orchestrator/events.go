package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/versioning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Event types emitted by the orchestrator.
const (
	EventVaultCompleted            = "vault.completed"
	EventVaultAnalyzed             = "vault.analyzed"
	EventGapsDetected              = "gaps.detected"
	EventStepFailed                = "workflow.step_failed"
	EventCommandCenterGenerated    = "command_center.generated"
	EventCommandCenterSubmitted    = "command_center.submitted"
	EventGenerationBlocked         = "command_center.generation_blocked"
	EventCommandCenterApproved     = "command_center.approved"
	EventCommandCenterActivated    = "command_center.activated"
	EventCommandCenterUpdated      = "command_center.updated"
	EventCommandCenterArchived     = "command_center.archived"
	EventGovernanceRecordGenerated = "governance.record_generated"
	EventRecalibrationGenerated    = "recalibration.generated"
	EventRecalibrationApplied      = "recalibration.applied"
	EventWeightsUpdated            = "weights.updated"
	EventCalendarContextSet        = "calendar.context_set"
)

// Pipeline steps named in workflow.step_failed events.
const (
	StepVaultAnalysis = "vault_analysis"
	StepGapDetection  = "gap_detection"
	StepCommandCenter = "command_center"
)

type vaultCompletedPayload struct {
	VaultID planning.VaultID `json:"vault_id"`
	Content planning.Content `json:"content"`
}

type vaultAnalyzedPayload struct {
	VaultID  planning.VaultID  `json:"vault_id"`
	Analysis planning.Analysis `json:"analysis"`
}

type gapsDetectedPayload struct {
	EntityType    string             `json:"entity_type"`
	EntityID      string             `json:"entity_id"`
	HealthScore   float64            `json:"health_score"`
	CriticalCount int                `json:"critical_count"`
	Ready         bool               `json:"ready"`
	Report        planning.GapReport `json:"report"`
}

type stepFailedPayload struct {
	Step        string           `json:"step"`
	Template    string           `json:"template"`
	VaultID     planning.VaultID `json:"vault_id,omitempty"`
	ExecutionID string           `json:"execution_id"`
	Error       string           `json:"error"`
	FailedAt    time.Time        `json:"failed_at"`
}

type generationBlockedPayload struct {
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Reason      string         `json:"reason"`
	HealthScore float64        `json:"health_score"`
	Gaps        []planning.Gap `json:"gaps"`
	Questions   []string       `json:"questions,omitempty"`
}

type commandCenterPayload struct {
	CommandCenterID string                 `json:"command_center_id"`
	Version         versioning.Version     `json:"version"`
	CommandCenter   planning.CommandCenter `json:"command_center"`
}

type transitionPayload struct {
	CommandCenterID string             `json:"command_center_id"`
	Version         versioning.Version `json:"version"`
	From            planning.Status    `json:"from"`
	To              planning.Status    `json:"to"`
	Actor           string             `json:"actor,omitempty"`
}

type commandCenterUpdatedPayload struct {
	CommandCenterID string                     `json:"command_center_id"`
	PreviousVersion versioning.Version         `json:"previous_version"`
	Version         versioning.Version         `json:"version"`
	Edit            planning.CommandCenterEdit `json:"edit"`
}

type commandCenterArchivedPayload struct {
	CommandCenterID string                 `json:"command_center_id"`
	Version         versioning.Version     `json:"version"`
	ArchiveRef      string                 `json:"archive_ref,omitempty"`
	ReplacedBy      string                 `json:"replaced_by"`
	CommandCenter   planning.CommandCenter `json:"command_center"`
}

type recordGeneratedPayload struct {
	CycleID  string                    `json:"cycle_id"`
	RecordID string                    `json:"record_id"`
	Hash     string                    `json:"hash"`
	Record   planning.GovernanceRecord `json:"record"`
}

type recalibrationGeneratedPayload struct {
	PlanID string                     `json:"plan_id"`
	Plan   planning.RecalibrationPlan `json:"plan"`
}

type recalibrationAppliedPayload struct {
	PlanID                  string                 `json:"plan_id"`
	PreviousCommandCenterID string                 `json:"previous_command_center_id"`
	PreviousVersion         versioning.Version     `json:"previous_version"`
	Version                 versioning.Version     `json:"version"`
	ApprovedBy              string                 `json:"approved_by"`
	CommandCenter           planning.CommandCenter `json:"command_center"`
}

type weightsUpdatedPayload struct {
	Previous weights.Weights `json:"previous"`
	Current  weights.Weights `json:"current"`
	Reason   string          `json:"reason"`
}

type calendarContextPayload struct {
	CalendarContext planning.CalendarContext `json:"calendar_context"`
}

// toPayload converts a typed payload into the event map form.
func toPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encode payload: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("orchestrator: encode payload: %w", err)
	}
	return out, nil
}
