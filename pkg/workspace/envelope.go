package workspace

import (
	"errors"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Code classifies a failed operation.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeGated             Code = "gated"
	CodeCollaborator      Code = "collaborator"
	CodeNotFound          Code = "not_found"
	CodeInvalidTransition Code = "invalid_transition"
	CodeInternal          Code = "internal"
)

// Error is the failure half of an Envelope.
type Error struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Envelope is the result of every Service call.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

const internalMessage = "an unexpected error occurred"

// classify maps an operation error onto the envelope error. Internal errors
// keep their detail out of the message.
func classify(err error, now time.Time) *Error {
	out := &Error{Message: err.Error(), Timestamp: now}

	var (
		gate   *orchestrator.GatingError
		collab *orchestrator.CollaboratorError
		oval   *orchestrator.ValidationError
		gval   *governance.ValidationError
		wval   *weights.ValidationError
	)
	switch {
	case errors.As(err, &gate):
		out.Code = CodeGated
		out.Details = map[string]any{
			"report_id":    gate.ReportID,
			"reason":       gate.Reason,
			"health_score": gate.HealthScore,
			"gaps":         gate.Gaps,
			"questions":    gate.Questions,
		}
	case errors.As(err, &collab):
		out.Code = CodeCollaborator
		out.ExecutionID = collab.ExecutionID
		if !collab.Timestamp.IsZero() {
			out.Timestamp = collab.Timestamp
		}
		out.Details = map[string]any{"step": collab.Step, "template": collab.Template}
	case errors.As(err, &oval):
		out.Code = CodeValidation
		out.Details = map[string]any{"field": oval.Field}
	case errors.As(err, &gval):
		out.Code = CodeValidation
		out.Details = map[string]any{"field": gval.Field}
	case errors.As(err, &wval):
		out.Code = CodeValidation
		out.Details = map[string]any{"field": wval.Field}
	case errors.Is(err, weights.ErrUnknownPreset), errors.Is(err, ErrInvalidWorkspace), errors.Is(err, errInvalidQuery):
		out.Code = CodeValidation
	case errors.Is(err, orchestrator.ErrNotFound),
		errors.Is(err, orchestrator.ErrNoCommandCenter),
		errors.Is(err, orchestrator.ErrNoGovernanceCycle):
		out.Code = CodeNotFound
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		out.Code = CodeInvalidTransition
	default:
		out.Code = CodeInternal
		out.Message = internalMessage
	}
	return out
}
