package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

var errInvalidQuery = errors.New("workspace: invalid event query")

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceClock overrides the error timestamp source.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service exposes the workspace operations.
type Service struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewService returns a service over registry.
func NewService(registry *Registry, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With("component", "workspace_service")
	return s
}

// Registry returns the underlying registry.
func (s *Service) Registry() *Registry { return s.registry }

// call resolves the workspace and runs fn, converting errors and panics
// into a failed envelope.
func call[T any](ctx context.Context, s *Service, workspaceID, op string, fn func(context.Context, *orchestrator.Orchestrator) (T, error)) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "operation panicked", "operation", op, "workspace_id", workspaceID, "panic", r)
			env = Envelope{Error: classify(fmt.Errorf("panic: %v", r), s.now())}
		}
	}()

	orch, err := s.registry.Get(ctx, workspaceID)
	if err == nil {
		var data T
		data, err = fn(ctx, orch)
		if err == nil {
			return Envelope{Success: true, Data: data}
		}
	}

	e := classify(err, s.now())
	attrs := []any{"operation", op, "workspace_id", workspaceID, "code", e.Code, "error", err}
	if e.Code == CodeInternal {
		s.logger.ErrorContext(ctx, "operation failed", attrs...)
	} else {
		s.logger.WarnContext(ctx, "operation rejected", attrs...)
	}
	return Envelope{Error: e}
}

// MarkVaultComplete stores and analyzes a vault.
func (s *Service) MarkVaultComplete(ctx context.Context, workspaceID, vault string, content planning.Content, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "mark_vault_complete", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.Analysis, error) {
		return o.MarkVaultComplete(ctx, vault, content, meta)
	})
}

// DetectGaps runs gap detection.
func (s *Service) DetectGaps(ctx context.Context, workspaceID string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "detect_gaps", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.GapReport, error) {
		return o.DetectGaps(ctx, meta)
	})
}

// SetCalendarContext replaces the calendar context.
func (s *Service) SetCalendarContext(ctx context.Context, workspaceID string, cal planning.CalendarContext, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "set_calendar_context", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CalendarContext, error) {
		return cal, o.SetCalendarContext(ctx, cal, meta)
	})
}

// GenerateCommandCenter generates and submits a command center.
func (s *Service) GenerateCommandCenter(ctx context.Context, workspaceID string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "generate_command_center", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CommandCenter, error) {
		return o.GenerateCommandCenter(ctx, meta)
	})
}

// ApproveCommandCenter approves the command center under review.
func (s *Service) ApproveCommandCenter(ctx context.Context, workspaceID, approver string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "approve_command_center", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CommandCenter, error) {
		return o.ApproveCommandCenter(ctx, approver, meta)
	})
}

// ActivateCommandCenter activates the approved command center.
func (s *Service) ActivateCommandCenter(ctx context.Context, workspaceID string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "activate_command_center", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CommandCenter, error) {
		return o.ActivateCommandCenter(ctx, meta)
	})
}

// UpdateCommandCenter edits the current command center.
func (s *Service) UpdateCommandCenter(ctx context.Context, workspaceID string, edit planning.CommandCenterEdit, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "update_command_center", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CommandCenter, error) {
		return o.UpdateCommandCenter(ctx, edit, meta)
	})
}

// CompleteGovernanceCycle records a governance cycle.
func (s *Service) CompleteGovernanceCycle(ctx context.Context, workspaceID string, sub governance.Submission, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "complete_governance_cycle", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.GovernanceRecord, error) {
		return o.CompleteGovernanceCycle(ctx, sub, meta)
	})
}

// Recalibrate derives the next cycle's plan.
func (s *Service) Recalibrate(ctx context.Context, workspaceID string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "recalibrate", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.RecalibrationPlan, error) {
		return o.Recalibrate(ctx, meta)
	})
}

// ApplyRecalibration applies the pending plan.
func (s *Service) ApplyRecalibration(ctx context.Context, workspaceID, planID, approver string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "apply_recalibration", func(ctx context.Context, o *orchestrator.Orchestrator) (planning.CommandCenter, error) {
		return o.ApplyRecalibration(ctx, planID, approver, meta)
	})
}

// WeightsView is the weights read model.
type WeightsView struct {
	Current         weights.Weights          `json:"current"`
	History         []weights.HistoryEntry   `json:"history"`
	Presets         []string                 `json:"presets"`
	RangeViolations []weights.RangeViolation `json:"range_violations,omitempty"`
}

// GetWeights returns the current weights with their history.
func (s *Service) GetWeights(ctx context.Context, workspaceID string) Envelope {
	return call(ctx, s, workspaceID, "get_weights", func(ctx context.Context, o *orchestrator.Orchestrator) (WeightsView, error) {
		return weightsView(o), nil
	})
}

// UpdateWeights merges a partial update.
func (s *Service) UpdateWeights(ctx context.Context, workspaceID string, partial weights.Partial, reason string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "update_weights", func(ctx context.Context, o *orchestrator.Orchestrator) (WeightsView, error) {
		if _, err := o.UpdateWeights(ctx, partial, reason, meta); err != nil {
			return WeightsView{}, err
		}
		return weightsView(o), nil
	})
}

// ApplyWeightsPreset switches to a named preset.
func (s *Service) ApplyWeightsPreset(ctx context.Context, workspaceID, preset string, meta eventlog.Metadata) Envelope {
	return call(ctx, s, workspaceID, "apply_weights_preset", func(ctx context.Context, o *orchestrator.Orchestrator) (WeightsView, error) {
		if _, err := o.ApplyWeightsPreset(ctx, preset, meta); err != nil {
			return WeightsView{}, err
		}
		return weightsView(o), nil
	})
}

func weightsView(o *orchestrator.Orchestrator) WeightsView {
	return WeightsView{
		Current:         o.Weights(),
		History:         o.WeightsHistory(),
		Presets:         o.WeightPresets(),
		RangeViolations: o.WeightRangeViolations(),
	}
}

// GetState returns a copy of the workspace aggregate.
func (s *Service) GetState(ctx context.Context, workspaceID string) Envelope {
	return call(ctx, s, workspaceID, "get_state", func(ctx context.Context, o *orchestrator.Orchestrator) (*planning.SystemState, error) {
		return o.State()
	})
}

// EventQuery selects events by exactly one of type, correlation or entity.
type EventQuery struct {
	Type          string    `json:"type,omitempty" yaml:"type,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	EntityType    string    `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	EntityID      string    `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Limit         int       `json:"limit,omitempty" yaml:"limit,omitempty"`
	Since         time.Time `json:"since,omitempty" yaml:"since,omitempty"`
}

func (q EventQuery) validate() error {
	selectors := 0
	if q.Type != "" {
		selectors++
	}
	if q.CorrelationID != "" {
		selectors++
	}
	if q.EntityType != "" || q.EntityID != "" {
		if q.EntityType == "" || q.EntityID == "" {
			return fmt.Errorf("%w: entity queries need entity_type and entity_id", errInvalidQuery)
		}
		selectors++
	}
	if selectors != 1 {
		return fmt.Errorf("%w: set exactly one of type, correlation_id or entity", errInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must be non-negative", errInvalidQuery)
	}
	return nil
}

// GetEvents queries the workspace event log.
func (s *Service) GetEvents(ctx context.Context, workspaceID string, q EventQuery) Envelope {
	return call(ctx, s, workspaceID, "get_events", func(ctx context.Context, o *orchestrator.Orchestrator) ([]eventlog.Event, error) {
		if err := q.validate(); err != nil {
			return nil, err
		}
		store := o.Store()
		switch {
		case q.Type != "":
			return store.FindByType(ctx, q.Type, eventlog.QueryOptions{Limit: q.Limit, Since: q.Since})
		case q.CorrelationID != "":
			return store.FindByCorrelation(ctx, q.CorrelationID)
		default:
			return store.FindByEntity(ctx, q.EntityType, q.EntityID)
		}
	})
}

// GetEventStats summarizes the workspace event log.
func (s *Service) GetEventStats(ctx context.Context, workspaceID string) Envelope {
	return call(ctx, s, workspaceID, "get_event_stats", func(ctx context.Context, o *orchestrator.Orchestrator) (eventlog.Stats, error) {
		return o.Store().Stats(ctx)
	})
}
