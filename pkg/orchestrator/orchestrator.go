// Package orchestrator drives the planning workflow of one workspace: the
// vault analysis pipeline, gap detection, the command center lifecycle and
// governance recalibration.
//
// Every operation emits an event through the dispatcher and the aggregate is
// mutated only inside the handlers subscribed to those events, so the event
// log is a complete causal record of how the state was reached. Operations on
// one orchestrator are serialized.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/artifacts"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/config"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventbus"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/observability"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkspaceID sets the aggregate id used for snapshots.
func WithWorkspaceID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.workspaceID = id
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObservability instruments operations with the given provider.
func WithObservability(p *observability.Provider) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.obs = p
		}
	}
}

// WithArchive stores superseded command centers and governance records.
func WithArchive(a *artifacts.Archive) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.archive = a
		}
	}
}

// WithProfile applies a planning profile.
func WithProfile(p *config.Profile) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.profile = p
		}
	}
}

// WithClock overrides the time source of the orchestrator and its collaborators.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator owns the planning aggregate of one workspace.
type Orchestrator struct {
	mu sync.Mutex

	workspaceID string
	profile     *config.Profile
	store       eventlog.Store
	bus         *eventbus.Bus
	weights     *weights.Manager
	readiness   *Readiness
	agents      map[string]*generator.Agent
	archive     *artifacts.Archive
	obs         *observability.Provider
	logger      *slog.Logger
	now         func() time.Time

	required     []planning.VaultID
	minAnalyzed  int
	frequency    planning.Frequency
	calendarRule planning.CalendarRule

	state   *planning.SystemState
	lastSeq uint64
	unsubs  []func()
}

// New builds an orchestrator over store, generating content with gen.
func New(store eventlog.Store, gen generator.Generator, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("orchestrator: nil event store")
	}
	if gen == nil {
		return nil, errors.New("orchestrator: nil generator")
	}
	o := &Orchestrator{
		workspaceID: "default",
		profile:     config.DefaultProfile(),
		store:       store,
		obs:         observability.Noop(),
		logger:      slog.Default().With("component", "orchestrator"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.archive == nil {
		o.archive = artifacts.NewArchive(nil)
	}
	o.logger = o.logger.With("workspace_id", o.workspaceID)

	if err := o.applyProfile(gen); err != nil {
		return nil, err
	}

	o.state = planning.NewSystemState(o.workspaceID)
	o.state.Weights = o.weights.Current()

	if err := o.subscribe(); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) applyProfile(gen generator.Generator) error {
	p := o.profile
	if err := p.Validate(); err != nil {
		return fmt.Errorf("orchestrator: profile: %w", err)
	}
	var err error
	if o.required, err = p.RequiredVaults(); err != nil {
		return err
	}
	if o.frequency, err = p.Frequency(); err != nil {
		return err
	}
	if o.calendarRule, err = p.CalendarRule(); err != nil {
		return err
	}
	o.minAnalyzed = p.Readiness.MinAnalyzedVaults

	if o.readiness, err = NewReadiness(p.Readiness.Rule); err != nil {
		return err
	}

	o.weights, err = weights.New(p.Weights,
		weights.WithPresets(p.Presets),
		weights.WithLogger(o.logger.With("subsystem", "weights")),
		weights.WithClock(o.now),
	)
	if err != nil {
		return fmt.Errorf("orchestrator: weights: %w", err)
	}

	o.agents = make(map[string]*generator.Agent, 3)
	for _, name := range generator.BuiltinNames() {
		tpl, err := generator.Builtin(name)
		if err != nil {
			return err
		}
		policy, err := generator.CompilePolicy(tpl)
		if err != nil {
			return err
		}
		if p.Generator.HighConfidence > 0 {
			policy.HighConfidence = p.Generator.HighConfidence
		}
		agent, err := generator.NewAgent(gen, tpl,
			generator.WithPolicy(policy),
			generator.WithAgentLogger(o.logger.With("subsystem", "agent", "template", name)),
			generator.WithAgentClock(o.now),
		)
		if err != nil {
			return err
		}
		o.agents[name] = agent
	}

	o.bus = eventbus.New(o.store,
		eventbus.WithSubscriberCapacity(p.Events.SubscriberCapacity),
		eventbus.WithLogger(o.logger.With("subsystem", "eventbus")),
		eventbus.WithClock(o.now),
	)
	return nil
}

func (o *Orchestrator) subscribe() error {
	handlers := []struct {
		eventType string
		handler   eventbus.Handler
	}{
		{EventVaultCompleted, o.onVaultCompleted},
		{EventVaultAnalyzed, o.onVaultAnalyzed},
		{EventGapsDetected, o.onGapsDetected},
		{EventCommandCenterGenerated, o.onCommandCenterGenerated},
		{EventCommandCenterSubmitted, o.onStatusTransition},
		{EventCommandCenterApproved, o.onStatusTransition},
		{EventCommandCenterActivated, o.onStatusTransition},
		{EventCommandCenterUpdated, o.onCommandCenterUpdated},
		{EventCommandCenterArchived, o.onCommandCenterArchived},
		{EventGovernanceRecordGenerated, o.onRecordGenerated},
		{EventRecalibrationGenerated, o.onRecalibrationGenerated},
		{EventRecalibrationApplied, o.onRecalibrationApplied},
		{EventWeightsUpdated, o.onWeightsUpdated},
		{EventCalendarContextSet, o.onCalendarContextSet},
	}
	for _, h := range handlers {
		unsub, err := o.bus.Subscribe(h.eventType, h.handler)
		if err != nil {
			return fmt.Errorf("orchestrator: subscribe %s: %w", h.eventType, err)
		}
		o.unsubs = append(o.unsubs, unsub)
	}
	unsub, err := o.bus.SubscribeAll(func(ctx context.Context, e eventlog.Event) error {
		o.obs.RecordEvent(ctx, e.EventType)
		o.logger.DebugContext(ctx, "event dispatched",
			"event_type", e.EventType,
			"sequence", e.SequenceNumber,
			"correlation_id", e.Metadata.CorrelationID,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("orchestrator: subscribe all: %w", err)
	}
	o.unsubs = append(o.unsubs, unsub)
	return nil
}

// Close detaches the orchestrator from its dispatcher.
func (o *Orchestrator) Close() {
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil
}

// WorkspaceID returns the aggregate id.
func (o *Orchestrator) WorkspaceID() string { return o.workspaceID }

// Bus returns the dispatcher, for observers. Events emitted directly on it
// bypass the orchestrator's serialization.
func (o *Orchestrator) Bus() *eventbus.Bus { return o.bus }

// Store returns the event store.
func (o *Orchestrator) Store() eventlog.Store { return o.store }

// Readiness returns the compiled readiness rule.
func (o *Orchestrator) Readiness() *Readiness { return o.readiness }

// State returns a deep copy of the aggregate.
func (o *Orchestrator) State() (*planning.SystemState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Restore replaces the aggregate with the latest snapshot of the workspace.
func (o *Orchestrator) Restore(ctx context.Context) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "restore", eventlog.Metadata{})
	defer func() { done(err) }()

	snap, err := o.store.GetSnapshot(ctx, o.workspaceID)
	if errors.Is(err, eventlog.ErrSnapshotNotFound) {
		return fmt.Errorf("%w: no snapshot for workspace %s", ErrNotFound, o.workspaceID)
	}
	if err != nil {
		return fmt.Errorf("orchestrator: load snapshot: %w", err)
	}
	state, err := planning.DecodeState(snap.State)
	if err != nil {
		return err
	}
	if err := o.weights.Restore(state.Weights, state.WeightsHistory); err != nil {
		return fmt.Errorf("orchestrator: restore weights: %w", err)
	}
	state.WorkspaceID = o.workspaceID
	o.state = state
	o.lastSeq = snap.Version
	o.logger.InfoContext(ctx, "state restored", "version", snap.Version)
	return nil
}

// track wraps an operation in a span and RED metrics.
func (o *Orchestrator) track(ctx context.Context, op string, meta eventlog.Metadata) (context.Context, func(error)) {
	attrs := observability.WorkspaceOperation(o.workspaceID, meta.CorrelationID)
	return o.obs.TrackOperation(ctx, "orchestrator."+op, attrs...)
}

// emit publishes a typed payload and returns the handler error, if any,
// without dispatcher wrapping.
func (o *Orchestrator) emit(ctx context.Context, eventType string, payload any, meta eventlog.Metadata) (*eventlog.Event, error) {
	m, err := toPayload(payload)
	if err != nil {
		return nil, err
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}
	meta.WorkspaceID = o.workspaceID
	ev, err := o.bus.Emit(ctx, eventType, m, meta)
	if err != nil {
		return ev, cause(err)
	}
	observability.AddSpanEvent(ctx, eventType, attribute.Int64("bravvo.event.sequence", int64(ev.SequenceNumber)))
	return ev, nil
}

// commit saves a snapshot of the aggregate after a handler mutated it. A
// failed snapshot is logged; the event log stays authoritative.
func (o *Orchestrator) commit(ctx context.Context, e eventlog.Event) {
	if e.SequenceNumber > o.lastSeq {
		o.lastSeq = e.SequenceNumber
	}
	raw, err := json.Marshal(o.state)
	if err != nil {
		o.logger.ErrorContext(ctx, "snapshot encode failed", "event_type", e.EventType, "error", err)
		return
	}
	err = o.store.SaveSnapshot(ctx, eventlog.Snapshot{
		AggregateID: o.workspaceID,
		State:       raw,
		Version:     o.lastSeq,
		CreatedAt:   o.now(),
	})
	if err != nil {
		o.logger.WarnContext(ctx, "snapshot save failed", "event_type", e.EventType, "error", err)
	}
}

// stepFailed records a collaborator failure and returns it as a CollaboratorError.
func (o *Orchestrator) stepFailed(ctx context.Context, step string, vault planning.VaultID, res generator.Result, meta eventlog.Metadata) error {
	failure := &CollaboratorError{
		Step:        step,
		Template:    res.Template,
		ExecutionID: res.ExecutionID,
		Timestamp:   res.Timestamp,
		Err:         res.Err,
	}
	if failure.Err == nil {
		failure.Err = errors.New(res.Error)
	}
	_, err := o.emit(ctx, EventStepFailed, stepFailedPayload{
		Step:        step,
		Template:    res.Template,
		VaultID:     vault,
		ExecutionID: res.ExecutionID,
		Error:       res.Error,
		FailedAt:    res.Timestamp,
	}, meta)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record step failure", "step", step, "error", err)
	}
	return failure
}
