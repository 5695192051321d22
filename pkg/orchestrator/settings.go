package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Weights returns the current coefficients.
func (o *Orchestrator) Weights() weights.Weights {
	return o.weights.Current()
}

// WeightsHistory returns every applied weights change, oldest first.
func (o *Orchestrator) WeightsHistory() []weights.HistoryEntry {
	return o.weights.History()
}

// WeightPresets lists the available preset names.
func (o *Orchestrator) WeightPresets() []string {
	return o.weights.Presets()
}

// UpdateWeights merges partial into the current weights. An update that
// breaks the sum rule is rejected with *weights.ValidationError.
func (o *Orchestrator) UpdateWeights(ctx context.Context, partial weights.Partial, reason string, meta eventlog.Metadata) (_ weights.Weights, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "update_weights", meta)
	defer func() { done(err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual update"
	}
	return o.setWeights(ctx, partial.Apply(o.weights.Current()), reason, meta)
}

// ApplyWeightsPreset replaces the weights with a named preset.
func (o *Orchestrator) ApplyWeightsPreset(ctx context.Context, name string, meta eventlog.Metadata) (_ weights.Weights, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "apply_weights_preset", meta)
	defer func() { done(err) }()

	w, ok := o.weights.Preset(name)
	if !ok {
		return weights.Weights{}, fmt.Errorf("%w: %q", weights.ErrUnknownPreset, name)
	}
	return o.setWeights(ctx, w, "preset: "+name, meta)
}

func (o *Orchestrator) setWeights(ctx context.Context, next weights.Weights, reason string, meta eventlog.Metadata) (weights.Weights, error) {
	if err := next.Validate(); err != nil {
		return weights.Weights{}, err
	}
	_, err := o.emit(ctx, EventWeightsUpdated, weightsUpdatedPayload{
		Previous: o.weights.Current(),
		Current:  next,
		Reason:   reason,
	}, meta)
	if err != nil {
		return weights.Weights{}, err
	}
	return o.weights.Current(), nil
}

func (o *Orchestrator) onWeightsUpdated(ctx context.Context, e eventlog.Event) error {
	var p weightsUpdatedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if _, err := o.weights.Update(weights.Full(p.Current), p.Reason); err != nil {
		return err
	}
	o.state.Weights = o.weights.Current()
	o.state.WeightsHistory = o.weights.History()
	o.commit(ctx, e)
	return nil
}

// SetCalendarContext replaces the seasonal and scheduling context.
func (o *Orchestrator) SetCalendarContext(ctx context.Context, cal planning.CalendarContext, meta eventlog.Metadata) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ctx, done := o.track(ctx, "set_calendar_context", meta)
	defer func() { done(err) }()

	if cal.Timezone != "" {
		if _, err := time.LoadLocation(cal.Timezone); err != nil {
			return &ValidationError{Field: "timezone", Reason: err.Error()}
		}
	}
	for i, kd := range cal.KeyDates {
		if strings.TrimSpace(kd.Title) == "" {
			return &ValidationError{Field: fmt.Sprintf("key_dates[%d].title", i), Reason: "is required"}
		}
		if _, err := kd.Date.Time(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("key_dates[%d].date", i), Reason: err.Error()}
		}
	}
	_, err = o.emit(ctx, EventCalendarContextSet, calendarContextPayload{CalendarContext: cal}, meta)
	return err
}

func (o *Orchestrator) onCalendarContextSet(ctx context.Context, e eventlog.Event) error {
	var p calendarContextPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	cal := p.CalendarContext
	o.state.CalendarContext = &cal
	o.commit(ctx, e)
	return nil
}

// CalculateInfluence fuses signals with the current weights.
func (o *Orchestrator) CalculateInfluence(signals []weights.Signal) (weights.Influence, error) {
	return o.weights.CalculateInfluence(signals)
}

// GenerateRecommendation resolves signals into a direction. A threshold of
// zero or less uses weights.DefaultThreshold.
func (o *Orchestrator) GenerateRecommendation(signals []weights.Signal, threshold float64) (weights.Recommendation, error) {
	if threshold <= 0 {
		threshold = weights.DefaultThreshold
	}
	return o.weights.GenerateRecommendation(signals, threshold)
}

// WeightRangeViolations lists current coefficients outside their soft ranges.
func (o *Orchestrator) WeightRangeViolations() []weights.RangeViolation {
	return o.weights.RangeViolations()
}
