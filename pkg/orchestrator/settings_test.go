package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

func ptr(v float64) *float64 { return &v }

func TestUpdateWeights(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.UpdateWeights(ctx, weights.Partial{Vaults: ptr(0.6)}, "mais vaults", eventlog.Metadata{})
	var verr *weights.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, weights.Default, h.orch.Weights())
	assert.Empty(t, h.orch.WeightsHistory())

	got, err := h.orch.UpdateWeights(ctx, weights.Partial{Vaults: ptr(0.5), Calendario: ptr(0)}, "", eventlog.Metadata{})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Vaults, 1e-9)
	assert.InDelta(t, 0.0, got.Calendario, 1e-9)

	history := h.orch.WeightsHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "manual update", history[0].Reason)
	assert.Equal(t, weights.Default, history[0].Previous)

	events, err := h.store.FindByType(ctx, orchestrator.EventWeightsUpdated, eventlog.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	state, err := h.orch.State()
	require.NoError(t, err)
	assert.Equal(t, got, state.Weights)
	assert.Len(t, state.WeightsHistory, 1)
}

func TestApplyWeightsPreset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Contains(t, h.orch.WeightPresets(), "seasonal")

	got, err := h.orch.ApplyWeightsPreset(ctx, "seasonal", eventlog.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, weights.BuiltinPresets["seasonal"], got)
	assert.Equal(t, "preset: seasonal", h.orch.WeightsHistory()[0].Reason)

	_, err = h.orch.ApplyWeightsPreset(ctx, "aggressive", eventlog.Metadata{})
	require.ErrorIs(t, err, weights.ErrUnknownPreset)
}

func TestGenerateRecommendation_UsesCurrentWeights(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.UpdateWeights(context.Background(), weights.Partial{
		Vaults: ptr(0.5), Governanca: ptr(0.3), Performance: ptr(0.1), Calendario: ptr(0.1),
	}, "example", eventlog.Metadata{})
	require.NoError(t, err)

	rec, err := h.orch.GenerateRecommendation([]weights.Signal{
		{Source: weights.SourceVaults, Strength: 0.8, Direction: weights.DirectionIncrease},
		{Source: weights.SourcePerformance, Strength: 0.9, Direction: weights.DirectionDecrease},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, weights.DirectionIncrease, rec.Action)
	assert.InDelta(t, 0.40, rec.Strengths[weights.DirectionIncrease], 1e-9)
	assert.InDelta(t, 0.09, rec.Strengths[weights.DirectionDecrease], 1e-9)
	assert.False(t, rec.RequiresHumanDecision)

	inf, err := h.orch.CalculateInfluence([]weights.Signal{{Source: weights.SourceGovernanca, Strength: 1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, inf.Total, 1e-9)
	assert.Equal(t, weights.SourceGovernanca, inf.DominantSource)
}

func TestSetCalendarContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.orch.SetCalendarContext(ctx, planning.CalendarContext{Timezone: "Mars/Olympus"}, eventlog.Metadata{})
	var verr *orchestrator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "timezone", verr.Field)

	err = h.orch.SetCalendarContext(ctx, planning.CalendarContext{
		KeyDates: []planning.CalendarEvent{{Title: "natal", Date: "25/12/2024"}},
	}, eventlog.Metadata{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "key_dates[0].date", verr.Field)

	cal := planning.CalendarContext{
		Timezone:    "UTC",
		KeyDates:    []planning.CalendarEvent{{Title: "natal", Date: "2024-12-25"}},
		Seasonality: []string{"fim de ano"},
	}
	require.NoError(t, h.orch.SetCalendarContext(ctx, cal, eventlog.Metadata{}))

	state, err := h.orch.State()
	require.NoError(t, err)
	require.NotNil(t, state.CalendarContext)
	assert.Equal(t, cal, *state.CalendarContext)
}
