package weights

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"default", Default, false},
		{"within tolerance", Weights{Vaults: 0.4, Governanca: 0.3, Performance: 0.2, Calendario: 0.105}, false},
		{"at tolerance edge", Weights{Vaults: 0.4, Governanca: 0.3, Performance: 0.2, Calendario: 0.11}, false},
		{"sum too high", Weights{Vaults: 0.5, Governanca: 0.3, Performance: 0.2, Calendario: 0.1}, true},
		{"sum too low", Weights{Vaults: 0.1, Governanca: 0.1, Performance: 0.1, Calendario: 0.1}, true},
		{"negative", Weights{Vaults: 1.1, Governanca: -0.1, Performance: 0, Calendario: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.weights)
			if tt.wantErr {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestManager_UpdateKeepsStateOnFailure(t *testing.T) {
	m, err := New(Default)
	require.NoError(t, err)

	_, err = m.Update(Partial{Vaults: ptr(0.9)}, "too much")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, Default, m.Current())
	assert.Empty(t, m.History())

	entry, err := m.Update(Partial{Vaults: ptr(0.5), Calendario: ptr(0.0)}, "focus on vaults")
	require.NoError(t, err)
	assert.Equal(t, Default, entry.Previous)
	assert.Equal(t, Weights{Vaults: 0.5, Governanca: 0.3, Performance: 0.2, Calendario: 0}, m.Current())
	assert.Len(t, m.History(), 1)
	assert.Equal(t, "focus on vaults", m.History()[0].Reason)
}

func TestManager_ApplyPreset(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m, err := New(Default, WithClock(func() time.Time { return fixed }),
		WithPresets(map[string]Weights{"launch": {Vaults: 0.5, Governanca: 0.2, Performance: 0.2, Calendario: 0.1}}))
	require.NoError(t, err)

	entry, err := m.ApplyPreset("data_driven")
	require.NoError(t, err)
	assert.Equal(t, "preset: data_driven", entry.Reason)
	assert.Equal(t, fixed, entry.Timestamp)
	assert.Equal(t, BuiltinPresets["data_driven"], m.Current())

	_, err = m.ApplyPreset("launch")
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.Current().Vaults)

	_, err = m.ApplyPreset("nope")
	require.True(t, errors.Is(err, ErrUnknownPreset))
	assert.Len(t, m.History(), 2)
	assert.Contains(t, m.Presets(), "seasonal")
}

func TestNew_RejectsInvalidPreset(t *testing.T) {
	_, err := New(Default, WithPresets(map[string]Weights{"broken": {Vaults: 1, Governanca: 1}}))
	require.Error(t, err)
}

func TestManager_SoftRangeWarnsOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m, err := New(Weights{Vaults: 0.7, Governanca: 0.1, Performance: 0.1, Calendario: 0.1}, WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "weight outside recommended range")
	require.Len(t, m.RangeViolations(), 1)
	assert.Equal(t, SourceVaults, m.RangeViolations()[0].Source)
}

func TestCalculateInfluence(t *testing.T) {
	t.Run("single full-strength signal equals weight", func(t *testing.T) {
		for _, s := range Sources {
			inf, err := CalculateInfluence(Default, []Signal{{Source: s, Strength: 1}})
			require.NoError(t, err)
			assert.Equal(t, Default.Get(s), inf.Total)
			assert.Equal(t, Default.Get(s), inf.Contributions[0].Weighted)
			assert.Equal(t, s, inf.DominantSource)
		}
	})

	t.Run("breakdown", func(t *testing.T) {
		inf, err := CalculateInfluence(Default, []Signal{
			{Source: SourceVaults, Strength: 0.5},
			{Source: SourcePerformance, Strength: 1},
			{Source: SourcePerformance, Strength: 0.5},
			{Source: SourceCalendario, Strength: 3},
		})
		require.NoError(t, err)
		require.Len(t, inf.Contributions, 4)
		assert.InDelta(t, 0.2, inf.BySource[SourceVaults], 1e-9)
		assert.InDelta(t, 0.3, inf.BySource[SourcePerformance], 1e-9)
		assert.InDelta(t, 0.1, inf.BySource[SourceCalendario], 1e-9, "strength is clamped to 1")
		assert.InDelta(t, 0.6, inf.Total, 1e-9)
		assert.Equal(t, SourcePerformance, inf.DominantSource)
	})

	t.Run("ties go to canonical order", func(t *testing.T) {
		w := Weights{Vaults: 0.25, Governanca: 0.25, Performance: 0.25, Calendario: 0.25}
		inf, err := CalculateInfluence(w, []Signal{{Source: SourcePerformance, Strength: 1}, {Source: SourceGovernanca, Strength: 1}})
		require.NoError(t, err)
		assert.Equal(t, SourceGovernanca, inf.DominantSource)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := CalculateInfluence(Default, []Signal{{Source: "gut", Strength: 1}})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestGenerateRecommendation(t *testing.T) {
	w := Weights{Vaults: 0.5, Governanca: 0.3, Performance: 0.1, Calendario: 0.1}

	t.Run("clear winner", func(t *testing.T) {
		rec, err := GenerateRecommendation(w, []Signal{
			{Source: SourceVaults, Strength: 0.8, Direction: DirectionIncrease},
			{Source: SourcePerformance, Strength: 0.9, Direction: DirectionDecrease},
		}, 0)
		require.NoError(t, err)
		assert.Equal(t, DirectionIncrease, rec.Action)
		assert.InDelta(t, 0.40, rec.Strengths[DirectionIncrease], 1e-9)
		assert.InDelta(t, 0.09, rec.Strengths[DirectionDecrease], 1e-9)
		assert.False(t, rec.RequiresHumanDecision)
		assert.False(t, rec.ThresholdMet)
		assert.Equal(t, DefaultThreshold, rec.Threshold)
	})

	t.Run("divergence requires a human", func(t *testing.T) {
		rec, err := GenerateRecommendation(w, []Signal{
			{Source: SourceVaults, Strength: 1, Direction: DirectionIncrease},
			{Source: SourceGovernanca, Strength: 1, Direction: DirectionDecrease},
			{Source: SourcePerformance, Strength: 1, Direction: DirectionDecrease},
		}, 0.3)
		require.NoError(t, err)
		assert.Equal(t, DirectionIncrease, rec.Action)
		assert.InDelta(t, 0.4, rec.SecondStrength, 1e-9)
		assert.True(t, rec.ThresholdMet)
		assert.True(t, rec.RequiresHumanDecision)
	})

	t.Run("no directional signals", func(t *testing.T) {
		rec, err := GenerateRecommendation(w, []Signal{{Source: SourceVaults, Strength: 1}}, 0)
		require.NoError(t, err)
		assert.Equal(t, DirectionMaintain, rec.Action)
		assert.Zero(t, rec.MaxStrength)
		assert.False(t, rec.RequiresHumanDecision)
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, err := GenerateRecommendation(w, []Signal{{Source: SourceVaults, Strength: 1, Direction: "sideways"}}, 0)
		require.Error(t, err)
	})
}
