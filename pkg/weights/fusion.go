package weights

import (
	"fmt"
	"math"
)

// Direction is the change a signal argues for.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionMaintain Direction = "maintain"
)

// Directions in tie-break order.
var Directions = []Direction{DirectionIncrease, DirectionDecrease, DirectionMaintain}

// DefaultThreshold is the recommendation threshold used when none is given.
const DefaultThreshold = 0.5

// DivergenceRatio is the runner-up share of the top strength above which a
// recommendation is handed to a human.
const DivergenceRatio = 0.7

// Signal is one piece of evidence from a source.
type Signal struct {
	Source      Source    `json:"source" yaml:"source"`
	Strength    float64   `json:"strength" yaml:"strength"`
	Direction   Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Contribution is one signal's share of the fused influence.
type Contribution struct {
	Signal   Signal  `json:"signal"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted_influence"`
}

// Influence is the auditable breakdown of a fusion.
type Influence struct {
	Contributions  []Contribution     `json:"contributions"`
	BySource       map[Source]float64 `json:"by_source"`
	Total          float64            `json:"total"`
	DominantSource Source             `json:"dominant_source,omitempty"`
}

// Recommendation is the directional outcome of a fusion.
type Recommendation struct {
	Action                Direction             `json:"action"`
	Strengths             map[Direction]float64 `json:"strengths"`
	MaxStrength           float64               `json:"max_strength"`
	SecondStrength        float64               `json:"second_strength"`
	Threshold             float64               `json:"threshold"`
	ThresholdMet          bool                  `json:"threshold_met"`
	RequiresHumanDecision bool                  `json:"requires_human_decision"`
	Influence             Influence             `json:"influence"`
}

// CalculateInfluence fuses signals with the current weights.
func (m *Manager) CalculateInfluence(signals []Signal) (Influence, error) {
	return CalculateInfluence(m.Current(), signals)
}

// GenerateRecommendation fuses signals with the current weights and picks a direction.
func (m *Manager) GenerateRecommendation(signals []Signal, threshold float64) (Recommendation, error) {
	return GenerateRecommendation(m.Current(), signals, threshold)
}

// CalculateInfluence computes strength × weight[source] per signal, per-source
// totals, the grand total and the dominant source. Strengths are clamped to
// [0,1]; unknown sources are rejected.
func CalculateInfluence(w Weights, signals []Signal) (Influence, error) {
	inf := Influence{
		Contributions: make([]Contribution, 0, len(signals)),
		BySource:      make(map[Source]float64, len(Sources)),
	}
	for i, sig := range signals {
		if !sig.Source.Valid() {
			return Influence{}, &ValidationError{Field: fmt.Sprintf("signals[%d].source", i), Reason: fmt.Sprintf("unknown source %q", sig.Source)}
		}
		if sig.Direction != "" && !sig.Direction.valid() {
			return Influence{}, &ValidationError{Field: fmt.Sprintf("signals[%d].direction", i), Reason: fmt.Sprintf("unknown direction %q", sig.Direction)}
		}
		sig.Strength = clamp01(sig.Strength)
		weight := w.Get(sig.Source)
		weighted := sig.Strength * weight
		inf.Contributions = append(inf.Contributions, Contribution{Signal: sig, Weight: weight, Weighted: weighted})
		inf.BySource[sig.Source] += weighted
		inf.Total += weighted
	}

	best := 0.0
	for _, s := range Sources {
		if v := inf.BySource[s]; v > best {
			best = v
			inf.DominantSource = s
		}
	}
	return inf, nil
}

// GenerateRecommendation partitions signals by direction and recommends the
// direction with the highest weighted strength. When the runner-up exceeds
// DivergenceRatio of the top, the recommendation requires a human decision.
// Signals without a direction contribute to the influence only.
func GenerateRecommendation(w Weights, signals []Signal, threshold float64) (Recommendation, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	inf, err := CalculateInfluence(w, signals)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{
		Action:    DirectionMaintain,
		Strengths: make(map[Direction]float64, len(Directions)),
		Threshold: threshold,
		Influence: inf,
	}
	for _, c := range inf.Contributions {
		if c.Signal.Direction != "" {
			rec.Strengths[c.Signal.Direction] += c.Weighted
		}
	}

	var top, second float64
	for _, d := range Directions {
		v := rec.Strengths[d]
		switch {
		case v > top:
			second = top
			top = v
			rec.Action = d
		case v > second:
			second = v
		}
	}
	rec.MaxStrength = top
	rec.SecondStrength = second
	rec.ThresholdMet = top >= threshold
	rec.RequiresHumanDecision = top > 0 && second > DivergenceRatio*top
	return rec, nil
}

func (d Direction) valid() bool {
	for _, known := range Directions {
		if d == known {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
