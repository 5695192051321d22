// Package weights holds the four global fusion coefficients and fuses
// source-attributed signals into influence scores and directional
// recommendations.
package weights

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Source identifies where a signal comes from.
type Source string

const (
	SourceVaults      Source = "vaults"
	SourceGovernanca  Source = "governanca"
	SourcePerformance Source = "performance"
	SourceCalendario  Source = "calendario"
)

// Sources lists every source in canonical order. Ties are broken in this order.
var Sources = []Source{SourceVaults, SourceGovernanca, SourcePerformance, SourceCalendario}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// SumTolerance is the allowed deviation of the coefficient sum from 1.0.
const SumTolerance = 0.01

// ErrUnknownPreset is returned by ApplyPreset for an unregistered name.
var ErrUnknownPreset = errors.New("weights: unknown preset")

// Weights is one coefficient per source.
type Weights struct {
	Vaults      float64 `json:"vaults" yaml:"vaults"`
	Governanca  float64 `json:"governanca" yaml:"governanca"`
	Performance float64 `json:"performance" yaml:"performance"`
	Calendario  float64 `json:"calendario" yaml:"calendario"`
}

// Default is the balanced starting point.
var Default = Weights{Vaults: 0.4, Governanca: 0.3, Performance: 0.2, Calendario: 0.1}

// Get returns the coefficient of source s.
func (w Weights) Get(s Source) float64 {
	switch s {
	case SourceVaults:
		return w.Vaults
	case SourceGovernanca:
		return w.Governanca
	case SourcePerformance:
		return w.Performance
	case SourceCalendario:
		return w.Calendario
	default:
		return 0
	}
}

// Sum returns the total of the four coefficients.
func (w Weights) Sum() float64 {
	return w.Vaults + w.Governanca + w.Performance + w.Calendario
}

// Validate enforces non-negative coefficients summing to 1.0 within SumTolerance.
func (w Weights) Validate() error {
	for _, s := range Sources {
		v := w.Get(s)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &ValidationError{Field: string(s), Reason: fmt.Sprintf("must be a non-negative number, got %v", v)}
		}
	}
	// The epsilon absorbs float error at the boundary, e.g. 0.4+0.3+0.2+0.11.
	if sum := w.Sum(); math.Abs(sum-1.0) > SumTolerance+1e-9 {
		return &ValidationError{Field: "sum", Reason: fmt.Sprintf("weights must sum to 1.0 (±%.2f), got %.4f", SumTolerance, sum)}
	}
	return nil
}

// Partial is a sparse update; nil fields keep their current value.
type Partial struct {
	Vaults      *float64 `json:"vaults,omitempty" yaml:"vaults,omitempty"`
	Governanca  *float64 `json:"governanca,omitempty" yaml:"governanca,omitempty"`
	Performance *float64 `json:"performance,omitempty" yaml:"performance,omitempty"`
	Calendario  *float64 `json:"calendario,omitempty" yaml:"calendario,omitempty"`
}

// Full turns a complete Weights value into a Partial that replaces all four.
func Full(w Weights) Partial {
	return Partial{Vaults: &w.Vaults, Governanca: &w.Governanca, Performance: &w.Performance, Calendario: &w.Calendario}
}

// Apply overlays the set fields of p onto w.
func (p Partial) Apply(w Weights) Weights {
	if p.Vaults != nil {
		w.Vaults = *p.Vaults
	}
	if p.Governanca != nil {
		w.Governanca = *p.Governanca
	}
	if p.Performance != nil {
		w.Performance = *p.Performance
	}
	if p.Calendario != nil {
		w.Calendario = *p.Calendario
	}
	return w
}

// Range is a soft bound; values outside it only produce a warning.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// DefaultRanges are the recommended bounds per source.
var DefaultRanges = map[Source]Range{
	SourceVaults:      {Min: 0.2, Max: 0.6},
	SourceGovernanca:  {Min: 0.1, Max: 0.5},
	SourcePerformance: {Min: 0.1, Max: 0.4},
	SourceCalendario:  {Min: 0.05, Max: 0.3},
}

// RangeViolation reports a coefficient outside its soft range.
type RangeViolation struct {
	Source Source  `json:"source"`
	Value  float64 `json:"value"`
	Range  Range   `json:"range"`
}

func (v RangeViolation) String() string {
	return fmt.Sprintf("%s=%.2f outside recommended range [%.2f, %.2f]", v.Source, v.Value, v.Range.Min, v.Range.Max)
}

// CheckRanges lists the soft range violations of w.
func CheckRanges(w Weights, ranges map[Source]Range) []RangeViolation {
	var out []RangeViolation
	for _, s := range Sources {
		r, ok := ranges[s]
		if !ok {
			continue
		}
		if v := w.Get(s); v < r.Min || v > r.Max {
			out = append(out, RangeViolation{Source: s, Value: v, Range: r})
		}
	}
	return out
}

// HistoryEntry records one successful mutation.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Previous  Weights   `json:"previous"`
	Current   Weights   `json:"current"`
	Reason    string    `json:"reason"`
}

// ValidationError is returned when a construction or update would break the coefficient invariants.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("weights: invalid %s: %s", e.Field, e.Reason)
}
