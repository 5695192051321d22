package weights

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// BuiltinPresets are always available to ApplyPreset.
var BuiltinPresets = map[string]Weights{
	"balanced":         Default,
	"data_driven":      {Vaults: 0.25, Governanca: 0.25, Performance: 0.4, Calendario: 0.1},
	"governance_first": {Vaults: 0.25, Governanca: 0.45, Performance: 0.2, Calendario: 0.1},
	"seasonal":         {Vaults: 0.3, Governanca: 0.2, Performance: 0.2, Calendario: 0.3},
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for range warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPresets registers additional presets; names collide in favor of the extra set.
func WithPresets(presets map[string]Weights) Option {
	return func(m *Manager) {
		for name, w := range presets {
			m.presets[name] = w
		}
	}
}

// WithRanges replaces the soft ranges.
func WithRanges(ranges map[Source]Range) Option {
	return func(m *Manager) {
		if len(ranges) > 0 {
			m.ranges = ranges
		}
	}
}

// WithClock overrides the history timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the current weights and their append-only history.
type Manager struct {
	mu      sync.RWMutex
	current Weights
	history []HistoryEntry
	presets map[string]Weights
	ranges  map[Source]Range
	logger  *slog.Logger
	now     func() time.Time
}

// New validates initial and returns a manager holding it.
func New(initial Weights, opts ...Option) (*Manager, error) {
	m := &Manager{
		presets: make(map[string]Weights, len(BuiltinPresets)),
		ranges:  DefaultRanges,
		logger:  slog.Default().With("component", "weights"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for name, w := range BuiltinPresets {
		m.presets[name] = w
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	for name, w := range m.presets {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	m.current = initial
	m.warnRanges(initial)
	return m, nil
}

// Current returns the active weights.
func (m *Manager) Current() Weights {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns a copy of every recorded mutation, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// Presets returns the registered preset names, sorted.
func (m *Manager) Presets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.presets))
	for name := range m.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the coefficients of a named preset.
func (m *Manager) Preset(name string) (Weights, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.presets[name]
	return w, ok
}

// Update merges partial into the current weights. On validation failure the
// state is left untouched.
func (m *Manager) Update(partial Partial, reason string) (HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := partial.Apply(m.current)
	if err := next.Validate(); err != nil {
		return HistoryEntry{}, err
	}
	entry := HistoryEntry{
		Timestamp: m.now(),
		Previous:  m.current,
		Current:   next,
		Reason:    reason,
	}
	m.current = next
	m.history = append(m.history, entry)
	m.warnRanges(next)
	m.logger.Info("weights updated", "reason", reason, "vaults", next.Vaults, "governanca", next.Governanca,
		"performance", next.Performance, "calendario", next.Calendario)
	return entry, nil
}

// ApplyPreset replaces the weights with a named preset.
func (m *Manager) ApplyPreset(name string) (HistoryEntry, error) {
	w, ok := m.Preset(name)
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return m.Update(Full(w), "preset: "+name)
}

// Restore replaces weights and history wholesale, e.g. from a snapshot.
func (m *Manager) Restore(current Weights, history []HistoryEntry) error {
	if err := current.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = current
	m.history = append([]HistoryEntry(nil), history...)
	return nil
}

// RangeViolations lists soft range violations of the current weights.
func (m *Manager) RangeViolations() []RangeViolation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CheckRanges(m.current, m.ranges)
}

func (m *Manager) warnRanges(w Weights) {
	for _, v := range CheckRanges(w, m.ranges) {
		m.logger.Warn("weight outside recommended range",
			"source", v.Source, "value", v.Value, "min", v.Range.Min, "max", v.Range.Max)
	}
}
