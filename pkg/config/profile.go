package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// DefaultReadinessRule is the CEL expression deciding whether a gap report
// allows command center generation.
const DefaultReadinessRule = "health_score >= 60.0 && critical_count == 0"

// Profile tunes planning behavior for a deployment or workspace.
type Profile struct {
	Name       string                     `yaml:"name" json:"name"`
	Weights    weights.Weights            `yaml:"weights" json:"weights"`
	Presets    map[string]weights.Weights `yaml:"presets,omitempty" json:"presets,omitempty"`
	Readiness  ReadinessConfig            `yaml:"readiness" json:"readiness"`
	Governance GovernanceConfig           `yaml:"governance" json:"governance"`
	Events     EventsConfig               `yaml:"events" json:"events"`
	Generator  GeneratorConfig            `yaml:"generator" json:"generator"`
}

// ReadinessConfig controls the gate in front of command center generation.
type ReadinessConfig struct {
	Rule              string   `yaml:"rule" json:"rule"`
	RequiredVaults    []string `yaml:"required_vaults" json:"required_vaults"`
	MinAnalyzedVaults int      `yaml:"min_analyzed_vaults" json:"min_analyzed_vaults"`
}

// GovernanceConfig places the next governance window.
type GovernanceConfig struct {
	Frequency         string `yaml:"frequency" json:"frequency"`
	WeekStartDay      string `yaml:"week_start_day" json:"week_start_day"`
	MeetingWeekday    string `yaml:"meeting_weekday" json:"meeting_weekday"`
	MeetingDayOfMonth int    `yaml:"meeting_day_of_month" json:"meeting_day_of_month"`
}

// EventsConfig sizes the dispatcher.
type EventsConfig struct {
	SubscriberCapacity int `yaml:"subscriber_capacity" json:"subscriber_capacity"`
}

// GeneratorConfig throttles and tunes LLM-backed generation.
type GeneratorConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	Temperature       float64 `yaml:"temperature" json:"temperature"`
	HighConfidence    float64 `yaml:"high_confidence" json:"high_confidence"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() *Profile {
	return &Profile{
		Name:    "default",
		Weights: weights.Default,
		Readiness: ReadinessConfig{
			Rule:              DefaultReadinessRule,
			RequiredVaults:    []string{"brand", "offer", "audience"},
			MinAnalyzedVaults: 3,
		},
		Governance: GovernanceConfig{
			Frequency:         string(planning.FrequencyWeekly),
			WeekStartDay:      "monday",
			MeetingWeekday:    "monday",
			MeetingDayOfMonth: 1,
		},
		Events:    EventsConfig{SubscriberCapacity: 100},
		Generator: GeneratorConfig{Burst: 1, Temperature: 0.2, HighConfidence: 80},
	}
}

// LoadProfile reads a YAML profile. Fields absent from the file keep their
// DefaultProfile values. An empty path returns the default profile.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", path, err)
	}
	return p, nil
}

// Validate checks every section and joins the failures.
func (p *Profile) Validate() error {
	var errs []error
	if err := p.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("weights: %w", err))
	}
	for name, w := range p.Presets {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preset %q: %w", name, err))
		}
	}
	if strings.TrimSpace(p.Readiness.Rule) == "" {
		errs = append(errs, errors.New("readiness.rule is required"))
	}
	if p.Readiness.MinAnalyzedVaults < 0 {
		errs = append(errs, errors.New("readiness.min_analyzed_vaults must be >= 0"))
	}
	if _, err := p.RequiredVaults(); err != nil {
		errs = append(errs, err)
	}
	if _, err := p.Frequency(); err != nil {
		errs = append(errs, err)
	}
	if _, err := p.CalendarRule(); err != nil {
		errs = append(errs, err)
	}
	if p.Events.SubscriberCapacity < 0 {
		errs = append(errs, errors.New("events.subscriber_capacity must be >= 0"))
	}
	if p.Generator.RequestsPerSecond < 0 || p.Generator.Burst < 0 {
		errs = append(errs, errors.New("generator rate limit must be >= 0"))
	}
	return errors.Join(errs...)
}

// RequiredVaults parses Readiness.RequiredVaults.
func (p *Profile) RequiredVaults() ([]planning.VaultID, error) {
	out := make([]planning.VaultID, 0, len(p.Readiness.RequiredVaults))
	for _, name := range p.Readiness.RequiredVaults {
		id, err := planning.ParseVaultID(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("readiness.required_vaults: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// Frequency parses Governance.Frequency.
func (p *Profile) Frequency() (planning.Frequency, error) {
	switch f := planning.Frequency(strings.ToLower(p.Governance.Frequency)); f {
	case planning.FrequencyDaily, planning.FrequencyWeekly, planning.FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("governance.frequency: unknown cadence %q", p.Governance.Frequency)
	}
}

// CalendarRule parses the governance calendar settings.
func (p *Profile) CalendarRule() (planning.CalendarRule, error) {
	start, err := parseWeekday(p.Governance.WeekStartDay)
	if err != nil {
		return planning.CalendarRule{}, fmt.Errorf("governance.week_start_day: %w", err)
	}
	meeting, err := parseWeekday(p.Governance.MeetingWeekday)
	if err != nil {
		return planning.CalendarRule{}, fmt.Errorf("governance.meeting_weekday: %w", err)
	}
	if d := p.Governance.MeetingDayOfMonth; d < 1 || d > 31 {
		return planning.CalendarRule{}, fmt.Errorf("governance.meeting_day_of_month: %d out of range 1..31", d)
	}
	return planning.CalendarRule{
		WeekStartDay:      start,
		MeetingWeekday:    meeting,
		MeetingDayOfMonth: p.Governance.MeetingDayOfMonth,
	}, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
