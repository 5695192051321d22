package planning

import (
	"fmt"
	"time"
)

// VaultID names a bucket of structured business input.
type VaultID string

const (
	VaultBrand      VaultID = "brand"
	VaultOffer      VaultID = "offer"
	VaultAudience   VaultID = "audience"
	VaultCommerce   VaultID = "commerce"
	VaultOperations VaultID = "operations"
)

// AllVaults lists the known vaults in pipeline order.
var AllVaults = []VaultID{VaultBrand, VaultOffer, VaultAudience, VaultCommerce, VaultOperations}

// DefaultRequiredVaults must be analyzed before a command center can be generated.
var DefaultRequiredVaults = []VaultID{VaultBrand, VaultOffer, VaultAudience}

// ParseVaultID validates a vault name.
func ParseVaultID(s string) (VaultID, error) {
	for _, v := range AllVaults {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vault %q", s)
}

// Content is the raw structured input of one vault.
type Content map[string]any

// Analysis is the generator's reading of one vault.
type Analysis struct {
	VaultID       VaultID            `json:"vault_id"`
	Summary       string             `json:"summary"`
	Score         float64            `json:"score"`
	Strengths     []string           `json:"strengths,omitempty"`
	Weaknesses    []string           `json:"weaknesses,omitempty"`
	Data          map[string]any     `json:"data,omitempty"`
	SourceMapping map[string]string  `json:"source_mapping,omitempty"`
	Confidence    map[string]float64 `json:"confidence,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	ExecutionID   string             `json:"execution_id"`
	AnalyzedAt    time.Time          `json:"analyzed_at"`
}

// Severity ranks a gap.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Penalty is the health score cost of one gap of this severity.
func (s Severity) Penalty() float64 {
	switch s {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 8
	case SeverityLow:
		return 3
	default:
		return 0
	}
}

// Gap is a missing, inconsistent or ambiguous data point.
type Gap struct {
	ID          string   `json:"id"`
	VaultID     VaultID  `json:"vault_id,omitempty"`
	Field       string   `json:"field,omitempty"`
	Description string   `json:"description"`
	Severity    Severity `json:"severidade"`
	Question    string   `json:"question,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// GapReport is the outcome of one gap detection pass.
type GapReport struct {
	ID             string    `json:"id"`
	Gaps           []Gap     `json:"gaps"`
	Questions      []string  `json:"questions,omitempty"`
	HealthScore    float64   `json:"health_score"`
	CriticalCount  int       `json:"critical_count"`
	AnalyzedVaults []VaultID `json:"analyzed_vaults"`
	MissingVaults  []VaultID `json:"missing_vaults,omitempty"`
	Ready          bool      `json:"ready"`
	Warnings       []string  `json:"warnings,omitempty"`
	ExecutionID    string    `json:"execution_id,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Critical returns the critical gaps.
func (r GapReport) Critical() []Gap {
	var out []Gap
	for _, g := range r.Gaps {
		if g.Severity == SeverityCritical {
			out = append(out, g)
		}
	}
	return out
}

// CalendarContext is the seasonal and scheduling context of a workspace.
type CalendarContext struct {
	Timezone    string          `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	KeyDates    []CalendarEvent `json:"key_dates,omitempty" yaml:"key_dates,omitempty"`
	Seasonality []string        `json:"seasonality,omitempty" yaml:"seasonality,omitempty"`
	Notes       string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}
