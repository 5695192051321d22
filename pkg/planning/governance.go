package planning

import (
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

// Signature identifies a governance cycle.
type Signature struct {
	PeriodStart Date      `json:"period_start"`
	PeriodEnd   Date      `json:"period_end"`
	ClosedAt    time.Time `json:"closed_at"`
	Responsible string    `json:"responsible"`
	Type        string    `json:"type"`
}

// KPIResult is the realized value of one metric against its goal.
type KPIResult struct {
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	Goal        float64 `json:"goal"`
	Gap         float64 `json:"gap"`
	Achievement float64 `json:"achievement_percent"`
	Unit        string  `json:"unit,omitempty"`
}

// RoadmapSummary tallies roadmap execution over the cycle.
type RoadmapSummary struct {
	Total         int     `json:"total"`
	Done          int     `json:"done"`
	Delayed       int     `json:"delayed"`
	Cancelled     int     `json:"cancelled"`
	ExecutionRate float64 `json:"execution_rate_percent"`
}

// Production tallies content production over the cycle.
type Production struct {
	Planned     int `json:"planned"`
	Published   int `json:"published"`
	NotExecuted int `json:"not_executed"`
}

// Execution is the qualitative performance summary.
type Execution struct {
	Impact        string   `json:"impact,omitempty"`
	TopPerformers []string `json:"top_performers,omitempty"`
	LowPerformers []string `json:"low_performers,omitempty"`
}

// Learnings are the retrospective notes of the cycle.
type Learnings struct {
	Worked  []string `json:"worked,omitempty"`
	Failed  []string `json:"failed,omitempty"`
	Changes []string `json:"changes,omitempty"`
	Risks   []string `json:"risks,omitempty"`
}

// Observation is a categorized free-text remark.
type Observation struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// GovernanceRecord (ATA) is the immutable minutes of one governance cycle.
type GovernanceRecord struct {
	ID             string               `json:"id"`
	CycleID        string               `json:"cycle_id"`
	Signature      Signature            `json:"signature"`
	KPIs           map[string]KPIResult `json:"kpis"`
	RoadmapSummary RoadmapSummary       `json:"roadmap_summary"`
	Production     Production           `json:"production"`
	Execution      Execution            `json:"execution"`
	Decisions      []string             `json:"decisions,omitempty"`
	Learnings      Learnings            `json:"learnings"`
	Observations   []Observation        `json:"observations,omitempty"`
	NextPriorities []string             `json:"next_priorities,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Hash           string               `json:"hash"`
}

// GovernanceSummary is the compact per-cycle digest kept in state.
type GovernanceSummary struct {
	CycleID            string    `json:"cycle_id"`
	RecordID           string    `json:"record_id"`
	PeriodEnd          Date      `json:"period_end"`
	ClosedAt           time.Time `json:"closed_at"`
	ExecutionRate      float64   `json:"execution_rate_percent"`
	AverageAchievement float64   `json:"average_achievement_percent"`
	RiskCount          int       `json:"risk_count"`
	Hash               string    `json:"hash"`
	ArchiveRef         string    `json:"archive_ref,omitempty"`
}

// Frequency is the governance cadence.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// CalendarRule configures window placement.
type CalendarRule struct {
	WeekStartDay      time.Weekday `json:"week_start_day" yaml:"week_start_day"`
	MeetingWeekday    time.Weekday `json:"meeting_weekday" yaml:"meeting_weekday"`
	MeetingDayOfMonth int          `json:"meeting_day_of_month" yaml:"meeting_day_of_month"`
}

// DefaultCalendarRule starts weeks on Monday, meets on Monday and on the 1st of the month.
var DefaultCalendarRule = CalendarRule{WeekStartDay: time.Monday, MeetingWeekday: time.Monday, MeetingDayOfMonth: 1}

// Window is the next governance cycle.
type Window struct {
	Frequency        Frequency          `json:"frequency"`
	Start            Date               `json:"start"`
	End              Date               `json:"end"`
	Meeting          Date               `json:"meeting"`
	PeriodGoals      map[string]float64 `json:"period_goals,omitempty"`
	AnticipatedRisks []string           `json:"anticipated_risks,omitempty"`
	InitialOrders    []string           `json:"initial_orders,omitempty"`
}

// GoalAdjustment is the ratchet outcome for one KPI.
type GoalAdjustment struct {
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Previous float64 `json:"previous_goal"`
	New      float64 `json:"new_goal"`
	Ratio    float64 `json:"ratio"`
	Changed  bool    `json:"changed"`
}

// FocusFlag is a rule-based execution concern.
type FocusFlag struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// Alert is a condition the next cycle must address.
type Alert struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// BacklogItem is a re-ranked pending roadmap item.
type BacklogItem struct {
	Rank int         `json:"rank"`
	Item RoadmapItem `json:"item"`
}

// TrendDirection classifies a KPI trend.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend is the cycle-over-cycle heuristic for one KPI.
type Trend struct {
	Metric           string         `json:"metric"`
	Direction        TrendDirection `json:"direction"`
	AvgChangePercent float64        `json:"avg_change_percent"`
	Strength         float64        `json:"strength"`
	Cycles           int            `json:"cycles"`
}

// RecalibrationPlan is the adjustment proposal for the next cycle.
type RecalibrationPlan struct {
	ID               string                  `json:"id"`
	RecordID         string                  `json:"record_id"`
	CycleID          string                  `json:"cycle_id"`
	GoalAdjustments  []GoalAdjustment        `json:"goal_adjustments"`
	ExecutionFocus   []FocusFlag             `json:"execution_focus,omitempty"`
	Alerts           []Alert                 `json:"alerts,omitempty"`
	VaultMultipliers map[VaultID]float64     `json:"vault_multipliers,omitempty"`
	Backlog          []BacklogItem           `json:"backlog,omitempty"`
	Trends           []Trend                 `json:"trends,omitempty"`
	Recommendation   *weights.Recommendation `json:"recommendation,omitempty"`
	Window           *Window                 `json:"window,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NewGoal returns the adjusted goal for metric, if the plan covers it.
func (p RecalibrationPlan) NewGoal(metric string) (float64, bool) {
	for _, a := range p.GoalAdjustments {
		if a.Metric == metric {
			return a.New, true
		}
	}
	return 0, false
}
