package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

func recordEnding(end planning.Date) planning.GovernanceRecord {
	return planning.GovernanceRecord{
		Signature:      planning.Signature{PeriodEnd: end},
		KPIs:           map[string]planning.KPIResult{"revenue": {Metric: "revenue", Goal: 100}},
		Learnings:      planning.Learnings{Risks: []string{"estoque"}},
		NextPriorities: []string{"p1", "p2", "p3", "p4"},
	}
}

func TestNextWindow_Weekly(t *testing.T) {
	rule := planning.CalendarRule{WeekStartDay: time.Monday, MeetingWeekday: time.Wednesday}
	w, err := NextWindow(recordEnding("2024-06-09"), planning.FrequencyWeekly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-06-10"), w.Start)
	assert.Equal(t, planning.Date("2024-06-16"), w.End)
	assert.Equal(t, planning.Date("2024-06-12"), w.Meeting)
	assert.Equal(t, map[string]float64{"revenue": 100}, w.PeriodGoals)
	assert.Equal(t, []string{"estoque"}, w.AnticipatedRisks)
	assert.Equal(t, []string{"p1", "p2", "p3"}, w.InitialOrders)
}

func TestNextWindow_WeeklyAdvancesToWeekStart(t *testing.T) {
	// Ends on a Wednesday: the next window waits for Monday.
	rule := planning.CalendarRule{WeekStartDay: time.Monday, MeetingWeekday: time.Friday}
	w, err := NextWindow(recordEnding("2024-06-12"), planning.FrequencyWeekly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-06-17"), w.Start)
	assert.Equal(t, planning.Date("2024-06-23"), w.End)
	assert.Equal(t, planning.Date("2024-06-21"), w.Meeting)

	// Meeting weekday before the week start wraps into the same window.
	rule = planning.CalendarRule{WeekStartDay: time.Wednesday, MeetingWeekday: time.Monday}
	w, err = NextWindow(recordEnding("2024-06-09"), planning.FrequencyWeekly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-06-12"), w.Start)
	assert.Equal(t, planning.Date("2024-06-17"), w.Meeting)
}

func TestNextWindow_Monthly(t *testing.T) {
	rule := planning.CalendarRule{MeetingDayOfMonth: 31}

	w, err := NextWindow(recordEnding("2024-01-31"), planning.FrequencyMonthly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-02-01"), w.Start)
	assert.Equal(t, planning.Date("2024-02-29"), w.End)
	assert.Equal(t, planning.Date("2024-02-29"), w.Meeting, "meeting day clamps to month end")

	w, err = NextWindow(recordEnding("2024-12-31"), planning.FrequencyMonthly, planning.CalendarRule{})
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2025-01-01"), w.Start)
	assert.Equal(t, planning.Date("2025-01-01"), w.Meeting)
}

func TestNextWindow_MonthlyMidMonthAnchor(t *testing.T) {
	rule := planning.CalendarRule{MeetingDayOfMonth: 5}

	// Anchor 2024-02-16 is not the 1st: the window is all of March and the
	// rest of February is left unscheduled.
	w, err := NextWindow(recordEnding("2024-02-15"), planning.FrequencyMonthly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-03-01"), w.Start)
	assert.Equal(t, planning.Date("2024-03-31"), w.End)
	assert.Equal(t, planning.Date("2024-03-05"), w.Meeting)

	// Ending the day before the 1st keeps the anchor month.
	w, err = NextWindow(recordEnding("2024-02-29"), planning.FrequencyMonthly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-03-01"), w.Start)

	// Ending on the 1st skips the remainder of that month too.
	w, err = NextWindow(recordEnding("2024-03-01"), planning.FrequencyMonthly, rule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-04-01"), w.Start)
	assert.Equal(t, planning.Date("2024-04-30"), w.End)
}

func TestNextWindow_Daily(t *testing.T) {
	w, err := NextWindow(recordEnding("2024-02-28"), planning.FrequencyDaily, planning.DefaultCalendarRule)
	require.NoError(t, err)
	assert.Equal(t, planning.Date("2024-02-29"), w.Start)
	assert.Equal(t, w.Start, w.End)
	assert.Equal(t, w.Start, w.Meeting)
}

func TestNextWindow_Errors(t *testing.T) {
	_, err := NextWindow(recordEnding("2024-06-09"), "yearly", planning.DefaultCalendarRule)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = NextWindow(recordEnding(""), planning.FrequencyDaily, planning.DefaultCalendarRule)
	require.ErrorAs(t, err, &vErr)

	_, err = NextWindow(recordEnding("2024-06-09"), planning.FrequencyWeekly, planning.CalendarRule{WeekStartDay: 9})
	require.ErrorAs(t, err, &vErr)
}
