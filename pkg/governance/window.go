package governance

import (
	"fmt"
	"time"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
)

const initialOrders = 3

// NextWindow schedules the cycle that follows rec. The window is anchored on
// the day after the record's period end.
//
// Weekly windows start on the first rule.WeekStartDay at or after the anchor.
// Monthly windows always cover a whole calendar month: the anchor month when
// the anchor is the 1st, otherwise the following month. Days between a
// mid-month period end and that month's end belong to no window.
func NextWindow(rec planning.GovernanceRecord, freq planning.Frequency, rule planning.CalendarRule) (planning.Window, error) {
	end, err := rec.Signature.PeriodEnd.Time()
	if err != nil {
		return planning.Window{}, &ValidationError{Field: "period_end", Reason: err.Error()}
	}
	anchor := end.AddDate(0, 0, 1)

	var start, last, meeting time.Time
	switch freq {
	case planning.FrequencyDaily:
		start, last, meeting = anchor, anchor, anchor
	case planning.FrequencyWeekly:
		if !validWeekday(rule.WeekStartDay) || !validWeekday(rule.MeetingWeekday) {
			return planning.Window{}, &ValidationError{Field: "calendar_rule", Reason: "weekdays must be 0 (Sunday) to 6 (Saturday)"}
		}
		start = anchor.AddDate(0, 0, (int(rule.WeekStartDay)-int(anchor.Weekday())+7)%7)
		last = start.AddDate(0, 0, 6)
		meeting = start.AddDate(0, 0, (int(rule.MeetingWeekday)-int(start.Weekday())+7)%7)
	case planning.FrequencyMonthly:
		start = time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
		if anchor.Day() != 1 {
			start = start.AddDate(0, 1, 0)
		}
		last = start.AddDate(0, 1, -1)
		day := rule.MeetingDayOfMonth
		if day < 1 {
			day = 1
		}
		if day > last.Day() {
			day = last.Day()
		}
		meeting = time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, time.UTC)
	default:
		return planning.Window{}, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", freq)}
	}

	w := planning.Window{
		Frequency: freq,
		Start:     planning.DateOf(start),
		End:       planning.DateOf(last),
		Meeting:   planning.DateOf(meeting),
	}
	if len(rec.KPIs) > 0 {
		w.PeriodGoals = make(map[string]float64, len(rec.KPIs))
		for metric, k := range rec.KPIs {
			w.PeriodGoals[metric] = k.Goal
		}
	}
	w.AnticipatedRisks = append([]string(nil), rec.Learnings.Risks...)
	orders := rec.NextPriorities
	if len(orders) > initialOrders {
		orders = orders[:initialOrders]
	}
	w.InitialOrders = append([]string(nil), orders...)
	return w, nil
}

func validWeekday(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}
