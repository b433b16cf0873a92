// Package plan expands persisted plans into concrete occurrence dates.
//
// Every generator takes "today" explicitly, so results depend only on the
// arguments. Overdue recurrences catch up: the first occurrence is pinned to
// today instead of listing missed past dates.
package plan

import (
	"plancal/internal/caldate"
	"plancal/internal/model"
)

const (
	DefaultReminderCount = 60
	DefaultSessionCount  = 30

	// Days added per step for frequencies outside the known set.
	reminderFallbackDays = 30
	sessionFallbackDays  = 7
)

// stepper returns the n-th date counted from base.
type stepper func(base string, n int) (string, error)

func everyDays(days int) stepper {
	return func(base string, n int) (string, error) {
		return caldate.AddDays(base, n*days)
	}
}

func everyMonths(months int) stepper {
	return func(base string, n int) (string, error) {
		return caldate.AddMonths(base, n*months)
	}
}

// KnownReminderFrequency reports whether f has its own reminder cadence.
func KnownReminderFrequency(f model.Frequency) bool {
	switch f {
	case model.FrequencyOnce, model.FrequencyDaily, model.FrequencyWeekly,
		model.FrequencyBiweekly, model.FrequencyMonthly, model.FrequencyYearly:
		return true
	}
	return false
}

// KnownSessionFrequency reports whether f has its own session cadence.
func KnownSessionFrequency(f model.Frequency) bool {
	switch f {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyBiweekly, model.FrequencyMonthly:
		return true
	}
	return false
}

func reminderStepper(f model.Frequency) stepper {
	switch f {
	case model.FrequencyDaily:
		return everyDays(1)
	case model.FrequencyWeekly:
		return everyDays(7)
	case model.FrequencyBiweekly:
		return everyDays(14)
	case model.FrequencyMonthly:
		return everyMonths(1)
	case model.FrequencyYearly:
		return everyMonths(12)
	default:
		return everyDays(reminderFallbackDays)
	}
}

func sessionStepper(f model.Frequency) stepper {
	switch f {
	case model.FrequencyDaily:
		return everyDays(1)
	case model.FrequencyWeekly:
		return everyDays(7)
	case model.FrequencyBiweekly:
		return everyDays(14)
	case model.FrequencyMonthly:
		return everyMonths(1)
	default:
		return everyDays(sessionFallbackDays)
	}
}

// ReminderOccurrences returns up to maxCount ascending dates for a reminder,
// starting at max(startDate, today) and stopping after endDate. A "once"
// reminder yields at most one date. maxCount <= 0 means DefaultReminderCount.
//
// Monthly and yearly steps are counted from the first occurrence, so the
// day of month is kept and clamped only in shorter months.
func ReminderOccurrences(p model.Plan, today string, maxCount int) ([]string, error) {
	if _, err := caldate.Parse(today); err != nil {
		return nil, err
	}
	if err := requireType(p, model.PlanReminder); err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		maxCount = DefaultReminderCount
	}

	base := caldate.Max(p.StartDate, today)
	next := reminderStepper(p.Frequency)
	out := make([]string, 0, min(maxCount, 16))

	for i := 0; i < maxCount; i++ {
		cursor, err := next(base, i)
		if err != nil {
			return nil, err
		}
		if p.EndDate != "" && cursor > p.EndDate {
			break
		}
		out = append(out, cursor)
		if p.Frequency == model.FrequencyOnce {
			break
		}
	}
	return out, nil
}

// ChecklistDates returns the date of every step in array order.
func ChecklistDates(steps []model.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Date
	}
	return out
}

// SessionOccurrences returns exactly maxCount ascending dates for a session,
// starting at startDate when it is today or later and at today otherwise.
// maxCount <= 0 means DefaultSessionCount.
func SessionOccurrences(p model.Plan, today string, maxCount int) ([]string, error) {
	if _, err := caldate.Parse(today); err != nil {
		return nil, err
	}
	if err := requireType(p, model.PlanSession); err != nil {
		return nil, err
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		maxCount = DefaultSessionCount
	}

	base := today
	if p.StartDate != "" && p.StartDate >= today {
		base = p.StartDate
	}
	next := sessionStepper(p.Frequency)
	out := make([]string, 0, maxCount)

	for i := 0; i < maxCount; i++ {
		cursor, err := next(base, i)
		if err != nil {
			return nil, err
		}
		out = append(out, cursor)
	}
	return out, nil
}

func requireType(p model.Plan, want model.PlanType) error {
	if p.Type != want {
		return &MalformedPlanError{
			PlanID: p.ID,
			Field:  "type",
			Reason: "is " + string(p.Type) + ", want " + string(want),
		}
	}
	return nil
}
