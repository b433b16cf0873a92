// Package caldate implements plain calendar-date arithmetic on fixed-width
// "YYYY-MM-DD" strings. Time of day and time zones never enter the results;
// the only zone-aware operation is Today, which reads the local wall date.
package caldate

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the only accepted date representation. Its fixed width keeps
// lexicographic order identical to chronological order.
const Layout = "2006-01-02"

// ErrInvalidDate is the sentinel wrapped by every InvalidDateError.
var ErrInvalidDate = errors.New("invalid date")

// InvalidDateError reports a string that is not a valid YYYY-MM-DD date.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Value)
}

func (e *InvalidDateError) Unwrap() error { return ErrInvalidDate }

// Today returns the local calendar date of now, using now's own location
// components rather than a UTC conversion.
func Today(now time.Time) string {
	y, m, d := now.Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// Parse converts s into a time anchored at mid-day UTC. Mid-day keeps day
// arithmetic clear of any daylight-saving boundary.
func Parse(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, &InvalidDateError{Value: s}
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, &InvalidDateError{Value: s}
	}
	return t.Add(12 * time.Hour), nil
}

// Format renders the calendar components of t, ignoring its location.
func Format(t time.Time) string {
	return Today(t)
}

// Valid reports whether s parses as a calendar date.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// AddDays returns the date n days after date. n may be negative.
func AddDays(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(t.AddDate(0, 0, n)), nil
}

// AddMonths returns the date n calendar months after date. The day of month
// is preserved when the target month has it, otherwise it is clamped to the
// target month's last day (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 12, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	if last := DaysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return Format(time.Date(first.Year(), first.Month(), d, 12, 0, 0, 0, time.UTC)), nil
}

// AddYears returns the date n years after date, clamping Feb 29 to Feb 28
// in non-leap target years.
func AddYears(date string, n int) (string, error) {
	return AddMonths(date, 12*n)
}

// DiffDays returns the number of calendar days from a to b (negative when b
// is before a).
func DiffDays(a, b string) (int, error) {
	ta, err := Parse(a)
	if err != nil {
		return 0, err
	}
	tb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	hours := tb.Sub(ta).Hours()
	if hours < 0 {
		return int(hours/24 - 0.5), nil
	}
	return int(hours/24 + 0.5), nil
}

// Weekday returns the day of the week of date.
func Weekday(date string) (time.Weekday, error) {
	t, err := Parse(date)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// Max returns the later of two valid dates.
func Max(a, b string) string {
	if a > b {
		return a
	}
	return b
}
