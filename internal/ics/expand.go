package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"plancal/internal/caldate"
	appLog "plancal/internal/log"
	"plancal/internal/model"
)

const defaultMaxPerEvent = 500

// Window is the inclusive date range feed events are expanded into.
type Window struct {
	From string
	To   string
	// Location decides the calendar date of timed events. Nil means
	// time.Local.
	Location *time.Location
	// MaxPerEvent caps the instances of one recurring event.
	MaxPerEvent int
}

// HorizonWindow returns [today, today+days].
func HorizonWindow(today string, days int, loc *time.Location) (Window, error) {
	to, err := caldate.AddDays(today, days)
	if err != nil {
		return Window{}, err
	}
	return Window{From: today, To: to, Location: loc}, nil
}

// Expand turns parsed feed events into one external agenda event per day an
// instance falls on inside w. Recurring events follow their RRULE minus
// EXDATEs, with RECURRENCE-ID overrides replacing single instances and
// cancelled instances dropped. A multi-day event that started before w.From
// is shown on w.From.
func Expand(events []ParsedEvent, w Window) ([]model.Event, error) {
	if !caldate.Valid(w.From) || !caldate.Valid(w.To) {
		return nil, &caldate.InvalidDateError{Value: w.From + ".." + w.To}
	}
	if w.To < w.From {
		return nil, errors.New("expand: window ends before it starts")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxPerEvent
	}

	bases := make([]ParsedEvent, 0, len(events))
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	out := make([]model.Event, 0)
	seen := make(map[string]struct{})
	emit := func(ev ParsedEvent, start, end time.Time) {
		date, ok := displayDate(ev.AllDay, start, end, w)
		if !ok || ev.Cancelled {
			return
		}
		e := model.Event{
			Type:        model.EventExternal,
			Date:        date,
			Title:       ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			SourceID:    ev.Source.ID,
			UID:         ev.UID,
		}
		if _, dup := seen[e.Key()]; dup {
			return
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}

	for _, ev := range bases {
		if ev.RRule == "" {
			emit(ev, ev.Start, ev.End)
			continue
		}
		expandRecurring(ev, overrides[ev.UID], w, emit)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, w Window, emit func(ParsedEvent, time.Time, time.Time)) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Warn("feed RRULE ignored", "feed", ev.Source.ID, "uid", ev.UID, "rrule", ev.RRule, "reason", err.Error())
		emit(ev, ev.Start, ev.End)
		return
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	from, _ := caldate.Parse(w.From)
	to, _ := caldate.Parse(w.To)
	duration := ev.End.Sub(ev.Start)
	// Instances that started before the window may still be running in it.
	after := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc).Add(-duration)
	before := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)

	starts := set.Between(after, before, true)
	if len(starts) > w.MaxPerEvent {
		appLog.Warn("feed event truncated", "feed", ev.Source.ID, "uid", ev.UID, "instances", len(starts), "cap", w.MaxPerEvent)
		starts = starts[:w.MaxPerEvent]
	}

	for _, start := range starts {
		if o, ok := findOverride(overrides, start); ok {
			emit(o, o.Start, o.End)
			continue
		}
		emit(ev, start, start.Add(duration))
	}
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
		// An all-day RECURRENCE-ID names a day, not an instant.
		if o.AllDay && sameDay(*o.RecurrenceID, start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// displayDate clips [start, end) to the window and returns the first day it
// covers. All-day values are read as wall dates; timed values are converted
// to w.Location first.
func displayDate(allDay bool, start, end time.Time, w Window) (string, bool) {
	var first, last string
	if allDay {
		first = wallDate(start)
		last = wallDate(end.AddDate(0, 0, -1))
	} else {
		first = wallDate(start.In(w.Location))
		last = first
		if end.After(start) {
			last = wallDate(end.Add(-time.Nanosecond).In(w.Location))
		}
	}
	if last < first {
		last = first
	}
	if last < w.From || first > w.To {
		return "", false
	}
	return caldate.Max(first, w.From), true
}

func wallDate(t time.Time) string {
	return caldate.Format(time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC))
}
