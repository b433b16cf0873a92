// Package ics exports projected plan events as an iCalendar feed and turns
// subscribed iCalendar feeds into external agenda events.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "plancal/internal/log"
)

// ParsedEvent is one VEVENT of a subscribed feed with its times resolved.
// Recurrences are not expanded here.
type ParsedEvent struct {
	Source Source

	UID         string
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on a VEVENT that replaces one instance of a
	// recurring event.
	RecurrenceID *time.Time
	Cancelled    bool
}

// Parse reads one feed body. Floating times are read in loc. VEVENTs that
// cannot be read are logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty feed body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(src, ve, loc)
		if err != nil {
			appLog.Warn("feed event skipped", "feed", src.ID, "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("feed parsed", "feed", src.ID, "events", len(out))
	return out, nil
}

func parseEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	ev := ParsedEvent{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value
	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.Cancelled = strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED")

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtStart, loc)
	if err != nil {
		return ev, err
	}
	ev.Start, ev.AllDay = start, allDay

	ev.End = ev.Start
	if ev.AllDay {
		ev.End = ev.Start.AddDate(0, 0, 1)
	}
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, _, err := propTime(dtEnd, loc); err == nil && end.After(ev.Start) {
			ev.End = end
		}
	}

	if rr := ve.GetProperty(ical.ComponentPropertyRrule); rr != nil {
		ev.RRule = rr.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseTime(part, p.ICalParameters, ev.Start.Location())
			if err != nil {
				appLog.Debug("feed EXDATE ignored", "feed", src.ID, "uid", ev.UID, "value", part)
				continue
			}
			ev.ExDates = append(ev.ExDates, t)
		}
	}

	if rid := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); rid != nil {
		if t, _, err := propTime(rid, ev.Start.Location()); err == nil {
			ev.RecurrenceID = &t
		}
	}

	return ev, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	return parseTime(p.Value, p.ICalParameters, loc)
}

// parseTime reads DATE, floating DATE-TIME, TZID DATE-TIME and UTC DATE-TIME
// values. The bool reports a DATE value.
func parseTime(value string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if tzids := params["TZID"]; len(tzids) > 0 {
		if tz, err := time.LoadLocation(strings.Trim(tzids[0], `"`)); err == nil {
			loc = tz
		}
	}

	switch {
	case strings.HasSuffix(value, "Z"):
		t, err := time.Parse("20060102T150405Z", value)
		return t, false, err
	case strings.Contains(value, "T"):
		t, err := time.ParseInLocation("20060102T150405", value, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", value, loc)
		return t, true, err
	}
}
