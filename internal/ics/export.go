package ics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"plancal/internal/caldate"
	"plancal/internal/model"
)

const (
	productID = "-//plancal//Plan Calendar//EN"
	uidDomain = "plancal"
)

// now is swapped in tests so DTSTAMP is reproducible.
var now = time.Now

// EventUID returns the iCalendar UID of a projected event. It is stable
// across projections as long as the plan, the date and, for checklists, the
// step position do not change.
func EventUID(ev model.Event) string {
	if ev.Type == model.EventExternal {
		return ev.SourceID + "/" + ev.UID + "/" + ev.Date + "@" + uidDomain
	}
	uid := ev.PlanID + "/" + ev.Date
	if ev.StepIndex != nil {
		uid += "/" + strconv.Itoa(*ev.StepIndex)
	}
	return uid + "@" + uidDomain
}

// Encode renders events as an iCalendar feed of all-day VEVENTs.
func Encode(events []model.Event, calName string) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if calName != "" {
		cal.SetName(calName)
		cal.SetXWRCalName(calName)
	}

	stamp := now().UTC()
	for _, ev := range events {
		day, err := caldate.Parse(ev.Date)
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", ev.Key(), err)
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		ve := cal.AddEvent(EventUID(ev))
		ve.SetDtStampTime(stamp)
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
		ve.SetSummary(summary(ev))
		if desc := description(ev); desc != "" {
			ve.SetDescription(desc)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(ev.Type)))
		ve.SetProperty(ical.ComponentPropertyTransp, "TRANSPARENT")
	}

	return []byte(cal.Serialize()), nil
}

func summary(ev model.Event) string {
	title := ev.Title
	if title == "" && ev.Type != "" {
		title = strings.ToUpper(string(ev.Type)[:1]) + string(ev.Type)[1:]
	}
	switch {
	case ev.Type == model.EventChecklist && ev.Done:
		return "✓ " + title
	case ev.Amount != nil:
		return title + " (" + strconv.FormatFloat(*ev.Amount, 'f', -1, 64) + ")"
	}
	return title
}

func description(ev model.Event) string {
	parts := make([]string, 0, 2)
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	if ev.Type == model.EventChecklist && ev.TotalSteps > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d steps done", ev.CompletedSteps, ev.TotalSteps))
	}
	return strings.Join(parts, "\n\n")
}
