// Package calendar merges the occurrences of all of a user's plans into a
// single date-ordered, capped list of display events.
package calendar

import (
	"errors"
	"sort"

	"plancal/internal/caldate"
	appLog "plancal/internal/log"
	"plancal/internal/model"
	"plancal/internal/plan"
)

const (
	DefaultMaxEvents = 10

	DefaultSessionTitle       = "Money check-in"
	DefaultSessionDescription = "Tell your assistant how your money went since last time"
)

// Options tunes a projection. The zero value uses every default.
type Options struct {
	// MaxEvents caps the merged list across all plans.
	MaxEvents int
	// ReminderCount / SessionCount bound each generator.
	ReminderCount int
	SessionCount  int

	SessionTitle       string
	SessionDescription string
}

func (o Options) normalized() Options {
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	if o.ReminderCount <= 0 {
		o.ReminderCount = plan.DefaultReminderCount
	}
	if o.SessionCount <= 0 {
		o.SessionCount = plan.DefaultSessionCount
	}
	if o.SessionTitle == "" {
		o.SessionTitle = DefaultSessionTitle
	}
	if o.SessionDescription == "" {
		o.SessionDescription = DefaultSessionDescription
	}
	return o
}

// Projection is the outcome of Build: the display events plus the plans that
// were skipped because they were malformed.
type Projection struct {
	Events  []model.Event
	Skipped []*plan.MalformedPlanError
}

// BuildEvents is Build with default options except for maxEvents.
func BuildEvents(plans []model.Plan, today string, maxEvents int) ([]model.Event, error) {
	p, err := Build(plans, today, Options{MaxEvents: maxEvents})
	if err != nil {
		return nil, err
	}
	return p.Events, nil
}

// Build projects plans onto the calendar:
//
//   - each plan is expanded by the generator matching its type
//   - occurrences before today are dropped
//   - events from all plans are stable-sorted by date
//   - the list is truncated to opts.MaxEvents, keeping the nearest dates
//
// A malformed plan is skipped and reported in Projection.Skipped; other
// plans are still projected. Any other error (an invalid today) is returned.
// The result depends only on the arguments.
func Build(plans []model.Plan, today string, opts Options) (Projection, error) {
	var out Projection

	if _, err := caldate.Parse(today); err != nil {
		return out, err
	}
	opts = opts.normalized()

	events := make([]model.Event, 0)
	for _, p := range plans {
		evs, err := planEvents(p, today, opts)
		if err != nil {
			var mpe *plan.MalformedPlanError
			if errors.As(err, &mpe) {
				out.Skipped = append(out.Skipped, mpe)
				appLog.Warn("calendar: skipping malformed plan",
					"plan_id", mpe.PlanID,
					"field", mpe.Field,
					"reason", mpe.Reason,
				)
				continue
			}
			return Projection{}, err
		}
		events = append(events, evs...)
	}

	out.Events = finalize(events, today, opts.MaxEvents)
	return out, nil
}

func planEvents(p model.Plan, today string, opts Options) ([]model.Event, error) {
	switch p.Type {
	case model.PlanReminder:
		return reminderEvents(p, today, opts)
	case model.PlanChecklist:
		return checklistEvents(p, today)
	case model.PlanSession:
		return sessionEvents(p, today, opts)
	default:
		return nil, plan.Validate(p)
	}
}

func reminderEvents(p model.Plan, today string, opts Options) ([]model.Event, error) {
	dates, err := plan.ReminderOccurrences(p, today, opts.ReminderCount)
	if err != nil {
		return nil, err
	}
	if !plan.KnownReminderFrequency(p.Frequency) {
		appLog.Warn("calendar: unrecognized reminder frequency, using fallback",
			"plan_id", p.ID, "frequency", string(p.Frequency))
	}

	out := make([]model.Event, 0, len(dates))
	for _, date := range dates {
		if date < today {
			continue
		}
		out = append(out, model.Event{
			PlanID:      p.ID,
			Type:        model.EventReminder,
			Date:        date,
			Title:       p.Title,
			Description: p.Description,
			Amount:      nonZero(p.Amount),
			Frequency:   p.Frequency,
		})
	}
	return out, nil
}

func checklistEvents(p model.Plan, today string) ([]model.Event, error) {
	if err := plan.Validate(p); err != nil {
		return nil, err
	}

	completed, total := p.Progress()
	dates := plan.ChecklistDates(p.Steps)

	out := make([]model.Event, 0, len(dates))
	for i, date := range dates {
		if date < today {
			continue
		}
		step := p.Steps[i]
		idx := i
		out = append(out, model.Event{
			PlanID:         p.ID,
			Type:           model.EventChecklist,
			Date:           date,
			Title:          p.Title,
			Description:    step.Label,
			StepIndex:      &idx,
			StepID:         step.ID,
			Done:           step.Done,
			TotalSteps:     total,
			CompletedSteps: completed,
		})
	}
	return out, nil
}

func sessionEvents(p model.Plan, today string, opts Options) ([]model.Event, error) {
	dates, err := plan.SessionOccurrences(p, today, opts.SessionCount)
	if err != nil {
		return nil, err
	}
	if !plan.KnownSessionFrequency(p.Frequency) {
		appLog.Warn("calendar: unrecognized session frequency, using fallback",
			"plan_id", p.ID, "frequency", string(p.Frequency))
	}

	desc := p.Description
	if desc == "" {
		desc = opts.SessionDescription
	}

	out := make([]model.Event, 0, len(dates))
	for _, date := range dates {
		if date < today {
			continue
		}
		out = append(out, model.Event{
			PlanID:      p.ID,
			Type:        model.EventSession,
			Date:        date,
			Title:       opts.SessionTitle,
			Description: desc,
			Frequency:   p.Frequency,
		})
	}
	return out, nil
}

// MergeExternal adds feed events to an already built list and re-applies the
// today filter, ordering and cap. Plan events win ties on the same date.
func MergeExternal(events, external []model.Event, today string, maxEvents int) ([]model.Event, error) {
	if _, err := caldate.Parse(today); err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	all := make([]model.Event, 0, len(events)+len(external))
	all = append(all, events...)
	all = append(all, external...)
	return finalize(all, today, maxEvents), nil
}

// finalize drops past events, sorts by date keeping input order among equal
// dates, and truncates to maxEvents.
func finalize(events []model.Event, today string, maxEvents int) []model.Event {
	kept := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.Date >= today {
			kept = append(kept, ev)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Date < kept[j].Date
	})
	if len(kept) > maxEvents {
		kept = kept[:maxEvents]
	}
	return kept
}

// nonZero mirrors the display rule that a zero amount is shown as no amount.
func nonZero(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	amount := *v
	return &amount
}
