package model

import (
	"strconv"
	"time"
)

// PlanType selects which optional Plan fields are meaningful.
type PlanType string

const (
	PlanReminder  PlanType = "reminder"
	PlanChecklist PlanType = "checklist"
	PlanSession   PlanType = "session"
)

// Frequency is the cadence of a reminder or session. Values outside the
// known set are kept as-is; generators apply a fallback cadence for them.
type Frequency string

const (
	FrequencyOnce     Frequency = "once"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyYearly   Frequency = "yearly"
)

// Step is one dated item of a checklist plan.
type Step struct {
	// ID is assigned by the store at creation and never changes, so toggles
	// survive reordering. Older records may lack it.
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Date  string `json:"date" validate:"required,caldate"`
	Done  bool   `json:"done"`
}

// Plan is a persisted user commitment. Dates are YYYY-MM-DD strings.
type Plan struct {
	ID          string   `json:"id" gorm:"primaryKey;size:36"`
	UserID      string   `json:"userId" gorm:"index;not null"`
	Type        PlanType `json:"type" gorm:"index" validate:"plantype"`
	Title       string   `json:"title"`
	Description string   `json:"description"`

	// Reminder: Amount, StartDate, Frequency, EndDate.
	// Session: StartDate (optional), Frequency.
	Amount    *float64  `json:"amount"`
	StartDate string    `json:"startDate,omitempty" validate:"required_if=Type reminder,caldate"`
	Frequency Frequency `json:"frequency,omitempty"`
	// EndDate empty means the reminder never ends.
	EndDate string `json:"endDate,omitempty" validate:"caldate"`

	// Checklist: Steps, ordered; position is significant.
	Steps []Step `json:"steps,omitempty" gorm:"serializer:json" validate:"required_if=Type checklist,dive"`

	CreatedAt time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Progress returns the number of done steps and the total step count.
func (p Plan) Progress() (done, total int) {
	for _, s := range p.Steps {
		if s.Done {
			done++
		}
	}
	return done, len(p.Steps)
}

// Completed reports whether a checklist has at least one step and every
// step is done.
func (p Plan) Completed() bool {
	done, total := p.Progress()
	return total > 0 && done == total
}

// EventType mirrors PlanType and adds events coming from subscribed feeds.
type EventType string

const (
	EventReminder  EventType = EventType(PlanReminder)
	EventChecklist EventType = EventType(PlanChecklist)
	EventSession   EventType = EventType(PlanSession)
	EventExternal  EventType = "external"
)

// Event is a single display-ready occurrence derived from a Plan (or from a
// subscribed calendar feed). It is never persisted.
type Event struct {
	PlanID      string    `json:"planId"`
	Type        EventType `json:"type"`
	Date        string    `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description"`

	// Reminder and session.
	Amount    *float64  `json:"amount,omitempty"`
	Frequency Frequency `json:"frequency,omitempty"`

	// Checklist. StepIndex is the position in the plan's steps at projection
	// time; CompletedSteps is a snapshot of the done count.
	StepIndex      *int   `json:"stepIndex,omitempty"`
	StepID         string `json:"stepId,omitempty"`
	Done           bool   `json:"done,omitempty"`
	TotalSteps     int    `json:"totalSteps,omitempty"`
	CompletedSteps int    `json:"completedSteps,omitempty"`

	// External feed events.
	SourceID string `json:"sourceId,omitempty"`
	UID      string `json:"uid,omitempty"`
	Location string `json:"location,omitempty"`
}

// Key identifies an event within one projection: plan, date and, for
// checklists, the step position.
func (e Event) Key() string {
	k := e.PlanID + "/" + e.Date
	if e.StepIndex != nil {
		k += "/" + strconv.Itoa(*e.StepIndex)
	}
	if e.UID != "" {
		k = e.SourceID + "/" + e.UID + "/" + e.Date
	}
	return k
}
