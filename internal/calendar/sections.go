package calendar

import (
	"fmt"
	"time"

	"plancal/internal/caldate"
	"plancal/internal/model"
)

// Section groups the events of one date for day-by-day rendering.
type Section struct {
	Date   string        `json:"date"`
	Label  string        `json:"label"`
	Events []model.Event `json:"events"`
}

// Day is one cell of the week strip.
type Day struct {
	Date      string `json:"date"`
	Label     string `json:"label"`
	Number    int    `json:"number"`
	IsToday   bool   `json:"isToday"`
	HasEvents bool   `json:"hasEvents"`
}

// Sections groups date-sorted events by date. Labels are "Today",
// "Tomorrow" or a short form like "Mon 3 Jun".
func Sections(events []model.Event, today string) ([]Section, error) {
	tomorrow, err := caldate.AddDays(today, 1)
	if err != nil {
		return nil, err
	}

	out := make([]Section, 0)
	for _, ev := range events {
		if n := len(out); n > 0 && out[n-1].Date == ev.Date {
			out[n-1].Events = append(out[n-1].Events, ev)
			continue
		}
		label, err := dayLabel(ev.Date, today, tomorrow)
		if err != nil {
			return nil, err
		}
		out = append(out, Section{Date: ev.Date, Label: label, Events: []model.Event{ev}})
	}
	return out, nil
}

func dayLabel(date, today, tomorrow string) (string, error) {
	switch date {
	case today:
		return "Today", nil
	case tomorrow:
		return "Tomorrow", nil
	}
	t, err := caldate.Parse(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d %s", t.Weekday().String()[:3], t.Day(), t.Month().String()[:3]), nil
}

// WeekDays returns the seven days of the week containing today. weekStart is
// "monday" or "sunday"; anything else means monday.
func WeekDays(today, weekStart string, events []model.Event) ([]Day, error) {
	wd, err := caldate.Weekday(today)
	if err != nil {
		return nil, err
	}

	first := time.Monday
	if weekStart == "sunday" {
		first = time.Sunday
	}
	offset := (int(wd) - int(first) + 7) % 7

	start, err := caldate.AddDays(today, -offset)
	if err != nil {
		return nil, err
	}

	busy := make(map[string]bool, len(events))
	for _, ev := range events {
		busy[ev.Date] = true
	}

	days := make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		date, err := caldate.AddDays(start, i)
		if err != nil {
			return nil, err
		}
		t, _ := caldate.Parse(date)
		days = append(days, Day{
			Date:      date,
			Label:     t.Weekday().String()[:3],
			Number:    t.Day(),
			IsToday:   date == today,
			HasEvents: busy[date],
		})
	}
	return days, nil
}
