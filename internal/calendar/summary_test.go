package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plancal/internal/model"
)

func amountOf(v float64) *float64 { return &v }

func TestMonthlyAmount(t *testing.T) {
	tests := []struct {
		freq model.Frequency
		want float64
	}{
		{model.FrequencyMonthly, 120},
		{model.FrequencyBiweekly, 240},
		{model.FrequencyWeekly, 519.6},
		{model.FrequencyDaily, 3600},
		{model.FrequencyYearly, 10},
		{model.FrequencyOnce, 0},
		{"quarterly", 120},
		{"", 120},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			assert.InDelta(t, tt.want, MonthlyAmount(120, tt.freq), 1e-9)
		})
	}
}

func TestMonthlyCommitment(t *testing.T) {
	plans := []model.Plan{
		{ID: "rent", Type: model.PlanReminder, Title: "Rent", Amount: amountOf(1200), Frequency: model.FrequencyMonthly},
		{ID: "gym", Type: model.PlanReminder, Title: "Gym", Amount: amountOf(10), Frequency: model.FrequencyWeekly},
		{ID: "car", Type: model.PlanReminder, Title: "Insurance", Amount: amountOf(600), Frequency: model.FrequencyYearly},
		{ID: "tv", Type: model.PlanReminder, Title: "TV", Amount: amountOf(999), Frequency: model.FrequencyOnce},
		{ID: "tax", Type: model.PlanReminder, Title: "Tax", Amount: amountOf(90), Frequency: "quarterly"},
		{ID: "fund", Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{{Date: "2024-03-01"}}},
		{ID: "coffee", Type: model.PlanReminder, Title: "Coffee", Amount: amountOf(2), Frequency: model.FrequencyDaily},
		{ID: "call", Type: model.PlanReminder, Title: "Call mum", Frequency: model.FrequencyWeekly},
		{ID: "zero", Type: model.PlanReminder, Title: "Free", Amount: amountOf(0), Frequency: model.FrequencyMonthly},
	}

	c := MonthlyCommitment(plans)
	// 1200 + 43.3 + 50 + 0 + 90 + 60
	assert.Equal(t, 1443.0, c.TotalMonthly)
	assert.Equal(t, 8, c.Count)

	titles := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"Rent", "Gym", "Insurance", "TV", "Tax"}, titles)

	empty := MonthlyCommitment(nil)
	assert.Zero(t, empty.TotalMonthly)
	assert.NotNil(t, empty.Items)
}

func TestMonthlyCommitment_RoundsHalfUp(t *testing.T) {
	c := MonthlyCommitment([]model.Plan{
		{Type: model.PlanReminder, Amount: amountOf(10.5), Frequency: model.FrequencyMonthly},
	})
	assert.Equal(t, 11.0, c.TotalMonthly)
}

func TestProgress(t *testing.T) {
	plans := []model.Plan{
		{ID: "a", Type: model.PlanChecklist, Title: "Thirds", Steps: []model.Step{
			{Date: "2024-03-01", Done: true}, {Date: "2024-03-02", Done: true}, {Date: "2024-03-03"},
		}},
		{ID: "rent", Type: model.PlanReminder, Title: "Rent"},
		{ID: "b", Type: model.PlanChecklist, Title: "Eighth", Steps: []model.Step{
			{Date: "2024-03-01", Done: true},
			{Date: "2024-03-02"}, {Date: "2024-03-03"}, {Date: "2024-03-04"},
			{Date: "2024-03-05"}, {Date: "2024-03-06"}, {Date: "2024-03-07"}, {Date: "2024-03-08"},
		}},
		{ID: "none", Type: model.PlanChecklist, Title: "No steps", Steps: []model.Step{}},
		{ID: "c", Type: model.PlanChecklist, Title: "Done", Steps: []model.Step{
			{Date: "2024-03-01", Done: true}, {Date: "2024-03-02", Done: true},
		}},
	}

	got := Progress(plans)
	require.Len(t, got, 3)

	assert.Equal(t, ChecklistProgress{PlanID: "a", Title: "Thirds", Done: 2, Total: 3, Percent: 67}, got[0])
	assert.Equal(t, 13, got[1].Percent, "12.5 rounds up")
	assert.False(t, got[1].Completed)
	assert.Equal(t, 100, got[2].Percent)
	assert.True(t, got[2].Completed)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]model.Plan{
		{ID: "c", Type: model.PlanChecklist, Title: "Fund", Steps: []model.Step{{Date: "2024-03-01"}}},
		{ID: "r", Type: model.PlanReminder, Title: "Rent", Amount: amountOf(500), Frequency: model.FrequencyMonthly},
	})
	require.Len(t, s.Progress, 1)
	assert.Zero(t, s.Progress[0].Percent)
	assert.Equal(t, 500.0, s.Reminders.TotalMonthly)
}
