package calendar

import (
	"math"

	"plancal/internal/model"
)

// maxCommitmentItems bounds the reminder lines listed in a Commitment.
const maxCommitmentItems = 5

// ChecklistProgress is how far one checklist plan has come.
type ChecklistProgress struct {
	PlanID    string `json:"id"`
	Title     string `json:"title"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
	Completed bool   `json:"completed"`
}

// CommitmentItem is one reminder with an amount.
type CommitmentItem struct {
	PlanID    string          `json:"id"`
	Title     string          `json:"title"`
	Amount    float64         `json:"amount"`
	Frequency model.Frequency `json:"frequency"`
}

// Commitment is what the user's reminders add up to per month.
type Commitment struct {
	// TotalMonthly is rounded to whole units.
	TotalMonthly float64          `json:"totalMonthly"`
	Count        int              `json:"count"`
	Items        []CommitmentItem `json:"items"`
}

// Summary is the plan-derived overview shown next to the agenda.
type Summary struct {
	Progress  []ChecklistProgress `json:"progress"`
	Reminders Commitment          `json:"reminders"`
}

// Summarize computes checklist progress and the monthly reminder total.
func Summarize(plans []model.Plan) Summary {
	return Summary{
		Progress:  Progress(plans),
		Reminders: MonthlyCommitment(plans),
	}
}

// Progress reports every checklist that has steps, in input order.
func Progress(plans []model.Plan) []ChecklistProgress {
	out := make([]ChecklistProgress, 0)
	for _, p := range plans {
		if p.Type != model.PlanChecklist || len(p.Steps) == 0 {
			continue
		}
		done, total := p.Progress()
		out = append(out, ChecklistProgress{
			PlanID:    p.ID,
			Title:     p.Title,
			Done:      done,
			Total:     total,
			Percent:   int(roundHalfUp(float64(done) / float64(total) * 100)),
			Completed: p.Completed(),
		})
	}
	return out
}

// MonthlyAmount normalizes a reminder amount to one month. One-off
// reminders count as nothing; unknown cadences count at face value.
func MonthlyAmount(amount float64, f model.Frequency) float64 {
	switch f {
	case model.FrequencyOnce:
		return 0
	case model.FrequencyDaily:
		return amount * 30
	case model.FrequencyWeekly:
		return amount * 4.33
	case model.FrequencyBiweekly:
		return amount * 2
	case model.FrequencyYearly:
		return amount / 12
	default:
		return amount
	}
}

// MonthlyCommitment sums the user's reminders per month and lists the first
// few that carry an amount.
func MonthlyCommitment(plans []model.Plan) Commitment {
	c := Commitment{Items: make([]CommitmentItem, 0)}
	var total float64
	for _, p := range plans {
		if p.Type != model.PlanReminder {
			continue
		}
		c.Count++
		if p.Amount == nil || *p.Amount == 0 {
			continue
		}
		total += MonthlyAmount(*p.Amount, p.Frequency)
		if len(c.Items) < maxCommitmentItems {
			c.Items = append(c.Items, CommitmentItem{
				PlanID:    p.ID,
				Title:     p.Title,
				Amount:    *p.Amount,
				Frequency: p.Frequency,
			})
		}
	}
	c.TotalMonthly = roundHalfUp(total)
	return c
}

// roundHalfUp rounds .5 towards positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
