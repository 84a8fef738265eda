package query

import (
	"fmt"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/models"
)

// Filter narrows records by sprint and team. An empty field means "All".
type Filter struct {
	Sprint string `json:"sprint,omitempty" query:"sprint"`
	Team   string `json:"team,omitempty" query:"team"`
}

func (f Filter) matches(r models.Feedback) bool {
	if f.Sprint != "" && r.Sprint != f.Sprint {
		return false
	}
	if f.Team != "" && r.Team != f.Team {
		return false
	}
	return true
}

// Apply returns the records matching every set predicate. The input is not modified.
func (f Filter) Apply(records []models.Feedback) []models.Feedback {
	out := make([]models.Feedback, 0, len(records))
	for _, r := range records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// OptionCount is one row of a tally
type OptionCount struct {
	Option models.Option `json:"option"`
	Count  int           `json:"count"`
}

// Tally counts answers to the 1-based question across records. Every option
// is present in the result, in models.Options order.
func Tally(records []models.Feedback, question, questionCount int) ([]OptionCount, error) {
	if question < 1 || question > questionCount {
		return nil, apperrors.NewOutOfRangeError(
			fmt.Sprintf("question %d is outside [1, %d]", question, questionCount))
	}

	counts := make(map[models.Option]int, len(models.Options))
	for _, r := range records {
		counts[models.Option(r.Response(question))]++
	}

	tally := make([]OptionCount, len(models.Options))
	for i, o := range models.Options {
		tally[i] = OptionCount{Option: o, Count: counts[o]}
	}
	return tally, nil
}

// Summarize tallies every question
func Summarize(records []models.Feedback, questionCount int) [][]OptionCount {
	summary := make([][]OptionCount, 0, questionCount)
	for q := 1; q <= questionCount; q++ {
		tally, _ := Tally(records, q, questionCount)
		summary = append(summary, tally)
	}
	return summary
}
