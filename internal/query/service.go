package query

import (
	"context"
	"sort"

	"retro-backend/internal/models"
	"retro-backend/internal/store"
)

// State tells the presentation layer which message to show
type State string

const (
	// StateEmpty means nothing has been submitted at all
	StateEmpty State = "empty"
	// StateNoMatch means records exist but none pass the filter
	StateNoMatch State = "no_match"
	StateOK      State = "ok"
)

// Request is what the admin view asks for. Question is 1-based; 0 means no tally.
type Request struct {
	Filter
	Question int `json:"question,omitempty" query:"question"`
}

type Result struct {
	State   State             `json:"state"`
	Total   int               `json:"total"`
	Records []models.Feedback `json:"records"`
	Tally   []OptionCount     `json:"tally,omitempty"`
}

// Service reads the store and shapes results for display and export
type Service struct {
	store  store.FeedbackStore
	schema models.Schema
}

func NewService(s store.FeedbackStore, schema models.Schema) *Service {
	return &Service{store: s, schema: schema}
}

func (s *Service) Schema() models.Schema {
	return s.schema
}

// Query loads every record, filters it and optionally tallies one question.
// A storage failure returns no data at all.
func (s *Service) Query(ctx context.Context, req Request) (*Result, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := req.Filter.Apply(all)
	sortRecords(matched)

	result := &Result{
		State:   StateOK,
		Total:   len(all),
		Records: matched,
	}
	switch {
	case len(all) == 0:
		result.State = StateEmpty
	case len(matched) == 0:
		result.State = StateNoMatch
	}

	if req.Question != 0 {
		tally, err := Tally(matched, req.Question, s.schema.QuestionCount())
		if err != nil {
			return nil, err
		}
		result.Tally = tally
	}

	return result, nil
}

// Table runs the query and flattens the matched records
func (s *Service) Table(ctx context.Context, f Filter) (Table, State, error) {
	result, err := s.Query(ctx, Request{Filter: f})
	if err != nil {
		return Table{}, "", err
	}
	return Flatten(result.Records, s.schema), result.State, nil
}

// Summary tallies every question for the filtered records
func (s *Service) Summary(ctx context.Context, f Filter) ([][]OptionCount, State, error) {
	result, err := s.Query(ctx, Request{Filter: f})
	if err != nil {
		return nil, "", err
	}
	return Summarize(result.Records, s.schema.QuestionCount()), result.State, nil
}

// Store order is not a contract, so results are ordered by submission time, then id
func sortRecords(records []models.Feedback) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].SubmittedAt.Equal(records[j].SubmittedAt) {
			return records[i].SubmittedAt.Before(records[j].SubmittedAt)
		}
		return records[i].ID < records[j].ID
	})
}
