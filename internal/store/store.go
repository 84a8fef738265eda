// Package store persists retrospective feedback. Every backend validates a
// submission against the deployment schema before any write, assigns id and
// submitted_at itself, and relies on the engine for per-insert atomicity.
package store

import (
	"context"

	"retro-backend/internal/models"
)

// FeedbackStore is the append-only record store. There is intentionally no
// update or delete.
type FeedbackStore interface {
	// Insert validates sub, persists it and returns the assigned id.
	Insert(ctx context.Context, sub models.Submission) (string, error)
	// ListAll returns every persisted record in no particular order.
	ListAll(ctx context.Context) ([]models.Feedback, error)
	Close() error
}
