package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimestampLayout is how submitted_at is rendered in rows, exports and legacy documents
const TimestampLayout = "2006-01-02 15:04:05"

// Feedback is one persisted retrospective submission. Records are append-only.
type Feedback struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Sprint      string    `json:"sprint" gorm:"not null;index"`
	Team        string    `json:"team" gorm:"not null;index"`
	MemberName  string    `json:"member_name"`
	Role        string    `json:"role,omitempty"`
	Responses   []string  `json:"responses" gorm:"serializer:json;type:text;not null"`
	Comments    string    `json:"comments,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`
}

// TableName keeps the collection name identical across backends
func (Feedback) TableName() string {
	return "feedback"
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	f.ID = uuidV7.String()

	if f.SubmittedAt.IsZero() {
		f.SubmittedAt = time.Now()
	}
	return
}

// Response returns the answer to the 1-based question, or "" if there is none
func (f *Feedback) Response(question int) string {
	if question < 1 || question > len(f.Responses) {
		return ""
	}
	return f.Responses[question-1]
}

// Submission is what a team member sends from the survey form.
// id and submitted_at are deliberately absent: the store assigns both.
type Submission struct {
	Sprint     string   `json:"sprint" validate:"required"`
	Team       string   `json:"team" validate:"required"`
	MemberName string   `json:"member_name"`
	Role       string   `json:"role"`
	Responses  []string `json:"responses" validate:"required,dive,oneof=Poor Average Good Excellent"`
	Comments   string   `json:"comments"`
}

// ToFeedback builds the record that will be persisted. The submission must
// have gone through Schema.Normalize first.
func (s Submission) ToFeedback() Feedback {
	responses := make([]string, len(s.Responses))
	copy(responses, s.Responses)

	return Feedback{
		Sprint:     s.Sprint,
		Team:       s.Team,
		MemberName: s.MemberName,
		Role:       s.Role,
		Responses:  responses,
		Comments:   s.Comments,
	}
}
