package models

import (
	"fmt"
	"slices"
	"strings"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/utils"
)

// Option is one of the four fixed answers to a survey question
type Option string

const (
	OptionPoor      Option = "Poor"
	OptionAverage   Option = "Average"
	OptionGood      Option = "Good"
	OptionExcellent Option = "Excellent"
)

// Options lists every answer in display order
var Options = []Option{OptionPoor, OptionAverage, OptionGood, OptionExcellent}

// IsOption reports whether s is one of the fixed answers
func IsOption(s string) bool {
	return slices.Contains(Options, Option(s))
}

const (
	RoleDeveloper   = "Developer"
	RoleQA          = "QA"
	RoleScrumMaster = "Scrum Master"
)

// DefaultRoles are the roles that submit feedback. Scrum masters read it
// through the admin view instead.
var DefaultRoles = []string{RoleDeveloper, RoleQA}

var DefaultSprints = []string{"Sprint 1", "Sprint 2", "Sprint 3", "Sprint 4", "Sprint 5"}

var DefaultTeams = []string{"Sahyadri", "Vindhya", "Ekalavya", "Darwin", "Cheetahs", "Cumulus", "Tejas", "Constructors"}

// Question set names accepted in configuration
const (
	QuestionSetCore     = "core"
	QuestionSetExtended = "extended"
)

var coreQuestions = []string{
	"How clear were sprint goals?",
	"How was collaboration?",
	"Was work fairly distributed?",
	"Were blockers resolved quickly?",
	"Was code review effective?",
	"Was sprint planning useful?",
	"Was daily standup effective?",
	"How satisfied overall?",
}

var extendedQuestions = []string{
	"How clear were sprint goals?",
	"How was collaboration?",
	"Was work fairly distributed?",
	"Were blockers resolved quickly?",
	"Was code review effective?",
	"Was sprint planning useful?",
	"Was daily standup effective?",
	"Were last retrospective's action items followed up?",
	"How confident are you in the next sprint?",
	"How satisfied overall?",
}

// QuestionSet returns a copy of the named question set
func QuestionSet(name string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case QuestionSetCore:
		return slices.Clone(coreQuestions), nil
	case QuestionSetExtended, "":
		return slices.Clone(extendedQuestions), nil
	default:
		return nil, fmt.Errorf("unknown question set %q", name)
	}
}

// Schema is the survey fixed at deployment time
type Schema struct {
	Sprints   []string `json:"sprints"`
	Teams     []string `json:"teams"`
	Roles     []string `json:"roles,omitempty"`
	Questions []string `json:"questions"`
	Options   []Option `json:"options"`
	// Anonymous deployments never store a member name
	Anonymous bool `json:"anonymous"`
	TrackRole bool `json:"track_role"`
	Comments  bool `json:"comments"`
}

// NewSchema builds a schema with the default sprint, team and role lists
func NewSchema(questionSet string) (Schema, error) {
	questions, err := QuestionSet(questionSet)
	if err != nil {
		return Schema{}, err
	}
	return Schema{
		Sprints:   slices.Clone(DefaultSprints),
		Teams:     slices.Clone(DefaultTeams),
		Roles:     slices.Clone(DefaultRoles),
		Questions: questions,
		Options:   slices.Clone(Options),
		TrackRole: true,
		Comments:  true,
	}, nil
}

// QuestionCount is N, the fixed number of responses per record
func (s Schema) QuestionCount() int {
	return len(s.Questions)
}

// Normalize trims the submission, drops fields this deployment does not keep
// and rejects anything that must never reach the store.
func (s Schema) Normalize(sub Submission) (Submission, error) {
	sub.Sprint = strings.TrimSpace(sub.Sprint)
	sub.Team = strings.TrimSpace(sub.Team)
	sub.MemberName = utils.CollapseSpaces(sub.MemberName)
	sub.Role = strings.TrimSpace(sub.Role)
	sub.Comments = strings.TrimSpace(sub.Comments)

	if sub.Sprint == "" {
		return sub, apperrors.NewValidationError("sprint is required")
	}
	if len(s.Sprints) > 0 && !slices.Contains(s.Sprints, sub.Sprint) {
		return sub, apperrors.NewValidationError(fmt.Sprintf("unknown sprint %q", sub.Sprint))
	}
	if sub.Team == "" {
		return sub, apperrors.NewValidationError("team is required")
	}
	if len(s.Teams) > 0 && !slices.Contains(s.Teams, sub.Team) {
		return sub, apperrors.NewValidationError(fmt.Sprintf("unknown team %q", sub.Team))
	}

	if n := s.QuestionCount(); len(sub.Responses) != n {
		return sub, apperrors.NewValidationError(
			fmt.Sprintf("responses must contain exactly %d answers, got %d", n, len(sub.Responses)))
	}
	for i, r := range sub.Responses {
		if !IsOption(r) {
			return sub, apperrors.NewValidationError(fmt.Sprintf("q%d: %q is not a valid option", i+1, r))
		}
	}

	if s.Anonymous {
		sub.MemberName = ""
	} else if sub.MemberName == "" {
		return sub, apperrors.NewValidationError("member_name is required")
	}

	if s.TrackRole {
		if sub.Role == RoleScrumMaster && !slices.Contains(s.Roles, RoleScrumMaster) {
			return sub, apperrors.NewValidationError("scrum masters review feedback from the admin view and do not submit it")
		}
		if !slices.Contains(s.Roles, sub.Role) {
			return sub, apperrors.NewValidationError(fmt.Sprintf("role must be one of %s", strings.Join(s.Roles, ", ")))
		}
	} else {
		sub.Role = ""
	}

	if !s.Comments {
		sub.Comments = ""
	}

	return sub, nil
}
