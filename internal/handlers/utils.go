package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/common"
	"retro-backend/internal/models"
	"retro-backend/internal/query"

	"github.com/labstack/echo/v4"
)

const storageUnavailableMessage = "Feedback storage is unavailable right now, please try again"

// toHTTPError maps the application error taxonomy onto HTTP responses.
// Storage details are logged, never returned to the client.
func toHTTPError(c echo.Context, err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		c.Logger().Errorf("Unexpected error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong")
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		return echo.NewHTTPError(http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeOutOfRange:
		c.Logger().Errorf("Question index reached the query layer unchecked: %v", err)
		return echo.NewHTTPError(http.StatusBadRequest, appErr.Message)
	case apperrors.ErrorTypeUnauthorized:
		return echo.NewHTTPError(http.StatusForbidden, appErr.Message)
	case apperrors.ErrorTypeStorage:
		c.Logger().Errorf("Storage failure: %v", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, storageUnavailableMessage)
	default:
		c.Logger().Errorf("Unexpected error: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong")
	}
}

// bindQueryRequest reads sprint, team and question from the query string
func bindQueryRequest(c echo.Context) (query.Request, error) {
	var req query.Request
	err := echo.QueryParamsBinder(c).
		String("sprint", &req.Sprint).
		String("team", &req.Team).
		Int("question", &req.Question).
		BindError()
	if err != nil {
		return req, apperrors.NewValidationError("question must be a number")
	}
	return req, nil
}

// scopeFilter applies the token's team scope. A scrum master asking for a
// different team is refused rather than silently narrowed.
func scopeFilter(claims *common.AdminClaims, f query.Filter) (query.Filter, error) {
	if !claims.Scoped() {
		return f, nil
	}
	if f.Team != "" && f.Team != claims.Team {
		return f, apperrors.NewUnauthorizedError(fmt.Sprintf("token is limited to team %q", claims.Team))
	}
	f.Team = claims.Team
	return f, nil
}

func validateFilter(schema models.Schema, f query.Filter) error {
	if f.Sprint != "" && !slices.Contains(schema.Sprints, f.Sprint) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown sprint %q", f.Sprint))
	}
	if f.Team != "" && !slices.Contains(schema.Teams, f.Team) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown team %q", f.Team))
	}
	return nil
}

func validateQuestion(schema models.Schema, question int) error {
	if question < 1 || question > schema.QuestionCount() {
		return apperrors.NewValidationError(
			fmt.Sprintf("question must be between 1 and %d", schema.QuestionCount()))
	}
	return nil
}

// stateMessage is the informational text shown for an empty result
func stateMessage(state query.State) string {
	switch state {
	case query.StateEmpty:
		return "No feedback has been submitted yet."
	case query.StateNoMatch:
		return "No feedback matches the selected sprint and team."
	default:
		return ""
	}
}
