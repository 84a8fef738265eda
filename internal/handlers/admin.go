package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"retro-backend/internal/common"
	"retro-backend/internal/models"
	"retro-backend/internal/query"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// AdminHandler serves the scrum master / admin view. Every route except
// SignIn sits behind the JWT middleware.
type AdminHandler struct {
	Schema            models.Schema
	Query             *query.Service
	JwtIssuer         common.JWTIssuer
	AdminPasswordHash string
}

func NewAdminHandler(state *common.ServerState) *AdminHandler {
	return &AdminHandler{
		Schema:            state.Schema,
		Query:             state.Query,
		JwtIssuer:         state.JwtIssuer,
		AdminPasswordHash: state.Config.Auth.AdminPasswordHash,
	}
}

type SignInRequest struct {
	Password string `json:"password" validate:"required"`
	// Team scopes the token; leave empty for full admin access
	Team string `json:"team"`
}

type feedbackListResponse struct {
	State   query.State         `json:"state"`
	Message string              `json:"message,omitempty"`
	Total   int                 `json:"total"`
	Filter  query.Filter        `json:"filter"`
	Columns []string            `json:"columns"`
	Rows    [][]string          `json:"rows"`
	Tally   []query.OptionCount `json:"tally,omitempty"`
}

type tallyResponse struct {
	Question int                 `json:"question"`
	Text     string              `json:"text"`
	State    query.State         `json:"state"`
	Filter   query.Filter        `json:"filter"`
	Tally    []query.OptionCount `json:"tally"`
}

type questionSummary struct {
	Key   string              `json:"key"`
	Text  string              `json:"text"`
	Tally []query.OptionCount `json:"tally"`
}

// SignIn exchanges the admin password for a token
func (h *AdminHandler) SignIn(c echo.Context) error {
	c.Logger().Info("Received admin sign-in request")

	if h.AdminPasswordHash == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Admin access is not configured")
	}

	req := &SignInRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.Team != "" && !slices.Contains(h.Schema.Teams, req.Team) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown team %q", req.Team))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.AdminPasswordHash), []byte(req.Password)); err != nil {
		c.Logger().Warn("Admin sign-in rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid password")
	}

	token, err := h.JwtIssuer.GenerateToken(req.Team)
	if err != nil {
		c.Logger().Errorf("Failed to generate admin token: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// resolveRequest reads the query string and applies the caller's team scope
func (h *AdminHandler) resolveRequest(c echo.Context) (query.Request, error) {
	claims, err := h.JwtIssuer.GetClaims(c)
	if err != nil {
		return query.Request{}, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized request")
	}

	req, err := bindQueryRequest(c)
	if err != nil {
		return req, toHTTPError(c, err)
	}

	if err := validateFilter(h.Schema, req.Filter); err != nil {
		return req, toHTTPError(c, err)
	}

	req.Filter, err = scopeFilter(claims, req.Filter)
	if err != nil {
		return req, toHTTPError(c, err)
	}
	return req, nil
}

// ListFeedback handles GET /api/admin/feedback
func (h *AdminHandler) ListFeedback(c echo.Context) error {
	req, err := h.resolveRequest(c)
	if err != nil {
		return err
	}
	if req.Question != 0 {
		if err := validateQuestion(h.Schema, req.Question); err != nil {
			return toHTTPError(c, err)
		}
	}

	result, err := h.Query.Query(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(c, err)
	}

	table := query.Flatten(result.Records, h.Schema)
	return c.JSON(http.StatusOK, feedbackListResponse{
		State:   result.State,
		Message: stateMessage(result.State),
		Total:   result.Total,
		Filter:  req.Filter,
		Columns: table.Columns,
		Rows:    table.Rows,
		Tally:   result.Tally,
	})
}

// ExportFeedback handles GET /api/admin/feedback/export
func (h *AdminHandler) ExportFeedback(c echo.Context) error {
	req, err := h.resolveRequest(c)
	if err != nil {
		return err
	}

	table, state, err := h.Query.Table(c.Request().Context(), req.Filter)
	if err != nil {
		return toHTTPError(c, err)
	}

	// Render fully before writing so a failure never produces a partial download
	var buf bytes.Buffer
	if err := query.WriteCSV(&buf, table); err != nil {
		return toHTTPError(c, err)
	}

	exportsTotal.Inc()
	c.Logger().Infof("Exporting %d feedback rows (%s)", len(table.Rows), state)

	filename := query.ExportFilename(req.Filter)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// TallyFeedback handles GET /api/admin/feedback/tally?question=N
func (h *AdminHandler) TallyFeedback(c echo.Context) error {
	req, err := h.resolveRequest(c)
	if err != nil {
		return err
	}
	if err := validateQuestion(h.Schema, req.Question); err != nil {
		return toHTTPError(c, err)
	}

	result, err := h.Query.Query(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(c, err)
	}

	return c.JSON(http.StatusOK, tallyResponse{
		Question: req.Question,
		Text:     h.Schema.Questions[req.Question-1],
		State:    result.State,
		Filter:   req.Filter,
		Tally:    result.Tally,
	})
}

// SummaryFeedback handles GET /api/admin/feedback/summary
func (h *AdminHandler) SummaryFeedback(c echo.Context) error {
	req, err := h.resolveRequest(c)
	if err != nil {
		return err
	}

	summary, state, err := h.Query.Summary(c.Request().Context(), req.Filter)
	if err != nil {
		return toHTTPError(c, err)
	}

	questions := make([]questionSummary, len(summary))
	for i, tally := range summary {
		questions[i] = questionSummary{
			Key:   fmt.Sprintf("q%d", i+1),
			Text:  h.Schema.Questions[i],
			Tally: tally,
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"state":     state,
		"message":   stateMessage(state),
		"filter":    req.Filter,
		"questions": questions,
	})
}
