package handlers

import (
	"net/http"
	"strconv"
	"time"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/common"
	"retro-backend/internal/models"
	"retro-backend/internal/store"

	"github.com/labstack/echo/v4"
)

const submissionRateWindow = time.Hour

// FeedbackHandler serves the public survey endpoints
type FeedbackHandler struct {
	Schema  models.Schema
	Store   store.FeedbackStore
	Limiter *SubmissionLimiter
}

func NewFeedbackHandler(state *common.ServerState) *FeedbackHandler {
	return &FeedbackHandler{
		Schema:  state.Schema,
		Store:   state.Store,
		Limiter: NewSubmissionLimiter(state.Redis, state.Config.Server.SubmissionRateLimit, submissionRateWindow),
	}
}

type questionView struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type surveyResponse struct {
	models.Schema
	QuestionKeys []questionView `json:"question_keys"`
}

// Survey returns everything a form needs to render: lists, questions and options
func (h *FeedbackHandler) Survey(c echo.Context) error {
	keys := make([]questionView, 0, h.Schema.QuestionCount())
	for i, q := range h.Schema.Questions {
		keys = append(keys, questionView{Key: "q" + strconv.Itoa(i+1), Text: q})
	}
	return c.JSON(http.StatusOK, surveyResponse{Schema: h.Schema, QuestionKeys: keys})
}

// SubmitFeedback handles POST /api/feedback
func (h *FeedbackHandler) SubmitFeedback(c echo.Context) error {
	c.Logger().Info("Received feedback submission")

	allowed, retryAfter := h.Limiter.Allow(c.Request().Context(), "feedback:rate:"+c.RealIP())
	if !allowed {
		submissionsTotal.WithLabelValues(outcomeRateLimited).Inc()
		c.Response().Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many submissions, please try again later")
	}

	req := new(models.Submission)
	if err := c.Bind(req); err != nil {
		submissionsTotal.WithLabelValues(outcomeInvalid).Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if err := c.Validate(req); err != nil {
		submissionsTotal.WithLabelValues(outcomeInvalid).Inc()
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := h.Store.Insert(c.Request().Context(), *req)
	if err != nil {
		if apperrors.IsValidation(err) {
			submissionsTotal.WithLabelValues(outcomeInvalid).Inc()
		} else {
			submissionsTotal.WithLabelValues(outcomeFailed).Inc()
		}
		return toHTTPError(c, err)
	}

	submissionsTotal.WithLabelValues(outcomeSaved).Inc()
	c.Logger().Infof("Saved feedback %s for %s / %s", id, req.Sprint, req.Team)

	return c.JSON(http.StatusCreated, map[string]string{
		"status": "received",
		"id":     id,
	})
}
