package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/models"
	"retro-backend/internal/query"
)

const testPassword = "retro-password"

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

// memStore keeps records in memory and normalizes like the real backends
type memStore struct {
	schema models.Schema

	mu      sync.Mutex
	records []models.Feedback
	err     error
}

func (s *memStore) Insert(ctx context.Context, sub models.Submission) (string, error) {
	clean, err := s.schema.Normalize(sub)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	record := clean.ToFeedback()
	record.ID = fmt.Sprintf("id-%d", len(s.records)+1)
	record.SubmittedAt = time.Now().Add(time.Duration(len(s.records)) * time.Second)
	s.records = append(s.records, record)
	return record.ID, nil
}

func (s *memStore) ListAll(ctx context.Context) ([]models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Feedback, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memStore) Close() error { return nil }

type testEnv struct {
	echo  *echo.Echo
	store *memStore
}

func setupTestEcho(t *testing.T, rateLimit int) *testEnv {
	t.Helper()

	schema, err := models.NewSchema(models.QuestionSetCore)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	st := &memStore{schema: schema}
	jwtAuth := NewJwtAuth("test-secret")

	feedback := &FeedbackHandler{
		Schema:  schema,
		Store:   st,
		Limiter: NewSubmissionLimiter(nil, rateLimit, time.Hour),
	}
	admin := &AdminHandler{
		Schema:            schema,
		Query:             query.NewService(st, schema),
		JwtIssuer:         jwtAuth,
		AdminPasswordHash: string(hash),
	}

	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}
	e.IPExtractor = NewIPExtractor(false)
	e.Logger.SetLevel(log.OFF)

	e.GET("/api/survey", feedback.Survey)
	e.POST("/api/feedback", feedback.SubmitFeedback)
	e.POST("/api/admin/sign-in", admin.SignIn)
	g := e.Group("/api/admin", jwtAuth.Middleware())
	g.GET("/feedback", admin.ListFeedback)
	g.GET("/feedback/export", admin.ExportFeedback)
	g.GET("/feedback/tally", admin.TallyFeedback)
	g.GET("/feedback/summary", admin.SummaryFeedback)

	return &testEnv{echo: e, store: st}
}

func (env *testEnv) do(t *testing.T, method, target string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.10:4321"
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) signIn(t *testing.T, team string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/admin/sign-in", map[string]string{"password": testPassword, "team": team}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

func coreSubmission(name, sprint, team string, first models.Option) map[string]interface{} {
	responses := make([]string, 8)
	for i := range responses {
		responses[i] = string(models.OptionGood)
	}
	responses[0] = string(first)
	return map[string]interface{}{
		"sprint":      sprint,
		"team":        team,
		"member_name": name,
		"role":        "Developer",
		"responses":   responses,
		"comments":    "",
	}
}

func TestSurvey(t *testing.T) {
	env := setupTestEcho(t, 0)

	rec := env.do(t, http.MethodGet, "/api/survey", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sprints      []string `json:"sprints"`
		Teams        []string `json:"teams"`
		Questions    []string `json:"questions"`
		Options      []string `json:"options"`
		QuestionKeys []struct {
			Key  string `json:"key"`
			Text string `json:"text"`
		} `json:"question_keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Questions, 8)
	assert.Equal(t, []string{"Poor", "Average", "Good", "Excellent"}, resp.Options)
	require.Len(t, resp.QuestionKeys, 8)
	assert.Equal(t, "q1", resp.QuestionKeys[0].Key)
	assert.Equal(t, resp.Questions[7], resp.QuestionKeys[7].Text)
	assert.Contains(t, resp.Teams, "Vindhya")
}

func TestSubmitFeedback_Success(t *testing.T) {
	env := setupTestEcho(t, 0)

	rec := env.do(t, http.MethodPost, "/api/feedback", coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionExcellent), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp["status"])
	assert.Equal(t, "id-1", resp["id"])

	records, err := env.store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alice", records[0].MemberName)
	assert.Equal(t, "Excellent", records[0].Responses[0])
}

func TestSubmitFeedback_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"Missing sprint", func(b map[string]interface{}) { b["sprint"] = "" }},
		{"Unknown team", func(b map[string]interface{}) { b["team"] = "Nobody" }},
		{"Too few responses", func(b map[string]interface{}) { b["responses"] = []string{"Good", "Good"} }},
		{"Invalid option", func(b map[string]interface{}) {
			b["responses"] = []string{"Good", "Good", "Good", "Good", "Good", "Good", "Good", "Great"}
		}},
		{"Blank name", func(b map[string]interface{}) { b["member_name"] = "   " }},
		{"Unknown role", func(b map[string]interface{}) { b["role"] = "Manager" }},
		{"Scrum master role", func(b map[string]interface{}) { b["role"] = "Scrum Master" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEcho(t, 0)
			body := coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood)
			tt.mutate(body)

			rec := env.do(t, http.MethodPost, "/api/feedback", body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			records, err := env.store.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestSubmitFeedback_MalformedBody(t *testing.T) {
	env := setupTestEcho(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFeedback_StorageFailure(t *testing.T) {
	env := setupTestEcho(t, 0)
	env.store.err = apperrors.NewStorageError("failed to save feedback", errors.New("disk full"))

	rec := env.do(t, http.MethodPost, "/api/feedback", coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestSubmitFeedback_RateLimited(t *testing.T) {
	env := setupTestEcho(t, 2)
	body := coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/feedback", body, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/feedback", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	records, err := env.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSubmitFeedback_ForwardedForDoesNotBypassLimit(t *testing.T) {
	env := setupTestEcho(t, 1)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		raw, err := json.Marshal(coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/feedback", bytes.NewReader(raw))
		req.RemoteAddr = "192.0.2.10:4321"
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("10.9.9.%d", i))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("10.8.8.%d", i))
		rec := httptest.NewRecorder()
		env.echo.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{201, 429, 429, 429, 429}, codes)

	records, err := env.store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSignIn(t *testing.T) {
	env := setupTestEcho(t, 0)

	rec := env.do(t, http.MethodPost, "/api/admin/sign-in", map[string]string{"password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/sign-in", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/sign-in", map[string]string{"password": testPassword, "team": "Nobody"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.NotEmpty(t, env.signIn(t, ""))
	assert.NotEmpty(t, env.signIn(t, "Vindhya"))
}

func TestSignIn_NotConfigured(t *testing.T) {
	schema, err := models.NewSchema(models.QuestionSetCore)
	require.NoError(t, err)

	admin := &AdminHandler{Schema: schema, JwtIssuer: NewJwtAuth("secret")}
	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}
	e.POST("/api/admin/sign-in", admin.SignIn)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/sign-in", strings.NewReader(`{"password":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := setupTestEcho(t, 0)

	for _, path := range []string{"/api/admin/feedback", "/api/admin/feedback/export", "/api/admin/feedback/tally?question=1", "/api/admin/feedback/summary"} {
		rec := env.do(t, http.MethodGet, path, nil, "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

type listResponse struct {
	State   string     `json:"state"`
	Message string     `json:"message"`
	Total   int        `json:"total"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) listResponse {
	t.Helper()
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestListFeedback_EmptyAndNoMatch(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	rec := env.do(t, http.MethodGet, "/api/admin/feedback", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeList(t, rec)
	assert.Equal(t, "empty", resp.State)
	assert.Equal(t, "No feedback has been submitted yet.", resp.Message)
	assert.Empty(t, resp.Rows)

	rec = env.do(t, http.MethodPost, "/api/feedback", coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood), "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback?team=Darwin", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeList(t, rec)
	assert.Equal(t, "no_match", resp.State)
	assert.Equal(t, "No feedback matches the selected sprint and team.", resp.Message)
	assert.Equal(t, 1, resp.Total)
	assert.Empty(t, resp.Rows)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback?team=Vindhya&sprint=Sprint+1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeList(t, rec)
	assert.Equal(t, "ok", resp.State)
	assert.Empty(t, resp.Message)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Sprint 1", resp.Rows[0][0])
	assert.Equal(t, len(resp.Columns), len(resp.Rows[0]))
}

func TestListFeedback_InvalidFilters(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	rec := env.do(t, http.MethodGet, "/api/admin/feedback?sprint=Sprint+99", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback?question=abc", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback?question=9", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrumMasterScope(t *testing.T) {
	env := setupTestEcho(t, 0)
	for _, team := range []string{"Vindhya", "Darwin"} {
		rec := env.do(t, http.MethodPost, "/api/feedback", coreSubmission("Alice", "Sprint 1", team, models.OptionGood), "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	token := env.signIn(t, "Vindhya")

	rec := env.do(t, http.MethodGet, "/api/admin/feedback?team=Darwin", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Filter query.Filter `json:"filter"`
		Rows   [][]string   `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Vindhya", resp.Filter.Team)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Vindhya", resp.Rows[0][1])
}

func TestTallyFeedback(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	for i, first := range []models.Option{models.OptionPoor, models.OptionGood, models.OptionExcellent} {
		rec := env.do(t, http.MethodPost, "/api/feedback", coreSubmission(fmt.Sprintf("Member %d", i), "Sprint 1", "Vindhya", first), "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	for _, q := range []string{"", "0", "9", "-1"} {
		rec := env.do(t, http.MethodGet, "/api/admin/feedback/tally?question="+q, nil, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "question=%q", q)
	}

	rec := env.do(t, http.MethodGet, "/api/admin/feedback/tally?question=1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Question int                 `json:"question"`
		Text     string              `json:"text"`
		State    string              `json:"state"`
		Tally    []query.OptionCount `json:"tally"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Question)
	assert.Equal(t, "How clear were sprint goals?", resp.Text)
	assert.Equal(t, "ok", resp.State)
	assert.Equal(t, []query.OptionCount{
		{Option: models.OptionPoor, Count: 1},
		{Option: models.OptionAverage, Count: 0},
		{Option: models.OptionGood, Count: 1},
		{Option: models.OptionExcellent, Count: 1},
	}, resp.Tally)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback/tally?question=1&team=Darwin", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no_match", resp.State)
	total := 0
	for _, c := range resp.Tally {
		total += c.Count
	}
	assert.Len(t, resp.Tally, 4)
	assert.Zero(t, total)
}

func TestSummaryFeedback(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	rec := env.do(t, http.MethodPost, "/api/feedback", coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionPoor), "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback/summary", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		State     string `json:"state"`
		Questions []struct {
			Key   string              `json:"key"`
			Tally []query.OptionCount `json:"tally"`
		} `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.State)
	require.Len(t, resp.Questions, 8)
	assert.Equal(t, "q1", resp.Questions[0].Key)
	assert.Equal(t, 1, resp.Questions[0].Tally[0].Count)
	assert.Equal(t, 1, resp.Questions[1].Tally[2].Count)
}

func TestExportFeedback(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	body := coreSubmission("Alice", "Sprint 1", "Vindhya", models.OptionGood)
	body["comments"] = "Standups ran long, \"again\""
	rec := env.do(t, http.MethodPost, "/api/feedback", body, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/feedback/export?sprint=Sprint+1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="feedback_sprint-1_all-teams.csv"`, rec.Header().Get(echo.HeaderContentDisposition))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "sprint,team,member_name"))
	assert.Contains(t, lines[1], `"Standups ran long, ""again"""`)
}

func TestExportFeedback_EmptyHasHeaderOnly(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")

	rec := env.do(t, http.MethodGet, "/api/admin/feedback/export", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 1)
}

func TestAdminRoutes_StorageFailure(t *testing.T) {
	env := setupTestEcho(t, 0)
	token := env.signIn(t, "")
	env.store.err = apperrors.NewStorageError("failed to load feedback", errors.New("connection reset"))

	for _, path := range []string{"/api/admin/feedback", "/api/admin/feedback/export", "/api/admin/feedback/tally?question=1", "/api/admin/feedback/summary"} {
		rec := env.do(t, http.MethodGet, path, nil, token)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	}
}
