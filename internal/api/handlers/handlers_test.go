package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/datanooblol/leonidas/internal/api/middlewares"
	"github.com/datanooblol/leonidas/internal/core/agents"
	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/core/llm"
	"github.com/datanooblol/leonidas/internal/models"
	"github.com/datanooblol/leonidas/internal/services"
)

func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"session not found", fmt.Errorf("wrap: %w", services.ErrSessionNotFound), http.StatusNotFound},
		{"project not found", services.ErrProjectNotFound, http.StatusNotFound},
		{"file not found", services.ErrFileNotFound, http.StatusNotFound},
		{"validation", &services.ValidationError{Field: "content", Reason: "empty"}, http.StatusBadRequest},
		{"bad credentials", services.ErrInvalidCredentials, http.StatusUnauthorized},
		{"email taken", services.ErrEmailTaken, http.StatusConflict},
		{"query error", &services.PipelineError{Stage: services.StageQuery, Err: &catalog.QueryError{SQL: "x", Err: errors.New("boom")}}, http.StatusUnprocessableEntity},
		{"empty sql", &services.PipelineError{Stage: services.StageGenerateSQL, Err: agents.ErrEmptySQL}, http.StatusUnprocessableEntity},
		{"model error", &services.PipelineError{Stage: services.StageAnswer, Err: &llm.ModelCallError{Provider: llm.ProviderBedrock, Err: errors.New("throttled")}}, http.StatusBadGateway},
		{"timeout", &services.PipelineError{Stage: services.StageAnswer, Err: &llm.ModelCallError{Err: context.DeadlineExceeded}}, http.StatusGatewayTimeout},
		{"read-only violation", &services.PipelineError{Stage: services.StageQuery, Err: &catalog.QueryError{SQL: "DROP TABLE t", Err: catalog.ErrNotReadOnly}}, http.StatusUnprocessableEntity},
		{"profiling busy", fmt.Errorf("%w: queue full", services.ErrProfilingUnavailable), http.StatusServiceUnavailable},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

type stubChat struct {
	lastReq   services.SendMessageRequest
	lastUser  string
	lastSess  string
	reply     *models.ChatMessage
	err       error
	history   []models.ChatMessage
	modelKeys []string
}

func (s *stubChat) SendMessage(_ context.Context, userID, sessionID string, req services.SendMessageRequest) (*models.ChatMessage, error) {
	s.lastUser, s.lastSess, s.lastReq = userID, sessionID, req
	return s.reply, s.err
}

func (s *stubChat) GetHistory(_ context.Context, _, _ string) ([]models.ChatMessage, error) {
	return s.history, s.err
}

func (s *stubChat) AvailableModels() []string { return s.modelKeys }
func (s *stubChat) DefaultModel() string { return "OPENAI_20b_BR" }

func chatRouter(h *ChatHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/chat/sessions/{session_id}/messages", h.SendMessage)
	r.Get("/chat/sessions/{session_id}/history", h.History)
	r.Get("/chat/available-models", h.AvailableModels)
	return r
}

func TestChatHandler_SendMessage(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stub := &stubChat{reply: &models.ChatMessage{
		ID:      "m2",
		Role:    models.RoleAssistant,
		Content: "42.5",
		Artifacts: []models.Artifact{
			{Type: models.ArtifactSQL, Content: "SELECT 1", Title: "Generated SQL Query"},
			{Type: models.ArtifactChart, Content: json.RawMessage(`{"data":[]}`)},
		},
	}}
	h := chatRouter(NewChatHandler(stub, logger))

	req := httptest.NewRequest(http.MethodPost, "/chat/sessions/s1/messages", jsonBody(t, map[string]any{
		"content": "avg?", "chat_with_data": true, "with_chart": true, "model": "NOVA_LITE_BR",
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authed(req, "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", stub.lastUser)
	assert.Equal(t, "s1", stub.lastSess)
	assert.Equal(t, services.SendMessageRequest{Content: "avg?", ChatWithData: true, WithChart: true, Model: "NOVA_LITE_BR"}, stub.lastReq)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "42.5", got["content"])
	arts := got["artifacts"].([]any)
	require.Len(t, arts, 2)
	assert.Equal(t, map[string]any{"data": []any{}}, arts[1].(map[string]any)["content"])
}

func TestChatHandler_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	tests := []struct {
		name   string
		err    error
		body   string
		user   string
		status int
		stage  string
	}{
		{name: "unauthenticated", body: `{"content":"x"}`, status: http.StatusUnauthorized},
		{name: "malformed body", body: `{"content":`, user: "u1", status: http.StatusBadRequest},
		{name: "unknown field", body: `{"contents":"x"}`, user: "u1", status: http.StatusBadRequest},
		{name: "not found", body: `{"content":"x"}`, user: "u1", err: services.ErrSessionNotFound, status: http.StatusNotFound},
		{
			name: "query failure", body: `{"content":"x"}`, user: "u1",
			err:    &services.PipelineError{Stage: services.StageQuery, Err: &catalog.QueryError{SQL: "SELECT", Err: errors.New("no table")}},
			status: http.StatusUnprocessableEntity, stage: services.StageQuery,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := chatRouter(NewChatHandler(&stubChat{err: tt.err}, logger))
			req := httptest.NewRequest(http.MethodPost, "/chat/sessions/s1/messages", bytes.NewBufferString(tt.body))
			if tt.user != "" {
				req = authed(req, tt.user)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)

			if tt.stage != "" {
				var body errorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.stage, body.Stage)
			}
		})
	}
}

func TestChatHandler_InternalErrorsAreHidden(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := chatRouter(NewChatHandler(&stubChat{err: errors.New("pq: password authentication failed")}, logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/chat/sessions/s1/history", nil), "u1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	require.NotNil(t, hook.LastEntry())
}

func TestChatHandler_AvailableModels(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := chatRouter(NewChatHandler(&stubChat{modelKeys: []string{"A", "B"}}, logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat/available-models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"models":["A","B"],"default":"OPENAI_20b_BR"}`, rec.Body.String())
}

type stubAccounts struct {
	users map[string]*models.User
}

func (s *stubAccounts) Register(_ context.Context, firstName, email, _ string) (*models.User, error) {
	if _, ok := s.users[email]; ok {
		return nil, services.ErrEmailTaken
	}
	u := &models.User{ID: "u-" + email, FirstName: firstName, Email: email}
	s.users[email] = u
	return u, nil
}

func (s *stubAccounts) Authenticate(_ context.Context, email, password string) (*models.User, error) {
	u, ok := s.users[email]
	if !ok || password != "pw" {
		return nil, services.ErrInvalidCredentials
	}
	return u, nil
}

func (s *stubAccounts) Get(_ context.Context, id string) (*models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func TestAuthHandler_SignupLoginMe(t *testing.T) {
	logger, _ := test.NewNullLogger()
	secret := "test-secret"
	h := NewAuthHandler(&stubAccounts{users: map[string]*models.User{}}, secret, logger)

	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.With(middleware.JWTMiddleware([]byte(secret))).Get("/me", h.Me)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", jsonBody(t, map[string]string{
		"first_name": "Ada", "email": "ada@example.com", "password": "pw",
	})))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", jsonBody(t, map[string]string{
		"email": "ada@example.com", "password": "pw",
	})))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", jsonBody(t, map[string]string{
		"email": "ada@example.com", "password": "nope",
	})))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", jsonBody(t, map[string]string{
		"email": "ada@example.com", "password": "pw",
	})))
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

type stubFiles struct {
	Files
	uploaded  []byte
	filename  string
	selected  *bool
	projectID string
}

func (s *stubFiles) Upload(_ context.Context, _, projectID, filename, _ string, data io.Reader, _ int64) (*models.File, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	s.uploaded, s.filename, s.projectID = b, filename, projectID
	return &models.File{ID: "f1", Filename: filename, Status: models.FileStatusProcessing}, nil
}

func (s *stubFiles) SetSelected(_ context.Context, _, fileID string, selected bool) (*models.File, error) {
	s.selected = &selected
	return &models.File{ID: fileID, Selected: selected}, nil
}

func (s *stubFiles) DownloadURL(context.Context, string, string) (string, error) {
	return "https://signed", nil
}

func TestFileHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	stub := &stubFiles{}
	h := NewFileHandler(stub, logger)

	r := chi.NewRouter()
	r.Post("/projects/{project_id}/files", h.Upload)
	r.Patch("/files/{file_id}/selection", h.SetSelection)
	r.Get("/files/{file_id}/download-url", h.DownloadURL)

	t.Run("multipart upload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "orders.csv")
		require.NoError(t, err)
		_, _ = part.Write([]byte("order_id,amount\n1,10\n"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/projects/p1/files", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, authed(req, "u1"))

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "orders.csv", stub.filename)
		assert.Equal(t, "p1", stub.projectID)
		assert.Equal(t, "order_id,amount\n1,10\n", string(stub.uploaded))
	})

	t.Run("selection requires a bool", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPatch, "/files/f1/selection", bytes.NewBufferString(`{}`)), "u1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPatch, "/files/f1/selection", bytes.NewBufferString(`{"selected":false}`)), "u1"))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, stub.selected)
		assert.False(t, *stub.selected)
	})

	t.Run("download url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/files/f1/download-url", nil), "u1"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"download_url":"https://signed","expires_in":900}`, rec.Body.String())
	})
}

func TestIssuedTokenRoundTrip(t *testing.T) {
	tok, err := middleware.IssueToken([]byte("k"), "u9", time.Minute)
	require.NoError(t, err)

	var seen string
	h := middleware.JWTMiddleware([]byte("k"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.UserID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u9", seen)
}
