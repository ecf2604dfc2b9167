package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanooblol/leonidas/internal/api/handlers"
	middleware "github.com/datanooblol/leonidas/internal/api/middlewares"
	"github.com/datanooblol/leonidas/internal/config"
	"github.com/datanooblol/leonidas/internal/models"
)

type stubChat struct{ handlers.Chat }

func (stubChat) AvailableModels() []string { return []string{"A", "B"} }
func (stubChat) DefaultModel() string      { return "A" }

type stubProjects struct {
	handlers.Projects
	gotUser string
}

func (s *stubProjects) List(_ context.Context, userID string) ([]models.Project, error) {
	s.gotUser = userID
	return []models.Project{{ID: "p1", UserID: userID, Name: "Sales"}}, nil
}

func newTestRouter(t *testing.T, projects *stubProjects) (http.Handler, *config.Config) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cfg := &config.Config{JWTSecret: "test-secret", AllowedOrigins: []string{"http://localhost:3000"}}
	return NewRouter(cfg, logger, Services{Chat: stubChat{}, Projects: projects}), cfg
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t, &stubProjects{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/available-models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"A", "B"}, body.Models)
	assert.Equal(t, "A", body.Default)
}

func TestRouter_ProtectedRoutesNeedToken(t *testing.T) {
	projects := &stubProjects{}
	router, cfg := newTestRouter(t, projects)

	for _, path := range []string{"/api/me", "/api/projects", "/api/files/f1", "/api/chat/sessions/s1/history"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	token, err := middleware.IssueToken([]byte(cfg.JWTSecret), "u1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", projects.gotUser)
	assert.Contains(t, rec.Body.String(), `"Sales"`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, &stubProjects{})

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
