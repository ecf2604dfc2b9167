package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/models"
)

type Sessions interface {
	Create(ctx context.Context, userID, projectID, name string) (*models.Session, error)
	List(ctx context.Context, userID, projectID string) ([]models.Session, error)
	Get(ctx context.Context, userID, sessionID string) (*models.Session, error)
	Rename(ctx context.Context, userID, sessionID, name string) (*models.Session, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

type SessionHandler struct {
	sessions Sessions
	log      *logrus.Logger
}

func NewSessionHandler(sessions Sessions, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

type sessionRequest struct {
	Name string `json:"name"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req sessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
	}
	s, err := h.sessions.Create(r.Context(), userID, chi.URLParam(r, "project_id"), req.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessions, err := h.sessions.List(r.Context(), userID, chi.URLParam(r, "project_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s, err := h.sessions.Get(r.Context(), userID, chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s, err := h.sessions.Rename(r.Context(), userID, chi.URLParam(r, "session_id"), req.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Delete(r.Context(), userID, chi.URLParam(r, "session_id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
