package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/models"
)

type Projects interface {
	Create(ctx context.Context, userID, name, description string) (*models.Project, error)
	List(ctx context.Context, userID string) ([]models.Project, error)
	Get(ctx context.Context, userID, projectID string) (*models.Project, error)
	Update(ctx context.Context, userID, projectID string, name, description *string) (*models.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
}

type ProjectHandler struct {
	projects Projects
	log      *logrus.Logger
}

func NewProjectHandler(projects Projects, log *logrus.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, log: log}
}

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var name, desc string
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		desc = *req.Description
	}
	p, err := h.projects.Create(r.Context(), userID, name, desc)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	projects, err := h.projects.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.projects.Get(r.Context(), userID, chi.URLParam(r, "project_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	p, err := h.projects.Update(r.Context(), userID, chi.URLParam(r, "project_id"), req.Name, req.Description)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.projects.Delete(r.Context(), userID, chi.URLParam(r, "project_id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
