package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/models"
	"github.com/datanooblol/leonidas/internal/services"
)

const maxUploadBytes = 512 << 20

type Files interface {
	CreateUploadURL(ctx context.Context, userID, projectID, filename, contentType string) (*services.UploadTicket, error)
	Upload(ctx context.Context, userID, projectID, filename, contentType string, data io.Reader, size int64) (*models.File, error)
	Confirm(ctx context.Context, userID, fileID string) (*models.File, error)
	List(ctx context.Context, userID, projectID string, status models.FileStatus) ([]models.File, error)
	Selected(ctx context.Context, userID, projectID string) ([]models.File, error)
	Get(ctx context.Context, userID, fileID string) (*models.File, error)
	UpdateMetadata(ctx context.Context, userID, fileID string, upd services.MetadataUpdate) (*models.File, error)
	SetSelected(ctx context.Context, userID, fileID string, selected bool) (*models.File, error)
	DownloadURL(ctx context.Context, userID, fileID string) (string, error)
	Delete(ctx context.Context, userID, fileID string) error
}

type FileHandler struct {
	files Files
	log   *logrus.Logger
}

func NewFileHandler(files Files, log *logrus.Logger) *FileHandler {
	return &FileHandler{files: files, log: log}
}

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (h *FileHandler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ticket, err := h.files.CreateUploadURL(r.Context(), userID, chi.URLParam(r, "project_id"), req.Filename, req.ContentType)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// Upload accepts a multipart form with a "file" part.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	f, err := h.files.Upload(r.Context(), userID, chi.URLParam(r, "project_id"),
		header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FileHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	f, err := h.files.Confirm(r.Context(), userID, chi.URLParam(r, "file_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	status := models.FileStatus(r.URL.Query().Get("status"))
	files, err := h.files.List(r.Context(), userID, chi.URLParam(r, "project_id"), status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *FileHandler) Selected(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	files, err := h.files.Selected(r.Context(), userID, chi.URLParam(r, "project_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	f, err := h.files.Get(r.Context(), userID, chi.URLParam(r, "file_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var upd services.MetadataUpdate
	if err := decodeJSON(r, &upd); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	f, err := h.files.UpdateMetadata(r.Context(), userID, chi.URLParam(r, "file_id"), upd)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type selectionRequest struct {
	Selected *bool `json:"selected"`
}

func (h *FileHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil || req.Selected == nil {
		http.Error(w, "body must be {\"selected\": bool}", http.StatusBadRequest)
		return
	}
	f, err := h.files.SetSelected(r.Context(), userID, chi.URLParam(r, "file_id"), *req.Selected)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	url, err := h.files.DownloadURL(r.Context(), userID, chi.URLParam(r, "file_id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"download_url": url, "expires_in": 15 * 60})
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.files.Delete(r.Context(), userID, chi.URLParam(r, "file_id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
