package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	middleware "github.com/datanooblol/leonidas/internal/api/middlewares"
	"github.com/datanooblol/leonidas/internal/core/agents"
	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/core/llm"
	"github.com/datanooblol/leonidas/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps service and pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		verr *services.ValidationError
		qerr *catalog.QueryError
		uerr *catalog.UnsupportedSourceError
		merr *llm.ModelCallError
	)
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrFileNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrProfilingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &qerr), errors.As(err, &uerr), errors.Is(err, agents.ErrEmptySQL):
		return http.StatusUnprocessableEntity
	case errors.As(err, &merr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *logrus.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var perr *services.PipelineError
	if errors.As(err, &perr) {
		body.Stage = perr.Stage
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}
