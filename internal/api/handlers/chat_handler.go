package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/models"
	"github.com/datanooblol/leonidas/internal/services"
)

type Chat interface {
	SendMessage(ctx context.Context, userID, sessionID string, req services.SendMessageRequest) (*models.ChatMessage, error)
	GetHistory(ctx context.Context, userID, sessionID string) ([]models.ChatMessage, error)
	AvailableModels() []string
	DefaultModel() string
}

type ChatHandler struct {
	chat Chat
	log  *logrus.Logger
}

func NewChatHandler(chat Chat, log *logrus.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

// SendMessage runs one chat turn and returns the assistant message.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), userID, chi.URLParam(r, "session_id"), req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	msgs, err := h.chat.GetHistory(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "messages": msgs})
}

func (h *ChatHandler) AvailableModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  h.chat.AvailableModels(),
		"default": h.chat.DefaultModel(),
	})
}
