package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	middleware "github.com/datanooblol/leonidas/internal/api/middlewares"
	"github.com/datanooblol/leonidas/internal/models"
)

const tokenTTL = 24 * time.Hour

type Accounts interface {
	Register(ctx context.Context, firstName, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
}

type AuthHandler struct {
	users  Accounts
	secret []byte
	log    *logrus.Logger
}

func NewAuthHandler(users Accounts, jwtSecret string, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{users: users, secret: []byte(jwtSecret), log: log}
}

type signupRequest struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	user, err := h.users.Register(r.Context(), req.FirstName, req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondWithToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondWithToken(w, http.StatusOK, user)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := middleware.IssueToken(h.secret, user.ID, tokenTTL)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: token, User: user})
}
