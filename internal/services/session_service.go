package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/models"
)

const defaultSessionName = "New Chat"

type SessionService struct {
	db core.DbClient
}

func NewSessionService(db core.DbClient) *SessionService {
	return &SessionService{db: db}
}

func (s *SessionService) Create(ctx context.Context, userID, projectID, name string) (*models.Session, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultSessionName
	}
	sess := &models.Session{ID: uuid.NewString(), ProjectID: projectID, Name: name}
	if err := s.db.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) List(ctx context.Context, userID, projectID string) ([]models.Session, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	return s.db.ListSessionsByProject(ctx, projectID)
}

func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	return ownedSession(ctx, s.db, sessionID, userID)
}

func (s *SessionService) Rename(ctx context.Context, userID, sessionID, name string) (*models.Session, error) {
	sess, err := ownedSession(ctx, s.db, sessionID, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	if err := s.db.RenameSession(ctx, sessionID, name); err != nil {
		return nil, err
	}
	sess.Name = name
	return sess, nil
}

func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	if _, err := ownedSession(ctx, s.db, sessionID, userID); err != nil {
		return err
	}
	return s.db.DeleteSession(ctx, sessionID)
}
