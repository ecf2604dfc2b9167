package services

import (
	"context"

	"github.com/datanooblol/leonidas/internal/models"
)

type ownershipStore interface {
	GetProjectForUser(ctx context.Context, projectID, userID string) (*models.Project, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetFile(ctx context.Context, id string) (*models.File, error)
}

// Every resource is resolved through its project; a foreign resource is
// reported exactly like a missing one.

func ownedProject(ctx context.Context, db ownershipStore, projectID, userID string) (*models.Project, error) {
	p, err := db.GetProjectForUser(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

func ownedSession(ctx context.Context, db ownershipStore, sessionID, userID string) (*models.Session, error) {
	s, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	p, err := db.GetProjectForUser(ctx, s.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func ownedFile(ctx context.Context, db ownershipStore, fileID, userID string) (*models.File, error) {
	f, err := db.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrFileNotFound
	}
	p, err := db.GetProjectForUser(ctx, f.ProjectID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrFileNotFound
	}
	return f, nil
}
