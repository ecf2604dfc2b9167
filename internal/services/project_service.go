package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/models"
)

type ProjectService struct {
	db      core.DbClient
	storage core.ObjectClient
	log     *logrus.Logger
}

func NewProjectService(db core.DbClient, storage core.ObjectClient, log *logrus.Logger) *ProjectService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProjectService{db: db, storage: storage, log: log}
}

func (s *ProjectService) Create(ctx context.Context, userID, name, description string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	p := &models.Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	if err := s.db.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) List(ctx context.Context, userID string) ([]models.Project, error) {
	return s.db.ListProjectsByUser(ctx, userID)
}

func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*models.Project, error) {
	return ownedProject(ctx, s.db, projectID, userID)
}

// Update applies the non-nil fields.
func (s *ProjectService) Update(ctx context.Context, userID, projectID string, name, description *string) (*models.Project, error) {
	p, err := ownedProject(ctx, s.db, projectID, userID)
	if err != nil {
		return nil, err
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, invalid("name", "must not be empty")
		}
		p.Name = n
	}
	if description != nil {
		p.Description = *description
	}
	if err := s.db.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	return ownedProject(ctx, s.db, projectID, userID)
}

// Delete removes the project; its sessions, messages and file records go
// with it. Stored objects are removed best effort.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return err
	}
	files, err := s.db.ListFilesByProject(ctx, projectID, "")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.Key == "" {
			continue
		}
		if err := s.storage.DeleteFile(ctx, f.Bucket, f.Key); err != nil {
			s.log.WithError(err).WithField("file_id", f.ID).Warn("project delete: object not removed")
		}
	}
	return s.db.DeleteProject(ctx, projectID)
}
