package core

import (
	"context"
	"io"
	"time"

	"github.com/datanooblol/leonidas/internal/models"
)

// DbClient defines all persistence operations the services need.
// Lookups return (nil, nil) when the row does not exist.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	CreateProject(ctx context.Context, p *models.Project) error
	GetProjectForUser(ctx context.Context, projectID, userID string) (*models.Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, projectID string) error

	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessionsByProject(ctx context.Context, projectID string) ([]models.Session, error)
	RenameSession(ctx context.Context, id, name string) error
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error

	CreateFile(ctx context.Context, f *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	ListFilesByProject(ctx context.Context, projectID string, status models.FileStatus) ([]models.File, error)
	GetSelectedFiles(ctx context.Context, projectID string) ([]models.File, error)
	GetFilesByIDs(ctx context.Context, ids []string) ([]models.File, error)
	MarkFileUploaded(ctx context.Context, id string, size int64) error
	UpdateFileStatus(ctx context.Context, id string, status models.FileStatus) error
	UpdateFileMetadata(ctx context.Context, id, name, description string, columns []models.ColumnDescriptor) error
	SetFileSelected(ctx context.Context, id string, selected bool) error
	DeleteFile(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any S3-compatible object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	HeadFile(ctx context.Context, bucket, key string) (size int64, err error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
