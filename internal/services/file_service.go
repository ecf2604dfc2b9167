package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/models"
)

const defaultPresignTTL = 15 * time.Minute

// ProfileQueue schedules background profiling of an uploaded file.
type ProfileQueue interface {
	Enqueue(ctx context.Context, fileID string) error
}

type FileService struct {
	db       core.DbClient
	storage  core.ObjectClient
	profiler ProfileQueue
	bucket   string
	ttl      time.Duration
	log      *logrus.Logger
}

func NewFileService(db core.DbClient, storage core.ObjectClient, profiler ProfileQueue, bucket string, log *logrus.Logger) *FileService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileService{db: db, storage: storage, profiler: profiler, bucket: bucket, ttl: defaultPresignTTL, log: log}
}

// UploadTicket is a pending file plus the URL the client PUTs its bytes to.
type UploadTicket struct {
	File      *models.File `json:"file"`
	UploadURL string       `json:"upload_url"`
	ExpiresIn int          `json:"expires_in"`
}

// MetadataUpdate replaces the non-nil fields. Columns replace the stored
// descriptors wholesale.
type MetadataUpdate struct {
	Name        *string                   `json:"name,omitempty"`
	Description *string                   `json:"description,omitempty"`
	Columns     []models.ColumnDescriptor `json:"columns,omitempty"`
}

// ObjectKey is where a file's bytes live in the bucket.
func ObjectKey(projectID, fileID, filename string) string {
	return path.Join("projects", projectID, "files", fileID, cleanFilename(filename))
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

func validateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("filename", "must not be empty")
	}
	switch strings.ToLower(path.Ext(strings.TrimSpace(name))) {
	case ".csv", ".parquet", ".pq":
		return nil
	}
	return invalid("filename", "only .csv and .parquet files are supported")
}

func (s *FileService) newRecord(projectID, filename string) *models.File {
	id := uuid.NewString()
	return &models.File{
		ID:        id,
		ProjectID: projectID,
		Filename:  filepath.Base(strings.TrimSpace(filename)),
		Bucket:    s.bucket,
		Key:       ObjectKey(projectID, id, filename),
		Status:    models.FileStatusUploading,
		Source:    models.FileSourceUserUpload,
		Columns:   []models.ColumnDescriptor{},
	}
}

// CreateUploadURL records a file in the uploading state and presigns a PUT for it.
func (s *FileService) CreateUploadURL(ctx context.Context, userID, projectID, filename, contentType string) (*UploadTicket, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	if err := validateFilename(filename); err != nil {
		return nil, err
	}

	f := s.newRecord(projectID, filename)
	if err := s.db.CreateFile(ctx, f); err != nil {
		return nil, err
	}
	url, err := s.storage.PresignPut(ctx, f.Bucket, f.Key, contentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &UploadTicket{File: f, UploadURL: url, ExpiresIn: int(s.ttl.Seconds())}, nil
}

// Upload streams the bytes through the server and schedules profiling.
func (s *FileService) Upload(ctx context.Context, userID, projectID, filename, contentType string, data io.Reader, size int64) (*models.File, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	if err := validateFilename(filename); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	f := s.newRecord(projectID, filename)
	if err := s.db.CreateFile(ctx, f); err != nil {
		return nil, err
	}

	if _, err := s.storage.UploadFile(ctx, f.Bucket, f.Key, data, contentType); err != nil {
		if serr := s.db.UpdateFileStatus(ctx, f.ID, models.FileStatusFailed); serr != nil {
			s.log.WithError(serr).WithField("file_id", f.ID).Error("upload: could not mark file failed")
		}
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return s.markUploaded(ctx, f.ID, size)
}

// Confirm is called after a presigned upload; the stored object size wins
// over anything the client claims.
func (s *FileService) Confirm(ctx context.Context, userID, fileID string) (*models.File, error) {
	f, err := ownedFile(ctx, s.db, fileID, userID)
	if err != nil {
		return nil, err
	}
	size, err := s.storage.HeadFile(ctx, f.Bucket, f.Key)
	if err != nil {
		return nil, invalid("file", fmt.Sprintf("object not uploaded: %v", err))
	}
	return s.markUploaded(ctx, f.ID, size)
}

func (s *FileService) markUploaded(ctx context.Context, fileID string, size int64) (*models.File, error) {
	if err := s.db.MarkFileUploaded(ctx, fileID, size); err != nil {
		return nil, err
	}
	if err := s.profiler.Enqueue(ctx, fileID); err != nil {
		// the file would otherwise sit in processing with no job behind it
		if uerr := s.db.UpdateFileStatus(context.WithoutCancel(ctx), fileID, models.FileStatusFailed); uerr != nil {
			s.log.WithError(uerr).WithField("file_id", fileID).Error("file: mark failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrProfilingUnavailable, err)
	}
	s.log.WithFields(logrus.Fields{"file_id": fileID, "size": size}).Info("file: queued for profiling")
	return s.db.GetFile(ctx, fileID)
}

func (s *FileService) List(ctx context.Context, userID, projectID string, status models.FileStatus) ([]models.File, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	switch status {
	case "", models.FileStatusUploading, models.FileStatusProcessing, models.FileStatusCompleted, models.FileStatusFailed:
	default:
		return nil, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.db.ListFilesByProject(ctx, projectID, status)
}

func (s *FileService) Selected(ctx context.Context, userID, projectID string) ([]models.File, error) {
	if _, err := ownedProject(ctx, s.db, projectID, userID); err != nil {
		return nil, err
	}
	return s.db.GetSelectedFiles(ctx, projectID)
}

func (s *FileService) Get(ctx context.Context, userID, fileID string) (*models.File, error) {
	return ownedFile(ctx, s.db, fileID, userID)
}

func (s *FileService) UpdateMetadata(ctx context.Context, userID, fileID string, upd MetadataUpdate) (*models.File, error) {
	f, err := ownedFile(ctx, s.db, fileID, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		f.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		f.Description = *upd.Description
	}
	if upd.Columns != nil {
		for i, c := range upd.Columns {
			if strings.TrimSpace(c.Column) == "" {
				return nil, invalid(fmt.Sprintf("columns[%d].column", i), "must not be empty")
			}
			switch c.InputType {
			case models.InputTypeID, models.InputTypeInput, models.InputTypeReject:
			case "":
				upd.Columns[i].InputType = models.InputTypeInput
			default:
				return nil, invalid(fmt.Sprintf("columns[%d].input_type", i), "must be ID, INPUT or REJECT")
			}
		}
		f.Columns = upd.Columns
	}
	if err := s.db.UpdateFileMetadata(ctx, f.ID, f.Name, f.Description, f.Columns); err != nil {
		return nil, err
	}
	return s.db.GetFile(ctx, f.ID)
}

func (s *FileService) SetSelected(ctx context.Context, userID, fileID string, selected bool) (*models.File, error) {
	f, err := ownedFile(ctx, s.db, fileID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.SetFileSelected(ctx, f.ID, selected); err != nil {
		return nil, err
	}
	f.Selected = selected
	return f, nil
}

// DownloadURL presigns a GET for the stored object.
func (s *FileService) DownloadURL(ctx context.Context, userID, fileID string) (string, error) {
	f, err := ownedFile(ctx, s.db, fileID, userID)
	if err != nil {
		return "", err
	}
	return s.storage.PresignGet(ctx, f.Bucket, f.Key, s.ttl)
}

// Delete removes the object first, then the record.
func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	f, err := ownedFile(ctx, s.db, fileID, userID)
	if err != nil {
		return err
	}
	if err := s.storage.DeleteFile(ctx, f.Bucket, f.Key); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return s.db.DeleteFile(ctx, f.ID)
}

// RemoteSource is the catalog path of a stored file.
func RemoteSource(f models.File) string {
	return catalog.RemotePath(f.Bucket, f.Key)
}
