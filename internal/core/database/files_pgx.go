package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/datanooblol/leonidas/internal/models"
)

const fileColumns = `
	id, project_id, filename, bucket, s3_key, size, status, source,
	name, description, selected, columns, created_at, updated_at
`

func scanFile(row interface{ Scan(...any) error }) (models.File, error) {
	var (
		f    models.File
		cols []byte
	)
	err := row.Scan(
		&f.ID, &f.ProjectID, &f.Filename, &f.Bucket, &f.Key, &f.Size, &f.Status, &f.Source,
		&f.Name, &f.Description, &f.Selected, &cols, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return f, err
	}
	if len(cols) > 0 {
		if err := json.Unmarshal(cols, &f.Columns); err != nil {
			return f, fmt.Errorf("decode columns of file %s: %w", f.ID, err)
		}
	}
	if f.Columns == nil {
		f.Columns = []models.ColumnDescriptor{}
	}
	return f, nil
}

func encodeColumns(cols []models.ColumnDescriptor) (string, error) {
	if cols == nil {
		cols = []models.ColumnDescriptor{}
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}
	return string(b), nil
}

func (c *DatabaseClient) CreateFile(ctx context.Context, f *models.File) error {
	if f == nil {
		return errors.New("nil file")
	}
	stamp(&f.CreatedAt, &f.UpdatedAt)
	cols, err := encodeColumns(f.Columns)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO files
			(id, project_id, filename, bucket, s3_key, size, status, source,
			 name, description, selected, columns, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14)
	`
	_, err = c.db.ExecContext(ctx, q,
		f.ID, f.ProjectID, f.Filename, f.Bucket, f.Key, f.Size, string(f.Status), string(f.Source),
		f.Name, f.Description, f.Selected, cols, f.CreatedAt, f.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetFile(ctx context.Context, id string) (*models.File, error) {
	f, err := scanFile(c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFilesByProject lists a project's files newest first; an empty status lists all.
func (c *DatabaseClient) ListFilesByProject(ctx context.Context, projectID string, status models.FileStatus) ([]models.File, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE project_id = $1`
	args := []any{projectID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	return c.queryFiles(ctx, q, args...)
}

// GetSelectedFiles returns the files chosen for grounding, oldest first so the
// prompt order follows upload order.
func (c *DatabaseClient) GetSelectedFiles(ctx context.Context, projectID string) ([]models.File, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE project_id = $1 AND selected ORDER BY created_at ASC`
	return c.queryFiles(ctx, q, projectID)
}

func (c *DatabaseClient) GetFilesByIDs(ctx context.Context, ids []string) ([]models.File, error) {
	if len(ids) == 0 {
		return []models.File{}, nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := `SELECT ` + fileColumns + ` FROM files WHERE id IN (` + strings.Join(marks, ", ") + `) ORDER BY created_at ASC`
	return c.queryFiles(ctx, q, args...)
}

func (c *DatabaseClient) queryFiles(ctx context.Context, q string, args ...any) ([]models.File, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkFileUploaded records the stored size and moves the file to processing.
func (c *DatabaseClient) MarkFileUploaded(ctx context.Context, id string, size int64) error {
	const q = `
		UPDATE files
		SET size = $2, status = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, size, string(models.FileStatusProcessing))
	if err != nil {
		return err
	}
	return expectOne(res, "file", id)
}

func (c *DatabaseClient) UpdateFileStatus(ctx context.Context, id string, status models.FileStatus) error {
	const q = `
		UPDATE files
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	return expectOne(res, "file", id)
}

// UpdateFileMetadata replaces name, description and the column descriptors wholesale.
func (c *DatabaseClient) UpdateFileMetadata(ctx context.Context, id, name, description string, columns []models.ColumnDescriptor) error {
	cols, err := encodeColumns(columns)
	if err != nil {
		return err
	}
	const q = `
		UPDATE files
		SET name = $2, description = $3, columns = $4::jsonb, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, name, description, cols)
	if err != nil {
		return err
	}
	return expectOne(res, "file", id)
}

func (c *DatabaseClient) SetFileSelected(ctx context.Context, id string, selected bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE files SET selected = $2, updated_at = now() WHERE id = $1`, id, selected)
	if err != nil {
		return err
	}
	return expectOne(res, "file", id)
}

func (c *DatabaseClient) DeleteFile(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "file", id)
}
