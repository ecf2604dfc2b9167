package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/config"
	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/models"
)

// ErrNotFound is returned by updates and deletes that matched no row.
var ErrNotFound = errors.New("db: row not found")

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *logrus.Logger) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.Info("database: connected")
	return &DatabaseClient{db: db}, nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// buildDSN adds verify-ca parameters when a root certificate is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil && updated.IsZero() {
		*updated = *created
	}
}

func expectOne(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	stamp(&user.CreatedAt, &user.UpdatedAt)
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, "email", email)
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.getUser(ctx, "id", id)
}

func (c *DatabaseClient) getUser(ctx context.Context, column, value string) (*models.User, error) {
	q := `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE ` + column + ` = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, value).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Projects

func (c *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	stamp(&p.CreatedAt, &p.UpdatedAt)
	const q = `
		INSERT INTO projects (id, user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q, p.ID, p.UserID, p.Name, p.Description, p.CreatedAt, p.UpdatedAt)
	return err
}

const projectColumns = `
	p.id, p.user_id, p.name, p.description, p.created_at, p.updated_at,
	(SELECT count(*) FROM files f WHERE f.project_id = p.id),
	(SELECT count(*) FROM sessions s WHERE s.project_id = p.id)
`

func scanProject(row interface{ Scan(...any) error }) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.FileCount, &p.SessionCount)
	return p, err
}

// GetProjectForUser returns the project only when userID owns it.
func (c *DatabaseClient) GetProjectForUser(ctx context.Context, projectID, userID string) (*models.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1 AND p.user_id = $2`
	p, err := scanProject(c.db.QueryRowContext(ctx, q, projectID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) ListProjectsByUser(ctx context.Context, userID string) ([]models.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects p WHERE p.user_id = $1 ORDER BY p.updated_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateProject(ctx context.Context, p *models.Project) error {
	const q = `
		UPDATE projects
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, p.ID, p.Name, p.Description)
	if err != nil {
		return err
	}
	return expectOne(res, "project", p.ID)
}

func (c *DatabaseClient) DeleteProject(ctx context.Context, projectID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	return expectOne(res, "project", projectID)
}

// Sessions

func (c *DatabaseClient) CreateSession(ctx context.Context, s *models.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	stamp(&s.CreatedAt, &s.UpdatedAt)
	const q = `
		INSERT INTO sessions (id, project_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.ExecContext(ctx, q, s.ID, s.ProjectID, s.Name, s.CreatedAt, s.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetSession(ctx context.Context, id string) (*models.Session, error) {
	const q = `SELECT id, project_id, name, created_at, updated_at FROM sessions WHERE id = $1`
	var s models.Session
	err := c.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.ProjectID, &s.Name, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) ListSessionsByProject(ctx context.Context, projectID string) ([]models.Session, error) {
	const q = `
		SELECT id, project_id, name, created_at, updated_at
		FROM sessions
		WHERE project_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) RenameSession(ctx context.Context, id, name string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE sessions SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	return expectOne(res, "session", id)
}

func (c *DatabaseClient) TouchSession(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, id)
	return err
}

func (c *DatabaseClient) DeleteSession(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, "session", id)
}

var _ core.DbClient = (*DatabaseClient)(nil)
