package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/datanooblol/leonidas/internal/models"
)

const messageColumns = `
	id, session_id, user_id, role, content, model_name,
	input_tokens, output_tokens, response_time_ms, reason, artifacts, created_at
`

func scanMessage(row interface{ Scan(...any) error }) (models.ChatMessage, error) {
	var (
		m         models.ChatMessage
		artifacts []byte
	)
	err := row.Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.ModelName,
		&m.InputTokens, &m.OutputTokens, &m.ResponseTimeMs, &m.Reason, &artifacts, &m.CreatedAt,
	)
	if err != nil {
		return m, err
	}
	if len(artifacts) > 0 && string(artifacts) != "null" {
		if err := json.Unmarshal(artifacts, &m.Artifacts); err != nil {
			return m, fmt.Errorf("decode artifacts of message %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// AppendMessage inserts one immutable message. Artifacts are stored as JSONB,
// or NULL when there are none.
func (c *DatabaseClient) AppendMessage(ctx context.Context, m *models.ChatMessage) error {
	if m == nil {
		return errors.New("nil message")
	}
	stamp(&m.CreatedAt, nil)

	var artifacts any
	if len(m.Artifacts) > 0 {
		b, err := json.Marshal(m.Artifacts)
		if err != nil {
			return fmt.Errorf("encode artifacts: %w", err)
		}
		artifacts = string(b)
	}

	const q = `
		INSERT INTO messages
			(id, session_id, user_id, role, content, model_name,
			 input_tokens, output_tokens, response_time_ms, reason, artifacts, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
	`
	_, err := c.db.ExecContext(ctx, q,
		m.ID, m.SessionID, m.UserID, string(m.Role), m.Content, m.ModelName,
		m.InputTokens, m.OutputTokens, m.ResponseTimeMs, m.Reason, artifacts, m.CreatedAt)
	return err
}

// RecentMessages returns at most limit messages of a session, newest first.
func (c *DatabaseClient) RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
	return c.queryMessages(ctx, q, sessionID, limit)
}

// ListMessages returns a session's whole history in chronological order.
func (c *DatabaseClient) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = $1 ORDER BY created_at ASC`
	return c.queryMessages(ctx, q, sessionID)
}

func (c *DatabaseClient) queryMessages(ctx context.Context, q string, args ...any) ([]models.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
