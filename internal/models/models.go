package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Project groups the files and chat sessions of one user.
type Project struct {
	ID           string    `db:"id" json:"project_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description"`
	FileCount    int       `db:"-" json:"file_count"`
	SessionCount int       `db:"-" json:"session_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Session is one conversation inside a project.
type Session struct {
	ID        string    `db:"id" json:"session_id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type FileStatus string

const (
	FileStatusUploading  FileStatus = "uploading"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

type FileSource string

const (
	FileSourceUserUpload   FileSource = "user_upload"
	FileSourceAppGenerated FileSource = "app_generated"
)

// File is an uploaded tabular file (CSV or Parquet) stored in object storage.
type File struct {
	ID          string             `db:"id" json:"file_id"`
	ProjectID   string             `db:"project_id" json:"project_id"`
	Filename    string             `db:"filename" json:"filename"`
	Bucket      string             `db:"bucket" json:"-"`
	Key         string             `db:"s3_key" json:"-"`
	Size        int64              `db:"size" json:"size"`
	Status      FileStatus         `db:"status" json:"status"`
	Source      FileSource         `db:"source" json:"source"`
	Name        string             `db:"name" json:"name"`
	Description string             `db:"description" json:"description"`
	Selected    bool               `db:"selected" json:"selected"`
	Columns     []ColumnDescriptor `db:"columns" json:"columns"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// InputType decides whether a column is shown to the LLM.
type InputType string

const (
	InputTypeID     InputType = "ID"
	InputTypeInput  InputType = "INPUT"
	InputTypeReject InputType = "REJECT"
)

// ColumnDescriptor describes one column of an uploaded file.
type ColumnDescriptor struct {
	Column      string    `json:"column"`
	DType       string    `json:"dtype"`
	InputType   InputType `json:"input_type"`
	Description string    `json:"description,omitempty"`
	Summary     any       `json:"summary,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ArtifactType string

const (
	ArtifactSQL     ArtifactType = "sql"
	ArtifactResults ArtifactType = "results"
	ArtifactChart   ArtifactType = "chart"
)

// Artifact is a structured byproduct of a chat turn attached to the assistant message.
//
// Content holds the SQL text for "sql", a list of row records for "results"
// and a Plotly figure object for "chart".
type Artifact struct {
	Type    ArtifactType `json:"type"`
	Content any          `json:"content"`
	Title   string       `json:"title,omitempty"`
}

// ChatMessage represents an individual chat message (user or assistant).
// Assistant messages carry the model accounting of the turn that produced them.
type ChatMessage struct {
	ID             string     `db:"id" json:"id"`
	SessionID      string     `db:"session_id" json:"session_id"`
	UserID         string     `db:"user_id" json:"user_id"`
	Role           Role       `db:"role" json:"role"`
	Content        string     `db:"content" json:"content"`
	ModelName      string     `db:"model_name" json:"model_name,omitempty"`
	InputTokens    int        `db:"input_tokens" json:"input_tokens"`
	OutputTokens   int        `db:"output_tokens" json:"output_tokens"`
	ResponseTimeMs int64      `db:"response_time_ms" json:"response_time_ms"`
	Reason         string     `db:"reason" json:"reason,omitempty"`
	Artifacts      []Artifact `db:"artifacts" json:"artifacts,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
