package services

import (
	"errors"
	"fmt"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrFileNotFound    = errors.New("file not found")

	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrProfilingUnavailable = errors.New("profiling queue unavailable")
)

// ValidationError reports a bad request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Chat pipeline stages reported by PipelineError.
const (
	StageResolveModel = "resolve_model"
	StageGenerateSQL  = "generate_sql"
	StageRegister     = "register"
	StageQuery        = "query"
	StageAnswer       = "answer"
	StagePersist      = "persist"
)

// PipelineError aborts a chat turn. Stage names where it failed.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("chat pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
