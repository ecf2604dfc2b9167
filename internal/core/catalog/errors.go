package catalog

import (
	"errors"
	"fmt"
)

// ErrTableNotFound is returned by Describe and Summarize for names that were never registered.
var ErrTableNotFound = errors.New("catalog: table not found")

// ErrNotReadOnly is wrapped in a QueryError for statements other than one SELECT or WITH query.
var ErrNotReadOnly = errors.New("catalog: only a single SELECT or WITH statement is allowed")

// ConfigurationError reports unusable remote-access credentials.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog: remote access: %s: %v", e.Reason, e.Err)
	}
	return "catalog: remote access: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnsupportedSourceError is returned by Register for sources that are neither a Frame nor a path.
type UnsupportedSourceError struct {
	Name string
	Type string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("catalog: cannot register %q from source of type %s", e.Name, e.Type)
}

// QueryError wraps a failed SQL execution. Partial results are never returned alongside it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("catalog: query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
