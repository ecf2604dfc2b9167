package profiling_engine

import (
	"context"
	"time"

	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/models"
)

// ProfileConfig tunes the profiling workers.
//
// Timeout:   upper bound for profiling one file (register, describe, summarize).
// QueueSize: capacity of the in-memory job queue; Enqueue fails fast when full.
// Summaries: when false only the schema is introspected.
type ProfileConfig struct {
	Timeout   time.Duration
	QueueSize int
	Summaries bool
}

func (c *ProfileConfig) withDefaults() ProfileConfig {
	out := ProfileConfig{Timeout: 5 * time.Minute, QueueSize: 64, Summaries: true}
	if c == nil {
		return out
	}
	if c.Timeout > 0 {
		out.Timeout = c.Timeout
	}
	if c.QueueSize > 0 {
		out.QueueSize = c.QueueSize
	}
	out.Summaries = c.Summaries
	return out
}

// FileStore is the persistence the profiler needs.
type FileStore interface {
	GetFile(ctx context.Context, id string) (*models.File, error)
	UpdateFileMetadata(ctx context.Context, id, name, description string, columns []models.ColumnDescriptor) error
	UpdateFileStatus(ctx context.Context, id string, status models.FileStatus) error
}

// Catalog is the slice of the analytic catalog used for introspection.
type Catalog interface {
	Register(ctx context.Context, name string, source any, description string, metadata map[string]any) error
	Describe(ctx context.Context, name string) ([]catalog.ColumnInfo, error)
	Summarize(ctx context.Context, name string) (map[string]map[string]any, error)
	Close() error
}

// CatalogOpener returns a fresh catalog ready to read remote objects.
type CatalogOpener func(ctx context.Context) (Catalog, error)

// SourceResolver maps a file record to the path the catalog reads.
type SourceResolver func(f models.File) string
