package profiling_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/datanooblol/leonidas/internal/core/metadata"
	"github.com/datanooblol/leonidas/internal/models"
)

// ErrQueueFull is returned by Enqueue when every queue slot is taken.
var ErrQueueFull = errors.New("profiler: queue full")

// FileProfiler introspects confirmed uploads in the background:
//
// store:   file records.
// open:    builds a throwaway catalog per job.
// resolve: file record -> path the catalog reads.
// jobs:    in-memory queue of file IDs.
type FileProfiler struct {
	store   FileStore
	open    CatalogOpener
	resolve SourceResolver
	cfg     ProfileConfig
	log     *logrus.Logger

	jobs chan string
	g    *errgroup.Group
}

func NewFileProfiler(store FileStore, open CatalogOpener, resolve SourceResolver, cfg *ProfileConfig, log *logrus.Logger) *FileProfiler {
	c := cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileProfiler{
		store: store, open: open, resolve: resolve, cfg: c, log: log,
		jobs: make(chan string, c.QueueSize),
		g:    &errgroup.Group{},
	}
}

// Start runs numWorkers goroutines until ctx is cancelled.
func (p *FileProfiler) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		worker := w
		p.g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					p.log.WithField("worker", worker).Debug("profiler: worker shutting down")
					return nil
				case fileID := <-p.jobs:
					log := p.log.WithFields(logrus.Fields{"file_id": fileID, "worker": worker})
					start := time.Now()
					if err := p.ProcessOne(ctx, fileID); err != nil {
						log.WithError(err).Error("profiler: file profiling failed")
						continue
					}
					log.WithField("latency_ms", time.Since(start).Milliseconds()).Info("profiler: file profiled")
				}
			}
		})
	}
}

// Wait blocks until every worker has returned.
func (p *FileProfiler) Wait() error {
	return p.g.Wait()
}

// Enqueue schedules a file for profiling. It never waits for room: a full
// queue returns ErrQueueFull.
func (p *FileProfiler) Enqueue(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.jobs <- fileID:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, fileID)
	}
}

// ProcessOne profiles one file and leaves it completed or failed.
func (p *FileProfiler) ProcessOne(ctx context.Context, fileID string) error {
	f, err := p.store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file %s: %w", fileID, err)
	}
	if f == nil {
		return fmt.Errorf("file %s not found", fileID)
	}

	name, desc, cols, err := p.profile(ctx, *f)
	if err != nil {
		if serr := p.store.UpdateFileStatus(ctx, fileID, models.FileStatusFailed); serr != nil {
			err = errors.Join(err, serr)
		}
		return err
	}

	if err := p.store.UpdateFileMetadata(ctx, fileID, name, desc, cols); err != nil {
		_ = p.store.UpdateFileStatus(ctx, fileID, models.FileStatusFailed)
		return fmt.Errorf("save metadata: %w", err)
	}
	return p.store.UpdateFileStatus(ctx, fileID, models.FileStatusCompleted)
}

func (p *FileProfiler) profile(ctx context.Context, f models.File) (string, string, []models.ColumnDescriptor, error) {
	proctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cat, err := p.open(proctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = cat.Close() }()

	table := metadata.TableName(f.Filename)
	if err := cat.Register(proctx, table, p.resolve(f), f.Description, nil); err != nil {
		return "", "", nil, fmt.Errorf("register: %w", err)
	}

	info, err := cat.Describe(proctx, table)
	if err != nil {
		return "", "", nil, fmt.Errorf("describe: %w", err)
	}

	name := f.Name
	if name == "" {
		name = table
	}
	meta := metadata.FromIntrospection(name, f.Description, info)

	if p.cfg.Summaries {
		summary, err := cat.Summarize(proctx, table)
		if err != nil {
			// the schema alone is still useful
			p.log.WithError(err).WithField("file_id", f.ID).Warn("profiler: summarize failed")
		}
		for i := range meta.Columns {
			if s, ok := summary[meta.Columns[i].Column]; ok {
				meta.Columns[i].Summary = s
			}
		}
	}

	return meta.Name, meta.Description, meta.Columns, nil
}

var _ Profiler = (*FileProfiler)(nil)
