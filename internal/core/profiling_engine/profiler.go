package profiling_engine

import "context"

type Profiler interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, fileID string) error
	Wait() error
}
