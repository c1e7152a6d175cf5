package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// taskTimeout bounds each background task. Tasks outlive the connection
// that spawned them, so they get their own context.
const taskTimeout = 30 * time.Second

// TaskRunner executes fire-and-forget side effects (memory saves, renames,
// compaction) after a response has been delivered. Failures are logged and
// dropped; a lost memory must never break the conversation.
type TaskRunner struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewTaskRunner creates a runner.
func NewTaskRunner(logger *zap.Logger) *TaskRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskRunner{logger: logger}
}

// Go runs fn in the background with a fresh context. The name shows up in
// logs when the task fails.
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight tasks finish. Used on shutdown and in
// tests.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}
