package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Executor hands a queued job to whatever runs it. Dispatch must not block on the run itself.
type Executor interface {
	Dispatch(ctx context.Context, jobID string) error
}

// InlineExecutor runs jobs on goroutines inside the current process.
type InlineExecutor struct {
	runner Runner
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewInlineExecutor(runner Runner, logger zerolog.Logger) *InlineExecutor {
	return &InlineExecutor{
		runner: runner,
		logger: logger.With().Str("component", "inline-executor").Logger(),
	}
}

// Dispatch starts the run detached from ctx, which usually belongs to an HTTP request.
func (e *InlineExecutor) Dispatch(ctx context.Context, jobID string) error {
	runCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.runner.Run(runCtx, jobID); err != nil {
			e.logger.Debug().Err(err).Str("job_id", jobID).Msg("inline run finished with error")
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (e *InlineExecutor) Wait() {
	e.wg.Wait()
}
