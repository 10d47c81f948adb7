package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stanstork/catalog-importer/internal/temporal"
	"github.com/stanstork/catalog-importer/internal/temporal/activities"
	"github.com/stanstork/catalog-importer/internal/temporal/workflows"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

type WorkerConfig struct {
	Client    client.Client
	TaskQueue string
	Runner    orchestrator.Runner
	// MaxConcurrentImports caps parallel import activities on this worker; 0 keeps the SDK default.
	MaxConcurrentImports int
}

type Worker struct {
	cfg    WorkerConfig
	w      sdkworker.Worker
	logger zerolog.Logger
}

func NewWorker(cfg WorkerConfig, logger zerolog.Logger) (*Worker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("temporal client is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("import runner is required")
	}
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = temporal.DefaultTaskQueue
	}

	w := sdkworker.New(cfg.Client, cfg.TaskQueue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize: cfg.MaxConcurrentImports,
	})
	w.RegisterWorkflowWithOptions(workflows.ImportWorkflow, workflow.RegisterOptions{Name: temporal.ImportWorkflowName})
	w.RegisterActivity(&activities.Activities{Runner: cfg.Runner})

	return &Worker{
		cfg:    cfg,
		w:      w,
		logger: logger.With().Str("component", "worker").Logger(),
	}, nil
}

// Start polls the task queue until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Str("task_queue", w.cfg.TaskQueue).Msg("worker started, polling for imports")

	interrupt := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(interrupt)
	}()

	if err := w.w.Run(interrupt); err != nil {
		return fmt.Errorf("temporal worker: %w", err)
	}
	w.logger.Info().Msg("worker stopped")
	return nil
}
