package temporal

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"
)

// Executor hands jobs to Temporal workers by starting one ImportWorkflow per job.
type Executor struct {
	client    client.Client
	taskQueue string
	logger    zerolog.Logger
}

func NewExecutor(c client.Client, taskQueue string, logger zerolog.Logger) *Executor {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Executor{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger.With().Str("component", "temporal-executor").Logger(),
	}
}

func (e *Executor) Dispatch(ctx context.Context, jobID string) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(jobID),
		TaskQueue: e.taskQueue,
	}
	run, err := e.client.ExecuteWorkflow(ctx, opts, ImportWorkflowName, ImportParams{JobID: jobID})
	if err != nil {
		return errors.Wrap(err, "start import workflow")
	}
	e.logger.Info().
		Str("job_id", jobID).
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Msg("import workflow started")
	return nil
}
