package workflows

import (
	"github.com/stanstork/catalog-importer/internal/temporal"
	"github.com/stanstork/catalog-importer/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ImportWorkflow runs a single import attempt. The activity owns the job's
// terminal state, so the workflow never retries it.
func ImportWorkflow(ctx workflow.Context, params temporal.ImportParams) error {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		HeartbeatTimeout:    temporal.HeartbeatTimeout,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting import workflow", "JobID", params.JobID)

	var a *activities.Activities
	if err := workflow.ExecuteActivity(ctx, a.RunImportActivity, params).Get(ctx, nil); err != nil {
		logger.Error("Import activity failed.", "JobID", params.JobID, "error", err)
		return err
	}

	logger.Info("Import workflow completed successfully.", "JobID", params.JobID)
	return nil
}
