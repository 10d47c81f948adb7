package activities

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stanstork/catalog-importer/internal/temporal"
	"go.temporal.io/sdk/activity"
)

type Activities struct {
	Runner orchestrator.Runner
	// HeartbeatInterval paces background heartbeats; zero uses temporal.HeartbeatInterval.
	HeartbeatInterval time.Duration
}

// RunImportActivity runs the whole import for one job. It heartbeats with the
// committed row count after every batch and on a timer, so the count pass and
// slow batches stay within the heartbeat timeout.
func (a *Activities) RunImportActivity(ctx context.Context, params temporal.ImportParams) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Running catalog import", "JobID", params.JobID)

	var processed atomic.Int64
	activity.RecordHeartbeat(ctx, int64(0))

	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go a.heartbeat(hbCtx, &processed)

	err := a.Runner.Run(ctx, params.JobID, orchestrator.WithBatchHook(func(ctx context.Context, n int64) {
		processed.Store(n)
		activity.RecordHeartbeat(ctx, n)
	}))
	if err != nil {
		logger.Error("Catalog import failed", "JobID", params.JobID, "error", err)
		return errors.Wrapf(err, "import job %s", params.JobID)
	}

	logger.Info("Catalog import finished", "JobID", params.JobID)
	return nil
}

func (a *Activities) heartbeat(ctx context.Context, processed *atomic.Int64) {
	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = temporal.HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			activity.RecordHeartbeat(ctx, processed.Load())
		}
	}
}
