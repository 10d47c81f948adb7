package orchestrator

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/importer"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
)

// FileSource hands out a fresh stream over a job's uploaded file on every call.
type FileSource interface {
	Open(ctx context.Context, jobID string) (io.ReadCloser, error)
}

// Importer is the two-pass upsert engine.
type Importer interface {
	Count(ctx context.Context, r io.Reader) (int64, error)
	Import(ctx context.Context, r io.Reader, onBatch importer.ProgressFunc) (int64, error)
}

// EventDispatcher delivers job events to webhook subscribers. Delivery failures
// are contained by the dispatcher; a returned error means subscribers could not be resolved.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event string, payload interface{}) error
}

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string, opts ...RunOption) error
}

type runConfig struct {
	onBatch importer.ProgressFunc
}

type RunOption func(*runConfig)

// WithBatchHook registers a callback invoked after each batch's progress has been recorded.
func WithBatchHook(fn importer.ProgressFunc) RunOption {
	return func(c *runConfig) { c.onBatch = fn }
}

type Orchestrator struct {
	jobs       repository.JobRepository
	files      FileSource
	engine     Importer
	dispatcher EventDispatcher
	logger     zerolog.Logger
}

func New(jobs repository.JobRepository, files FileSource, engine Importer, dispatcher EventDispatcher, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		files:      files,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run drives the job through parsing and importing to completed or failed. Any
// error or panic after dispatch leaves the job failed with the cause recorded.
func (o *Orchestrator) Run(ctx context.Context, jobID string, opts ...RunOption) (err error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := o.logger.With().Str("job_id", jobID).Logger()
	ctx = logger.WithContext(ctx)

	var processed, total int64
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("stack", string(debug.Stack())).Msgf("import panicked: %v", r)
			err = fmt.Errorf("import panicked: %v", r)
		}
		if err != nil {
			o.fail(ctx, logger, jobID, processed, total, err)
		}
	}()

	if err := o.jobs.MarkRunning(ctx, jobID); err != nil {
		return errors.Wrap(err, "mark job running")
	}
	logger.Info().Msg("import started")

	total, err = o.count(ctx, jobID)
	if err != nil {
		return err
	}
	if err := o.jobs.SetTotal(ctx, jobID, total); err != nil {
		return errors.Wrap(err, "record total rows")
	}

	processed, err = o.importRows(ctx, logger, jobID, cfg.onBatch)
	if err != nil {
		return err
	}

	if err := o.jobs.Finish(ctx, jobID, models.JobStatusCompleted, processed, ""); err != nil {
		return errors.Wrap(err, "mark job completed")
	}
	logger.Info().Int64("processed", processed).Int64("total", total).Msg("import completed")

	o.dispatch(ctx, logger, models.EventImportCompleted, models.ImportEventPayload{
		JobID:     jobID,
		Processed: processed,
		Total:     total,
	})
	return nil
}

func (o *Orchestrator) count(ctx context.Context, jobID string) (int64, error) {
	f, err := o.files.Open(ctx, jobID)
	if err != nil {
		return 0, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	total, err := o.engine.Count(ctx, f)
	if err != nil {
		var schemaErr *importer.SchemaError
		if errors.As(err, &schemaErr) {
			return 0, err
		}
		return 0, errors.Wrap(err, "count rows")
	}
	return total, nil
}

func (o *Orchestrator) importRows(ctx context.Context, logger zerolog.Logger, jobID string, hook importer.ProgressFunc) (int64, error) {
	f, err := o.files.Open(ctx, jobID)
	if err != nil {
		return 0, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	onBatch := func(ctx context.Context, processed int64) {
		if err := o.jobs.UpdateProgress(ctx, jobID, processed); err != nil {
			logger.Warn().Err(err).Int64("processed", processed).Msg("failed to record progress")
		}
		if hook != nil {
			hook(ctx, processed)
		}
	}
	return o.engine.Import(ctx, f, onBatch)
}

// fail records the terminal failure and announces it. It runs detached from ctx
// cancellation so a cancelled run still reaches a terminal state.
func (o *Orchestrator) fail(ctx context.Context, logger zerolog.Logger, jobID string, processed, total int64, cause error) {
	ctx = context.WithoutCancel(ctx)
	logger.Error().Err(cause).Int64("processed", processed).Msg("import failed")

	if err := o.jobs.Finish(ctx, jobID, models.JobStatusFailed, processed, cause.Error()); err != nil {
		if errors.Is(err, models.ErrJobTerminal) || errors.Is(err, models.ErrJobNotFound) {
			logger.Warn().Err(err).Msg("job not marked failed")
			return
		}
		logger.Error().Err(err).Msg("failed to mark job failed")
		return
	}

	o.dispatch(ctx, logger, models.EventImportFailed, models.ImportEventPayload{
		JobID:     jobID,
		Processed: processed,
		Total:     total,
		Error:     cause.Error(),
	})
}

func (o *Orchestrator) dispatch(ctx context.Context, logger zerolog.Logger, event string, payload models.ImportEventPayload) {
	if o.dispatcher == nil {
		return
	}
	if err := o.dispatcher.Dispatch(ctx, event, payload); err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to dispatch webhooks")
	}
}
