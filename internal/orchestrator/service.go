package orchestrator

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
)

// FileSink stores an uploaded file under a job id.
type FileSink interface {
	Save(ctx context.Context, jobID string, r io.Reader) error
	Remove(ctx context.Context, jobID string) error
}

// Service accepts new imports and hands them to the configured executor.
type Service struct {
	jobs     repository.JobRepository
	files    FileSink
	executor Executor
	logger   zerolog.Logger
}

func NewService(jobs repository.JobRepository, files FileSink, executor Executor, logger zerolog.Logger) *Service {
	return &Service{
		jobs:     jobs,
		files:    files,
		executor: executor,
		logger:   logger.With().Str("component", "import-service").Logger(),
	}
}

// Submit creates a queued job, stores the stream under its id and dispatches it.
// Import failures, including a failed dispatch, are reported on the returned job
// rather than as an error; only creating the job or storing the file can fail
// here. A reused id fails with models.ErrJobExists and leaves the existing job's
// upload untouched.
func (s *Service) Submit(ctx context.Context, jobID string, r io.Reader) (models.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	job, err := s.jobs.Create(ctx, jobID)
	if err != nil {
		return models.Job{}, errors.Wrap(err, "create job")
	}

	if err := s.files.Save(ctx, jobID, r); err != nil {
		s.abandon(ctx, jobID, errors.Wrap(err, "save upload"))
		return models.Job{}, errors.Wrap(err, "save upload")
	}

	s.logger.Info().Str("job_id", jobID).Msg("import queued")

	if err := s.executor.Dispatch(ctx, jobID); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to dispatch import")
		msg := errors.Wrap(err, "dispatch import").Error()
		if ferr := s.jobs.Finish(ctx, jobID, models.JobStatusFailed, 0, msg); ferr != nil {
			s.logger.Error().Err(ferr).Str("job_id", jobID).Msg("failed to mark job failed")
			return job, nil
		}
		if failed, gerr := s.jobs.Get(ctx, jobID); gerr == nil {
			return failed, nil
		}
	}
	return job, nil
}

// abandon fails a job whose upload could not be stored and drops any partial file.
func (s *Service) abandon(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	s.logger.Error().Err(cause).Str("job_id", jobID).Msg("failed to store upload")
	if err := s.files.Remove(ctx, jobID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to remove upload")
	}
	if err := s.jobs.Finish(ctx, jobID, models.JobStatusFailed, 0, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job failed")
	}
}
