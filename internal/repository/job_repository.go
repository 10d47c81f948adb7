package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stanstork/catalog-importer/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, id string) (models.Job, error)
	Get(ctx context.Context, id string) (models.Job, error)

	// Lifecycle updates. Every update is rejected with models.ErrJobTerminal once the
	// job is completed or failed, and is announced on models.JobProgressChannel after commit.
	MarkRunning(ctx context.Context, id string) error
	SetTotal(ctx context.Context, id string, total int64) error
	UpdateProgress(ctx context.Context, id string, processed int64) error
	Finish(ctx context.Context, id, status string, processed int64, errorMessage string) error
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `id, stage, status, processed_rows, total_rows, error_message, started_at, finished_at`

func (r *jobRepository) Create(ctx context.Context, id string) (models.Job, error) {
	query := `
		INSERT INTO jobs (id, stage, status, processed_rows, total_rows)
		VALUES ($1, $2, $3, 0, 0)
		RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id, models.StageQueued, models.JobStatusQueued))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Job{}, fmt.Errorf("%w: %s", models.ErrJobExists, id)
		}
		return models.Job{}, fmt.Errorf("create job %s: %w", id, err)
	}
	return job, nil
}

func (r *jobRepository) Get(ctx context.Context, id string) (models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, models.ErrJobNotFound
		}
		return models.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (r *jobRepository) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		   SET stage      = $2,
		       status     = $3,
		       started_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	return r.update(ctx, id, query, id, models.StageParsing, models.JobStatusRunning)
}

func (r *jobRepository) SetTotal(ctx context.Context, id string, total int64) error {
	query := `
		UPDATE jobs
		   SET total_rows = $2,
		       stage      = $3
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	return r.update(ctx, id, query, id, total, models.StageImporting)
}

func (r *jobRepository) UpdateProgress(ctx context.Context, id string, processed int64) error {
	query := `
		UPDATE jobs
		   SET processed_rows = GREATEST(processed_rows, $2)
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	return r.update(ctx, id, query, id, processed)
}

func (r *jobRepository) Finish(ctx context.Context, id, status string, processed int64, errorMessage string) error {
	var (
		query string
		args  []interface{}
	)

	switch status {
	case models.JobStatusCompleted:
		query = `
            UPDATE jobs
               SET stage          = $2,
                   status         = $3,
                   processed_rows = GREATEST(processed_rows, $4),
                   error_message  = NULL,
                   finished_at    = NOW()
             WHERE id = $1 AND status NOT IN ('completed', 'failed')
        `
		args = []interface{}{id, models.StageCompleted, status, processed}

	case models.JobStatusFailed:
		query = `
            UPDATE jobs
               SET stage          = $2,
                   status         = $3,
                   processed_rows = GREATEST(processed_rows, $4),
                   error_message  = $5,
                   finished_at    = NOW()
             WHERE id = $1 AND status NOT IN ('completed', 'failed')
        `
		if errorMessage == "" {
			errorMessage = "unknown error"
		}
		args = []interface{}{id, models.StageFailed, status, processed, errorMessage}

	default:
		return fmt.Errorf("invalid terminal status %q", status)
	}

	return r.update(ctx, id, query, args...)
}

// update runs one guarded job mutation and the progress notification in a single
// transaction so watchers are only woken for committed state.
func (r *jobRepository) update(ctx context.Context, id, query string, args ...interface{}) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin job update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for job %s: %w", id, err)
	}
	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup job %s: %w", id, err)
		}
		return models.ErrJobTerminal
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, models.JobProgressChannel, id); err != nil {
		return fmt.Errorf("notify job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job %s: %w", id, err)
	}
	return nil
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Job, error) {
	var (
		job        models.Job
		errMsg     sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Stage,
		&job.Status,
		&job.ProcessedRows,
		&job.TotalRows,
		&errMsg,
		&startedAt,
		&finishedAt,
	); err != nil {
		return models.Job{}, err
	}

	if errMsg.Valid {
		msg := errMsg.String
		job.ErrorMessage = &msg
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return job, nil
}
