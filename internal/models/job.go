package models

import (
	"errors"
	"time"
)

// Job stages. Stage is a free-form phase label; Status is the coarse state.
const (
	StageQueued    = "queued"
	StageParsing   = "parsing"
	StageImporting = "importing"
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageUnknown   = "unknown"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusUnknown   = "unknown"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	// ErrJobTerminal is returned when an update targets a job that already completed or failed.
	ErrJobTerminal = errors.New("job already in a terminal state")
)

type Job struct {
	ID            string     `json:"id" db:"id"`
	Stage         string     `json:"stage" db:"stage"`
	Status        string     `json:"status" db:"status"`
	ProcessedRows int64      `json:"processed_rows" db:"processed_rows"`
	TotalRows     int64      `json:"total_rows" db:"total_rows"`
	ErrorMessage  *string    `json:"error_message" db:"error_message"`
	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// IsTerminal reports whether the job can no longer change.
func (j Job) IsTerminal() bool {
	return IsTerminalStatus(j.Status)
}

func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// UnknownJob is the synthetic snapshot emitted when a watched job disappears.
func UnknownJob(id string) Job {
	return Job{
		ID:     id,
		Stage:  StageUnknown,
		Status: JobStatusUnknown,
	}
}

// JobProgressChannel is the Postgres NOTIFY channel carrying ids of updated jobs.
const JobProgressChannel = "job_progress"
