package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
)

const DefaultPollInterval = 500 * time.Millisecond

type JobSource interface {
	Get(ctx context.Context, id string) (models.Job, error)
}

// Waker delivers early wakeups when a job may have changed. Polling still
// runs, so a Waker only lowers latency.
type Waker interface {
	Subscribe(jobID string) (<-chan struct{}, func())
}

type Reader struct {
	jobs     JobSource
	interval time.Duration
	waker    Waker
	logger   zerolog.Logger
}

type Option func(*Reader)

func WithWaker(w Waker) Option {
	return func(r *Reader) { r.waker = w }
}

func NewReader(jobs JobSource, interval time.Duration, logger zerolog.Logger, opts ...Option) *Reader {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	r := &Reader{
		jobs:     jobs,
		interval: interval,
		logger:   logger.With().Str("component", "progress").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the current snapshot or models.ErrJobNotFound.
func (r *Reader) Get(ctx context.Context, id string) (models.Job, error) {
	return r.jobs.Get(ctx, id)
}

// Stream yields a snapshot whenever the serialized job differs from the last
// one yielded. It ends after a terminal snapshot, after a synthetic unknown
// snapshot when the job does not exist, when ctx is done, or on a read error
// (yielded with a zero Job).
func (r *Reader) Stream(ctx context.Context, id string) iter.Seq2[models.Job, error] {
	return func(yield func(models.Job, error) bool) {
		var wake <-chan struct{}
		if r.waker != nil {
			ch, cancel := r.waker.Subscribe(id)
			defer cancel()
			wake = ch
		}

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		var last []byte
		for {
			job, err := r.jobs.Get(ctx, id)
			if errors.Is(err, models.ErrJobNotFound) {
				yield(models.UnknownJob(id), nil)
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				yield(models.Job{}, err)
				return
			}

			encoded, err := json.Marshal(job)
			if err != nil {
				yield(models.Job{}, err)
				return
			}
			if !bytes.Equal(encoded, last) {
				last = encoded
				if !yield(job, nil) {
					return
				}
			}
			if job.IsTerminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-wake:
				r.logger.Trace().Str("job_id", id).Msg("woken by notification")
			}
		}
	}
}
