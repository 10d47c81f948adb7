package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
)

// TestResult is the outcome of a manual test delivery. Either Error or the
// status fields are set.
type TestResult struct {
	StatusCode *int   `json:"status_code,omitempty"`
	ResponseMS *int64 `json:"response_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Dispatcher struct {
	repo     repository.WebhookRepository
	notifier Notifier
	logger   zerolog.Logger
}

func NewDispatcher(repo repository.WebhookRepository, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With().Str("component", "webhook_dispatcher").Logger(),
	}
}

// Dispatch delivers the event once to every enabled subscriber of that event,
// concurrently. Per-subscriber failures are recorded and logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, payload interface{}) error {
	hooks, err := d.repo.ListEnabledByEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("resolve subscribers for %s: %w", event, err)
	}
	if len(hooks) == 0 {
		return nil
	}

	env := Envelope{Event: event, Payload: payload}
	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook models.Webhook) {
			defer wg.Done()
			d.deliver(ctx, hook, env)
		}(hook)
	}
	wg.Wait()

	d.logger.Debug().Str("event", event).Int("subscribers", len(hooks)).Msg("webhooks dispatched")
	return nil
}

// Test posts a test envelope to one subscription regardless of its event
// filter or enabled flag, records the outcome and returns it.
func (d *Dispatcher) Test(ctx context.Context, id int64) (TestResult, error) {
	hook, err := d.repo.Get(ctx, id)
	if err != nil {
		return TestResult{}, err
	}

	outcome, derr := d.deliver(ctx, hook, Envelope{
		Event:   hook.Event,
		Payload: map[string]interface{}{"test": true},
	})
	if derr != nil {
		return TestResult{Error: derr.Error()}, nil
	}
	code := outcome.StatusCode
	return TestResult{StatusCode: &code, ResponseMS: outcome.ResponseMS}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, hook models.Webhook, env Envelope) (models.DeliveryOutcome, error) {
	outcome, derr := d.notifier.Deliver(ctx, hook, env)
	logDeliveryError(d.logger, derr, hook, env.Event)

	if err := d.repo.RecordDelivery(ctx, hook.ID, outcome); err != nil {
		d.logger.Error().Err(err).Int64("webhook_id", hook.ID).Msg("failed to record webhook outcome")
	}
	return outcome, derr
}
