package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
)

// Envelope is the JSON body posted to every subscriber.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Notifier performs a single delivery attempt. A failed attempt returns a
// *DeliveryError together with the failure outcome to record.
type Notifier interface {
	Deliver(ctx context.Context, hook models.Webhook, env Envelope) (models.DeliveryOutcome, error)
}

// DeliveryError is a webhook POST that produced no response.
type DeliveryError struct {
	WebhookID int64
	URL       string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver webhook %d to %s: %v", e.WebhookID, e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func failedOutcome() models.DeliveryOutcome {
	return models.DeliveryOutcome{StatusCode: models.DeliveryFailedStatus}
}

func logDeliveryError(logger zerolog.Logger, err error, hook models.Webhook, event string) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Int64("webhook_id", hook.ID).
		Str("url", hook.URL).
		Str("event", event).
		Msg("failed to deliver webhook")
}
