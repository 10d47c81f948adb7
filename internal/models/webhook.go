package models

import "errors"

const (
	EventImportCompleted = "import.completed"
	EventImportFailed    = "import.failed"
)

// DeliveryFailedStatus is recorded when a delivery fails before any response arrives.
const DeliveryFailedStatus = -1

var ErrWebhookNotFound = errors.New("webhook not found")

type Webhook struct {
	ID             int64  `json:"id" db:"id"`
	URL            string `json:"url" db:"url"`
	Event          string `json:"event" db:"event"`
	Enabled        bool   `json:"enabled" db:"enabled"`
	LastStatusCode *int   `json:"last_status_code" db:"last_status_code"`
	LastResponseMS *int64 `json:"last_response_ms" db:"last_response_ms"`
}

type WebhookUpdate struct {
	URL     *string `json:"url"`
	Event   *string `json:"event"`
	Enabled *bool   `json:"enabled"`
}

// DeliveryOutcome is the observable result of one delivery attempt.
type DeliveryOutcome struct {
	StatusCode int    `json:"status_code"`
	ResponseMS *int64 `json:"response_ms"`
}

// ImportEventPayload is the payload of import.completed and import.failed events.
type ImportEventPayload struct {
	JobID     string `json:"job_id"`
	Processed int64  `json:"processed"`
	Total     int64  `json:"total"`
	Error     string `json:"error,omitempty"`
}
