package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stanstork/catalog-importer/internal/models"
)

type WebhookRepository interface {
	List(ctx context.Context) ([]models.Webhook, error)
	Get(ctx context.Context, id int64) (models.Webhook, error)
	Create(ctx context.Context, hook models.Webhook) (models.Webhook, error)
	Update(ctx context.Context, id int64, upd models.WebhookUpdate) (models.Webhook, error)
	Delete(ctx context.Context, id int64) error

	ListEnabledByEvent(ctx context.Context, event string) ([]models.Webhook, error)
	// RecordDelivery stores the outcome of the latest delivery attempt. Only the
	// observability columns are touched.
	RecordDelivery(ctx context.Context, id int64, outcome models.DeliveryOutcome) error
}

type webhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

const webhookColumns = `id, url, event, enabled, last_status_code, last_response_ms`

func (r *webhookRepository) List(ctx context.Context) ([]models.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return collectWebhooks(rows)
}

func (r *webhookRepository) ListEnabledByEvent(ctx context.Context, event string) ([]models.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE event = $1 AND enabled = TRUE ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, event)
	if err != nil {
		return nil, fmt.Errorf("list webhooks for %s: %w", event, err)
	}
	return collectWebhooks(rows)
}

func (r *webhookRepository) Get(ctx context.Context, id int64) (models.Webhook, error) {
	hook, err := scanWebhook(r.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Webhook{}, models.ErrWebhookNotFound
		}
		return models.Webhook{}, err
	}
	return hook, nil
}

func (r *webhookRepository) Create(ctx context.Context, hook models.Webhook) (models.Webhook, error) {
	event := strings.TrimSpace(hook.Event)
	if event == "" {
		event = models.EventImportCompleted
	}
	query := `
		INSERT INTO webhooks (url, event, enabled)
		VALUES ($1, $2, $3)
		RETURNING ` + webhookColumns
	created, err := scanWebhook(r.db.QueryRowContext(ctx, query, strings.TrimSpace(hook.URL), event, hook.Enabled))
	if err != nil {
		return models.Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	return created, nil
}

func (r *webhookRepository) Update(ctx context.Context, id int64, upd models.WebhookUpdate) (models.Webhook, error) {
	var (
		sets []string
		args = []interface{}{id}
	)
	if upd.URL != nil {
		args = append(args, strings.TrimSpace(*upd.URL))
		sets = append(sets, fmt.Sprintf("url = $%d", len(args)))
	}
	if upd.Event != nil {
		args = append(args, strings.TrimSpace(*upd.Event))
		sets = append(sets, fmt.Sprintf("event = $%d", len(args)))
	}
	if upd.Enabled != nil {
		args = append(args, *upd.Enabled)
		sets = append(sets, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	query := `UPDATE webhooks SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + webhookColumns
	updated, err := scanWebhook(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Webhook{}, models.ErrWebhookNotFound
		}
		return models.Webhook{}, fmt.Errorf("update webhook %d: %w", id, err)
	}
	return updated, nil
}

func (r *webhookRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrWebhookNotFound
	}
	return nil
}

func (r *webhookRepository) RecordDelivery(ctx context.Context, id int64, outcome models.DeliveryOutcome) error {
	var responseMS interface{}
	if outcome.ResponseMS != nil {
		responseMS = *outcome.ResponseMS
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET last_status_code = $2, last_response_ms = $3 WHERE id = $1`,
		id, outcome.StatusCode, responseMS)
	if err != nil {
		return fmt.Errorf("record delivery for webhook %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrWebhookNotFound
	}
	return nil
}

func collectWebhooks(rows *sql.Rows) ([]models.Webhook, error) {
	defer rows.Close()

	hooks := make([]models.Webhook, 0)
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hooks, nil
}

func scanWebhook(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Webhook, error) {
	var (
		hook       models.Webhook
		statusCode sql.NullInt32
		responseMS sql.NullInt64
	)
	if err := scanner.Scan(&hook.ID, &hook.URL, &hook.Event, &hook.Enabled, &statusCode, &responseMS); err != nil {
		return models.Webhook{}, err
	}
	if statusCode.Valid {
		code := int(statusCode.Int32)
		hook.LastStatusCode = &code
	}
	if responseMS.Valid {
		ms := responseMS.Int64
		hook.LastResponseMS = &ms
	}
	return hook, nil
}
