package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/notification"
	"github.com/stanstork/catalog-importer/internal/repository"
)

type WebhookTester interface {
	Test(ctx context.Context, id int64) (notification.TestResult, error)
}

type WebhookHandler struct {
	repo   repository.WebhookRepository
	tester WebhookTester
	logger zerolog.Logger
}

func NewWebhookHandler(repo repository.WebhookRepository, tester WebhookTester, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		repo:   repo,
		tester: tester,
		logger: logger.With().Str("handler", "webhook").Logger(),
	}
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list webhooks")
		http.Error(w, "Failed to list webhooks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL     string `json:"url"`
		Event   string `json:"event"`
		Enabled *bool  `json:"enabled"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if !validWebhookURL(payload.URL) {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	hook := models.Webhook{
		URL:     strings.TrimSpace(payload.URL),
		Event:   strings.TrimSpace(payload.Event),
		Enabled: true,
	}
	if hook.Event == "" {
		hook.Event = models.EventImportCompleted
	}
	if payload.Enabled != nil {
		hook.Enabled = *payload.Enabled
	}

	created, err := h.repo.Create(r.Context(), hook)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create webhook")
		http.Error(w, "Failed to create webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "webhookID")
	if !ok {
		http.Error(w, "Invalid webhook ID", http.StatusBadRequest)
		return
	}

	var upd models.WebhookUpdate
	if err := decodeJSON(r, &upd); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if upd.URL != nil && !validWebhookURL(*upd.URL) {
		http.Error(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if upd.Event != nil && strings.TrimSpace(*upd.Event) == "" {
		http.Error(w, "event must not be empty", http.StatusBadRequest)
		return
	}

	updated, err := h.repo.Update(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			http.Error(w, "Webhook not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("webhook_id", id).Msg("failed to update webhook")
		http.Error(w, "Failed to update webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "webhookID")
	if !ok {
		http.Error(w, "Invalid webhook ID", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			http.Error(w, "Webhook not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("webhook_id", id).Msg("failed to delete webhook")
		http.Error(w, "Failed to delete webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "webhookID")
	if !ok {
		http.Error(w, "Invalid webhook ID", http.StatusBadRequest)
		return
	}

	result, err := h.tester.Test(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrWebhookNotFound) {
			http.Error(w, "Webhook not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("webhook_id", id).Msg("failed to test webhook")
		http.Error(w, "Failed to test webhook", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
