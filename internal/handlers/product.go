package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
)

type ProductHandler struct {
	repo   repository.ProductRepository
	logger zerolog.Logger
}

func NewProductHandler(repo repository.ProductRepository, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		repo:   repo,
		logger: logger.With().Str("handler", "product").Logger(),
	}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		SKU:         q.Get("sku"),
		Name:        q.Get("name"),
		Description: q.Get("description"),
		Page:        1,
		PageSize:    20,
	}

	if raw := strings.TrimSpace(q.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "active must be true or false", http.StatusBadRequest)
			return
		}
		filter.Active = &active
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			http.Error(w, "page must be an integer >= 1", http.StatusBadRequest)
			return
		}
		filter.Page = page
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 100 {
			http.Error(w, "page_size must be an integer between 1 and 100", http.StatusBadRequest)
			return
		}
		filter.PageSize = size
	}

	page, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list products")
		http.Error(w, "Failed to list products", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SKU         string `json:"sku"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Active      *bool  `json:"active"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	product := models.Product{
		SKU:         strings.TrimSpace(payload.SKU),
		Name:        strings.TrimSpace(payload.Name),
		Description: strings.TrimSpace(payload.Description),
		Active:      true,
	}
	if product.SKU == "" {
		http.Error(w, "sku is required", http.StatusBadRequest)
		return
	}
	if product.Name == "" {
		product.Name = product.SKU
	}
	if payload.Active != nil {
		product.Active = *payload.Active
	}

	created, err := h.repo.Create(r.Context(), product)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateSKU) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("sku", product.SKU).Msg("failed to create product")
		http.Error(w, "Failed to create product", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "productID")
	if !ok {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}

	var upd models.ProductUpdate
	if err := decodeJSON(r, &upd); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if upd.SKU != nil {
		sku := strings.TrimSpace(*upd.SKU)
		upd.SKU = &sku
	}

	updated, err := h.repo.Update(r.Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrProductNotFound):
			http.Error(w, "Product not found", http.StatusNotFound)
		case errors.Is(err, models.ErrDuplicateSKU):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error().Err(err).Int64("product_id", id).Msg("failed to update product")
			http.Error(w, "Failed to update product", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "productID")
	if !ok {
		http.Error(w, "Invalid product ID", http.StatusBadRequest)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			http.Error(w, "Product not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("product_id", id).Msg("failed to delete product")
		http.Error(w, "Failed to delete product", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ProductHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.DeleteAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to delete products")
		http.Error(w, "Failed to delete products", http.StatusInternalServerError)
		return
	}
	h.logger.Info().Int64("deleted", deleted).Msg("all products deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "deleted": deleted})
}
