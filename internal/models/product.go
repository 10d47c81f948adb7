package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateSKU    = errors.New("SKU already exists (case-insensitive)")
	// ErrBatchAborted marks a batch transaction that can no longer be committed.
	ErrBatchAborted = errors.New("batch transaction aborted")
)

type Product struct {
	ID          int64     `json:"id" db:"id"`
	SKU         string    `json:"sku" db:"sku"`
	SKULower    string    `json:"-" db:"sku_lower"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ProductUpsert is one imported catalog row, already trimmed and defaulted.
type ProductUpsert struct {
	SKU         string
	Name        string
	Description string
}

// NormalizeSKU returns the case-insensitive match key shared by CRUD and import.
func NormalizeSKU(sku string) string {
	return strings.ToLower(sku)
}

type ProductFilter struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
	Page        int
	PageSize    int
}

type ProductPage struct {
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Items    []Product `json:"items"`
}

type ProductUpdate struct {
	SKU         *string `json:"sku"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}
