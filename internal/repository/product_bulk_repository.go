package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stanstork/catalog-importer/internal/models"
)

// ProductBatch is one open import transaction. Upsert failures that leave the
// transaction unusable are reported wrapped in models.ErrBatchAborted.
type ProductBatch interface {
	Upsert(ctx context.Context, row models.ProductUpsert) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type ProductBatchWriter interface {
	BeginBatch(ctx context.Context) (ProductBatch, error)
}

type ProductBulkRepository struct {
	pool *pgxpool.Pool
}

func NewProductBulkRepository(pool *pgxpool.Pool) *ProductBulkRepository {
	return &ProductBulkRepository{pool: pool}
}

func (r *ProductBulkRepository) BeginBatch(ctx context.Context) (ProductBatch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &productBatch{tx: tx}, nil
}

type productBatch struct {
	tx   pgx.Tx
	rows int
}

const upsertProductSQL = `
INSERT INTO products (sku, sku_lower, name, description, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
ON CONFLICT (sku_lower) DO UPDATE
  SET sku = EXCLUDED.sku,
      name = EXCLUDED.name,
      description = EXCLUDED.description,
      updated_at = NOW()
`

// Upsert writes one row inside its own savepoint so a failing row does not
// abort the rows already written to the batch.
func (b *productBatch) Upsert(ctx context.Context, row models.ProductUpsert) error {
	b.rows++
	savepoint := fmt.Sprintf("sp_%d", b.rows)

	if _, err := b.tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("%w: create savepoint: %v", models.ErrBatchAborted, err)
	}

	if _, err := b.tx.Exec(ctx, upsertProductSQL, row.SKU, models.NormalizeSKU(row.SKU), row.Name, row.Description); err != nil {
		if _, rbErr := b.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
			return fmt.Errorf("%w: rollback savepoint: %v", models.ErrBatchAborted, rbErr)
		}
		return fmt.Errorf("upsert sku %q: %w", row.SKU, err)
	}

	if _, err := b.tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return fmt.Errorf("%w: release savepoint: %v", models.ErrBatchAborted, err)
	}
	return nil
}

func (b *productBatch) Commit(ctx context.Context) error {
	if err := b.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (b *productBatch) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
