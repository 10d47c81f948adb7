package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/stanstork/catalog-importer/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ProductRepository interface {
	List(ctx context.Context, filter models.ProductFilter) (models.ProductPage, error)
	Get(ctx context.Context, id int64) (models.Product, error)
	Create(ctx context.Context, p models.Product) (models.Product, error)
	Update(ctx context.Context, id int64, upd models.ProductUpdate) (models.Product, error)
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, sku, sku_lower, name, description, active, created_at, updated_at`

func (r *productRepository) List(ctx context.Context, filter models.ProductFilter) (models.ProductPage, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	var (
		conds []string
		args  []interface{}
	)
	if sku := strings.TrimSpace(filter.SKU); sku != "" {
		args = append(args, models.NormalizeSKU(sku))
		conds = append(conds, fmt.Sprintf("sku_lower = $%d", len(args)))
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, "%"+name+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if desc := strings.TrimSpace(filter.Description); desc != "" {
		args = append(args, "%"+desc+"%")
		conds = append(conds, fmt.Sprintf("description ILIKE $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return models.ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return models.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	items := make([]models.Product, 0, pageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return models.ProductPage{}, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return models.ProductPage{}, err
	}

	return models.ProductPage{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	}, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, models.ErrProductNotFound
		}
		return models.Product{}, err
	}
	return p, nil
}

func (r *productRepository) Create(ctx context.Context, p models.Product) (models.Product, error) {
	query := `
		INSERT INTO products (sku, sku_lower, name, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + productColumns
	created, err := scanProduct(r.db.QueryRowContext(ctx, query,
		p.SKU, models.NormalizeSKU(p.SKU), p.Name, p.Description, p.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Product{}, models.ErrDuplicateSKU
		}
		return models.Product{}, fmt.Errorf("create product: %w", err)
	}
	return created, nil
}

func (r *productRepository) Update(ctx context.Context, id int64, upd models.ProductUpdate) (models.Product, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}

	if upd.SKU != nil && *upd.SKU != "" {
		current.SKU = *upd.SKU
	}
	if upd.Name != nil {
		current.Name = *upd.Name
	}
	if upd.Description != nil {
		current.Description = *upd.Description
	}
	if upd.Active != nil {
		current.Active = *upd.Active
	}

	query := `
		UPDATE products
		   SET sku = $2, sku_lower = $3, name = $4, description = $5, active = $6, updated_at = NOW()
		 WHERE id = $1
		RETURNING ` + productColumns
	updated, err := scanProduct(r.db.QueryRowContext(ctx, query,
		id, current.SKU, models.NormalizeSKU(current.SKU), current.Name, current.Description, current.Active))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Product{}, models.ErrDuplicateSKU
		}
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, models.ErrProductNotFound
		}
		return models.Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return updated, nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products`)
	if err != nil {
		return 0, fmt.Errorf("delete all products: %w", err)
	}
	return res.RowsAffected()
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanProduct(scanner interface {
	Scan(dest ...interface{}) error
}) (models.Product, error) {
	var p models.Product
	err := scanner.Scan(
		&p.ID,
		&p.SKU,
		&p.SKULower,
		&p.Name,
		&p.Description,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
