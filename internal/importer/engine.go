package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
)

const (
	DefaultKeyColumn = "sku"
	DefaultBatchSize = 2000
)

type Config struct {
	KeyColumn string
	BatchSize int
}

// ProgressFunc receives the cumulative number of committed rows after each batch commit.
type ProgressFunc func(ctx context.Context, processed int64)

// Engine upserts catalog rows from CSV in bounded transactional batches.
type Engine struct {
	writer    repository.ProductBatchWriter
	keyColumn string
	batchSize int
	logger    zerolog.Logger
}

func NewEngine(writer repository.ProductBatchWriter, cfg Config, logger zerolog.Logger) *Engine {
	key := strings.ToLower(strings.TrimSpace(cfg.KeyColumn))
	if key == "" {
		key = DefaultKeyColumn
	}
	size := cfg.BatchSize
	if size < 1 {
		size = DefaultBatchSize
	}
	return &Engine{
		writer:    writer,
		keyColumn: key,
		batchSize: size,
		logger:    logger.With().Str("component", "importer").Logger(),
	}
}

func (e *Engine) KeyColumn() string { return e.keyColumn }
func (e *Engine) BatchSize() int    { return e.batchSize }

// Count validates the header and returns the number of rows with a non-empty key.
// Records that fail to parse are not counted.
func (e *Engine) Count(ctx context.Context, r io.Reader) (int64, error) {
	rows, err := newRowReader(r, e.keyColumn)
	if err != nil {
		return 0, err
	}

	var total int64
	for {
		if total%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return total, err
			}
		}
		rec, _, err := rows.next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			if isParseError(err) {
				continue
			}
			return total, fmt.Errorf("read csv: %w", err)
		}
		if rec.get(e.keyColumn) != "" {
			total++
		}
	}
}

// Import upserts every row with a non-empty key and returns the number of rows written.
// Row failures are logged and skipped; a failed batch commit aborts with *BatchCommitError.
func (e *Engine) Import(ctx context.Context, r io.Reader, onBatch ProgressFunc) (int64, error) {
	rows, err := newRowReader(r, e.keyColumn)
	if err != nil {
		return 0, err
	}
	logger := e.loggerFor(ctx)

	var (
		processed int64
		pending   int
		batch     repository.ProductBatch
	)
	defer func() {
		if batch != nil {
			_ = batch.Rollback(context.WithoutCancel(ctx))
		}
	}()

	commit := func() error {
		err := batch.Commit(ctx)
		batch = nil
		if err != nil {
			return &BatchCommitError{Processed: processed, Err: err}
		}
		processed += int64(pending)
		pending = 0
		if onBatch != nil {
			onBatch(ctx, processed)
		}
		return nil
	}

	for {
		rec, line, err := rows.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rowErr := &RowError{Line: pe.StartLine, Err: err}
				logger.Warn().Err(rowErr).Int("line", rowErr.Line).Msg("skipping malformed row")
				continue
			}
			return processed, fmt.Errorf("read csv: %w", err)
		}

		row, ok := e.toUpsert(rec)
		if !ok {
			continue
		}

		if batch == nil {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			if batch, err = e.writer.BeginBatch(ctx); err != nil {
				return processed, &BatchCommitError{Processed: processed, Err: err}
			}
		}

		if err := batch.Upsert(ctx, row); err != nil {
			if errors.Is(err, models.ErrBatchAborted) {
				return processed, &BatchCommitError{Processed: processed, Err: err}
			}
			rowErr := &RowError{Line: line, Key: row.SKU, Err: err}
			logger.Warn().Err(rowErr).Int("line", line).Str("key", row.SKU).Msg("skipping row")
			continue
		}
		pending++

		if pending >= e.batchSize {
			if err := commit(); err != nil {
				return processed, err
			}
		}
	}

	if batch != nil {
		if pending == 0 {
			err := batch.Rollback(ctx)
			batch = nil
			return processed, err
		}
		if err := commit(); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

func (e *Engine) toUpsert(rec record) (models.ProductUpsert, bool) {
	key := rec.get(e.keyColumn)
	if key == "" {
		return models.ProductUpsert{}, false
	}
	name := rec.get("name")
	if name == "" {
		name = key
	}
	return models.ProductUpsert{
		SKU:         key,
		Name:        name,
		Description: rec.get("description"),
	}, true
}

// loggerFor prefers a request-scoped logger carried on ctx (e.g. with job_id attached).
func (e *Engine) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &e.logger
}
