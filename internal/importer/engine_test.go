package importer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/importer"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-memory catalog keyed by lowercase sku.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]models.ProductUpsert
	begun    int
	commits  int

	UpsertFunc func(row models.ProductUpsert) error
	CommitFunc func(batch int) error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]models.ProductUpsert{}}
}

func (c *fakeCatalog) BeginBatch(ctx context.Context) (repository.ProductBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begun++
	return &fakeBatch{catalog: c}, nil
}

func (c *fakeCatalog) snapshot() map[string]models.ProductUpsert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.ProductUpsert, len(c.products))
	for k, v := range c.products {
		out[k] = v
	}
	return out
}

type fakeBatch struct {
	catalog *fakeCatalog
	staged  []models.ProductUpsert
}

func (b *fakeBatch) Upsert(ctx context.Context, row models.ProductUpsert) error {
	if b.catalog.UpsertFunc != nil {
		if err := b.catalog.UpsertFunc(row); err != nil {
			return err
		}
	}
	b.staged = append(b.staged, row)
	return nil
}

func (b *fakeBatch) Commit(ctx context.Context) error {
	b.catalog.mu.Lock()
	defer b.catalog.mu.Unlock()
	b.catalog.commits++
	if b.catalog.CommitFunc != nil {
		if err := b.catalog.CommitFunc(b.catalog.commits); err != nil {
			return err
		}
	}
	for _, row := range b.staged {
		b.catalog.products[models.NormalizeSKU(row.SKU)] = row
	}
	return nil
}

func (b *fakeBatch) Rollback(ctx context.Context) error { return nil }

func newEngine(catalog *fakeCatalog, batchSize int) *importer.Engine {
	return importer.NewEngine(catalog, importer.Config{BatchSize: batchSize}, zerolog.Nop())
}

func TestCountMissingKeyColumn(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 10)

	_, err := engine.Count(context.Background(), strings.NewReader("name,description\nAlpha,first\n"))

	var schemaErr *importer.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "sku", schemaErr.Column)
	assert.Contains(t, err.Error(), "sku")
	assert.Zero(t, catalog.begun)
}

func TestCountEmptyInputIsSchemaError(t *testing.T) {
	engine := newEngine(newFakeCatalog(), 10)

	_, err := engine.Count(context.Background(), strings.NewReader(""))

	var schemaErr *importer.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestImportMissingKeyColumnWritesNothing(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 10)

	n, err := engine.Import(context.Background(), strings.NewReader("name\nAlpha\n"), nil)

	var schemaErr *importer.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Zero(t, n)
	assert.Zero(t, catalog.begun)
}

func TestCountSkipsEmptyKeysAndNormalizesHeader(t *testing.T) {
	engine := newEngine(newFakeCatalog(), 10)
	input := "\xEF\xBB\xBF SKU ,Name\nA,Alpha\n   ,Blank\n,Missing\nB,Beta\n"

	total, err := engine.Count(context.Background(), strings.NewReader(input))

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestImportSkipsEmptyKeysAndAppliesDefaults(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 10)
	input := "sku,name,description\n  A1 ,  Alpha  , first \n  ,Ghost,none\nB2,,\nC3\n"

	n, err := engine.Import(context.Background(), strings.NewReader(input), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	products := catalog.snapshot()
	require.Len(t, products, 3)
	assert.Equal(t, models.ProductUpsert{SKU: "A1", Name: "Alpha", Description: "first"}, products["a1"])
	assert.Equal(t, models.ProductUpsert{SKU: "B2", Name: "B2", Description: ""}, products["b2"])
	assert.Equal(t, models.ProductUpsert{SKU: "C3", Name: "C3", Description: ""}, products["c3"])
}

func TestImportBatchSizeOneReportsEachCommit(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 1)

	var progress []int64
	n, err := engine.Import(context.Background(),
		strings.NewReader("sku,name\nA,Alpha\nB,Beta\nC,Gamma\n"),
		func(ctx context.Context, processed int64) { progress = append(progress, processed) })

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []int64{1, 2, 3}, progress)
	assert.Equal(t, 3, catalog.commits)
}

func TestImportCommitsTrailingPartialBatchOnce(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 2)

	var progress []int64
	n, err := engine.Import(context.Background(),
		strings.NewReader("sku\nA\nB\nC\nD\nE\n"),
		func(ctx context.Context, processed int64) { progress = append(progress, processed) })

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, []int64{2, 4, 5}, progress)
	assert.Equal(t, 3, catalog.commits)
}

func TestImportCaseInsensitiveKeyUpdatesSingleRecord(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 2000)

	_, err := engine.Import(context.Background(), strings.NewReader("sku,name\nA,Alpha\na,Alpha2\n"), nil)
	require.NoError(t, err)

	products := catalog.snapshot()
	require.Len(t, products, 1)
	assert.Equal(t, "Alpha2", products["a"].Name)
	assert.Equal(t, "a", products["a"].SKU)
}

func TestImportTwiceIsIdempotent(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 2)
	input := "sku,name\nA,Alpha\nB,Beta\nc,Gamma\n"

	_, err := engine.Import(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)
	first := len(catalog.snapshot())

	_, err = engine.Import(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, first, len(catalog.snapshot()))
}

func TestImportRowErrorIsSkipped(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.UpsertFunc = func(row models.ProductUpsert) error {
		if row.SKU == "BAD" {
			return errors.New("value too long for type character varying(255)")
		}
		return nil
	}
	engine := newEngine(catalog, 10)

	n, err := engine.Import(context.Background(), strings.NewReader("sku\nA\nBAD\nC\n"), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	products := catalog.snapshot()
	assert.Contains(t, products, "a")
	assert.Contains(t, products, "c")
	assert.NotContains(t, products, "bad")
}

func TestImportKeepsBareQuotesInFields(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 10)
	input := "sku,name,description\nP1,12\" pipe,steel\nP2,Bolt,M8\n"

	total, err := engine.Count(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	n, err := engine.Import(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(2), n)
	products := catalog.snapshot()
	require.Contains(t, products, "p1")
	assert.Equal(t, `12" pipe`, products["p1"].Name)
	assert.Equal(t, "steel", products["p1"].Description)
	assert.Equal(t, "Bolt", products["p2"].Name)
}

func TestImportQuotedFieldsWithDelimitersAndEscapes(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newEngine(catalog, 10)
	input := "sku,name,description\nP1,\"Pipe, 12\"\" long\",\"multi\nline\"\n"

	n, err := engine.Import(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), n)
	p := catalog.snapshot()["p1"]
	assert.Equal(t, `Pipe, 12" long`, p.Name)
	assert.Equal(t, "multi\nline", p.Description)
}

func TestImportCommitFailureIsFatal(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.CommitFunc = func(batch int) error {
		if batch == 2 {
			return errors.New("could not serialize access")
		}
		return nil
	}
	engine := newEngine(catalog, 2)

	var progress []int64
	n, err := engine.Import(context.Background(),
		strings.NewReader("sku\nA\nB\nC\nD\nE\nF\n"),
		func(ctx context.Context, processed int64) { progress = append(progress, processed) })

	var commitErr *importer.BatchCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, int64(2), commitErr.Processed)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []int64{2}, progress)
	assert.Len(t, catalog.snapshot(), 2)
}

func TestImportAbortedBatchIsFatal(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.UpsertFunc = func(row models.ProductUpsert) error {
		if row.SKU == "B" {
			return fmt.Errorf("%w: connection reset", models.ErrBatchAborted)
		}
		return nil
	}
	engine := newEngine(catalog, 10)

	_, err := engine.Import(context.Background(), strings.NewReader("sku\nA\nB\nC\n"), nil)

	var commitErr *importer.BatchCommitError
	require.ErrorAs(t, err, &commitErr)
	assert.ErrorIs(t, err, models.ErrBatchAborted)
	assert.Empty(t, catalog.snapshot())
}

func TestCustomKeyColumn(t *testing.T) {
	catalog := newFakeCatalog()
	engine := importer.NewEngine(catalog, importer.Config{KeyColumn: " Code "}, zerolog.Nop())

	assert.Equal(t, "code", engine.KeyColumn())
	assert.Equal(t, importer.DefaultBatchSize, engine.BatchSize())

	n, err := engine.Import(context.Background(), strings.NewReader("CODE,name\nx-1,Widget\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "Widget", catalog.snapshot()["x-1"].Name)
}
