package orchestrator_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/importer"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stanstork/catalog-importer/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJobs is an in-memory job store that records every committed snapshot.
type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]models.Job
	history []models.Job
	log     *[]string

	FinishFunc func(status string) error
}

func newMemJobs(log *[]string) *memJobs {
	return &memJobs{jobs: map[string]models.Job{}, log: log}
}

func (m *memJobs) Create(ctx context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; ok {
		return models.Job{}, models.ErrJobExists
	}
	job := models.Job{ID: id, Stage: models.StageQueued, Status: models.JobStatusQueued}
	m.jobs[id] = job
	m.history = append(m.history, job)
	return job, nil
}

func (m *memJobs) Get(ctx context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, models.ErrJobNotFound
	}
	return job, nil
}

func (m *memJobs) mutate(id string, fn func(*models.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.ErrJobNotFound
	}
	if job.IsTerminal() {
		return models.ErrJobTerminal
	}
	fn(&job)
	m.jobs[id] = job
	m.history = append(m.history, job)
	return nil
}

func (m *memJobs) MarkRunning(ctx context.Context, id string) error {
	return m.mutate(id, func(j *models.Job) {
		j.Stage, j.Status = models.StageParsing, models.JobStatusRunning
	})
}

func (m *memJobs) SetTotal(ctx context.Context, id string, total int64) error {
	return m.mutate(id, func(j *models.Job) {
		j.TotalRows, j.Stage = total, models.StageImporting
	})
}

func (m *memJobs) UpdateProgress(ctx context.Context, id string, processed int64) error {
	return m.mutate(id, func(j *models.Job) {
		if processed > j.ProcessedRows {
			j.ProcessedRows = processed
		}
	})
}

func (m *memJobs) Finish(ctx context.Context, id, status string, processed int64, errorMessage string) error {
	if m.FinishFunc != nil {
		if err := m.FinishFunc(status); err != nil {
			return err
		}
	}
	err := m.mutate(id, func(j *models.Job) {
		j.Stage, j.Status = status, status
		if processed > j.ProcessedRows {
			j.ProcessedRows = processed
		}
		if status == models.JobStatusFailed {
			j.ErrorMessage = &errorMessage
		}
	})
	if err == nil && m.log != nil {
		*m.log = append(*m.log, "finish:"+status)
	}
	return err
}

var _ repository.JobRepository = (*memJobs)(nil)

type memFiles map[string]string

func (f memFiles) Open(ctx context.Context, jobID string) (io.ReadCloser, error) {
	data, ok := f[jobID]
	if !ok {
		return nil, errors.New("upload not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f memFiles) Save(ctx context.Context, jobID string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f[jobID] = string(data)
	return nil
}

func (f memFiles) Remove(ctx context.Context, jobID string) error {
	delete(f, jobID)
	return nil
}

// memCatalog is a product writer backed by a map keyed by lowercase sku.
type memCatalog struct {
	mu       sync.Mutex
	products map[string]models.ProductUpsert

	CommitFunc func() error
}

func (c *memCatalog) BeginBatch(ctx context.Context) (repository.ProductBatch, error) {
	return &memBatch{catalog: c}, nil
}

type memBatch struct {
	catalog *memCatalog
	rows    []models.ProductUpsert
}

func (b *memBatch) Upsert(ctx context.Context, row models.ProductUpsert) error {
	b.rows = append(b.rows, row)
	return nil
}

func (b *memBatch) Commit(ctx context.Context) error {
	if b.catalog.CommitFunc != nil {
		if err := b.catalog.CommitFunc(); err != nil {
			return err
		}
	}
	b.catalog.mu.Lock()
	defer b.catalog.mu.Unlock()
	for _, row := range b.rows {
		b.catalog.products[models.NormalizeSKU(row.SKU)] = row
	}
	return nil
}

func (b *memBatch) Rollback(ctx context.Context) error { return nil }

type dispatchCall struct {
	Event   string
	Payload models.ImportEventPayload
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	log   *[]string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event string, payload interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{Event: event, Payload: payload.(models.ImportEventPayload)})
	if d.log != nil {
		*d.log = append(*d.log, "dispatch:"+event)
	}
	return nil
}

type fixture struct {
	jobs       *memJobs
	files      memFiles
	catalog    *memCatalog
	dispatcher *recordingDispatcher
	orch       *orchestrator.Orchestrator
	order      []string
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	f := &fixture{
		files:   memFiles{},
		catalog: &memCatalog{products: map[string]models.ProductUpsert{}},
	}
	f.jobs = newMemJobs(&f.order)
	f.dispatcher = &recordingDispatcher{log: &f.order}
	engine := importer.NewEngine(f.catalog, importer.Config{BatchSize: batchSize}, zerolog.Nop())
	f.orch = orchestrator.New(f.jobs, f.files, engine, f.dispatcher, zerolog.Nop())
	return f
}

func (f *fixture) submit(t *testing.T, id, csv string) {
	t.Helper()
	f.files[id] = csv
	_, err := f.jobs.Create(context.Background(), id)
	require.NoError(t, err)
}

func TestRunCompletesAndDispatchesAfterCommit(t *testing.T) {
	f := newFixture(t, 1)
	f.submit(t, "job-1", "sku,name\nA,Alpha\n  ,Skipped\nB,Beta\nC,Gamma\n")

	require.NoError(t, f.orch.Run(context.Background(), "job-1"))

	job, err := f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.StageCompleted, job.Stage)
	assert.Equal(t, int64(3), job.ProcessedRows)
	assert.Equal(t, int64(3), job.TotalRows)
	assert.Nil(t, job.ErrorMessage)

	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, models.EventImportCompleted, f.dispatcher.calls[0].Event)
	assert.Equal(t, models.ImportEventPayload{JobID: "job-1", Processed: 3, Total: 3}, f.dispatcher.calls[0].Payload)
	assert.Equal(t, []string{"finish:completed", "dispatch:import.completed"}, f.order)
}

func TestRunProgressPassesThroughEachBatch(t *testing.T) {
	f := newFixture(t, 1)
	f.submit(t, "job-1", "sku\nA\nB\nC\n")

	require.NoError(t, f.orch.Run(context.Background(), "job-1"))

	var stages []string
	var processed []int64
	for _, snap := range f.jobs.history {
		stages = append(stages, snap.Stage)
		processed = append(processed, snap.ProcessedRows)
		assert.LessOrEqual(t, snap.ProcessedRows, int64(3))
	}
	assert.Equal(t, []string{"queued", "parsing", "importing", "importing", "importing", "importing", "completed"}, stages)
	assert.Equal(t, []int64{0, 0, 0, 1, 2, 3, 3}, processed)
}

func TestRunMissingKeyColumnFails(t *testing.T) {
	f := newFixture(t, 10)
	f.submit(t, "job-1", "name,description\nAlpha,first\n")

	err := f.orch.Run(context.Background(), "job-1")

	var schemaErr *importer.SchemaError
	require.ErrorAs(t, err, &schemaErr)

	job, gerr := f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, gerr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.StageFailed, job.Stage)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "sku")
	assert.Zero(t, job.TotalRows)
	assert.Zero(t, job.ProcessedRows)
	assert.Empty(t, f.catalog.products)

	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, models.EventImportFailed, f.dispatcher.calls[0].Event)
}

func TestRunBatchCommitFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, 2)
	f.submit(t, "job-1", "sku\nA\nB\nC\nD\n")
	commits := 0
	f.catalog.CommitFunc = func() error {
		commits++
		if commits == 2 {
			return errors.New("deadlock detected")
		}
		return nil
	}

	err := f.orch.Run(context.Background(), "job-1")
	require.Error(t, err)

	job, gerr := f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, gerr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, int64(2), job.ProcessedRows)
	assert.Equal(t, int64(4), job.TotalRows)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "deadlock detected")

	require.Len(t, f.dispatcher.calls, 1)
	call := f.dispatcher.calls[0]
	assert.Equal(t, models.EventImportFailed, call.Event)
	assert.Equal(t, int64(2), call.Payload.Processed)
	assert.Contains(t, call.Payload.Error, "deadlock detected")
}

func TestRunMissingUploadFails(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.jobs.Create(context.Background(), "job-1")
	require.NoError(t, err)

	require.Error(t, f.orch.Run(context.Background(), "job-1"))

	job, _ := f.jobs.Get(context.Background(), "job-1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "open upload")
}

func TestRunTerminalJobIsLeftAlone(t *testing.T) {
	f := newFixture(t, 10)
	f.submit(t, "job-1", "sku\nA\n")
	require.NoError(t, f.orch.Run(context.Background(), "job-1"))

	err := f.orch.Run(context.Background(), "job-1")
	assert.ErrorIs(t, err, models.ErrJobTerminal)

	job, _ := f.jobs.Get(context.Background(), "job-1")
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Len(t, f.dispatcher.calls, 1)
}

type panickingImporter struct{}

func (panickingImporter) Count(ctx context.Context, r io.Reader) (int64, error) { return 1, nil }
func (panickingImporter) Import(ctx context.Context, r io.Reader, onBatch importer.ProgressFunc) (int64, error) {
	panic("boom")
}

func TestRunRecoversPanic(t *testing.T) {
	var order []string
	jobs := newMemJobs(&order)
	files := memFiles{"job-1": "sku\nA\n"}
	_, err := jobs.Create(context.Background(), "job-1")
	require.NoError(t, err)
	orch := orchestrator.New(jobs, files, panickingImporter{}, nil, zerolog.Nop())

	err = orch.Run(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	job, _ := jobs.Get(context.Background(), "job-1")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "boom")
}

func TestRunBatchHookFiresPerBatch(t *testing.T) {
	f := newFixture(t, 2)
	f.submit(t, "job-1", "sku\nA\nB\nC\n")

	var seen []int64
	err := f.orch.Run(context.Background(), "job-1", orchestrator.WithBatchHook(func(ctx context.Context, processed int64) {
		seen = append(seen, processed)
	}))

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, seen)
}
