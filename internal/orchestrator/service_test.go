package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	DispatchFunc func(ctx context.Context, jobID string) error
}

func (e *fakeExecutor) Dispatch(ctx context.Context, jobID string) error {
	return e.DispatchFunc(ctx, jobID)
}

func TestSubmitGeneratesIDAndQueues(t *testing.T) {
	jobs := newMemJobs(nil)
	files := memFiles{}
	var dispatched []string
	exec := &fakeExecutor{DispatchFunc: func(ctx context.Context, jobID string) error {
		dispatched = append(dispatched, jobID)
		return nil
	}}
	svc := orchestrator.NewService(jobs, files, exec, zerolog.Nop())

	job, err := svc.Submit(context.Background(), "", strings.NewReader("sku\nA\n"))

	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, models.StageQueued, job.Stage)
	assert.Equal(t, []string{job.ID}, dispatched)
	assert.Equal(t, "sku\nA\n", files[job.ID])
}

func TestSubmitKeepsCallerID(t *testing.T) {
	jobs := newMemJobs(nil)
	exec := &fakeExecutor{DispatchFunc: func(ctx context.Context, jobID string) error { return nil }}
	svc := orchestrator.NewService(jobs, memFiles{}, exec, zerolog.Nop())

	job, err := svc.Submit(context.Background(), "import-42", strings.NewReader("sku\n"))

	require.NoError(t, err)
	assert.Equal(t, "import-42", job.ID)
}

func TestSubmitDuplicateIDKeepsExistingUpload(t *testing.T) {
	jobs := newMemJobs(nil)
	files := memFiles{}
	var dispatched []string
	exec := &fakeExecutor{DispatchFunc: func(ctx context.Context, jobID string) error {
		dispatched = append(dispatched, jobID)
		return nil
	}}
	svc := orchestrator.NewService(jobs, files, exec, zerolog.Nop())

	_, err := svc.Submit(context.Background(), "job-1", strings.NewReader("sku\nA\n"))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), " job-1 ", strings.NewReader("sku\nOTHER\n"))

	require.ErrorIs(t, err, models.ErrJobExists)
	assert.Equal(t, "sku\nA\n", files["job-1"])
	assert.Equal(t, []string{"job-1"}, dispatched)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
}

type failingReader struct{ err error }

func (r failingReader) Read(p []byte) (int, error) { return 0, r.err }

func TestSubmitSaveFailureRemovesUploadAndFailsJob(t *testing.T) {
	jobs := newMemJobs(nil)
	files := memFiles{"job-1": "partial"}
	dispatched := false
	exec := &fakeExecutor{DispatchFunc: func(ctx context.Context, jobID string) error {
		dispatched = true
		return nil
	}}
	svc := orchestrator.NewService(jobs, files, exec, zerolog.Nop())

	_, err := svc.Submit(context.Background(), "job-1", failingReader{err: errors.New("client disconnected")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "save upload")
	assert.NotContains(t, files, "job-1")
	assert.False(t, dispatched)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "client disconnected")
}

func TestSubmitDispatchFailureIsReportedOnJob(t *testing.T) {
	jobs := newMemJobs(nil)
	exec := &fakeExecutor{DispatchFunc: func(ctx context.Context, jobID string) error {
		return errors.New("task queue unavailable")
	}}
	svc := orchestrator.NewService(jobs, memFiles{}, exec, zerolog.Nop())

	job, err := svc.Submit(context.Background(), "job-1", strings.NewReader("sku\nA\n"))

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "task queue unavailable")
}

func TestInlineExecutorRunsToCompletion(t *testing.T) {
	f := newFixture(t, 2)
	exec := orchestrator.NewInlineExecutor(f.orch, zerolog.Nop())
	svc := orchestrator.NewService(f.jobs, f.files, exec, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	job, err := svc.Submit(ctx, "job-1", strings.NewReader("sku,name\nA,Alpha\na,Alpha2\nB,Beta\n"))
	require.NoError(t, err)
	cancel()
	exec.Wait()

	final, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	assert.Equal(t, int64(3), final.ProcessedRows)

	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()
	require.Len(t, f.catalog.products, 2)
	assert.Equal(t, "Alpha2", f.catalog.products["a"].Name)
}

type countingRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *countingRunner) Run(ctx context.Context, jobID string, opts ...orchestrator.RunOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, jobID)
	return nil
}

func TestInlineExecutorWaitsForAllRuns(t *testing.T) {
	runner := &countingRunner{}
	exec := orchestrator.NewInlineExecutor(runner, zerolog.Nop())

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, exec.Dispatch(context.Background(), id))
	}
	exec.Wait()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, runner.runs)
}
