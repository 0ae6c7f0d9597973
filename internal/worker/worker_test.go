package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	queuememory "github.com/JakeFAU/careers-ingest/internal/queue/memory"
	"github.com/JakeFAU/careers-ingest/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIngester struct {
	mu      sync.Mutex
	results map[string]ingest.Result
	errs    map[string]error
	block   bool
	calls   []string
}

func (f *fakeIngester) IngestCompany(ctx context.Context, companyID string) (ingest.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, companyID)
	block := f.block
	res, err := f.results[companyID], f.errs[companyID]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ingest.Result{CompanyID: companyID}, ctx.Err()
	}
	return res, err
}

func seedTask(t *testing.T, store *memory.Store, id, companyID string) {
	t.Helper()
	require.NoError(t, store.CreateTask(context.Background(), ingest.Task{
		ID: id, CompanyID: companyID, Status: ingest.TaskQueued, SubmittedAt: time.Unix(100, 0).UTC(),
	}))
}

func TestWorkerRunRecordsSuccess(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedTask(t, store, "t1", "acme")
	queue := queuememory.NewQueue(1)
	ingester := &fakeIngester{results: map[string]ingest.Result{
		"acme": {CompanyID: "acme", Status: ingest.RunPublished, Mode: ingest.ModeNormal, JobCount: 5, SnapshotID: "s1"},
	}}
	w := New(queue, store, ingester, &fakeClock{now: time.Unix(200, 0)}, Config{}, zap.NewNop())

	require.NoError(t, queue.Enqueue(context.Background(), ingest.QueueItem{TaskID: "t1", CompanyID: "acme"}))
	queue.Close()
	w.Run(context.Background())

	task, err := store.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, ingest.TaskSucceeded, task.Status)
	require.Equal(t, ingest.ModeNormal, task.Mode)
	require.Equal(t, 5, task.JobCount)
	require.Equal(t, "s1", *task.SnapshotID)
	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.FinishedAt)
	require.Nil(t, task.ErrorMessage)
}

func TestWorkerProcessRecordsFailureAndRejection(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedTask(t, store, "t-err", "broken")
	seedTask(t, store, "t-rej", "thin")
	ingester := &fakeIngester{
		results: map[string]ingest.Result{
			"broken": {CompanyID: "broken", Mode: ingest.ModeNormal, SnapshotID: "s-fail"},
			"thin":   {CompanyID: "thin", Status: ingest.RunRejected, Mode: ingest.ModeNormal, Message: "Validation failed: 1/10 valid (10%, need 70%)"},
		},
		errs: map[string]error{"broken": errors.New("listing extraction failed: boom")},
	}
	w := New(nil, store, ingester, &fakeClock{now: time.Unix(200, 0)}, Config{}, nil)

	out := w.Process(context.Background(), ingest.QueueItem{TaskID: "t-err", CompanyID: "broken"})
	require.Equal(t, ingest.TaskFailed, out.Status)
	task, _ := store.GetTask(context.Background(), "t-err")
	require.Equal(t, ingest.TaskFailed, task.Status)
	require.Equal(t, "listing extraction failed: boom", *task.ErrorMessage)
	require.Equal(t, "s-fail", *task.SnapshotID)

	out = w.Process(context.Background(), ingest.QueueItem{TaskID: "t-rej", CompanyID: "thin"})
	require.Equal(t, ingest.TaskFailed, out.Status)
	require.Contains(t, *out.ErrorMessage, "Validation failed")
}

func TestWorkerAppliesRunTimeout(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedTask(t, store, "t-slow", "slow")
	ingester := &fakeIngester{block: true}
	w := New(nil, store, ingester, &fakeClock{now: time.Unix(200, 0)}, Config{RunTimeout: 20 * time.Millisecond}, nil)

	out := w.Process(context.Background(), ingest.QueueItem{TaskID: "t-slow", CompanyID: "slow"})
	require.Equal(t, ingest.TaskFailed, out.Status)
	require.Contains(t, *out.ErrorMessage, context.DeadlineExceeded.Error())
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	w := New(queuememory.NewQueue(0), memory.NewStore(), &fakeIngester{}, &fakeClock{}, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	at := time.Unix(300, 0).UTC()
	rate := 0.9
	out := Outcome(ingest.Result{Status: ingest.RunPublished, Mode: ingest.ModeInlineFallback, JobCount: 2, ValidRate: &rate, SnapshotID: "s"}, nil, at)
	require.Equal(t, ingest.TaskSucceeded, out.Status)
	require.Equal(t, ingest.ModeInlineFallback, out.Mode)
	require.Equal(t, at, out.FinishedAt)

	out = Outcome(ingest.Result{}, nil, at)
	require.Equal(t, ingest.TaskFailed, out.Status)
	require.Equal(t, "run rejected", *out.ErrorMessage)
	require.Nil(t, out.SnapshotID)
}
