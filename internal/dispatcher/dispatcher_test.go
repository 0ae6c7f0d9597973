package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	queuememory "github.com/JakeFAU/careers-ingest/internal/queue/memory"
	"github.com/JakeFAU/careers-ingest/internal/storage/memory"
	"github.com/JakeFAU/careers-ingest/internal/worker"
)

type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Unix(1700000000, 0) }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("task-%02d", s.n), nil
}

// trackingIngester records peak concurrency and fails configured companies.
type trackingIngester struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	fail     map[string]bool
}

func (f *trackingIngester) IngestCompany(_ context.Context, companyID string) (ingest.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(15 * time.Millisecond)
	if f.fail[companyID] {
		return ingest.Result{CompanyID: companyID, Mode: ingest.ModeNormal}, errors.New("extraction service unavailable")
	}
	return ingest.Result{CompanyID: companyID, Status: ingest.RunPublished, Mode: ingest.ModeNormal, JobCount: 3, SnapshotID: "snap-" + companyID}, nil
}

type blockingQueue struct {
	started chan struct{}
	once    sync.Once
}

func (q *blockingQueue) Enqueue(context.Context, ingest.QueueItem) error {
	return errors.New("queue full")
}

func (q *blockingQueue) Dequeue(ctx context.Context) (ingest.QueueItem, error) {
	q.once.Do(func() { close(q.started) })
	<-ctx.Done()
	return ingest.QueueItem{}, ctx.Err()
}

func seedCompanies(store *memory.Store, n int) {
	url := "https://example.com/careers"
	for i := 0; i < n; i++ {
		store.PutCompany(ingest.Company{
			ID:         fmt.Sprintf("c%02d", i),
			Name:       fmt.Sprintf("Company %02d", i),
			CareersURL: &url,
			Enabled:    true,
		})
	}
	store.PutCompany(ingest.Company{ID: "disabled", Name: "AAA Disabled", CareersURL: &url})
}

func newDispatcher(t *testing.T, store *memory.Store, ingester worker.Ingester, batch int) *Dispatcher {
	t.Helper()
	exec := worker.New(nil, store, ingester, fakeClock{}, worker.Config{}, nil)
	d, err := New(Deps{
		Executor:  exec,
		Companies: store,
		Tasks:     store,
		IDs:       &seqIDs{},
		Clock:     fakeClock{},
		BatchSize: batch,
	})
	require.NoError(t, err)
	return d
}

func TestDispatchAllRunsBatchesAndRecordsOutcomes(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 7)
	ingester := &trackingIngester{fail: map[string]bool{"c01": true}}
	d := newDispatcher(t, store, ingester, 3)

	report, err := d.DispatchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Dispatched, 7)
	require.Equal(t, "Company 00", report.Dispatched[0])
	require.Len(t, report.Tasks, 7)
	require.LessOrEqual(t, ingester.peak.Load(), int32(3))

	for _, tr := range report.Tasks {
		task, err := store.GetTask(context.Background(), tr.TaskID)
		require.NoError(t, err)
		if tr.CompanyID == "c01" {
			require.Equal(t, ingest.TaskFailed, tr.Status)
			require.Contains(t, tr.Error, "unavailable")
			require.Equal(t, ingest.TaskFailed, task.Status)
			continue
		}
		require.Equal(t, ingest.TaskSucceeded, tr.Status, tr.CompanyID)
		require.Equal(t, 3, tr.JobCount)
		require.Equal(t, ingest.TaskSucceeded, task.Status)
		require.Equal(t, "snap-"+tr.CompanyID, *task.SnapshotID)
	}
}

func TestDispatchAllWithNoCompanies(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, memory.NewStore(), &trackingIngester{}, 0)
	report, err := d.DispatchAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Dispatched)
	require.Empty(t, report.Tasks)
}

func TestDispatchAllRefusesCanceledContext(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 4)
	d := newDispatcher(t, store, &trackingIngester{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := d.DispatchAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, report.Tasks)
}

type cancelOnFirstRun struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnFirstRun) IngestCompany(_ context.Context, companyID string) (ingest.Result, error) {
	c.once.Do(c.cancel)
	return ingest.Result{CompanyID: companyID, Status: ingest.RunPublished, Mode: ingest.ModeNormal, JobCount: 1, SnapshotID: "snap-" + companyID}, nil
}

func TestDispatchAllFailsUnstartedTasksOnCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := newDispatcher(t, store, &cancelOnFirstRun{cancel: cancel}, 2)

	report, err := d.DispatchAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Tasks, 4)

	for _, tr := range report.Tasks {
		task, err := store.GetTask(context.Background(), tr.TaskID)
		require.NoError(t, err)
		switch tr.CompanyID {
		case "c00", "c01":
			require.Equal(t, ingest.TaskSucceeded, task.Status, tr.CompanyID)
		default:
			require.Equal(t, ingest.TaskFailed, task.Status, tr.CompanyID)
			require.Contains(t, *task.ErrorMessage, "batch dispatch canceled")
		}
	}
}

func TestStartAllRunsDetachedFromCaller(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 5)
	ingester := &trackingIngester{}
	d := newDispatcher(t, store, ingester, 2)

	ctx, cancel := context.WithCancel(context.Background())
	report, err := d.StartAll(ctx)
	cancel()
	require.NoError(t, err)
	require.Len(t, report.Dispatched, 5)
	require.Len(t, report.Tasks, 5)
	for _, tr := range report.Tasks {
		require.Equal(t, ingest.TaskQueued, tr.Status)
		require.NotEmpty(t, tr.TaskID)
	}

	d.Shutdown(context.Background())
	require.LessOrEqual(t, ingester.peak.Load(), int32(2))
	for _, tr := range report.Tasks {
		task, err := store.GetTask(context.Background(), tr.TaskID)
		require.NoError(t, err)
		require.Equal(t, ingest.TaskSucceeded, task.Status, tr.CompanyID)
	}
}

func TestShutdownCancelsBackgroundBatches(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 4)
	d := newDispatcher(t, store, &trackingIngester{}, 1)

	report, err := d.StartAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Shutdown(ctx)

	var failed int
	for _, tr := range report.Tasks {
		task, err := store.GetTask(context.Background(), tr.TaskID)
		require.NoError(t, err)
		require.NotEqual(t, ingest.TaskQueued, task.Status, tr.CompanyID)
		if task.Status == ingest.TaskFailed {
			failed++
		}
	}
	require.Positive(t, failed)
}

func TestSubmitQueuesTaskForWorkers(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedCompanies(store, 1)
	queue := queuememory.NewQueue(4)
	ingester := &trackingIngester{}
	w := worker.New(queue, store, ingester, fakeClock{}, worker.Config{}, nil)
	d, err := New(Deps{Queue: queue, Workers: []*worker.Worker{w}, Tasks: store, IDs: &seqIDs{}, Clock: fakeClock{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	task, err := d.Submit(context.Background(), "c00")
	require.NoError(t, err)
	require.Equal(t, ingest.TaskQueued, task.Status)

	require.Eventually(t, func() bool {
		got, err := store.GetTask(context.Background(), task.ID)
		return err == nil && got.Status == ingest.TaskSucceeded
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestSubmitRecordsEnqueueFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	queue := &blockingQueue{started: make(chan struct{})}
	d, err := New(Deps{Queue: queue, Tasks: store, IDs: &seqIDs{}, Clock: fakeClock{}})
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), "c00")
	require.ErrorContains(t, err, "queue enqueue: queue full")
	task, err := store.GetTask(context.Background(), "task-01")
	require.NoError(t, err)
	require.Equal(t, ingest.TaskFailed, task.Status)
}

func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{})}
	w := worker.New(queue, memory.NewStore(), &trackingIngester{}, fakeClock{}, worker.Config{}, nil)
	d, err := New(Deps{Queue: queue, Workers: []*worker.Worker{w}, Tasks: memory.NewStore(), IDs: &seqIDs{}, Clock: fakeClock{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}
