// Package dispatcher fans ingest work out to workers: queued single-company
// tasks and batched runs over every eligible company.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/worker"
)

// DefaultBatchSize bounds concurrent runs to the extraction service's session limit.
const DefaultBatchSize = 5

// Executor runs one task to completion and returns its recorded outcome.
type Executor interface {
	Process(ctx context.Context, item ingest.QueueItem) ingest.TaskOutcome
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Queue     ingest.Queue
	Workers   []*worker.Worker
	Executor  Executor
	Companies ingest.CompanyStore
	Tasks     ingest.TaskStore
	IDs       ingest.IDGenerator
	Clock     ingest.Clock
	BatchSize int
	Logger    *zap.Logger
}

// Dispatcher fans out queue work to a pool of workers and runs batches.
type Dispatcher struct {
	deps   Deps
	logger *zap.Logger

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New creates a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Tasks == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("dispatcher requires task store, id generator, and clock")
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Dispatcher{
		deps:     deps,
		logger:   logger.Named("dispatcher"),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.deps.Workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item ingest.QueueItem) error {
	if d.deps.Queue == nil {
		return errors.New("queue is not configured")
	}
	if err := d.deps.Queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Submit records a queued task for companyID and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, companyID string) (ingest.Task, error) {
	task, err := d.newTask(ctx, companyID)
	if err != nil {
		return ingest.Task{}, err
	}
	item := ingest.QueueItem{TaskID: task.ID, CompanyID: companyID, Submitted: task.SubmittedAt.Unix()}
	if err := d.Enqueue(ctx, item); err != nil {
		msg := err.Error()
		outcome := ingest.TaskOutcome{Status: ingest.TaskFailed, ErrorMessage: &msg, FinishedAt: d.deps.Clock.Now().UTC()}
		if ferr := d.deps.Tasks.FinishTask(context.WithoutCancel(ctx), task.ID, outcome); ferr != nil {
			d.logger.Error("record enqueue failure", zap.String("task_id", task.ID), zap.Error(ferr))
		}
		return ingest.Task{}, err
	}
	return task, nil
}

// TaskReport is one company's entry in a BatchReport.
type TaskReport struct {
	TaskID     string            `json:"task_id"`
	CompanyID  string            `json:"company_id"`
	Company    string            `json:"company"`
	Status     ingest.TaskStatus `json:"status"`
	Mode       ingest.Mode       `json:"mode,omitempty"`
	JobCount   int               `json:"job_count"`
	SnapshotID *string           `json:"snapshot_id,omitempty"`
	Error      string            `json:"error,omitempty"`

	submitted int64
}

// BatchReport summarizes a DispatchAll call.
type BatchReport struct {
	Dispatched []string     `json:"dispatched"`
	Tasks      []TaskReport `json:"tasks"`
}

// DispatchAll runs every eligible company in fixed-size batches, waiting for
// each batch before starting the next. One company's failure never stops its
// siblings or later batches.
func (d *Dispatcher) DispatchAll(ctx context.Context) (BatchReport, error) {
	report, err := d.prepareBatch(ctx)
	if err != nil {
		return report, err
	}
	return report, d.runBatches(ctx, report.Tasks)
}

// StartAll records a queued task for every eligible company and runs the
// batches in the background, detached from ctx. The returned report lists the
// queued tasks; their outcomes land in the task store. Shutdown drains them.
func (d *Dispatcher) StartAll(ctx context.Context) (BatchReport, error) {
	report, err := d.prepareBatch(ctx)
	if err != nil {
		return report, err
	}
	tasks := slices.Clone(report.Tasks)
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		if err := d.runBatches(d.bgCtx, tasks); err != nil {
			d.logger.Warn("background batch stopped", zap.Error(err))
			return
		}
		d.logger.Info("background batch finished", zap.Int("companies", len(tasks)))
	}()
	return report, nil
}

// Shutdown waits for background batches, canceling them once ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	d.bgCancel()
	<-done
}

// prepareBatch lists eligible companies and records a queued task for each,
// so every dispatched company has a task row before any run starts.
func (d *Dispatcher) prepareBatch(ctx context.Context) (BatchReport, error) {
	if d.deps.Companies == nil || d.deps.Executor == nil {
		return BatchReport{}, errors.New("batch dispatch requires a company store and executor")
	}
	if err := ctx.Err(); err != nil {
		return BatchReport{}, fmt.Errorf("batch dispatch canceled: %w", err)
	}
	companies, err := d.deps.Companies.ListEligibleCompanies(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list eligible companies: %w", err)
	}
	report := BatchReport{Dispatched: []string{}, Tasks: make([]TaskReport, 0, len(companies))}
	for _, c := range companies {
		report.Dispatched = append(report.Dispatched, c.Name)
		tr := TaskReport{CompanyID: c.ID, Company: c.Name, Status: ingest.TaskQueued}
		task, err := d.newTask(ctx, c.ID)
		if err != nil {
			tr.Status = ingest.TaskFailed
			tr.Error = err.Error()
		} else {
			tr.TaskID = task.ID
			tr.submitted = task.SubmittedAt.Unix()
		}
		report.Tasks = append(report.Tasks, tr)
	}
	d.logger.Info("batch dispatch started", zap.Int("companies", len(companies)), zap.Int("batch_size", d.deps.BatchSize))
	return report, nil
}

func (d *Dispatcher) runBatches(ctx context.Context, tasks []TaskReport) error {
	for start := 0; start < len(tasks); start += d.deps.BatchSize {
		if err := ctx.Err(); err != nil {
			d.abandon(ctx, tasks[start:], err)
			return fmt.Errorf("batch dispatch canceled: %w", err)
		}
		end := min(start+d.deps.BatchSize, len(tasks))
		d.runBatch(ctx, tasks[start:end])
	}
	return nil
}

func (d *Dispatcher) runBatch(ctx context.Context, batch []TaskReport) {
	var g errgroup.Group
	for i := range batch {
		tr := &batch[i]
		if tr.TaskID == "" {
			continue
		}
		item := ingest.QueueItem{TaskID: tr.TaskID, CompanyID: tr.CompanyID, Submitted: tr.submitted}
		g.Go(func() error {
			out := d.deps.Executor.Process(ctx, item)
			tr.Status = out.Status
			tr.Mode = out.Mode
			tr.JobCount = out.JobCount
			tr.SnapshotID = out.SnapshotID
			if out.ErrorMessage != nil {
				tr.Error = *out.ErrorMessage
			}
			return nil
		})
	}
	_ = g.Wait()
}

// abandon marks tasks that never started as failed.
func (d *Dispatcher) abandon(ctx context.Context, tasks []TaskReport, cause error) {
	msg := "batch dispatch canceled: " + cause.Error()
	finishCtx := context.WithoutCancel(ctx)
	for i := range tasks {
		tr := &tasks[i]
		if tr.TaskID == "" {
			continue
		}
		tr.Status = ingest.TaskFailed
		tr.Error = msg
		outcome := ingest.TaskOutcome{Status: ingest.TaskFailed, ErrorMessage: &msg, FinishedAt: d.deps.Clock.Now().UTC()}
		if err := d.deps.Tasks.FinishTask(finishCtx, tr.TaskID, outcome); err != nil {
			d.logger.Error("record abandoned task", zap.String("task_id", tr.TaskID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) newTask(ctx context.Context, companyID string) (ingest.Task, error) {
	id, err := d.deps.IDs.NewID()
	if err != nil {
		return ingest.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	task := ingest.Task{
		ID:          id,
		CompanyID:   companyID,
		Status:      ingest.TaskQueued,
		SubmittedAt: d.deps.Clock.Now().UTC(),
	}
	if err := d.deps.Tasks.CreateTask(ctx, task); err != nil {
		return ingest.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}
