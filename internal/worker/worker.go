// Package worker runs queued ingest tasks and records their outcomes.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
	queuememory "github.com/JakeFAU/careers-ingest/internal/queue/memory"
)

const finishTimeout = 10 * time.Second

// Ingester runs one company through the pipeline.
type Ingester interface {
	IngestCompany(ctx context.Context, companyID string) (ingest.Result, error)
}

// Config controls Worker behavior.
type Config struct {
	RunTimeout time.Duration
}

// Worker consumes queue items and executes the ingest pipeline.
type Worker struct {
	queue    ingest.Queue
	tasks    ingest.TaskStore
	ingester Ingester
	clock    ingest.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. queue may be nil for a worker that only
// executes tasks handed to Process.
func New(
	queue ingest.Queue,
	tasks ingest.TaskStore,
	ingester Ingester,
	clock ingest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 300 * time.Second
	}
	return &Worker{
		queue:    queue,
		tasks:    tasks,
		ingester: ingester,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queuememory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.Process(ctx, item)
	}
}

// Process runs one task under the run timeout and records its outcome.
func (w *Worker) Process(ctx context.Context, item ingest.QueueItem) ingest.TaskOutcome {
	logger := w.logger.With(zap.String("task_id", item.TaskID), zap.String("company_id", item.CompanyID))
	if err := w.tasks.StartTask(ctx, item.TaskID, w.clock.Now().UTC()); err != nil {
		logger.Warn("mark task running failed", zap.Error(err))
	}

	metrics.IncActiveWorkers()
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	res, err := w.ingester.IngestCompany(runCtx, item.CompanyID)
	cancel()
	metrics.DecActiveWorkers()

	outcome := Outcome(res, err, w.clock.Now().UTC())
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer finishCancel()
	if ferr := w.tasks.FinishTask(finishCtx, item.TaskID, outcome); ferr != nil {
		logger.Error("record task outcome failed", zap.Error(ferr))
	}

	if outcome.Status == ingest.TaskSucceeded {
		logger.Info("task succeeded",
			zap.String("mode", string(outcome.Mode)),
			zap.Int("job_count", outcome.JobCount),
		)
	} else {
		logger.Warn("task failed", zap.Stringp("error", outcome.ErrorMessage))
	}
	return outcome
}

// Outcome converts a pipeline result into the terminal task record. A
// rejected run is a failed task carrying the rejection message.
func Outcome(res ingest.Result, err error, at time.Time) ingest.TaskOutcome {
	out := ingest.TaskOutcome{
		Status:     ingest.TaskFailed,
		Mode:       res.Mode,
		JobCount:   res.JobCount,
		ValidRate:  res.ValidRate,
		FinishedAt: at,
	}
	if res.SnapshotID != "" {
		id := res.SnapshotID
		out.SnapshotID = &id
	}
	switch {
	case err != nil:
		msg := err.Error()
		out.ErrorMessage = &msg
	case res.Status == ingest.RunPublished:
		out.Status = ingest.TaskSucceeded
	default:
		msg := res.Message
		if msg == "" {
			msg = "run rejected"
		}
		out.ErrorMessage = &msg
	}
	return out
}
