// Package snapshot writes a company's processed jobs as one atomic snapshot,
// carrying each job's first-seen time forward from earlier snapshots.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
)

// failureMarkTimeout bounds the detached write that records a failed publish.
const failureMarkTimeout = 10 * time.Second

// Publisher creates snapshots and their job rows.
type Publisher struct {
	store  ingest.SnapshotStore
	clock  ingest.Clock
	ids    ingest.IDGenerator
	logger *zap.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(store ingest.SnapshotStore, clock ingest.Clock, ids ingest.IDGenerator, logger *zap.Logger) (*Publisher, error) {
	if store == nil || clock == nil || ids == nil {
		return nil, errors.New("snapshot publisher requires store, clock, and id generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{store: store, clock: clock, ids: ids, logger: logger.Named("snapshot")}, nil
}

// FailedPublishError reports a publish that failed after its snapshot row
// was created. The snapshot has already been marked failed.
type FailedPublishError struct {
	SnapshotID string
	Err        error
}

func (e *FailedPublishError) Error() string {
	return fmt.Sprintf("publish snapshot %s: %v", e.SnapshotID, e.Err)
}

func (e *FailedPublishError) Unwrap() error {
	return e.Err
}

// Publish replaces the company's live job set with jobs.
func (p *Publisher) Publish(ctx context.Context, companyID string, jobs []ingest.ProcessedJob) (ingest.Snapshot, error) {
	snapID, err := p.ids.NewID()
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("generate snapshot id: %w", err)
	}
	now := p.clock.Now().UTC()
	snap := ingest.Snapshot{
		ID:        snapID,
		CompanyID: companyID,
		Status:    ingest.SnapshotPending,
		CreatedAt: now,
	}
	if err := p.store.CreateSnapshot(ctx, snap); err != nil {
		return ingest.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}

	count, err := p.writeJobs(ctx, snap, jobs, now)
	if err != nil {
		p.markFailed(ctx, snapID, err.Error())
		return ingest.Snapshot{}, &FailedPublishError{SnapshotID: snapID, Err: err}
	}

	snap.Status = ingest.SnapshotPublished
	snap.JobCount = count
	metrics.ObserveSnapshot(string(ingest.SnapshotPublished))
	metrics.ObservePublishedJobs(count)
	p.logger.Info("snapshot published",
		zap.String("company_id", companyID),
		zap.String("snapshot_id", snapID),
		zap.Int("job_count", count),
	)
	return snap, nil
}

func (p *Publisher) writeJobs(ctx context.Context, snap ingest.Snapshot, jobs []ingest.ProcessedJob, now time.Time) (int, error) {
	keys := make([]string, len(jobs))
	for i, j := range jobs {
		keys[i] = j.JobKey
	}
	firstSeen, err := p.store.EarliestFirstSeen(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("load first seen: %w", err)
	}

	rows := make([]ingest.Job, 0, len(jobs))
	for _, j := range jobs {
		id, err := p.ids.NewID()
		if err != nil {
			return 0, fmt.Errorf("generate job id: %w", err)
		}
		seen, ok := firstSeen[j.JobKey]
		if !ok {
			seen = now
		}
		rows = append(rows, ingest.Job{
			ID:            id,
			JobKey:        j.JobKey,
			SnapshotID:    snap.ID,
			CompanyID:     snap.CompanyID,
			Title:         j.Title,
			DepartmentTag: j.DepartmentTag,
			DepartmentRaw: j.DepartmentRaw,
			Location:      j.Location,
			SalaryRaw:     j.SalaryRaw,
			Description:   j.Description,
			JobURL:        j.JobURL,
			FirstSeenAt:   seen.UTC(),
			CreatedAt:     now,
		})
	}
	if err := p.store.InsertJobs(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert jobs: %w", err)
	}
	if err := p.store.CompleteSnapshot(ctx, snap.ID, ingest.SnapshotPublished, len(rows), nil); err != nil {
		return 0, fmt.Errorf("mark snapshot published: %w", err)
	}
	return len(rows), nil
}

// markFailed survives cancellation of ctx so an aborted run is still recorded.
func (p *Publisher) markFailed(ctx context.Context, snapID, message string) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureMarkTimeout)
	defer cancel()
	metrics.ObserveSnapshot(string(ingest.SnapshotFailed))
	if err := p.store.CompleteSnapshot(markCtx, snapID, ingest.SnapshotFailed, 0, &message); err != nil {
		p.logger.Error("failed to mark snapshot failed",
			zap.String("snapshot_id", snapID),
			zap.String("reason", message),
			zap.Error(err),
		)
	}
}

// RecordFailure stores a failed snapshot with no jobs.
func (p *Publisher) RecordFailure(ctx context.Context, companyID, message string) (ingest.Snapshot, error) {
	snapID, err := p.ids.NewID()
	if err != nil {
		return ingest.Snapshot{}, fmt.Errorf("generate snapshot id: %w", err)
	}
	msg := message
	snap := ingest.Snapshot{
		ID:           snapID,
		CompanyID:    companyID,
		Status:       ingest.SnapshotFailed,
		ErrorMessage: &msg,
		CreatedAt:    p.clock.Now().UTC(),
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureMarkTimeout)
	defer cancel()
	if err := p.store.CreateSnapshot(writeCtx, snap); err != nil {
		return ingest.Snapshot{}, fmt.Errorf("record failed snapshot: %w", err)
	}
	metrics.ObserveSnapshot(string(ingest.SnapshotFailed))
	p.logger.Warn("snapshot failed",
		zap.String("company_id", companyID),
		zap.String("snapshot_id", snapID),
		zap.String("reason", message),
	)
	return snap, nil
}
