package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

// CreateTask inserts a queued task.
func (s *Store) CreateTask(ctx context.Context, task ingest.Task) error {
	query := `
		INSERT INTO ingest_tasks (id, company_id, status, job_count, submitted_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, task.ID, task.CompanyID, string(task.Status), task.JobCount, task.SubmittedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// StartTask marks a task running.
func (s *Store) StartTask(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE ingest_tasks
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE id = $3`
	tag, err := s.pool.Exec(ctx, query, string(ingest.TaskRunning), at, id)
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ingest.ErrNotFound)
	}
	return nil
}

// FinishTask writes the terminal outcome of a task.
func (s *Store) FinishTask(ctx context.Context, id string, o ingest.TaskOutcome) error {
	query := `
		UPDATE ingest_tasks
		SET status = $1, mode = $2, job_count = $3, valid_rate = $4,
			snapshot_id = $5, error_message = $6, finished_at = $7
		WHERE id = $8`
	var mode *string
	if o.Mode != "" {
		m := string(o.Mode)
		mode = &m
	}
	tag, err := s.pool.Exec(ctx, query,
		string(o.Status), mode, o.JobCount, o.ValidRate, o.SnapshotID, o.ErrorMessage, o.FinishedAt, id,
	)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ingest.ErrNotFound)
	}
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (ingest.Task, error) {
	query := `
		SELECT id, company_id, status, mode, job_count, valid_rate, snapshot_id,
			error_message, submitted_at, started_at, finished_at
		FROM ingest_tasks
		WHERE id = $1`
	var (
		t      ingest.Task
		status string
		mode   *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.CompanyID, &status, &mode, &t.JobCount, &t.ValidRate, &t.SnapshotID,
		&t.ErrorMessage, &t.SubmittedAt, &t.StartedAt, &t.FinishedAt,
	)
	if err != nil {
		return ingest.Task{}, notFound(err, "task "+id)
	}
	t.Status = ingest.TaskStatus(status)
	if mode != nil {
		t.Mode = ingest.Mode(*mode)
	}
	return t, nil
}
