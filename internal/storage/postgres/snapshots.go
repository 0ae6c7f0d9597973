package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

// insertChunkSize keeps each statement well under the 65535 parameter limit.
const insertChunkSize = 500

var jobInsertColumns = []string{
	"id", "job_key", "snapshot_id", "company_id", "title", "department_tag", "department_raw",
	"location", "salary_raw", "description", "job_url", "first_seen_at", "created_at",
}

// CreateSnapshot inserts a snapshot row.
func (s *Store) CreateSnapshot(ctx context.Context, snap ingest.Snapshot) error {
	query := `
		INSERT INTO snapshots (id, company_id, status, job_count, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		snap.ID, snap.CompanyID, string(snap.Status), snap.JobCount, snap.ErrorMessage, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// CompleteSnapshot moves a pending snapshot to its terminal status.
func (s *Store) CompleteSnapshot(
	ctx context.Context,
	id string,
	status ingest.SnapshotStatus,
	jobCount int,
	errMsg *string,
) error {
	query := `
		UPDATE snapshots
		SET status = $1, job_count = $2, error_message = $3
		WHERE id = $4 AND status = 'pending'`
	tag, err := s.pool.Exec(ctx, query, string(status), jobCount, errMsg, id)
	if err != nil {
		return fmt.Errorf("complete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s is not pending: %w", id, ingest.ErrNotFound)
	}
	return nil
}

// EarliestFirstSeen returns min(first_seen_at) per key across all snapshots.
func (s *Store) EarliestFirstSeen(ctx context.Context, jobKeys []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(jobKeys))
	if len(jobKeys) == 0 {
		return out, nil
	}
	query := `
		SELECT job_key, min(first_seen_at)
		FROM jobs
		WHERE job_key = ANY($1)
		GROUP BY job_key`
	rows, err := s.pool.Query(ctx, query, jobKeys)
	if err != nil {
		return nil, fmt.Errorf("query first seen: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key  string
			seen time.Time
		)
		if err := rows.Scan(&key, &seen); err != nil {
			return nil, fmt.Errorf("scan first seen: %w", err)
		}
		out[key] = seen
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate first seen: %w", err)
	}
	return out, nil
}

// InsertJobs writes all rows in one transaction.
func (s *Store) InsertJobs(ctx context.Context, jobs []ingest.Job) (err error) {
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert jobs: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for start := 0; start < len(jobs); start += insertChunkSize {
		end := min(start+insertChunkSize, len(jobs))
		query, args := buildJobInsert(jobs[start:end])
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert jobs %d-%d: %w", start, end, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert jobs: %w", err)
	}
	return nil
}

func buildJobInsert(jobs []ingest.Job) (string, []any) {
	cols := len(jobInsertColumns)
	var b strings.Builder
	b.WriteString("INSERT INTO jobs (")
	b.WriteString(strings.Join(jobInsertColumns, ", "))
	b.WriteString(") VALUES ")
	args := make([]any, 0, len(jobs)*cols)
	for i, j := range jobs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c+1)
		}
		b.WriteByte(')')
		args = append(args,
			j.ID, j.JobKey, j.SnapshotID, j.CompanyID, j.Title, string(j.DepartmentTag), j.DepartmentRaw,
			j.Location, j.SalaryRaw, j.Description, j.JobURL, j.FirstSeenAt, j.CreatedAt,
		)
	}
	return b.String(), args
}

// ListSnapshots returns a company's snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, companyID string, limit, offset int) ([]ingest.Snapshot, error) {
	query := `
		SELECT id, company_id, status, job_count, error_message, created_at
		FROM snapshots
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, companyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []ingest.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (ingest.Snapshot, error) {
	var (
		snap   ingest.Snapshot
		status string
	)
	if err := row.Scan(&snap.ID, &snap.CompanyID, &status, &snap.JobCount, &snap.ErrorMessage, &snap.CreatedAt); err != nil {
		return ingest.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.Status = ingest.SnapshotStatus(status)
	return snap, nil
}
