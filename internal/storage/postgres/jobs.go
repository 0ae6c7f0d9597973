package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const defaultPageSize = 25

const liveJobColumns = `id, job_key, snapshot_id, company_id, title, department_tag, department_raw,
	location, salary_raw, description, job_url, first_seen_at, created_at, company_name, company_slug`

// ListLiveJobs filters and pages the live_jobs view.
func (s *Store) ListLiveJobs(ctx context.Context, q ingest.LiveJobQuery) (ingest.LiveJobPage, error) {
	where, args := liveJobFilter(q)

	var total int
	countSQL := `SELECT count(*) FROM live_jobs` + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return ingest.LiveJobPage{}, fmt.Errorf("count live jobs: %w", err)
	}

	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	listSQL := fmt.Sprintf(`SELECT %s FROM live_jobs%s
		ORDER BY first_seen_at DESC, company_name, title
		LIMIT $%d OFFSET $%d`, liveJobColumns, where, len(args)+1, len(args)+2)
	listArgs := append(append([]any{}, args...), size, (page-1)*size)

	rows, err := s.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return ingest.LiveJobPage{}, fmt.Errorf("list live jobs: %w", err)
	}
	defer rows.Close()

	jobs := []ingest.LiveJob{}
	for rows.Next() {
		job, err := scanLiveJob(rows)
		if err != nil {
			return ingest.LiveJobPage{}, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return ingest.LiveJobPage{}, fmt.Errorf("iterate live jobs: %w", err)
	}
	return ingest.LiveJobPage{Jobs: jobs, Total: total}, nil
}

// GetLiveJob returns a live job by key.
func (s *Store) GetLiveJob(ctx context.Context, jobKey string) (ingest.LiveJob, error) {
	query := `SELECT ` + liveJobColumns + ` FROM live_jobs WHERE job_key = $1 LIMIT 1`
	job, err := scanLiveJob(s.pool.QueryRow(ctx, query, jobKey))
	if err != nil {
		return ingest.LiveJob{}, notFound(err, "live job "+jobKey)
	}
	return job, nil
}

// AppendClick records a redirect event.
func (s *Store) AppendClick(ctx context.Context, click ingest.Click) error {
	query := `INSERT INTO clicks (id, job_key, company_id, clicked_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, click.ID, click.JobKey, click.CompanyID, click.ClickedAt); err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

func liveJobFilter(q ingest.LiveJobQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(q.Departments) > 0 {
		args = append(args, q.Departments)
		clauses = append(clauses, fmt.Sprintf("department_tag = ANY($%d)", len(args)))
	}
	if q.CompanySlug != "" {
		args = append(args, q.CompanySlug)
		clauses = append(clauses, fmt.Sprintf("company_slug = $%d", len(args)))
	}
	if term := strings.TrimSpace(q.Query); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(title ILIKE $%[1]d OR company_name ILIKE $%[1]d OR location ILIKE $%[1]d OR department_tag ILIKE $%[1]d)", n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters using the default backslash escape.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanLiveJob(row pgx.Row) (ingest.LiveJob, error) {
	var (
		job  ingest.LiveJob
		dept string
	)
	err := row.Scan(
		&job.ID, &job.JobKey, &job.SnapshotID, &job.CompanyID, &job.Title, &dept, &job.DepartmentRaw,
		&job.Location, &job.SalaryRaw, &job.Description, &job.JobURL, &job.FirstSeenAt, &job.CreatedAt,
		&job.CompanyName, &job.CompanySlug,
	)
	if err != nil {
		return ingest.LiveJob{}, fmt.Errorf("scan live job: %w", err)
	}
	job.DepartmentTag = ingest.DepartmentTag(dept)
	return job, nil
}
