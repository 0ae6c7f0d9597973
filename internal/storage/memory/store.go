package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const defaultPageSize = 25

// Store provides an in-memory ingest.Store for development/testing.
type Store struct {
	mu        sync.RWMutex
	companies map[string]ingest.Company
	snapshots map[string]ingest.Snapshot
	jobs      map[string][]ingest.Job
	clicks    []ingest.Click
	tasks     map[string]ingest.Task
}

var _ ingest.Store = (*Store)(nil)

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{
		companies: make(map[string]ingest.Company),
		snapshots: make(map[string]ingest.Snapshot),
		jobs:      make(map[string][]ingest.Job),
		tasks:     make(map[string]ingest.Task),
	}
}

// PutCompany inserts or replaces a company. Companies are owned by the
// surrounding application, so this exists for seeding.
func (s *Store) PutCompany(company ingest.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[company.ID] = company
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// GetCompany fetches a company by ID.
func (s *Store) GetCompany(_ context.Context, id string) (ingest.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	company, ok := s.companies[id]
	if !ok {
		return ingest.Company{}, fmt.Errorf("company %s: %w", id, ingest.ErrNotFound)
	}
	return company, nil
}

// ListEligibleCompanies returns enabled companies with a careers URL, by name.
func (s *Store) ListEligibleCompanies(context.Context) ([]ingest.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Company, 0, len(s.companies))
	for _, c := range s.companies {
		if c.Enabled && c.CareersURL != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateSnapshot stores a new snapshot row.
func (s *Store) CreateSnapshot(_ context.Context, snapshot ingest.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[snapshot.ID]; exists {
		return fmt.Errorf("snapshot %s already exists", snapshot.ID)
	}
	s.snapshots[snapshot.ID] = snapshot
	return nil
}

// CompleteSnapshot moves a pending snapshot to its terminal status.
func (s *Store) CompleteSnapshot(
	_ context.Context,
	id string,
	status ingest.SnapshotStatus,
	jobCount int,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return fmt.Errorf("snapshot %s: %w", id, ingest.ErrNotFound)
	}
	if snap.Status != ingest.SnapshotPending {
		return fmt.Errorf("snapshot %s already %s", id, snap.Status)
	}
	snap.Status = status
	snap.JobCount = jobCount
	snap.ErrorMessage = errMsg
	s.snapshots[id] = snap
	return nil
}

// EarliestFirstSeen returns the minimum first_seen_at for each known key.
func (s *Store) EarliestFirstSeen(_ context.Context, jobKeys []string) (map[string]time.Time, error) {
	want := make(map[string]struct{}, len(jobKeys))
	for _, k := range jobKeys {
		want[k] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time)
	for _, rows := range s.jobs {
		for _, job := range rows {
			if _, ok := want[job.JobKey]; !ok {
				continue
			}
			if prev, seen := out[job.JobKey]; !seen || job.FirstSeenAt.Before(prev) {
				out[job.JobKey] = job.FirstSeenAt
			}
		}
	}
	return out, nil
}

// InsertJobs stores all rows or none.
func (s *Store) InsertJobs(_ context.Context, jobs []ingest.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		if _, ok := s.snapshots[job.SnapshotID]; !ok {
			return fmt.Errorf("insert job %s: snapshot %s: %w", job.JobKey, job.SnapshotID, ingest.ErrNotFound)
		}
	}
	for _, job := range jobs {
		s.jobs[job.SnapshotID] = append(s.jobs[job.SnapshotID], job)
	}
	return nil
}

// ListSnapshots returns a company's snapshots, newest first.
func (s *Store) ListSnapshots(_ context.Context, companyID string, limit, offset int) ([]ingest.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Snapshot, 0)
	for _, snap := range s.snapshots {
		if snap.CompanyID == companyID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return paginate(out, limit, offset), nil
}

// JobsForSnapshot returns a copy of the rows inserted under a snapshot.
func (s *Store) JobsForSnapshot(snapshotID string) []ingest.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.jobs[snapshotID]
	out := make([]ingest.Job, len(rows))
	copy(out, rows)
	return out
}

// GetSnapshot fetches a snapshot by ID.
func (s *Store) GetSnapshot(id string) (ingest.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

// ListLiveJobs filters and pages the jobs of each company's latest published snapshot.
func (s *Store) ListLiveJobs(_ context.Context, query ingest.LiveJobQuery) (ingest.LiveJobPage, error) {
	s.mu.RLock()
	live := s.liveJobsLocked()
	s.mu.RUnlock()

	depts := make(map[string]struct{}, len(query.Departments))
	for _, d := range query.Departments {
		depts[d] = struct{}{}
	}
	needle := strings.ToLower(strings.TrimSpace(query.Query))

	matched := make([]ingest.LiveJob, 0, len(live))
	for _, job := range live {
		if len(depts) > 0 {
			if _, ok := depts[string(job.DepartmentTag)]; !ok {
				continue
			}
		}
		if query.CompanySlug != "" && job.CompanySlug != query.CompanySlug {
			continue
		}
		if needle != "" && !matchesQuery(job, needle) {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.After(b.FirstSeenAt)
		}
		if a.CompanyName != b.CompanyName {
			return a.CompanyName < b.CompanyName
		}
		return a.Title < b.Title
	})

	size := query.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	return ingest.LiveJobPage{
		Jobs:  paginate(matched, size, (page-1)*size),
		Total: len(matched),
	}, nil
}

// GetLiveJob returns a live job by key.
func (s *Store) GetLiveJob(_ context.Context, jobKey string) (ingest.LiveJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.liveJobsLocked() {
		if job.JobKey == jobKey {
			return job, nil
		}
	}
	return ingest.LiveJob{}, fmt.Errorf("live job %s: %w", jobKey, ingest.ErrNotFound)
}

// AppendClick records a redirect event.
func (s *Store) AppendClick(_ context.Context, click ingest.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, click)
	return nil
}

// Clicks returns a copy of the recorded clicks.
func (s *Store) Clicks() []ingest.Click {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Click, len(s.clicks))
	copy(out, s.clicks)
	return out
}

// CreateTask stores a new task in queued status.
func (s *Store) CreateTask(_ context.Context, task ingest.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = task
	return nil
}

// StartTask marks a task running.
func (s *Store) StartTask(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ingest.ErrNotFound)
	}
	task.Status = ingest.TaskRunning
	if task.StartedAt == nil {
		task.StartedAt = pointerTime(at)
	}
	s.tasks[id] = task
	return nil
}

// FinishTask writes the terminal outcome of a task.
func (s *Store) FinishTask(_ context.Context, id string, outcome ingest.TaskOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ingest.ErrNotFound)
	}
	task.Status = outcome.Status
	task.Mode = outcome.Mode
	task.JobCount = outcome.JobCount
	task.ValidRate = outcome.ValidRate
	task.SnapshotID = outcome.SnapshotID
	task.ErrorMessage = outcome.ErrorMessage
	task.FinishedAt = pointerTime(outcome.FinishedAt)
	s.tasks[id] = task
	return nil
}

// GetTask fetches a task by ID.
func (s *Store) GetTask(_ context.Context, id string) (ingest.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return ingest.Task{}, fmt.Errorf("task %s: %w", id, ingest.ErrNotFound)
	}
	return task, nil
}

func (s *Store) liveJobsLocked() []ingest.LiveJob {
	latest := make(map[string]ingest.Snapshot)
	for _, snap := range s.snapshots {
		if snap.Status != ingest.SnapshotPublished {
			continue
		}
		if cur, ok := latest[snap.CompanyID]; !ok || newer(snap, cur) {
			latest[snap.CompanyID] = snap
		}
	}
	out := make([]ingest.LiveJob, 0)
	for companyID, snap := range latest {
		company := s.companies[companyID]
		for _, job := range s.jobs[snap.ID] {
			out = append(out, ingest.LiveJob{
				Job:         job,
				CompanyName: company.Name,
				CompanySlug: company.Slug,
			})
		}
	}
	return out
}

func matchesQuery(job ingest.LiveJob, needle string) bool {
	fields := []string{job.Title, job.CompanyName, string(job.DepartmentTag)}
	if job.Location != nil {
		fields = append(fields, *job.Location)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// newer orders snapshots by creation time; UUIDv7 IDs break ties.
func newer(a, b ingest.Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
