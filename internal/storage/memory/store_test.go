package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

func strPtr(s string) *string { return &s }

func seedCompanies(store *Store) {
	store.PutCompany(ingest.Company{ID: "c-acme", Name: "Acme", Slug: "acme", CareersURL: strPtr("https://acme.com/careers"), Enabled: true})
	store.PutCompany(ingest.Company{ID: "c-beta", Name: "Beta", Slug: "beta", CareersURL: strPtr("https://beta.io/jobs"), Enabled: true})
	store.PutCompany(ingest.Company{ID: "c-off", Name: "Dormant", Slug: "dormant", CareersURL: strPtr("https://d.io"), Enabled: false})
	store.PutCompany(ingest.Company{ID: "c-nourl", Name: "Aardvark", Slug: "aardvark", Enabled: true})
}

func publish(t *testing.T, store *Store, snapID, companyID string, at time.Time, jobs ...ingest.Job) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateSnapshot(ctx, ingest.Snapshot{ID: snapID, CompanyID: companyID, Status: ingest.SnapshotPending, CreatedAt: at}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	for i := range jobs {
		jobs[i].SnapshotID = snapID
		jobs[i].CompanyID = companyID
	}
	if err := store.InsertJobs(ctx, jobs); err != nil {
		t.Fatalf("InsertJobs() error = %v", err)
	}
	if err := store.CompleteSnapshot(ctx, snapID, ingest.SnapshotPublished, len(jobs), nil); err != nil {
		t.Fatalf("CompleteSnapshot() error = %v", err)
	}
}

func TestEligibleCompaniesOrderedByName(t *testing.T) {
	t.Parallel()

	store := NewStore()
	seedCompanies(store)
	companies, err := store.ListEligibleCompanies(context.Background())
	if err != nil {
		t.Fatalf("ListEligibleCompanies() error = %v", err)
	}
	if len(companies) != 2 || companies[0].Name != "Acme" || companies[1].Name != "Beta" {
		t.Fatalf("unexpected companies %+v", companies)
	}
	if _, err := store.GetCompany(context.Background(), "missing"); !errors.Is(err, ingest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsTerminalOnce(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	if err := store.CreateSnapshot(ctx, ingest.Snapshot{ID: "s1", CompanyID: "c", Status: ingest.SnapshotPending}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := store.CompleteSnapshot(ctx, "s1", ingest.SnapshotFailed, 0, strPtr("boom")); err != nil {
		t.Fatalf("CompleteSnapshot() error = %v", err)
	}
	if err := store.CompleteSnapshot(ctx, "s1", ingest.SnapshotPublished, 3, nil); err == nil {
		t.Fatal("expected second transition to fail")
	}
	snap, _ := store.GetSnapshot("s1")
	if snap.Status != ingest.SnapshotFailed || snap.ErrorMessage == nil || *snap.ErrorMessage != "boom" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := store.InsertJobs(ctx, []ingest.Job{{JobKey: "k", SnapshotID: "nope"}}); !errors.Is(err, ingest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown snapshot, got %v", err)
	}
}

func TestEarliestFirstSeenTakesMinimum(t *testing.T) {
	t.Parallel()

	store := NewStore()
	seedCompanies(store)
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	publish(t, store, "s1", "c-acme", early, ingest.Job{ID: "j1", JobKey: "k1", FirstSeenAt: early})
	publish(t, store, "s2", "c-acme", late, ingest.Job{ID: "j2", JobKey: "k1", FirstSeenAt: late}, ingest.Job{ID: "j3", JobKey: "k2", FirstSeenAt: late})

	seen, err := store.EarliestFirstSeen(context.Background(), []string{"k1", "k2", "k3"})
	if err != nil {
		t.Fatalf("EarliestFirstSeen() error = %v", err)
	}
	if !seen["k1"].Equal(early) || !seen["k2"].Equal(late) {
		t.Fatalf("unexpected first seen map %+v", seen)
	}
	if _, ok := seen["k3"]; ok {
		t.Fatal("unknown key should be absent")
	}
}

func TestLiveJobsUseLatestPublishedSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore()
	seedCompanies(store)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	publish(t, store, "s-old", "c-acme", base, ingest.Job{ID: "j0", JobKey: "old", Title: "Retired Role", FirstSeenAt: base})
	publish(t, store, "s-new", "c-acme", base.Add(time.Hour),
		ingest.Job{ID: "j1", JobKey: "a1", Title: "Backend Engineer", DepartmentTag: ingest.DeptEngineering, Location: strPtr("Remote"), FirstSeenAt: base},
		ingest.Job{ID: "j2", JobKey: "a2", Title: "Account Executive", DepartmentTag: ingest.DeptSales, FirstSeenAt: base.Add(time.Hour)},
	)
	publish(t, store, "s-beta", "c-beta", base, ingest.Job{ID: "j3", JobKey: "b1", Title: "Data Scientist", DepartmentTag: ingest.DeptData, FirstSeenAt: base})

	// A later failed snapshot must not hide the published one.
	if err := store.CreateSnapshot(ctx, ingest.Snapshot{ID: "s-fail", CompanyID: "c-acme", Status: ingest.SnapshotPending, CreatedAt: base.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}
	if err := store.CompleteSnapshot(ctx, "s-fail", ingest.SnapshotFailed, 0, strPtr("x")); err != nil {
		t.Fatalf("CompleteSnapshot() error = %v", err)
	}

	page, err := store.ListLiveJobs(ctx, ingest.LiveJobQuery{})
	if err != nil {
		t.Fatalf("ListLiveJobs() error = %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 live jobs, got %d", page.Total)
	}
	if page.Jobs[0].JobKey != "a2" || page.Jobs[1].CompanyName != "Acme" || page.Jobs[2].CompanyName != "Beta" {
		t.Fatalf("unexpected order %+v", page.Jobs)
	}

	page, _ = store.ListLiveJobs(ctx, ingest.LiveJobQuery{Departments: []string{"Engineering", "Data"}})
	if page.Total != 2 {
		t.Fatalf("expected department filter to match 2, got %d", page.Total)
	}
	page, _ = store.ListLiveJobs(ctx, ingest.LiveJobQuery{CompanySlug: "beta"})
	if page.Total != 1 || page.Jobs[0].CompanySlug != "beta" {
		t.Fatalf("unexpected company filter result %+v", page)
	}
	page, _ = store.ListLiveJobs(ctx, ingest.LiveJobQuery{Query: "remote"})
	if page.Total != 1 || page.Jobs[0].JobKey != "a1" {
		t.Fatalf("unexpected query result %+v", page)
	}
	page, _ = store.ListLiveJobs(ctx, ingest.LiveJobQuery{Page: 2, PageSize: 2})
	if page.Total != 3 || len(page.Jobs) != 1 {
		t.Fatalf("unexpected second page %+v", page)
	}

	if _, err := store.GetLiveJob(ctx, "old"); !errors.Is(err, ingest.ErrNotFound) {
		t.Fatalf("superseded job should not be live, got %v", err)
	}
	live, err := store.GetLiveJob(ctx, "b1")
	if err != nil || live.CompanySlug != "beta" {
		t.Fatalf("GetLiveJob() = %+v, %v", live, err)
	}
}

func TestSnapshotHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		publish(t, store, id, "c", base.Add(time.Duration(i)*time.Hour))
	}
	snaps, err := store.ListSnapshots(context.Background(), "c", 2, 0)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(snaps) != 2 || snaps[0].ID != "s3" || snaps[1].ID != "s2" {
		t.Fatalf("unexpected history %+v", snaps)
	}
	snaps, _ = store.ListSnapshots(context.Background(), "c", 2, 5)
	if len(snaps) != 0 {
		t.Fatalf("expected empty page, got %+v", snaps)
	}
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	task := ingest.Task{ID: "t1", CompanyID: "c-acme", Status: ingest.TaskQueued, SubmittedAt: now}

	if err := store.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if err := store.CreateTask(ctx, task); err == nil {
		t.Fatal("expected duplicate task error")
	}
	if err := store.StartTask(ctx, "t1", now.Add(time.Second)); err != nil {
		t.Fatalf("StartTask() error = %v", err)
	}
	snapID := "s9"
	err := store.FinishTask(ctx, "t1", ingest.TaskOutcome{
		Status:     ingest.TaskSucceeded,
		Mode:       ingest.ModeNormal,
		JobCount:   4,
		SnapshotID: &snapID,
		FinishedAt: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("FinishTask() error = %v", err)
	}
	got, err := store.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Status != ingest.TaskSucceeded || got.StartedAt == nil || got.FinishedAt == nil || got.JobCount != 4 {
		t.Fatalf("unexpected task %+v", got)
	}
	if _, err := store.GetTask(ctx, "nope"); !errors.Is(err, ingest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.AppendClick(ctx, ingest.Click{ID: "k1", JobKey: "a1"}); err != nil {
		t.Fatalf("AppendClick() error = %v", err)
	}
	if len(store.Clicks()) != 1 {
		t.Fatal("expected one click")
	}
}
