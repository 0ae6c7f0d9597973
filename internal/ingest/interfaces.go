package ingest

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// CompanyStore reads companies owned by the surrounding application.
type CompanyStore interface {
	GetCompany(ctx context.Context, id string) (Company, error)
	ListEligibleCompanies(ctx context.Context) ([]Company, error)
}

// SnapshotStore persists snapshots and their job rows.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snapshot Snapshot) error
	CompleteSnapshot(ctx context.Context, id string, status SnapshotStatus, jobCount int, errMsg *string) error
	EarliestFirstSeen(ctx context.Context, jobKeys []string) (map[string]time.Time, error)
	InsertJobs(ctx context.Context, jobs []Job) error
	ListSnapshots(ctx context.Context, companyID string, limit, offset int) ([]Snapshot, error)
}

// JobReader serves the live job set to read-only consumers.
type JobReader interface {
	ListLiveJobs(ctx context.Context, query LiveJobQuery) (LiveJobPage, error)
	GetLiveJob(ctx context.Context, jobKey string) (LiveJob, error)
}

// ClickRecorder appends redirect events.
type ClickRecorder interface {
	AppendClick(ctx context.Context, click Click) error
}

// TaskStore records the lifecycle of asynchronous ingest tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	StartTask(ctx context.Context, id string, at time.Time) error
	FinishTask(ctx context.Context, id string, outcome TaskOutcome) error
	GetTask(ctx context.Context, id string) (Task, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	CompanyStore
	SnapshotStore
	JobReader
	ClickRecorder
	TaskStore
	Ping(ctx context.Context) error
}

// Extractor runs a natural-language extraction against one or more pages and
// returns JSON shaped by the request schema.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (json.RawMessage, error)
}

// Completer returns a free-text completion for a single-turn prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for ingest tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes hex digests used for job identity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row and task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
