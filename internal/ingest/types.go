package ingest

import (
	"strings"
	"time"
)

// SnapshotStatus represents the lifecycle state of a snapshot.
type SnapshotStatus string

// Snapshot status values persisted in the store.
const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotPublished SnapshotStatus = "published"
	SnapshotFailed    SnapshotStatus = "failed"
)

// Mode names the extraction path a run took.
type Mode string

// Extraction modes reported by a run.
const (
	ModeNormal         Mode = "normal"
	ModeInlineFallback Mode = "inline_fallback"
)

// RunStatus is the outcome of one company run.
type RunStatus string

// Run outcomes.
const (
	RunPublished RunStatus = "published"
	RunRejected  RunStatus = "rejected"
)

// TaskStatus represents the lifecycle state of an ingest task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// DepartmentTag is one value of the closed department taxonomy.
type DepartmentTag string

// Department taxonomy.
const (
	DeptEngineering     DepartmentTag = "Engineering"
	DeptProduct         DepartmentTag = "Product"
	DeptDesign          DepartmentTag = "Design"
	DeptSales           DepartmentTag = "Sales"
	DeptMarketing       DepartmentTag = "Marketing"
	DeptOperations      DepartmentTag = "Operations"
	DeptFinance         DepartmentTag = "Finance"
	DeptLegal           DepartmentTag = "Legal"
	DeptData            DepartmentTag = "Data"
	DeptCustomerSuccess DepartmentTag = "Customer Success"
	DeptPeopleHR        DepartmentTag = "People / HR"
	DeptOther           DepartmentTag = "Other"
)

// DepartmentTags lists the taxonomy in display order.
var DepartmentTags = []DepartmentTag{
	DeptEngineering,
	DeptProduct,
	DeptDesign,
	DeptSales,
	DeptMarketing,
	DeptOperations,
	DeptFinance,
	DeptLegal,
	DeptData,
	DeptCustomerSuccess,
	DeptPeopleHR,
	DeptOther,
}

// ParseDepartmentTag matches s case-insensitively against the taxonomy.
func ParseDepartmentTag(s string) (DepartmentTag, bool) {
	s = strings.TrimSpace(s)
	for _, tag := range DepartmentTags {
		if strings.EqualFold(string(tag), s) {
			return tag, true
		}
	}
	return "", false
}

// Company is a tracked employer. The pipeline only reads companies.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	CareersURL  *string   `json:"careers_url,omitempty"`
	HomepageURL *string   `json:"homepage_url,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is one ingestion attempt's outcome for a company.
type Snapshot struct {
	ID           string         `json:"id"`
	CompanyID    string         `json:"company_id"`
	Status       SnapshotStatus `json:"status"`
	JobCount     int            `json:"job_count"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Job is one posting within exactly one snapshot.
type Job struct {
	ID            string        `json:"id"`
	JobKey        string        `json:"job_key"`
	SnapshotID    string        `json:"snapshot_id"`
	CompanyID     string        `json:"company_id"`
	Title         string        `json:"title"`
	DepartmentTag DepartmentTag `json:"department_tag"`
	DepartmentRaw *string       `json:"department_raw,omitempty"`
	Location      *string       `json:"location,omitempty"`
	SalaryRaw     *string       `json:"salary_raw,omitempty"`
	Description   string        `json:"description"`
	JobURL        string        `json:"job_url"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

// LiveJob is a job from its company's latest published snapshot.
type LiveJob struct {
	Job
	CompanyName string `json:"company_name"`
	CompanySlug string `json:"company_slug"`
}

// Click records one redirect through a job link.
type Click struct {
	ID        string    `json:"id"`
	JobKey    string    `json:"job_key"`
	CompanyID string    `json:"company_id"`
	ClickedAt time.Time `json:"clicked_at"`
}

// JobDetail is the structured record an extractor returns for one posting.
type JobDetail struct {
	Title         string  `json:"title"`
	DepartmentRaw *string `json:"department_raw"`
	Location      *string `json:"location"`
	SalaryRaw     *string `json:"salary_raw"`
	Description   string  `json:"description"`
}

// ProcessedJob is a classified and cleaned job ready for publication.
type ProcessedJob struct {
	JobKey        string
	Title         string
	DepartmentTag DepartmentTag
	DepartmentRaw *string
	Location      *string
	SalaryRaw     *string
	Description   string
	JobURL        string
}

// Result summarizes one company run.
type Result struct {
	CompanyID  string    `json:"company_id"`
	Company    string    `json:"company"`
	Status     RunStatus `json:"status"`
	Mode       Mode      `json:"mode,omitempty"`
	JobCount   int       `json:"job_count"`
	ValidRate  *float64  `json:"valid_rate,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Task tracks an asynchronous ingest of one company.
type Task struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Status       TaskStatus `json:"status"`
	Mode         Mode       `json:"mode,omitempty"`
	JobCount     int        `json:"job_count"`
	ValidRate    *float64   `json:"valid_rate,omitempty"`
	SnapshotID   *string    `json:"snapshot_id,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TaskOutcome is written when a task reaches a terminal state.
type TaskOutcome struct {
	Status       TaskStatus
	Mode         Mode
	JobCount     int
	ValidRate    *float64
	SnapshotID   *string
	ErrorMessage *string
	FinishedAt   time.Time
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	CompanyID string
	Submitted int64
}

// LiveJobQuery filters the live job listing.
type LiveJobQuery struct {
	Departments []string
	CompanySlug string
	Query       string
	Page        int
	PageSize    int
}

// LiveJobPage is one page of live jobs plus the total match count.
type LiveJobPage struct {
	Jobs  []LiveJob `json:"jobs"`
	Total int       `json:"total"`
}

// ExtractRequest asks an extraction backend to read pages against a schema.
type ExtractRequest struct {
	URLs   []string       `json:"urls"`
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema"`
}

// CompletionRequest is a single-turn prompt for a completion backend.
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int64
}
