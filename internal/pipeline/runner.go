// Package pipeline runs the ingestion stages for one company: extraction,
// validation, enrichment, and snapshot publication.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/careers-ingest/internal/canonical"
	"github.com/JakeFAU/careers-ingest/internal/enrich"
	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
	"github.com/JakeFAU/careers-ingest/internal/salary"
	"github.com/JakeFAU/careers-ingest/internal/snapshot"
	"github.com/JakeFAU/careers-ingest/internal/telemetry"
	"github.com/JakeFAU/careers-ingest/internal/validate"
)

// MsgInlineEmpty is recorded when neither listing nor inline extraction found jobs.
const MsgInlineEmpty = "No job URLs found and inline fallback returned 0 jobs"

const inlineErrPrefix = "Inline fallback failed: "

// JobExtractor is the extraction surface the runner drives.
type JobExtractor interface {
	Listings(ctx context.Context, careersURL string) ([]string, error)
	Detail(ctx context.Context, jobURL string) *ingest.JobDetail
	Inline(ctx context.Context, careersURL string) []ingest.JobDetail
}

// Classifier assigns department tags.
type Classifier interface {
	Classify(ctx context.Context, title string, departmentRaw *string, description string) enrich.Classification
}

// Cleaner strips leading metadata from descriptions.
type Cleaner interface {
	Clean(ctx context.Context, raw string) enrich.Cleaning
}

// SnapshotWriter publishes job sets and records failed attempts.
type SnapshotWriter interface {
	Publish(ctx context.Context, companyID string, jobs []ingest.ProcessedJob) (ingest.Snapshot, error)
	RecordFailure(ctx context.Context, companyID, message string) (ingest.Snapshot, error)
}

// Deps are the collaborators of a Runner. Archive and Notifier are optional.
type Deps struct {
	Companies   ingest.CompanyStore
	Extractor   JobExtractor
	Classifier  Classifier
	Cleaner     Cleaner
	Snapshots   SnapshotWriter
	Keyer       *canonical.Keyer
	Policy      validate.Policy
	Archive     ingest.BlobStore
	Notifier    ingest.Publisher
	NotifyTopic string
	Clock       ingest.Clock
	Logger      *zap.Logger
}

// Runner ingests one company at a time. It is safe for concurrent use across
// different companies.
type Runner struct {
	deps   Deps
	logger *zap.Logger
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps Deps) (*Runner, error) {
	switch {
	case deps.Companies == nil:
		return nil, errors.New("pipeline requires a company store")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline requires an extractor")
	case deps.Classifier == nil || deps.Cleaner == nil:
		return nil, errors.New("pipeline requires a classifier and a cleaner")
	case deps.Snapshots == nil:
		return nil, errors.New("pipeline requires a snapshot writer")
	case deps.Keyer == nil:
		return nil, errors.New("pipeline requires a keyer")
	case deps.Clock == nil:
		return nil, errors.New("pipeline requires a clock")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Policy == (validate.Policy{}) {
		deps.Policy = validate.NewPolicy(validate.DefaultThreshold)
	}
	return &Runner{deps: deps, logger: logger.Named("pipeline")}, nil
}

// candidate is a validated extraction awaiting enrichment.
type candidate struct {
	key    string
	url    string
	detail ingest.JobDetail
}

// runState carries per-run bookkeeping shared by both extraction paths.
type runState struct {
	company    ingest.Company
	careersURL string
	canonical  string
	result     ingest.Result
	archive    extractionArchive
	logger     *zap.Logger
}

// IngestCompany runs the full pipeline for companyID. Input problems are
// returned as *ingest.InputError and record no snapshot. A validation
// rejection records a failed snapshot and returns a rejected Result with a
// nil error. Any other failure records a failed snapshot and is returned.
func (r *Runner) IngestCompany(ctx context.Context, companyID string) (ingest.Result, error) {
	start := r.deps.Clock.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "ingest.company",
		trace.WithAttributes(attribute.String("company.id", companyID)))
	defer span.End()

	result, err := r.ingest(ctx, companyID)

	status := string(result.Status)
	switch {
	case ingest.IsInputError(err):
		status = "input_error"
	case err != nil:
		status = "error"
	}
	metrics.ObserveRun(string(result.Mode), status, r.deps.Clock.Now().Sub(start))
	span.SetAttributes(
		attribute.String("ingest.mode", string(result.Mode)),
		attribute.String("ingest.status", status),
		attribute.Int("ingest.job_count", result.JobCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (r *Runner) ingest(ctx context.Context, companyID string) (ingest.Result, error) {
	st, err := r.load(ctx, companyID)
	if err != nil {
		return ingest.Result{CompanyID: companyID}, err
	}

	st.logger.Info("ingest started", zap.String("careers_url", st.careersURL))
	urls, err := r.deps.Extractor.Listings(ctx, st.careersURL)
	if err != nil {
		st.result.Mode = ingest.ModeNormal
		return r.fail(ctx, st, err.Error(), err)
	}
	if len(urls) == 0 {
		st.result.Mode = ingest.ModeInlineFallback
		return r.runInline(ctx, st)
	}
	st.result.Mode = ingest.ModeNormal
	return r.runLinked(ctx, st, urls)
}

func (r *Runner) load(ctx context.Context, companyID string) (*runState, error) {
	company, err := r.deps.Companies.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			return nil, ingest.NewInputError(fmt.Errorf("%w: %s", ingest.ErrCompanyNotFound, companyID))
		}
		return nil, fmt.Errorf("load company %s: %w", companyID, err)
	}
	if !company.Enabled {
		return nil, ingest.NewInputError(fmt.Errorf("%w: %s", ingest.ErrCompanyDisabled, company.Name))
	}
	if company.CareersURL == nil || strings.TrimSpace(*company.CareersURL) == "" {
		return nil, ingest.NewInputError(fmt.Errorf("%w: %s", ingest.ErrNoCareersURL, company.Name))
	}
	careersURL := strings.TrimSpace(*company.CareersURL)
	canon, err := canonical.Canonicalize(careersURL)
	if err != nil {
		return nil, ingest.NewInputError(fmt.Errorf("careers url for %s: %w", company.Name, err))
	}
	return &runState{
		company:    company,
		careersURL: careersURL,
		canonical:  canon,
		result:     ingest.Result{CompanyID: company.ID, Company: company.Name},
		archive:    extractionArchive{CompanyID: company.ID, CareersURL: careersURL},
		logger:     r.logger.With(zap.String("company_id", company.ID), zap.String("company", company.Name)),
	}, nil
}

func (r *Runner) runLinked(ctx context.Context, st *runState, rawURLs []string) (ingest.Result, error) {
	st.archive.ListingURLs = rawURLs
	urls := make([]string, 0, len(rawURLs))
	seen := make(map[string]struct{}, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := canonical.Canonicalize(raw)
		if err != nil {
			st.logger.Warn("skipping unparseable job url", zap.String("url", raw), zap.Error(err))
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	var valid []candidate
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, st, err.Error(), err)
		}
		detail := r.deps.Extractor.Detail(ctx, u)
		if detail == nil {
			continue
		}
		st.archive.Details = append(st.archive.Details, archivedDetail{URL: u, Detail: *detail})
		if !validate.ValidDetail(*detail) {
			continue
		}
		key, err := r.deps.Keyer.JobKey(st.company.ID, u)
		if err != nil {
			return r.fail(ctx, st, err.Error(), err)
		}
		valid = append(valid, candidate{key: key, url: u, detail: *detail})
	}

	verdict := r.deps.Policy.Run(len(urls), len(valid))
	rate := verdict.Rate
	st.result.ValidRate = &rate
	st.archive.ValidRate = &rate
	st.logger.Info("detail extraction finished",
		zap.Int("listings", len(urls)),
		zap.Int("valid", len(valid)),
		zap.Float64("valid_rate", rate),
	)
	if !verdict.Accepted {
		return r.reject(ctx, st, verdict.Message())
	}
	return r.publish(ctx, st, valid, "")
}

func (r *Runner) runInline(ctx context.Context, st *runState) (ingest.Result, error) {
	details := r.deps.Extractor.Inline(ctx, st.careersURL)
	var valid []candidate
	seen := make(map[string]struct{}, len(details))
	for _, d := range details {
		st.archive.Details = append(st.archive.Details, archivedDetail{URL: st.canonical, Detail: d})
		if !validate.ValidInline(d) {
			continue
		}
		key, err := r.deps.Keyer.InlineJobKey(st.company.ID, st.canonical, d.Title)
		if err != nil {
			return r.fail(ctx, st, inlineErrPrefix+err.Error(), err)
		}
		if _, dup := seen[key]; dup {
			st.logger.Debug("dropping duplicate inline job", zap.String("title", d.Title))
			continue
		}
		seen[key] = struct{}{}
		valid = append(valid, candidate{key: key, url: st.canonical, detail: d})
	}
	if len(valid) == 0 {
		return r.reject(ctx, st, MsgInlineEmpty)
	}
	st.logger.Info("inline extraction finished", zap.Int("jobs", len(valid)))
	return r.publish(ctx, st, valid, inlineErrPrefix)
}

func (r *Runner) publish(ctx context.Context, st *runState, valid []candidate, errPrefix string) (ingest.Result, error) {
	jobs, err := r.enrich(ctx, valid)
	if err != nil {
		return r.fail(ctx, st, errPrefix+err.Error(), err)
	}

	snap, err := r.deps.Snapshots.Publish(ctx, st.company.ID, jobs)
	if err != nil {
		var published *snapshot.FailedPublishError
		if errors.As(err, &published) {
			st.result.SnapshotID = published.SnapshotID
			st.result.Message = errPrefix + err.Error()
			return st.result, fmt.Errorf("%s%w", errPrefix, err)
		}
		return r.fail(ctx, st, errPrefix+err.Error(), err)
	}

	st.result.Status = ingest.RunPublished
	st.result.JobCount = snap.JobCount
	st.result.SnapshotID = snap.ID
	st.archive.SnapshotID = snap.ID
	st.archive.Mode = st.result.Mode

	uri := r.archiveRun(ctx, st)
	r.notify(ctx, st, uri)
	st.logger.Info("ingest published",
		zap.String("mode", string(st.result.Mode)),
		zap.String("snapshot_id", snap.ID),
		zap.Int("job_count", snap.JobCount),
	)
	return st.result, nil
}

// enrich classifies and cleans each job; the two calls for one job run in parallel.
func (r *Runner) enrich(ctx context.Context, valid []candidate) ([]ingest.ProcessedJob, error) {
	jobs := make([]ingest.ProcessedJob, 0, len(valid))
	for _, c := range valid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			class    enrich.Classification
			cleaning enrich.Cleaning
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			class = r.deps.Classifier.Classify(gctx, c.detail.Title, c.detail.DepartmentRaw, c.detail.Description)
			return nil
		})
		g.Go(func() error {
			cleaning = r.deps.Cleaner.Clean(gctx, c.detail.Description)
			return nil
		})
		_ = g.Wait()

		jobs = append(jobs, ingest.ProcessedJob{
			JobKey:        c.key,
			Title:         strings.TrimSpace(c.detail.Title),
			DepartmentTag: class.Tag,
			DepartmentRaw: c.detail.DepartmentRaw,
			Location:      c.detail.Location,
			SalaryRaw:     salary.Clean(c.detail.SalaryRaw),
			Description:   cleaning.Text,
			JobURL:        c.url,
		})
	}
	return jobs, nil
}

func (r *Runner) reject(ctx context.Context, st *runState, message string) (ingest.Result, error) {
	st.result.Status = ingest.RunRejected
	st.result.Message = message
	snap, err := r.deps.Snapshots.RecordFailure(ctx, st.company.ID, message)
	if err != nil {
		return st.result, fmt.Errorf("record rejected run: %w", err)
	}
	st.result.SnapshotID = snap.ID
	st.logger.Warn("ingest rejected", zap.String("reason", message))
	return st.result, nil
}

func (r *Runner) fail(ctx context.Context, st *runState, message string, cause error) (ingest.Result, error) {
	st.result.Message = message
	snap, err := r.deps.Snapshots.RecordFailure(ctx, st.company.ID, message)
	if err != nil {
		st.logger.Error("failed to record failed snapshot", zap.Error(err))
	} else {
		st.result.SnapshotID = snap.ID
	}
	st.logger.Error("ingest failed", zap.String("reason", message), zap.Error(cause))
	if strings.HasPrefix(message, inlineErrPrefix) {
		return st.result, fmt.Errorf("%s%w", inlineErrPrefix, cause)
	}
	return st.result, cause
}

// extractionArchive is the raw extraction record kept for diagnosis.
type extractionArchive struct {
	CompanyID   string           `json:"company_id"`
	SnapshotID  string           `json:"snapshot_id"`
	Mode        ingest.Mode      `json:"mode"`
	CareersURL  string           `json:"careers_url"`
	ListingURLs []string         `json:"listing_urls,omitempty"`
	Details     []archivedDetail `json:"details"`
	ValidRate   *float64         `json:"valid_rate,omitempty"`
	ArchivedAt  time.Time        `json:"archived_at"`
}

type archivedDetail struct {
	URL    string           `json:"url"`
	Detail ingest.JobDetail `json:"detail"`
}

// ArchivePath is the blob path for a snapshot's raw extraction record.
func ArchivePath(companyID, snapshotID string) string {
	return fmt.Sprintf("extractions/%s/%s.json", companyID, snapshotID)
}

func (r *Runner) archiveRun(ctx context.Context, st *runState) string {
	if r.deps.Archive == nil {
		return ""
	}
	st.archive.ArchivedAt = r.deps.Clock.Now().UTC()
	body, err := json.Marshal(st.archive)
	if err != nil {
		st.logger.Warn("marshal extraction archive", zap.Error(err))
		return ""
	}
	uri, err := r.deps.Archive.PutObject(ctx, ArchivePath(st.company.ID, st.archive.SnapshotID), "application/json", bytes.NewReader(body))
	if err != nil {
		st.logger.Warn("archive extraction failed", zap.Error(err))
		return ""
	}
	return uri
}

func (r *Runner) notify(ctx context.Context, st *runState, archiveURI string) {
	if r.deps.Notifier == nil {
		return
	}
	event := ingest.SnapshotEvent{
		Event:       ingest.EventSnapshotPublished,
		CompanyID:   st.company.ID,
		CompanySlug: st.company.Slug,
		SnapshotID:  st.result.SnapshotID,
		Mode:        st.result.Mode,
		JobCount:    st.result.JobCount,
		ValidRate:   st.result.ValidRate,
		ArchiveURI:  archiveURI,
		PublishedAt: r.deps.Clock.Now().UTC(),
	}
	if _, err := r.deps.Notifier.Publish(ctx, r.deps.NotifyTopic, event); err != nil {
		st.logger.Warn("snapshot notification failed", zap.Error(err))
	}
}
