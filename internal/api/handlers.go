package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	idgen "github.com/JakeFAU/careers-ingest/internal/id/uuid"
	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const (
	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200
	jobsPageSize         = 25
	readTimeout          = 5 * time.Second
)

// ingestCompany handles POST /v1/ingest/{company_id}, running the pipeline
// inline under the run timeout.
func (s *Server) ingestCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := uuidParam(w, r, "company_id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.deps.RunTimeout)
	defer cancel()

	res, err := s.deps.Ingester.IngestCompany(ctx, companyID)
	switch {
	case errors.Is(err, ingest.ErrCompanyNotFound), errors.Is(err, ingest.ErrCompanyDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case ingest.IsInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("ingest failed", zap.String("company_id", companyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	case res.Status == ingest.RunRejected:
		writeJSON(w, http.StatusOK, map[string]any{
			"error":      "Run validation failed",
			"valid_rate": res.ValidRate,
			"message":    res.Message,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"company":     res.Company,
			"job_count":   res.JobCount,
			"mode":        res.Mode,
			"snapshot_id": res.SnapshotID,
		})
	}
}

// ingestAll handles POST /v1/ingest. It queues a task for every eligible
// company and returns once they are recorded; the batches run in the background.
func (s *Server) ingestAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	report, err := s.deps.Dispatcher.StartAll(ctx)
	if err != nil {
		s.logger.Error("batch dispatch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"dispatched": report.Dispatched,
		"count":      len(report.Dispatched),
		"tasks":      report.Tasks,
	})
}

// submitTask handles POST /v1/ingest/{company_id}/tasks.
func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	companyID, ok := uuidParam(w, r, "company_id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()

	if _, err := s.deps.Store.GetCompany(ctx, companyID); err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "company not found")
			return
		}
		s.logger.Error("load company failed", zap.String("company_id", companyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load company")
		return
	}
	task, err := s.deps.Dispatcher.Submit(ctx, companyID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

// getTask handles GET /v1/tasks/{task_id}.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := uuidParam(w, r, "task_id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	task, err := s.deps.Store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.Error("get task failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task})
}

// listSnapshots handles GET /v1/companies/{company_id}/snapshots?limit=&offset=.
func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	companyID, ok := uuidParam(w, r, "company_id")
	if !ok {
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSnapshotLimit, maxSnapshotLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	snapshots, err := s.deps.Store.ListSnapshots(ctx, companyID, limit, offset)
	if err != nil {
		s.logger.Error("list snapshots failed", zap.String("company_id", companyID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []ingest.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

// listJobs handles GET /v1/jobs?department=&company=&q=&page=.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := 1
	if raw := q.Get("page"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = val
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	result, err := s.deps.Store.ListLiveJobs(ctx, ingest.LiveJobQuery{
		Departments: q["department"],
		CompanySlug: q.Get("company"),
		Query:       q.Get("q"),
		Page:        page,
		PageSize:    jobsPageSize,
	})
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if result.Jobs == nil {
		result.Jobs = []ingest.LiveJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  result.Jobs,
		"page":  page,
		"total": result.Total,
	})
}

// redirect handles GET /r/{job_key}: it records a click and sends the caller
// to the posting. A failed click write never blocks the redirect.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	jobKey := chi.URLParam(r, "job_key")
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	job, err := s.deps.Store.GetLiveJob(ctx, jobKey)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get live job failed", zap.String("job_key", jobKey), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	if err := s.recordClick(ctx, job); err != nil {
		s.logger.Warn("record click failed", zap.String("job_key", jobKey), zap.Error(err))
	}
	http.Redirect(w, r, job.JobURL, http.StatusFound)
}

func (s *Server) recordClick(ctx context.Context, job ingest.LiveJob) error {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return err
	}
	return s.deps.Store.AppendClick(ctx, ingest.Click{
		ID:        id,
		JobKey:    job.JobKey,
		CompanyID: job.CompanyID,
		ClickedAt: s.deps.Clock.Now().UTC(),
	})
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	if !idgen.Valid(raw) {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return raw, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
