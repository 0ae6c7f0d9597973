// Package api hosts the HTTP server, middleware, and REST handlers for the
// ingestion service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ingest/... to run companies synchronously, in batches, or as
//     queued tasks, and GET /v1/tasks/{task_id} to follow a queued task.
//   - GET /v1/jobs and /v1/companies/{company_id}/snapshots for reads.
//   - GET /r/{job_key} to record a click and redirect to the posting.
package api
