// Package ingest defines the domain types and capability interfaces shared by
// the careers ingestion pipeline: companies, snapshots, jobs, extraction and
// completion backends, and the stores that persist them.
package ingest
