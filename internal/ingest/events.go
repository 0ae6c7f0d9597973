package ingest

import "time"

// EventSnapshotPublished is emitted after a snapshot is published.
const EventSnapshotPublished = "snapshot.published"

// SnapshotEvent announces a completed company run to downstream consumers.
type SnapshotEvent struct {
	Event       string    `json:"event"`
	CompanyID   string    `json:"company_id"`
	CompanySlug string    `json:"company_slug"`
	SnapshotID  string    `json:"snapshot_id"`
	Mode        Mode      `json:"mode"`
	JobCount    int       `json:"job_count"`
	ValidRate   *float64  `json:"valid_rate,omitempty"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Attributes are copied onto the transport message for server-side filtering.
func (e SnapshotEvent) Attributes() map[string]string {
	return map[string]string{
		"event":      e.Event,
		"company_id": e.CompanyID,
		"mode":       string(e.Mode),
	}
}
