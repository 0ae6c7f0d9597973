// Package extract turns careers pages into job URLs and structured job
// records using a pluggable extraction backend.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
)

// Extraction kinds used as metric labels.
const (
	KindListing = "listing"
	KindDetail  = "detail"
	KindInline  = "inline"
)

// Client runs the listing, detail, and inline extractions.
type Client struct {
	backend ingest.Extractor
	logger  *zap.Logger
}

// New constructs a Client over backend.
func New(backend ingest.Extractor, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, logger: logger}
}

// Listings returns the raw job-posting URLs found on a careers page. An empty
// result is not an error; it means the caller should try the inline path.
func (c *Client) Listings(ctx context.Context, careersURL string) ([]string, error) {
	raw, err := c.backend.Extract(ctx, ingest.ExtractRequest{
		URLs:   []string{careersURL},
		Prompt: listingPrompt,
		Schema: listingSchema,
	})
	if err != nil {
		metrics.ObserveExtraction(KindListing, "error")
		return nil, fmt.Errorf("listing extraction failed: %w", err)
	}
	var payload struct {
		JobURLs []string `json:"job_urls"`
	}
	if !isEmpty(raw) {
		if err := json.Unmarshal(raw, &payload); err != nil {
			metrics.ObserveExtraction(KindListing, "error")
			return nil, fmt.Errorf("listing extraction failed: decode payload: %w", err)
		}
	}
	urls := make([]string, 0, len(payload.JobURLs))
	for _, u := range payload.JobURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		metrics.ObserveExtraction(KindListing, "empty")
	} else {
		metrics.ObserveExtraction(KindListing, "ok")
	}
	c.logger.Debug("listing extracted", zap.String("careers_url", careersURL), zap.Int("urls", len(urls)))
	return urls, nil
}

// Detail extracts one posting. It returns nil when the backend fails or the
// record lacks a title or description.
func (c *Client) Detail(ctx context.Context, jobURL string) *ingest.JobDetail {
	raw, err := c.backend.Extract(ctx, ingest.ExtractRequest{
		URLs:   []string{jobURL},
		Prompt: detailPrompt,
		Schema: detailSchema,
	})
	if err != nil {
		metrics.ObserveExtraction(KindDetail, "error")
		c.logger.Warn("detail extraction failed", zap.String("url", jobURL), zap.Error(err))
		return nil
	}
	if isEmpty(raw) {
		metrics.ObserveExtraction(KindDetail, "empty")
		return nil
	}
	var rec jobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		metrics.ObserveExtraction(KindDetail, "error")
		c.logger.Warn("detail payload undecodable", zap.String("url", jobURL), zap.Error(err))
		return nil
	}
	if rec.Title == nil || *rec.Title == "" || rec.Description == nil || *rec.Description == "" {
		metrics.ObserveExtraction(KindDetail, "empty")
		return nil
	}
	metrics.ObserveExtraction(KindDetail, "ok")
	detail := rec.toDetail()
	return &detail
}

// Inline extracts every posting embedded directly on a careers page. Failures
// yield an empty slice.
func (c *Client) Inline(ctx context.Context, careersURL string) []ingest.JobDetail {
	raw, err := c.backend.Extract(ctx, ingest.ExtractRequest{
		URLs:   []string{careersURL},
		Prompt: inlinePrompt,
		Schema: inlineSchema,
	})
	if err != nil {
		metrics.ObserveExtraction(KindInline, "error")
		c.logger.Warn("inline extraction failed", zap.String("careers_url", careersURL), zap.Error(err))
		return nil
	}
	if isEmpty(raw) {
		metrics.ObserveExtraction(KindInline, "empty")
		return nil
	}
	var payload struct {
		Jobs []jobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.ObserveExtraction(KindInline, "error")
		c.logger.Warn("inline payload undecodable", zap.String("careers_url", careersURL), zap.Error(err))
		return nil
	}
	out := make([]ingest.JobDetail, 0, len(payload.Jobs))
	for _, rec := range payload.Jobs {
		if rec.Title == nil || strings.TrimSpace(*rec.Title) == "" {
			continue
		}
		out = append(out, rec.toDetail())
	}
	if len(out) == 0 {
		metrics.ObserveExtraction(KindInline, "empty")
	} else {
		metrics.ObserveExtraction(KindInline, "ok")
	}
	return out
}

type jobRecord struct {
	Title         *string `json:"title"`
	DepartmentRaw *string `json:"department_raw"`
	Location      *string `json:"location"`
	SalaryRaw     *string `json:"salary_raw"`
	Description   *string `json:"description"`
}

func (r jobRecord) toDetail() ingest.JobDetail {
	d := ingest.JobDetail{
		DepartmentRaw: r.DepartmentRaw,
		Location:      r.Location,
		SalaryRaw:     r.SalaryRaw,
	}
	if r.Title != nil {
		d.Title = *r.Title
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	return d
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
