// Package hosted implements ingest.Extractor against a remote
// browser-automation extraction service that runs jobs asynchronously.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

// Job states reported by the service.
const (
	statusPending   = "pending"
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Config controls the hosted extraction client.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
	HTTPTimeout  time.Duration
}

// Waiter paces outbound calls.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Client starts extraction jobs and polls them to completion.
type Client struct {
	cfg        Config
	base       *url.URL
	httpClient *http.Client
	limiter    Waiter
	logger     *zap.Logger
}

// New constructs a Client. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("extractor base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("extractor api key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse extractor base url: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 3 * time.Minute
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		base:       base,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

type startResponse struct {
	JobID string `json:"jobId"`
}

type jobResponse struct {
	JobID  string          `json:"jobId"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

// Extract starts a job and blocks until it completes, fails, or MaxWait elapses.
func (c *Client) Extract(ctx context.Context, req ingest.ExtractRequest) (json.RawMessage, error) {
	if len(req.URLs) == 0 {
		return nil, errors.New("at least one url required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxWait)
	defer cancel()

	jobID, err := c.start(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("extraction job started", zap.String("extract_job_id", jobID), zap.Strings("urls", req.URLs))
	return c.await(ctx, jobID)
}

func (c *Client) start(ctx context.Context, req ingest.ExtractRequest) (string, error) {
	endpoint := c.base.JoinPath("api", "extract").String()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return "", err
		}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal extract request: %w", err)
	}
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("start extraction: %w", err)
	}
	if resp.JobID == "" {
		return "", errors.New("start extraction: service returned no job id")
	}
	return resp.JobID, nil
}

func (c *Client) await(ctx context.Context, jobID string) (json.RawMessage, error) {
	endpoint := c.base.JoinPath("api", "extract", jobID).String()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		var job jobResponse
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &job); err != nil {
			return nil, fmt.Errorf("poll extraction %s: %w", jobID, err)
		}
		switch job.Status {
		case statusCompleted:
			return job.Data, nil
		case statusFailed:
			msg := job.Error
			if msg == "" {
				msg = "unknown error"
			}
			return nil, fmt.Errorf("extraction %s failed: %s", jobID, msg)
		case statusPending, statusRunning, "":
		default:
			c.logger.Warn("unexpected extraction status", zap.String("extract_job_id", jobID), zap.String("status", job.Status))
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("extraction %s wait canceled: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extraction service returned HTTP %d: %s", resp.StatusCode, snippet(payload))
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
