// Package anthropic adapts the Anthropic Messages API to ingest.Completer.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-haiku-4-5-20251001"

// Config controls the Messages API client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// Client implements ingest.Completer.
type Client struct {
	client sdk.Client
	model  string
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("llm max retries must be >= 0")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{
		client: sdk.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete sends a single user turn and returns the first text block, trimmed.
func (c *Client) Complete(ctx context.Context, req ingest.CompletionRequest) (string, error) {
	if req.MaxTokens <= 0 {
		return "", fmt.Errorf("max tokens must be > 0")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", nil
}
