package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

func TestClientCompleteSendsPromptAndReadsText(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5-20251001",
			"content": [{"type": "text", "text": "  Engineering \n"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "test-key", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), ingest.CompletionRequest{
		System:    "classify",
		User:      "Job title: Backend Engineer",
		MaxTokens: 50,
	})
	require.NoError(t, err)
	require.Equal(t, "Engineering", text)

	require.Equal(t, DefaultModel, got["model"])
	require.EqualValues(t, 50, got["max_tokens"])
	system, ok := got["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
}

func TestClientCompleteSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	client, err := New(Config{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), ingest.CompletionRequest{User: "hi", MaxTokens: 10})
	require.Error(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
	_, err = New(Config{APIKey: "k", MaxRetries: -1})
	require.Error(t, err)

	client, err := New(Config{APIKey: "k", Model: "custom"})
	require.NoError(t, err)
	require.Equal(t, "custom", client.model)

	_, err = client.Complete(context.Background(), ingest.CompletionRequest{User: "x"})
	require.Error(t, err)
}
