package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIProvider("test-api-key", ts.URL)
}

func TestOpenAIGenerate_Success(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Equal(t, 100, req.MaxTokens)
		assert.InDelta(t, 0.8, req.TopP, 1e-6)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:    "chatcmpl-test123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: "[Name] will call later."},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 8},
		})
	})

	resp, err := provider.Generate(context.Background(), &Request{
		Model:       "gpt-4o-mini",
		Messages:    []Message{{Role: "user", Content: "Hello"}},
		Temperature: 0.3,
		TopP:        0.8,
		MaxTokens:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, "[Name] will call later.", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
}

func TestOpenAIGenerate_ContentFilter(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{FinishReason: openai.FinishReasonContentFilter}},
		})
	})

	_, err := provider.Generate(context.Background(), &Request{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "x"}}})
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, BlockSafety, blocked.Reason)
}

func TestOpenAIGenerate_APIError(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Invalid API key",
				"type":    "invalid_request_error",
			},
		})
	})

	_, err := provider.Generate(context.Background(), &Request{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "x"}}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "Invalid API key")
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	})

	_, err := provider.Generate(context.Background(), &Request{Model: "gpt-4o-mini", Messages: []Message{{Role: "user", Content: "x"}}})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}
