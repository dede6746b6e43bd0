// Package llm holds the generation providers used to rewrite sanitized text.
// Every provider maps its own failure signals onto three shapes: an
// *APIError for answered requests with a non-success status, a
// *BlockedError when the provider withheld content, and any other error
// (transport, deadline) passed through wrapped.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutLLMCall bounds a generation call when the caller's context carries
// no deadline.
const TimeoutLLMCall = 30 * time.Second

// Domain errors for the LLM package.
var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("api key required")
	ErrEmptyResponse   = errors.New("empty response")
)

// Block reasons reported by BlockedError.
const (
	BlockSafety     = "safety"
	BlockRecitation = "recitation"
	BlockRefusal    = "refusal"
)

// Provider is the interface all generation providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini", "openai").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	// SafetyThreshold is applied to every harm category by providers that
	// support configurable safety filtering (e.g. "BLOCK_MEDIUM_AND_ABOVE").
	SafetyThreshold string
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}

// APIError is a provider answer with a non-success HTTP status.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s api error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// BlockedError reports that the provider refused to produce content.
type BlockedError struct {
	Provider string
	Reason   string // BlockSafety, BlockRecitation or BlockRefusal
	Detail   string // provider-specific signal, e.g. "PROHIBITED_CONTENT"
}

func (e *BlockedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s blocked response: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s blocked response: %s (%s)", e.Provider, e.Reason, e.Detail)
}

// withDefaultTimeout applies TimeoutLLMCall unless ctx already has a deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, TimeoutLLMCall)
}

// splitSystem separates system messages from the conversation.
func splitSystem(messages []Message) (system []string, rest []Message) {
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
