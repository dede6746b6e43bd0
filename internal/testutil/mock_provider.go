// Package testutil provides shared test helpers and mocks for cloak tests.
package testutil

import (
	"context"
	"sync"

	"github.com/dativo-io/cloak/internal/llm"
)

// MockProvider implements llm.Provider for tests without live API calls.
// When Content is empty, Generate echoes the last message; otherwise it
// returns Content. Set Err to simulate provider errors, or Hang to block
// until the request context ends.
type MockProvider struct {
	ProviderName string
	Content      string
	Err          error
	Hang         bool

	mu       sync.Mutex
	requests []*llm.Request
}

// Name returns the provider identifier (implements llm.Provider).
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Generate returns a canned response or the configured error.
func (m *MockProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	content := m.Content
	if content == "" && len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}
	return &llm.Response{
		Content:      content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
	}, nil
}

// Calls returns the number of Generate calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// SequenceProvider returns Steps[i] on the i-th call (the last step repeats).
type SequenceProvider struct {
	Steps []Step

	mu    sync.Mutex
	calls int
}

// Step is one scripted Generate result.
type Step struct {
	Content string
	Err     error
}

// Name implements llm.Provider.
func (p *SequenceProvider) Name() string { return "sequence" }

// Generate implements llm.Provider.
func (p *SequenceProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if len(p.Steps) == 0 {
		return &llm.Response{Content: "no steps configured", FinishReason: "stop", Model: req.Model}, nil
	}
	if idx >= len(p.Steps) {
		idx = len(p.Steps) - 1
	}
	step := p.Steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{Content: step.Content, FinishReason: "stop", Model: req.Model}, nil
}

// Calls returns the number of Generate calls.
func (p *SequenceProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
