// Package rewrite asks a generation provider to reword sanitized text and
// folds every possible answer into an Outcome. Rewrite never returns an
// error: failures become fallback outcomes the pipeline can show as is.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"strings"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/cloak/internal/llm"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/rewrite")

// Generation defaults.
const (
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.3
	DefaultTopP        = 0.8
	DefaultTimeout     = 30 * time.Second
	DefaultRetries     = 1
	DefaultRetryWait   = 500 * time.Millisecond
)

const promptTemplate = `Rewrite the text below so that it keeps its meaning and reads naturally.
Keep every placeholder in square brackets, such as [Name] or [Location], exactly as written.
Remove or generalize any other personal information that is still present.
Reply with the rewritten text only.

Text:
{{.Text}}`

// Config holds the generation parameters of a Client.
type Config struct {
	Model           string
	Temperature     float64
	TopP            float64
	MaxTokens       int
	SafetyThreshold string
	// Timeout bounds each provider call.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport failure.
	Retries   int
	RetryWait time.Duration
}

// DefaultConfig returns the default generation parameters for model.
func DefaultConfig(model string) Config {
	return Config{
		Model:           model,
		Temperature:     DefaultTemperature,
		TopP:            DefaultTopP,
		MaxTokens:       DefaultMaxTokens,
		SafetyThreshold: llm.DefaultSafetyThreshold,
		Timeout:         DefaultTimeout,
		Retries:         DefaultRetries,
		RetryWait:       DefaultRetryWait,
	}
}

// Client rewrites sanitized text through a provider. It is safe for
// concurrent use.
type Client struct {
	provider llm.Provider
	cfg      Config
	prompt   *template.Template
	policy   *bluemonday.Policy
}

// NewClient creates a Client. Zero-valued numeric settings take their
// defaults.
func NewClient(provider llm.Provider, cfg Config) (*Client, error) {
	if provider == nil {
		return nil, errors.New("rewrite: provider is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	tmpl, err := template.New("rewrite").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("rewrite: parsing prompt: %w", err)
	}
	return &Client{provider: provider, cfg: cfg, prompt: tmpl, policy: bluemonday.StrictPolicy()}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.provider.Name() }

// Model returns the configured model.
func (c *Client) Model() string { return c.cfg.Model }

// errRetry marks an attempt worth repeating.
var errRetry = errors.New("retryable rewrite failure")

// Rewrite sends sanitized text to the provider. Only transport failures are
// retried, with a constant wait, at most Config.Retries times.
func (c *Client) Rewrite(ctx context.Context, sanitized string) Outcome {
	ctx, span := tracer.Start(ctx, "rewrite.rewrite")
	defer span.End()

	prompt, err := c.render(sanitized)
	if err != nil {
		return Outcome{Kind: KindServiceError, Detail: err.Error()}
	}
	req := &llm.Request{
		Model:           c.cfg.Model,
		Messages:        []llm.Message{{Role: "user", Content: prompt}},
		Temperature:     c.cfg.Temperature,
		TopP:            c.cfg.TopP,
		MaxTokens:       c.cfg.MaxTokens,
		SafetyThreshold: c.cfg.SafetyThreshold,
	}

	var out Outcome
	attempts := 0
	op := func() error {
		attempts++
		out = c.attempt(ctx, req)
		if out.Kind == KindUnavailable {
			return errRetry
		}
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryWait), uint64(c.cfg.Retries)), ctx)
	_ = backoff.Retry(op, policy)
	out.Attempts = attempts

	span.SetAttributes(
		cloakotel.RewriteStatus.String(string(out.Kind)),
		cloakotel.RewriteAttempts.Int(attempts),
		attribute.String("rewrite.provider", c.provider.Name()),
	)
	if !out.OK() {
		ev := log.Warn().
			Str("provider", c.provider.Name()).
			Str("outcome", string(out.Kind)).
			Int("attempts", attempts).
			Func(cloakotel.LogTraceFields(ctx))
		if out.Reason != "" {
			ev = ev.Str("reason", out.Reason)
		}
		if out.Status != 0 {
			ev = ev.Int("status", out.Status)
		}
		ev.Msg("rewrite_degraded")
	}
	return out
}

func (c *Client) attempt(ctx context.Context, req *llm.Request) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.provider.Generate(callCtx, req)
	if err != nil {
		return classify(err)
	}
	llm.RecordUsage(ctx, c.provider.Name(), resp.Model, resp.InputTokens, resp.OutputTokens)

	text := c.normalize(resp.Content)
	if text == "" {
		return Outcome{Kind: KindServiceError, Detail: "empty response"}
	}
	return Outcome{Kind: KindSuccess, Text: text}
}

func (c *Client) render(sanitized string) (string, error) {
	var b strings.Builder
	if err := c.prompt.Execute(&b, struct{ Text string }{sanitized}); err != nil {
		return "", fmt.Errorf("rewrite: rendering prompt: %w", err)
	}
	return b.String(), nil
}

// classify maps a provider error onto an Outcome.
func classify(err error) Outcome {
	var blocked *llm.BlockedError
	if errors.As(err, &blocked) {
		return Outcome{Kind: KindBlocked, Reason: blocked.Reason}
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return Outcome{Kind: KindServiceError, Status: apiErr.StatusCode, Detail: apiErr.Message}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: KindTimeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Outcome{Kind: KindTimeout}
		}
		return Outcome{Kind: KindUnavailable, Cause: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Outcome{Kind: KindUnavailable, Cause: err}
	}
	return Outcome{Kind: KindServiceError, Detail: err.Error()}
}

// normalize trims the model output, strips any markup, and removes one
// enclosing pair of matching quotes.
func (c *Client) normalize(s string) string {
	s = strings.TrimSpace(s)
	s = html.UnescapeString(c.policy.Sanitize(s))
	s = strings.TrimSpace(s)
	return strings.TrimSpace(stripQuotes(s))
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'`':  '`',
	'“':  '”',
	'‘':  '’',
	'«':  '»',
}

// stripQuotes removes one enclosing quote pair. Text holding further quotes
// of the same kind, such as `"a" and "b"`, is not a single quoted string and
// is returned as is.
func stripQuotes(s string) string {
	runes := []rune(s)
	if len(runes) < 2 {
		return s
	}
	opening := runes[0]
	closing, ok := quotePairs[opening]
	if !ok || runes[len(runes)-1] != closing {
		return s
	}
	inner := string(runes[1 : len(runes)-1])
	if strings.ContainsRune(inner, opening) || strings.ContainsRune(inner, closing) {
		return s
	}
	return inner
}
