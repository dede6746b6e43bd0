// Package doctor provides preflight checks for Cloak configuration and its
// upstream dependencies. Used by `cloak doctor`.
package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/llm"
	"github.com/dativo-io/cloak/internal/recognizer"
)

// TestPrompt is sent to the provider to confirm it answers.
const TestPrompt = "Hello, this is a test message."

const (
	slowThreshold = 2 * time.Second
	checkTimeout  = 15 * time.Second
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options carries what the checks inspect. Provider and Recognizer are
// built by the caller from Config; a nil value is reported as a failure.
type Options struct {
	Config       *config.Config
	Provider     llm.Provider
	ProviderErr  error // construction error for Provider, if any
	Recognizer   recognizer.Recognizer
	SkipUpstream bool // skip the provider test prompt (CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkConfig(opts)...)
	report.Checks = append(report.Checks, checkRecognizer(ctx, opts.Recognizer))
	if !opts.SkipUpstream {
		report.Checks = append(report.Checks, checkProvider(ctx, opts)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkConfig(opts Options) []CheckResult {
	cfg := opts.Config
	if cfg == nil {
		return []CheckResult{{
			Name: "config_load", Category: "config", Status: "fail",
			Message: "No configuration loaded",
			Fix:     "Check CLOAK_* variables and cloak.config.yaml",
		}}
	}
	results := []CheckResult{{
		Name: "provider", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (model %s)", cfg.Provider, cfg.Model),
	}}
	results = append(results, checkAPIKey(cfg))
	return results
}

func checkAPIKey(cfg *config.Config) CheckResult {
	switch {
	case cfg.Provider == llm.ProviderOllama:
		return CheckResult{
			Name: "api_key", Category: "config", Status: "pass",
			Message: "Not required for ollama",
		}
	case cfg.APIKey == "":
		return CheckResult{
			Name: "api_key", Category: "config", Status: "fail",
			Message: "No API key found",
			Fix:     "Set CLOAK_API_KEY (or the provider's own variable, e.g. GEMINI_API_KEY) in the environment or .env",
		}
	case cfg.APIKey == config.SampleAPIKey:
		return CheckResult{
			Name: "api_key", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s still holds the sample value", cfg.APIKeySource),
			Fix:     "Replace " + config.SampleAPIKey + " with a real key",
		}
	}
	return CheckResult{
		Name: "api_key", Category: "config", Status: "pass",
		Message: fmt.Sprintf("Configured (%s, %s)", cfg.APIKeySource, maskKey(cfg.APIKey)),
	}
}

// maskKey shows only the first four characters of key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 8)
}

func checkRecognizer(ctx context.Context, rec recognizer.Recognizer) CheckResult {
	if rec == nil {
		return CheckResult{
			Name: "recognizer_ready", Category: "recognizer", Status: "fail",
			Message: "No recognizer configured",
		}
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := rec.Ready(ctx); err != nil {
		return CheckResult{
			Name: "recognizer_ready", Category: "recognizer", Status: "fail",
			Message: fmt.Sprintf("%s: %v", rec.Name(), err),
			Fix:     "Start the NER sidecar and check ner_url, or set ner_enabled=false to use patterns only",
		}
	}
	return CheckResult{
		Name: "recognizer_ready", Category: "recognizer", Status: "pass",
		Message: rec.Name(),
	}
}

func checkProvider(ctx context.Context, opts Options) []CheckResult {
	if opts.ProviderErr != nil || opts.Provider == nil {
		msg := "No provider configured"
		if opts.ProviderErr != nil {
			msg = opts.ProviderErr.Error()
		}
		return []CheckResult{{
			Name: "provider_test_prompt", Category: "upstream", Status: "fail",
			Message: msg,
		}}
	}

	model := ""
	if opts.Config != nil {
		model = opts.Config.Model
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	resp, err := opts.Provider.Generate(ctx, &llm.Request{
		Model:     model,
		Messages:  []llm.Message{{Role: "user", Content: TestPrompt}},
		MaxTokens: 20,
	})
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: "provider_test_prompt", Category: "upstream", Status: "fail",
			Message: fmt.Sprintf("%s: %v", opts.Provider.Name(), err),
			Fix:     "Check the API key, model name and base_url",
		}}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return []CheckResult{{
			Name: "provider_test_prompt", Category: "upstream", Status: "warn",
			Message: fmt.Sprintf("%s answered with empty text", opts.Provider.Name()),
		}}
	}

	results := []CheckResult{{
		Name: "provider_test_prompt", Category: "upstream", Status: "pass",
		Message: fmt.Sprintf("%s answered in %dms", opts.Provider.Name(), latency.Milliseconds()),
	}}
	if latency > slowThreshold {
		results = append(results, CheckResult{
			Name: "provider_latency", Category: "upstream", Status: "warn",
			Message: fmt.Sprintf("%.1fs (> %s threshold)", latency.Seconds(), slowThreshold),
			Fix:     "Rewrites time out after the configured timeout; consider a closer region or a smaller model",
		})
	}
	return results
}
