package cmd

import (
	"fmt"
	"net/http"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/llm"
	"github.com/dativo-io/cloak/internal/pipeline"
	"github.com/dativo-io/cloak/internal/recognizer"
	"github.com/dativo-io/cloak/internal/rewrite"
)

// buildRecognizer returns the NER sidecar merged with the pattern
// recognizer, or the pattern recognizer alone when NER is disabled.
func buildRecognizer(cfg *config.Config) (recognizer.Recognizer, error) {
	opts := []recognizer.PatternOption{recognizer.WithPhoneRegion(cfg.PhoneRegion)}
	if cfg.PatternsFile != "" {
		opts = append(opts, recognizer.WithPatternFile(cfg.PatternsFile))
	}
	pattern, err := recognizer.NewPattern(opts...)
	if err != nil {
		return nil, fmt.Errorf("pattern recognizer: %w", err)
	}
	if !cfg.NEREnabled {
		return pattern, nil
	}
	ner := recognizer.NewNER(cfg.NERURL, &http.Client{Timeout: cfg.NERTimeout})
	multi, err := recognizer.NewMulti(ner, pattern)
	if err != nil {
		return nil, err
	}
	return multi, nil
}

// buildPipeline wires recognizer, provider and rewrite client from cfg.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	rec, err := buildRecognizer(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := llm.New(cfg.LLMConfig())
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	rw, err := rewrite.NewClient(provider, cfg.RewriteConfig())
	if err != nil {
		return nil, err
	}
	return pipeline.New(rec, rw), nil
}
