package recognizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pii"
)

const (
	// DefaultMinScore is the minimum pattern score a match needs, after any
	// context boost, to be reported.
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is added to a match score when a context word
	// appears near the match.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the byte window searched on each side of a match
	// for context words.
	ContextWindowChars = 100

	// DefaultPhoneRegion is used to read phone numbers written without a
	// country prefix.
	DefaultPhoneRegion = "US"
)

// tokenRE splits text into word tokens and single punctuation tokens.
var tokenRE = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// Tokenize splits text into word and punctuation tokens, byte offsets.
func Tokenize(text string) []pii.Span {
	idx := tokenRE.FindAllStringIndex(text, -1)
	spans := make([]pii.Span, len(idx))
	for i, m := range idx {
		spans[i] = pii.Span{Start: m[0], End: m[1]}
	}
	return spans
}

// Pattern is an in-process recognizer built from Presidio-style regex
// recognizers. It catches structured identifiers (emails, phone numbers,
// IBANs, card numbers, IP addresses) that a statistical model tends to miss.
type Pattern struct {
	patterns []compiledPattern
	minScore float64
}

// PatternOption configures a Pattern recognizer.
type PatternOption func(*patternConfig)

type patternConfig struct {
	patternFile      string
	enabledEntities  []string
	disabledEntities []string
	extra            []RecognizerConfig
	minScore         float64
	phoneRegion      string
}

// WithPatternFile layers recognizers from a YAML file over the embedded
// defaults. A missing file is skipped.
func WithPatternFile(path string) PatternOption {
	return func(c *patternConfig) { c.patternFile = path }
}

// WithEnabledEntities restricts recognizers to these supported entities.
func WithEnabledEntities(entities []string) PatternOption {
	return func(c *patternConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities removes recognizers for these supported entities.
func WithDisabledEntities(entities []string) PatternOption {
	return func(c *patternConfig) { c.disabledEntities = entities }
}

// WithRecognizers adds recognizer definitions on top of every other layer.
func WithRecognizers(recognizers []RecognizerConfig) PatternOption {
	return func(c *patternConfig) { c.extra = recognizers }
}

// WithMinScore overrides DefaultMinScore.
func WithMinScore(score float64) PatternOption {
	return func(c *patternConfig) { c.minScore = score }
}

// WithPhoneRegion sets the region used to parse national phone numbers.
func WithPhoneRegion(region string) PatternOption {
	return func(c *patternConfig) { c.phoneRegion = strings.ToUpper(region) }
}

// NewPattern builds a Pattern recognizer from the embedded defaults, an
// optional pattern file and explicit recognizers, in that order.
func NewPattern(opts ...PatternOption) (*Pattern, error) {
	cfg := patternConfig{minScore: DefaultMinScore, phoneRegion: DefaultPhoneRegion}
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, err
	}
	var fromFile []RecognizerConfig
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, err
		}
		if rf != nil {
			fromFile = rf.Recognizers
		}
	}

	merged := MergeRecognizers(defaults, fromFile, cfg.extra)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compilePatterns(merged, cfg.phoneRegion)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}
	return &Pattern{patterns: compiled, minScore: cfg.minScore}, nil
}

// Name implements Recognizer.
func (p *Pattern) Name() string { return "pattern" }

// Ready implements Recognizer; compiled patterns are always ready.
func (p *Pattern) Ready(context.Context) error { return nil }

// Recognize runs every pattern over text. Matches go through the
// recognizer's validator and then the context-boosted score gate. The same
// span matched by several patterns is reported once.
func (p *Pattern) Recognize(ctx context.Context, text string) (pii.Document, []pii.Detection, error) {
	_, span := tracer.Start(ctx, "recognizer.pattern")
	defer span.End()

	doc := pii.Document{Text: text, Tokens: Tokenize(text)}

	type key struct{ start, end int }
	seen := make(map[key]bool)
	var detections []pii.Detection
	for _, cp := range p.patterns {
		for _, m := range cp.re.FindAllStringIndex(text, -1) {
			value := text[m[0]:m[1]]
			if cp.validator != nil && !cp.validator(value) {
				continue
			}
			if enhanceScoreWithContext(text, m[0], m[1], cp.score, cp.contextWords) < p.minScore {
				continue
			}
			k := key{m[0], m[1]}
			if seen[k] {
				continue
			}
			seen[k] = true
			ts, te := doc.TokenSpan(m[0], m[1])
			detections = append(detections, pii.Detection{
				Text:       value,
				Label:      cp.label,
				Start:      m[0],
				End:        m[1],
				TokenStart: ts,
				TokenEnd:   te,
			})
		}
	}

	span.SetAttributes(cloakotel.PIIDetectedCount.Int(len(detections)))
	return doc, detections, nil
}

// enhanceScoreWithContext boosts score when a context word occurs within
// ContextWindowChars of the match.
func enhanceScoreWithContext(text string, start, end int, score float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return score
	}
	lo := start - ContextWindowChars
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextWindowChars
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, w := range contextWords {
		if strings.Contains(window, strings.ToLower(w)) {
			return score + ContextSimilarityFactor
		}
	}
	return score
}
