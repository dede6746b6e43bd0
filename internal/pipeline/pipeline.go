// Package pipeline runs one analysis end to end: recognize, score, sanitize,
// rewrite, restore.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pii"
	"github.com/dativo-io/cloak/internal/recognizer"
	"github.com/dativo-io/cloak/internal/rewrite"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/pipeline")

// ErrEmptyInput is returned for empty or whitespace-only text. Nothing is
// recognized or rewritten.
var ErrEmptyInput = errors.New("text must not be empty")

// Rewriter produces a rewrite outcome for sanitized text.
type Rewriter interface {
	Rewrite(ctx context.Context, sanitized string) rewrite.Outcome
}

// Result is the outcome of one analysis. RewrittenText is the restored
// rewrite, or the fallback message when the rewrite did not succeed.
type Result struct {
	ID            string              `json:"id"`
	OriginalText  string              `json:"original_text"`
	Entities      []pii.ScoredEntity  `json:"entities"`
	SanitizedText string              `json:"sanitized_text"`
	RewrittenText string              `json:"ai_response"`
	RewriteStatus rewrite.Kind        `json:"rewrite_status"`
	Restoration   pii.Restoration     `json:"restoration"`
	Placeholders  *pii.PlaceholderMap `json:"-"`
}

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	recognizer recognizer.Recognizer
	scorer     pii.Scorer
	rewriter   Rewriter
}

// New creates a Pipeline.
func New(rec recognizer.Recognizer, rw Rewriter) *Pipeline {
	return &Pipeline{recognizer: rec, rewriter: rw}
}

// Analyze runs the full pipeline on text. It fails only for empty input
// and for recognizer failures; rewrite failures yield a Result carrying a
// fallback message.
func (p *Pipeline) Analyze(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	ctx, span := tracer.Start(ctx, "pipeline.analyze")
	defer span.End()
	start := time.Now()

	res := &Result{ID: uuid.New().String(), OriginalText: text}

	doc, detections, err := p.recognizer.Recognize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognizer failed")
		return nil, fmt.Errorf("recognizing entities: %w", err)
	}
	doc.Text = text

	scored := p.scorer.Filter(doc, detections)
	res.SanitizedText, res.Placeholders, res.Entities = p.sanitize(ctx, text, scored)

	outcome := p.rewriter.Rewrite(ctx, res.SanitizedText)
	res.RewriteStatus = outcome.Kind
	if outcome.OK() {
		res.RewrittenText, res.Restoration = pii.Restore(outcome.Text, res.Placeholders)
		if res.Restoration.Incomplete() {
			log.Warn().
				Str("analysis_id", res.ID).
				Interface("unresolved", res.Restoration.Unresolved).
				Func(cloakotel.LogTraceFields(ctx)).
				Msg("restoration_incomplete")
		}
	} else {
		res.RewrittenText = outcome.Message()
	}

	recordAnalysis(ctx, res, time.Since(start))
	span.SetAttributes(
		cloakotel.PIIDetectedCount.Int(len(detections)),
		cloakotel.PIIEntityCount.Int(len(res.Entities)),
		cloakotel.RewriteStatus.String(string(res.RewriteStatus)),
		cloakotel.RestoreIncomplete.Bool(res.Restoration.Incomplete()),
	)
	log.Info().
		Str("analysis_id", res.ID).
		Int("detections", len(detections)).
		Int("entities", len(res.Entities)).
		Str("rewrite_status", string(res.RewriteStatus)).
		Dur("duration", time.Since(start)).
		Func(cloakotel.LogTraceFields(ctx)).
		Msg("analysis_completed")
	return res, nil
}

// sanitize returns the entities actually substituted; merged overlaps are
// reported once with their combined span.
func (p *Pipeline) sanitize(ctx context.Context, text string, entities []pii.ScoredEntity) (string, *pii.PlaceholderMap, []pii.ScoredEntity) {
	_, span := tracer.Start(ctx, "pii.sanitize")
	defer span.End()
	sanitized, m, applied := pii.SanitizeEntities(text, entities)
	span.SetAttributes(cloakotel.PIIEntityCount.Int(m.Len()))
	return sanitized, m, applied
}

// Ready reports whether the recognizer can serve requests.
func (p *Pipeline) Ready(ctx context.Context) error {
	return p.recognizer.Ready(ctx)
}

// RecognizerName returns the name of the configured recognizer.
func (p *Pipeline) RecognizerName() string {
	return p.recognizer.Name()
}
