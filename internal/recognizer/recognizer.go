// Package recognizer finds entity candidates in raw text. A recognizer
// returns the document tokenization it used together with its detections,
// so confidence scoring can reason about token positions.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pii"
)

var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/recognizer")

// ErrUnavailable is returned when a recognizer cannot process text, either
// because its model is not loaded or because its backend cannot be reached.
var ErrUnavailable = errors.New("recognizer unavailable")

// Recognizer detects entities in text.
type Recognizer interface {
	// Name identifies the recognizer in logs and health output.
	Name() string
	// Recognize returns the tokenized document and the raw detections.
	// Offsets in both are byte offsets into text.
	Recognize(ctx context.Context, text string) (pii.Document, []pii.Detection, error)
	// Ready returns nil when the recognizer can serve requests.
	Ready(ctx context.Context) error
}

// Multi combines several recognizers. The first recognizer owns the document
// tokenization; detections from the others are re-mapped onto its tokens.
// A detection with the same byte span as one already reported is dropped.
type Multi struct {
	recognizers []Recognizer
}

// NewMulti returns a Multi over recognizers. At least one is required.
func NewMulti(recognizers ...Recognizer) (*Multi, error) {
	if len(recognizers) == 0 {
		return nil, errors.New("multi recognizer: no recognizers configured")
	}
	return &Multi{recognizers: recognizers}, nil
}

// Name returns the member names joined with "+".
func (m *Multi) Name() string {
	names := make([]string, len(m.recognizers))
	for i, r := range m.recognizers {
		names[i] = r.Name()
	}
	return strings.Join(names, "+")
}

// Recognize runs every member in order. Any member failing fails the whole
// call: a partial result could let an entity through unsanitized.
func (m *Multi) Recognize(ctx context.Context, text string) (pii.Document, []pii.Detection, error) {
	ctx, span := tracer.Start(ctx, "recognizer.multi")
	defer span.End()

	doc, detections, err := m.recognizers[0].Recognize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pii.Document{}, nil, err
	}

	type key struct{ start, end int }
	seen := make(map[key]bool, len(detections))
	for _, d := range detections {
		seen[key{d.Start, d.End}] = true
	}

	for _, r := range m.recognizers[1:] {
		_, extra, err := r.Recognize(ctx, text)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return pii.Document{}, nil, err
		}
		for _, d := range extra {
			k := key{d.Start, d.End}
			if seen[k] {
				continue
			}
			seen[k] = true
			d.TokenStart, d.TokenEnd = doc.TokenSpan(d.Start, d.End)
			detections = append(detections, d)
		}
	}

	span.SetAttributes(
		cloakotel.PIIDetectedCount.Int(len(detections)),
		attribute.Int("recognizer.count", len(m.recognizers)),
	)
	return doc, detections, nil
}

// Ready checks every member and reports all that are not ready.
func (m *Multi) Ready(ctx context.Context) error {
	var result *multierror.Error
	for _, r := range m.recognizers {
		if err := r.Ready(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return result.ErrorOrNil()
}
