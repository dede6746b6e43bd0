package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	cloakotel "github.com/dativo-io/cloak/internal/otel"
	"github.com/dativo-io/cloak/internal/pii"
)

// DefaultNERTimeout bounds a sidecar call when the caller's context has no
// deadline of its own.
const DefaultNERTimeout = 10 * time.Second

// NER calls a named-entity-recognition sidecar over HTTP. The sidecar loads
// a statistical English model and reports code-point offsets; NER converts
// them to byte offsets.
type NER struct {
	baseURL string
	http    *http.Client
}

// NewNER creates a NER client pointing at baseURL (e.g. "http://ner:8001").
// A nil client uses one with DefaultNERTimeout.
func NewNER(baseURL string, client *http.Client) *NER {
	if client == nil {
		client = &http.Client{Timeout: DefaultNERTimeout}
	}
	return &NER{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Tokens   []nerToken  `json:"tokens"`
	Entities []nerEntity `json:"entities"`
}

type nerToken struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type nerEntity struct {
	Text      string `json:"text"`
	Label     string `json:"label"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Start     int    `json:"start"` // token index
	End       int    `json:"end"`   // token index, exclusive
}

type healthResponse struct {
	ModelLoaded bool `json:"model_loaded"`
}

// Name implements Recognizer.
func (n *NER) Name() string { return "ner" }

// Recognize sends text to the sidecar. Transport failures and non-200
// answers are reported as ErrUnavailable.
func (n *NER) Recognize(ctx context.Context, text string) (pii.Document, []pii.Detection, error) {
	ctx, span := tracer.Start(ctx, "recognizer.ner")
	defer span.End()

	var resp recognizeResponse
	if err := n.do(ctx, http.MethodPost, "/recognize", recognizeRequest{Text: text}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pii.Document{}, nil, err
	}

	offsets := byteOffsets(text)
	doc := pii.Document{Text: text, Tokens: make([]pii.Span, 0, len(resp.Tokens))}
	for _, t := range resp.Tokens {
		start, end, ok := toBytes(offsets, t.Start, t.End)
		if !ok {
			return pii.Document{}, nil, fmt.Errorf("ner: token offsets %d..%d outside text: %w", t.Start, t.End, ErrUnavailable)
		}
		doc.Tokens = append(doc.Tokens, pii.Span{Start: start, End: end})
	}

	detections := make([]pii.Detection, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		start, end, ok := toBytes(offsets, e.StartChar, e.EndChar)
		if !ok || start >= end {
			log.Warn().Int("start_char", e.StartChar).Int("end_char", e.EndChar).Str("label", e.Label).Msg("ner_entity_offsets_invalid")
			continue
		}
		detections = append(detections, pii.Detection{
			Text:       text[start:end],
			Label:      e.Label,
			Start:      start,
			End:        end,
			TokenStart: e.Start,
			TokenEnd:   e.End,
		})
	}

	span.SetAttributes(cloakotel.PIIDetectedCount.Int(len(detections)))
	return doc, detections, nil
}

// Ready asks the sidecar whether its model is loaded.
func (n *NER) Ready(ctx context.Context) error {
	var resp healthResponse
	if err := n.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if !resp.ModelLoaded {
		return fmt.Errorf("ner: model not loaded: %w", ErrUnavailable)
	}
	return nil
}

func (n *NER) do(ctx context.Context, method, path string, in, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultNERTimeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ner: marshal: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("ner: request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("ner: %s %s: %v: %w", method, path, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ner: %s %s: status %d: %w", method, path, resp.StatusCode, ErrUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ner: decode %s: %v: %w", path, err, ErrUnavailable)
	}
	return nil
}

// byteOffsets returns, for each code-point index i, the byte offset at which
// that code point starts; the final element is len(text).
func byteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

func toBytes(offsets []int, start, end int) (int, int, bool) {
	if start < 0 || end < start || end >= len(offsets) {
		return 0, 0, false
	}
	return offsets[start], offsets[end], true
}
