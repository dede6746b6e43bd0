package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/dativo-io/cloak/internal/pii"
)

// Entity is a surface string the mocks report with Label.
type Entity struct {
	Text  string
	Label string
}

// ScenarioEntities are the entities a statistical model finds in ScenarioText.
var ScenarioEntities = []Entity{
	{Text: "John Smith", Label: "PERSON"},
	{Text: "Acme Corp", Label: "ORG"},
	{Text: "Boston", Label: "GPE"},
}

// WhitespaceTokens splits text on Unicode whitespace, byte offsets.
func WhitespaceTokens(text string) []pii.Span {
	var tokens []pii.Span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, pii.Span{Start: start, End: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, pii.Span{Start: start, End: len(text)})
	}
	return tokens
}

// find reports every occurrence of each entity in text as a detection with
// byte offsets, in entity order.
func find(text string, entities []Entity) (pii.Document, []pii.Detection) {
	doc := pii.Document{Text: text, Tokens: WhitespaceTokens(text)}
	var dets []pii.Detection
	for _, e := range entities {
		offset := 0
		for {
			idx := strings.Index(text[offset:], e.Text)
			if idx < 0 || e.Text == "" {
				break
			}
			start := offset + idx
			end := start + len(e.Text)
			ts, te := doc.TokenSpan(start, end)
			dets = append(dets, pii.Detection{Text: e.Text, Label: e.Label, Start: start, End: end, TokenStart: ts, TokenEnd: te})
			offset = end
		}
	}
	return doc, dets
}

// MockRecognizer implements recognizer.Recognizer by substring search.
type MockRecognizer struct {
	Entities []Entity
	Err      error
	ReadyErr error

	calls atomic.Int64
}

// Name implements recognizer.Recognizer.
func (m *MockRecognizer) Name() string { return "mock" }

// Recognize implements recognizer.Recognizer.
func (m *MockRecognizer) Recognize(_ context.Context, text string) (pii.Document, []pii.Detection, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return pii.Document{}, nil, m.Err
	}
	doc, dets := find(text, m.Entities)
	return doc, dets, nil
}

// Ready implements recognizer.Recognizer.
func (m *MockRecognizer) Ready(context.Context) error { return m.ReadyErr }

// Calls returns the number of Recognize calls.
func (m *MockRecognizer) Calls() int { return int(m.calls.Load()) }

// NewNERServer starts a fake NER sidecar reporting entities with
// code-point offsets, the way the real sidecar does.
func NewNERServer(entities []Entity) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_loaded": true}`))
	})
	mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc, dets := find(req.Text, entities)
		cp := func(b int) int { return utf8.RuneCountInString(req.Text[:b]) }

		type token struct {
			Start int `json:"start"`
			End   int `json:"end"`
		}
		type entity struct {
			Text      string `json:"text"`
			Label     string `json:"label"`
			StartChar int    `json:"start_char"`
			EndChar   int    `json:"end_char"`
			Start     int    `json:"start"`
			End       int    `json:"end"`
		}
		resp := struct {
			Tokens   []token  `json:"tokens"`
			Entities []entity `json:"entities"`
		}{Tokens: []token{}, Entities: []entity{}}
		for _, t := range doc.Tokens {
			resp.Tokens = append(resp.Tokens, token{Start: cp(t.Start), End: cp(t.End)})
		}
		for _, d := range dets {
			resp.Entities = append(resp.Entities, entity{
				Text: d.Text, Label: d.Label,
				StartChar: cp(d.Start), EndChar: cp(d.End),
				Start: d.TokenStart, End: d.TokenEnd,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(mux)
}
