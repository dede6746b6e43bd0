package recognizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/pii"
)

// stub is a Recognizer returning fixed results.
type stub struct {
	name  string
	doc   func(text string) pii.Document
	dets  func(text string) []pii.Detection
	err   error
	ready error
}

func (s *stub) Name() string { return s.name }

func (s *stub) Recognize(_ context.Context, text string) (pii.Document, []pii.Detection, error) {
	if s.err != nil {
		return pii.Document{}, nil, s.err
	}
	var doc pii.Document
	if s.doc != nil {
		doc = s.doc(text)
	}
	var dets []pii.Detection
	if s.dets != nil {
		dets = s.dets(text)
	}
	return doc, dets, nil
}

func (s *stub) Ready(context.Context) error { return s.ready }

// wordDoc tokenizes on single spaces.
func wordDoc(text string) pii.Document {
	var tokens []pii.Span
	start := 0
	for _, f := range strings.Split(text, " ") {
		tokens = append(tokens, pii.Span{Start: start, End: start + len(f)})
		start += len(f) + 1
	}
	return pii.Document{Text: text, Tokens: tokens}
}

func TestMultiUsesFirstTokenization(t *testing.T) {
	text := "Ask Bob at bob@example.org today"
	bob := strings.Index(text, "Bob")
	ner := &stub{
		name: "ner",
		doc:  wordDoc,
		dets: func(string) []pii.Detection {
			return []pii.Detection{{Text: "Bob", Label: "PERSON", Start: bob, End: bob + 3, TokenStart: 1, TokenEnd: 2}}
		},
	}
	pattern, err := NewPattern()
	require.NoError(t, err)

	m, err := NewMulti(ner, pattern)
	require.NoError(t, err)
	assert.Equal(t, "ner+pattern", m.Name())

	doc, dets, err := m.Recognize(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, 5, doc.TokenCount())
	require.Len(t, dets, 2)
	assert.Equal(t, "PERSON", dets[0].Label)
	assert.Equal(t, "EMAIL_ADDRESS", dets[1].Label)
	assert.Equal(t, 3, dets[1].TokenStart, "re-mapped onto the whitespace tokens")
	assert.Equal(t, 4, dets[1].TokenEnd)
}

func TestMultiDropsDuplicateSpans(t *testing.T) {
	same := func(string) []pii.Detection {
		return []pii.Detection{{Text: "Bob", Label: "PERSON", Start: 0, End: 3}}
	}
	m, err := NewMulti(&stub{name: "a", doc: wordDoc, dets: same}, &stub{name: "b", dets: same})
	require.NoError(t, err)

	_, dets, err := m.Recognize(context.Background(), "Bob here")
	require.NoError(t, err)
	assert.Len(t, dets, 1)
}

func TestMultiFailsWhenAnyMemberFails(t *testing.T) {
	m, err := NewMulti(&stub{name: "a", doc: wordDoc}, &stub{name: "b", err: ErrUnavailable})
	require.NoError(t, err)

	_, _, err = m.Recognize(context.Background(), "hello")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestMultiReady(t *testing.T) {
	m, err := NewMulti(&stub{name: "a"}, &stub{name: "b", ready: ErrUnavailable})
	require.NoError(t, err)
	err = m.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b:")
	assert.NotContains(t, err.Error(), "a:")
	assert.True(t, errors.Is(err, ErrUnavailable))

	m, err = NewMulti(&stub{name: "a", ready: ErrUnavailable}, &stub{name: "b", ready: errors.New("boom")})
	require.NoError(t, err)
	err = m.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a:")
	assert.Contains(t, err.Error(), "b: boom")

	m, err = NewMulti(&stub{name: "a"})
	require.NoError(t, err)
	assert.NoError(t, m.Ready(context.Background()))

	_, err = NewMulti()
	assert.Error(t, err)
}
