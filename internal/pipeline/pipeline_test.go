package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/llm"
	"github.com/dativo-io/cloak/internal/pii"
	"github.com/dativo-io/cloak/internal/recognizer"
	"github.com/dativo-io/cloak/internal/rewrite"
	"github.com/dativo-io/cloak/internal/testutil"
)

func newPipeline(t *testing.T, rec recognizer.Recognizer, p llm.Provider, mutate ...func(*rewrite.Config)) *Pipeline {
	t.Helper()
	cfg := rewrite.DefaultConfig("test-model")
	cfg.RetryWait = time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	rw, err := rewrite.NewClient(p, cfg)
	require.NoError(t, err)
	return New(rec, rw)
}

func TestAnalyzeScenario(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: testutil.ScenarioEntities}
	prov := &testutil.MockProvider{Content: "Reach [Name] at [Company] in [Location]."}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), testutil.ScenarioText)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, testutil.ScenarioText, res.OriginalText)
	assert.Equal(t, "Contact [Name] at john@acme.com, he works at [Company] in [Location].", res.SanitizedText)
	assert.Equal(t, "Reach John Smith at Acme Corp in Boston.", res.RewrittenText)
	assert.Equal(t, rewrite.KindSuccess, res.RewriteStatus)
	assert.False(t, res.Restoration.Incomplete())

	require.Len(t, res.Entities, 3)
	for i, want := range []pii.Category{pii.CategoryName, pii.CategoryCompany, pii.CategoryLocation} {
		assert.Equal(t, want, res.Entities[i].Category)
		assert.Greater(t, res.Entities[i].Confidence, pii.MinConfidence)
	}

	// The sanitized text, not the original, is what reaches the provider.
	sent := prov.LastRequest().Messages[0].Content
	assert.Contains(t, sent, res.SanitizedText)
	assert.NotContains(t, sent, "John Smith")
	assert.NotContains(t, sent, "Acme Corp")
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: testutil.ScenarioEntities}
	prov := &testutil.MockProvider{}
	p := newPipeline(t, rec, prov)

	for _, text := range []string{"", "   ", "\n\t "} {
		res, err := p.Analyze(context.Background(), text)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrEmptyInput))
	}
	assert.Zero(t, rec.Calls())
	assert.Zero(t, prov.Calls())
}

func TestAnalyzeRewriteTimeout(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: testutil.ScenarioEntities}
	prov := &testutil.MockProvider{Hang: true}
	p := newPipeline(t, rec, prov, func(c *rewrite.Config) { c.Timeout = 20 * time.Millisecond })

	res, err := p.Analyze(context.Background(), testutil.ScenarioText)
	require.NoError(t, err)
	assert.Equal(t, rewrite.KindTimeout, res.RewriteStatus)
	assert.Equal(t, rewrite.MessageTimeout, res.RewrittenText)
	assert.Len(t, res.Entities, 3)
	assert.Equal(t, "Contact [Name] at john@acme.com, he works at [Company] in [Location].", res.SanitizedText)
}

func TestAnalyzeFallbackIsNotRestored(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: testutil.ScenarioEntities}
	prov := &testutil.MockProvider{Err: &llm.BlockedError{Provider: "gemini", Reason: llm.BlockSafety}}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), testutil.ScenarioText)
	require.NoError(t, err)
	assert.Equal(t, rewrite.KindBlocked, res.RewriteStatus)
	assert.Equal(t, rewrite.MessageBlockedSafety, res.RewrittenText)
	assert.Zero(t, res.Restoration.Restored)
}

func TestAnalyzeRestorationIncomplete(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: []testutil.Entity{{Text: "Bob", Label: "PERSON"}}}
	prov := &testutil.MockProvider{Content: "[Name] told [Name] the news."}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), "Yesterday Bob heard the news.")
	require.NoError(t, err)
	assert.Equal(t, "Bob told [Name] the news.", res.RewrittenText)
	assert.True(t, res.Restoration.Incomplete())
	assert.Equal(t, map[string]int{"[Name]": 1}, res.Restoration.Unresolved)
}

func TestAnalyzeRecognizerFailure(t *testing.T) {
	rec := &testutil.MockRecognizer{Err: recognizer.ErrUnavailable}
	prov := &testutil.MockProvider{}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), "Bob is here.")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, recognizer.ErrUnavailable))
	assert.Zero(t, prov.Calls(), "unsanitized text never reaches the provider")
}

func TestAnalyzeDropsLowConfidence(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: []testutil.Entity{
		{Text: "42", Label: "CARDINAL"},
		{Text: "Jane Doe", Label: "PERSON"},
	}}
	prov := &testutil.MockProvider{Content: "ok"}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), "42 people met Jane Doe today")
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Jane Doe", res.Entities[0].Text)
	assert.Equal(t, "42 people met [Name] today", res.SanitizedText)
}

func TestResultJSON(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: []testutil.Entity{{Text: "Bob", Label: "PERSON"}}}
	p := newPipeline(t, rec, &testutil.MockProvider{Content: "[Name] waves."})

	res, err := p.Analyze(context.Background(), "Then Bob waved.")
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "Bob waves.", out["ai_response"])
	assert.Equal(t, "success", out["rewrite_status"])
	assert.NotContains(t, out, "Placeholders")
}

func TestReady(t *testing.T) {
	p := newPipeline(t, &testutil.MockRecognizer{ReadyErr: recognizer.ErrUnavailable}, &testutil.MockProvider{})
	assert.True(t, errors.Is(p.Ready(context.Background()), recognizer.ErrUnavailable))
	assert.Equal(t, "mock", p.RecognizerName())
}

func TestAnalyzeReportsMergedOverlapOnce(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: []testutil.Entity{
		{Text: "Smith Foundation", Label: "ORG"},
		{Text: "Jane Smith", Label: "PERSON"},
	}}
	prov := &testutil.MockProvider{Content: "[Name] approved it."}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), "Yesterday Dr. Jane Smith Foundation approved the grant")
	require.NoError(t, err)
	assert.Equal(t, "Yesterday Dr. [Name] approved the grant", res.SanitizedText)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Jane Smith Foundation", res.Entities[0].Text)
	assert.Equal(t, pii.CategoryName, res.Entities[0].Category)
	for _, e := range res.Entities {
		assert.Contains(t, res.SanitizedText, e.Placeholder())
	}
	assert.Equal(t, "Jane Smith Foundation approved it.", res.RewrittenText)
}

func TestAnalyzeKeepsPlaceholdersAlreadyInInput(t *testing.T) {
	rec := &testutil.MockRecognizer{Entities: []testutil.Entity{{Text: "John Smith", Label: "PERSON"}}}
	prov := &testutil.MockProvider{Content: "Please reply to [Name] regarding [Name]."}
	p := newPipeline(t, rec, prov)

	res, err := p.Analyze(context.Background(), "Reply to [Name] about John Smith today.")
	require.NoError(t, err)
	assert.Equal(t, "Reply to [Name] about [Name] today.", res.SanitizedText)
	assert.Equal(t, "Please reply to [Name] regarding John Smith.", res.RewrittenText)
	assert.False(t, res.Restoration.Incomplete())
	require.Len(t, res.Entities, 1)
}
