package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/server"
	"github.com/dativo-io/cloak/internal/testutil"
)

func TestAnalyzeCmd_EndToEnd(t *testing.T) {
	ner := testutil.NewNERServer(testutil.ScenarioEntities)
	t.Cleanup(ner.Close)
	gemini := testutil.NewGeminiCompatibleServer("Reach [Name] at [Company] in [Location].")
	t.Cleanup(gemini.Close)

	t.Setenv("CLOAK_NER_ENABLED", "true")
	t.Setenv("CLOAK_NER_URL", ner.URL)
	t.Setenv("CLOAK_PROVIDER", "gemini")
	t.Setenv("CLOAK_API_KEY", testutil.TestAPIKey)
	t.Setenv("CLOAK_BASE_URL", gemini.URL)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"analyze", testutil.ScenarioText})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var res server.AnalyzeResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, testutil.ScenarioText, res.OriginalText)
	assert.Equal(t, "Reach John Smith at Acme Corp in Boston.", res.AIResponse)
	assert.Equal(t, "success", res.RewriteStatus)
	assert.False(t, res.RestorationIncomplete)
	assert.NotContains(t, res.SanitizedText, "John Smith")
	assert.NotContains(t, res.SanitizedText, "Acme Corp")
	assert.NotContains(t, res.SanitizedText, "Boston")

	placeholders := map[string]bool{}
	for _, e := range res.Entities {
		placeholders[e.Placeholder] = true
	}
	assert.True(t, placeholders["[Name]"])
	assert.True(t, placeholders["[Company]"])
	assert.True(t, placeholders["[Location]"])
}

func TestAnalyzeCmd_OpenAICompatibleProvider(t *testing.T) {
	llmSrv := testutil.NewOpenAICompatibleServer("Talk to [Name] soon.")
	t.Cleanup(llmSrv.Close)

	t.Setenv("CLOAK_NER_ENABLED", "false")
	t.Setenv("CLOAK_PROVIDER", "openai")
	t.Setenv("CLOAK_API_KEY", testutil.TestAPIKey)
	t.Setenv("CLOAK_BASE_URL", llmSrv.URL)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"analyze", "Write to ops@example.com today."})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var res server.AnalyzeResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "success", res.RewriteStatus)
	assert.Equal(t, "Talk to [Name] soon.", res.AIResponse, "placeholders never recorded are left alone")
	assert.NotContains(t, res.SanitizedText, "ops@example.com")
}
