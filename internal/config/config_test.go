package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/cloak/internal/llm"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"CLOAK_PORT", "CLOAK_PROVIDER", "CLOAK_MODEL", "CLOAK_API_KEY", "CLOAK_NER_URL",
		"CLOAK_NER_ENABLED", "CLOAK_CORS_ORIGINS", "CLOAK_TEMPERATURE", "CLOAK_TOP_P",
		"CLOAK_TIMEOUT", "CLOAK_RETRIES", "CLOAK_PATTERNS_FILE",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(env, "")
	}
	viper.Reset()
	setDefaults()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, llm.ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.True(t, cfg.NEREnabled)
	assert.Equal(t, DefaultNERURL, cfg.NERURL)
	assert.Equal(t, "US", cfg.PhoneRegion)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.InDelta(t, 0.8, cfg.TopP, 1e-9)
	assert.Equal(t, 100, cfg.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries)
	assert.Empty(t, cfg.APIKey)
	assert.False(t, cfg.APIKeyConfigured())
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("CLOAK_PORT", "9090")
	t.Setenv("CLOAK_PROVIDER", "OpenAI")
	t.Setenv("CLOAK_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("CLOAK_NER_URL", "http://ner:8001/")
	t.Setenv("CLOAK_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model, "model defaults per provider")
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "http://ner:8001", cfg.NERURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	rc := cfg.RewriteConfig()
	assert.Equal(t, "gpt-4o-mini", rc.Model)
	assert.Equal(t, 5*time.Second, rc.Timeout)
}

func TestLoad_APIKeyResolution(t *testing.T) {
	t.Run("provider fallback variable", func(t *testing.T) {
		resetViper(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "gem-key", cfg.APIKey)
		assert.Equal(t, "GEMINI_API_KEY", cfg.APIKeySource)
		assert.True(t, cfg.APIKeyConfigured())
		assert.Equal(t, llm.Config{Name: "gemini", APIKey: "gem-key"}, cfg.LLMConfig())
	})

	t.Run("CLOAK_API_KEY wins", func(t *testing.T) {
		resetViper(t)
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("CLOAK_API_KEY", "cloak-key")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "cloak-key", cfg.APIKey)
		assert.Equal(t, "CLOAK_API_KEY", cfg.APIKeySource)
	})

	t.Run("sample value is not configured", func(t *testing.T) {
		resetViper(t)
		t.Setenv("GEMINI_API_KEY", SampleAPIKey)

		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.APIKeyConfigured())
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		resetViper(t)
		t.Setenv("CLOAK_PROVIDER", "ollama")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.APIKeyConfigured())
		assert.Equal(t, "llama3.2", cfg.Model)
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown provider", map[string]string{"CLOAK_PROVIDER": "mistral"}, "unknown provider"},
		{"port out of range", map[string]string{"CLOAK_PORT": "70000"}, "port must be between"},
		{"temperature too high", map[string]string{"CLOAK_TEMPERATURE": "3"}, "temperature must be between"},
		{"top_p zero", map[string]string{"CLOAK_TOP_P": "0"}, "top_p must be in"},
		{"negative retries", map[string]string{"CLOAK_RETRIES": "-1"}, "retries must not be negative"},
		{"ner without url", map[string]string{"CLOAK_NER_URL": " "}, "ner_url is required"},
		{"missing patterns file", map[string]string{"CLOAK_PATTERNS_FILE": "/nonexistent/patterns.yaml"}, "patterns_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "cloak.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8123\nprovider: anthropic\nner_enabled: false\ncors_origins:\n  - https://x.example.com\n"), 0o600))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, llm.ProviderAnthropic, cfg.Provider)
	assert.False(t, cfg.NEREnabled)
	assert.Equal(t, []string{"https://x.example.com"}, cfg.CORSOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CLOAK_TEST_DOTENV=from-file\nCLOAK_TEST_EXISTING=from-file\n"), 0o600))
	t.Setenv("CLOAK_TEST_EXISTING", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CLOAK_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("CLOAK_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("CLOAK_TEST_EXISTING"), "existing environment wins")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
