package llm

import (
	"fmt"
	"strings"
)

// Names of the supported providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderOllama}

// Config selects and configures a provider.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
}

// New creates the provider named in cfg. Hosted providers require an API key.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name != ProviderOllama && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingAPIKey)
	}
	switch name {
	case ProviderGemini:
		return NewGeminiProvider(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("%q (supported: %s): %w", cfg.Name, strings.Join(Providers, ", "), ErrUnknownProvider)
	}
}
