// Package config holds operator-level configuration for a Cloak process:
// listen port, CORS origins, the entity recognizer, and the generation
// provider with its parameters.
//
// Values come from, in order of precedence: command-line flags bound by
// the CLI, CLOAK_* environment variables, cloak.config.yaml, and the
// defaults below. A .env file in the working directory is loaded into the
// environment first and never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/cloak/internal/llm"
	"github.com/dativo-io/cloak/internal/recognizer"
	"github.com/dativo-io/cloak/internal/rewrite"
)

// Viper keys. Each maps to an env var with the CLOAK_ prefix
// (e.g. "ner_url" → CLOAK_NER_URL) and to a YAML field in
// cloak.config.yaml.
const (
	KeyPort               = "port"
	KeyCORSOrigins        = "cors_origins"
	KeyMaxBodyBytes       = "max_body_bytes"
	KeyRateLimitRPM       = "rate_limit_rpm"
	KeyRateLimitClientRPM = "rate_limit_client_rpm"

	KeyNEREnabled   = "ner_enabled"
	KeyNERURL       = "ner_url"
	KeyNERTimeout   = "ner_timeout"
	KeyPatternsFile = "patterns_file"
	KeyPhoneRegion  = "phone_region"

	KeyProvider        = "provider"
	KeyModel           = "model"
	KeyAPIKey          = "api_key"
	KeyBaseURL         = "base_url"
	KeyTemperature     = "temperature"
	KeyTopP            = "top_p"
	KeyMaxTokens       = "max_tokens"
	KeyTimeout         = "timeout"
	KeyRetries         = "retries"
	KeySafetyThreshold = "safety_threshold"
)

// Defaults.
const (
	DefaultPort        = 8000
	DefaultNERURL      = "http://localhost:8001"
	DefaultProvider    = llm.ProviderGemini
	DefaultCORSOrigins = "*"

	// SampleAPIKey is the placeholder shipped in example .env files.
	SampleAPIKey = "your_api_key_here"
)

// DefaultModels is the model used per provider when none is configured.
var DefaultModels = map[string]string{
	llm.ProviderGemini:    "gemini-2.0-flash",
	llm.ProviderOpenAI:    "gpt-4o-mini",
	llm.ProviderAnthropic: "claude-3-5-haiku-latest",
	llm.ProviderOllama:    "llama3.2",
}

// providerKeyEnv names the provider's conventional API key variable, used
// when CLOAK_API_KEY is unset.
var providerKeyEnv = map[string]string{
	llm.ProviderGemini:    "GEMINI_API_KEY",
	llm.ProviderOpenAI:    "OPENAI_API_KEY",
	llm.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Config holds resolved configuration for a Cloak process.
type Config struct {
	Port               int
	CORSOrigins        []string
	MaxBodyBytes       int64
	RateLimitRPM       int // all clients, per minute; 0 = unlimited
	RateLimitClientRPM int // per client address, per minute; 0 = unlimited

	NEREnabled   bool
	NERURL       string
	NERTimeout   time.Duration
	PatternsFile string // operator recognizer overrides, optional
	PhoneRegion  string

	Provider        string
	Model           string
	APIKey          string
	APIKeySource    string // env var or key the API key came from
	BaseURL         string
	Temperature     float64
	TopP            float64
	MaxTokens       int
	Timeout         time.Duration
	Retries         int
	SafetyThreshold string
}

func init() {
	setDefaults()
}

func setDefaults() {
	viper.SetEnvPrefix("CLOAK")
	viper.AutomaticEnv()
	viper.SetDefault(KeyPort, DefaultPort)
	viper.SetDefault(KeyCORSOrigins, DefaultCORSOrigins)
	viper.SetDefault(KeyMaxBodyBytes, 1<<20)
	viper.SetDefault(KeyRateLimitRPM, 0)
	viper.SetDefault(KeyRateLimitClientRPM, 0)
	viper.SetDefault(KeyNEREnabled, true)
	viper.SetDefault(KeyNERURL, DefaultNERURL)
	viper.SetDefault(KeyNERTimeout, recognizer.DefaultNERTimeout)
	viper.SetDefault(KeyPhoneRegion, recognizer.DefaultPhoneRegion)
	viper.SetDefault(KeyProvider, DefaultProvider)
	viper.SetDefault(KeyTemperature, rewrite.DefaultTemperature)
	viper.SetDefault(KeyTopP, rewrite.DefaultTopP)
	viper.SetDefault(KeyMaxTokens, rewrite.DefaultMaxTokens)
	viper.SetDefault(KeyTimeout, rewrite.DefaultTimeout)
	viper.SetDefault(KeyRetries, rewrite.DefaultRetries)
	viper.SetDefault(KeySafetyThreshold, llm.DefaultSafetyThreshold)
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the existing environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               viper.GetInt(KeyPort),
		CORSOrigins:        splitList(viper.GetStringSlice(KeyCORSOrigins)),
		MaxBodyBytes:       viper.GetInt64(KeyMaxBodyBytes),
		RateLimitRPM:       viper.GetInt(KeyRateLimitRPM),
		RateLimitClientRPM: viper.GetInt(KeyRateLimitClientRPM),
		NEREnabled:         viper.GetBool(KeyNEREnabled),
		NERURL:             strings.TrimRight(strings.TrimSpace(viper.GetString(KeyNERURL)), "/"),
		NERTimeout:         viper.GetDuration(KeyNERTimeout),
		PatternsFile:       viper.GetString(KeyPatternsFile),
		PhoneRegion:        strings.ToUpper(viper.GetString(KeyPhoneRegion)),
		Provider:           strings.ToLower(strings.TrimSpace(viper.GetString(KeyProvider))),
		Model:              viper.GetString(KeyModel),
		BaseURL:            viper.GetString(KeyBaseURL),
		Temperature:        viper.GetFloat64(KeyTemperature),
		TopP:               viper.GetFloat64(KeyTopP),
		MaxTokens:          viper.GetInt(KeyMaxTokens),
		Timeout:            viper.GetDuration(KeyTimeout),
		Retries:            viper.GetInt(KeyRetries),
		SafetyThreshold:    viper.GetString(KeySafetyThreshold),
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModels[cfg.Provider]
	}
	cfg.APIKey, cfg.APIKeySource = resolveAPIKey(cfg.Provider)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveAPIKey(provider string) (string, string) {
	if key := strings.TrimSpace(viper.GetString(KeyAPIKey)); key != "" {
		return key, "CLOAK_API_KEY"
	}
	if env, ok := providerKeyEnv[provider]; ok {
		if key := strings.TrimSpace(os.Getenv(env)); key != "" {
			return key, env
		}
	}
	return "", ""
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// APIKeyConfigured reports whether a real API key is present. Ollama needs
// none.
func (c *Config) APIKeyConfigured() bool {
	if c.Provider == llm.ProviderOllama {
		return true
	}
	return c.APIKey != "" && c.APIKey != SampleAPIKey
}

// LLMConfig returns the provider selection for llm.New.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{Name: c.Provider, APIKey: c.APIKey, BaseURL: c.BaseURL}
}

// RewriteConfig returns the generation parameters for rewrite.NewClient.
func (c *Config) RewriteConfig() rewrite.Config {
	rc := rewrite.DefaultConfig(c.Model)
	rc.Temperature = c.Temperature
	rc.TopP = c.TopP
	rc.MaxTokens = c.MaxTokens
	rc.Timeout = c.Timeout
	rc.Retries = c.Retries
	rc.SafetyThreshold = c.SafetyThreshold
	return rc
}

// WarnIfSampleKey logs a warning when the API key is the example value.
func (c *Config) WarnIfSampleKey() {
	if c.APIKey == SampleAPIKey {
		log.Warn().Str("source", c.APIKeySource).Msg("api_key_is_sample_value")
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", c.Port)
	}
	if !isSupported(c.Provider) {
		return fmt.Errorf("provider %q: %w", c.Provider, llm.ErrUnknownProvider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2 (got %g)", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1] (got %g)", c.TopP)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.RateLimitRPM < 0 || c.RateLimitClientRPM < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.NEREnabled && c.NERURL == "" {
		return fmt.Errorf("ner_url is required when ner_enabled is true")
	}
	if c.PatternsFile != "" {
		if _, err := os.Stat(c.PatternsFile); err != nil {
			return fmt.Errorf("patterns_file: %w", err)
		}
	}
	return nil
}

func isSupported(provider string) bool {
	for _, p := range llm.Providers {
		if p == provider {
			return true
		}
	}
	return false
}
