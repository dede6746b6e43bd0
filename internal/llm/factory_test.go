package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Name: "gemini", APIKey: "k"}, "gemini"},
		{Config{Name: "OpenAI", APIKey: "k"}, "openai"},
		{Config{Name: " anthropic ", APIKey: "k"}, "anthropic"},
		{Config{Name: "ollama"}, "ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			p, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(Config{Name: "gemini"})
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	_, err = New(Config{Name: "bedrock", APIKey: "k"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestErrorStrings(t *testing.T) {
	assert.Equal(t, "ollama api error 404", (&APIError{Provider: "ollama", StatusCode: 404}).Error())
	assert.Equal(t, "gemini api error 500: boom", (&APIError{Provider: "gemini", StatusCode: 500, Message: "boom"}).Error())
	assert.Equal(t, "gemini blocked response: safety (SAFETY)", (&BlockedError{Provider: "gemini", Reason: BlockSafety, Detail: "SAFETY"}).Error())
}
