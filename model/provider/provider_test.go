package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pipemesh/config"
	"github.com/hupe1980/pipemesh/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg      config.ModelConfig
		provider string
		name     string
	}{
		{config.ModelConfig{Provider: OpenAI, Name: "gpt-4o", APIKey: "k"}, "openai", "gpt-4o"},
		{config.ModelConfig{Provider: Anthropic, Name: "claude-3-5-haiku-latest", APIKey: "k"}, "anthropic", "claude-3-5-haiku-latest"},
		{config.ModelConfig{Provider: OpenRouter, APIKey: "k"}, "openrouter", DefaultOpenRouterModel},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			m, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, m.Info().Provider)
			assert.Equal(t, tt.name, m.Info().Name)
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(config.ModelConfig{Provider: "bard"})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = New(config.ModelConfig{Provider: OpenRouter})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
