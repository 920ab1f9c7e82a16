// Package provider builds a model.Model from configuration.
package provider

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/pipemesh/config"
	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/model"
	"github.com/hupe1980/pipemesh/model/anthropic"
	"github.com/hupe1980/pipemesh/model/openai"
	"github.com/hupe1980/pipemesh/model/openrouter"
)

// Provider names accepted by New.
const (
	OpenAI     = "openai"
	Anthropic  = "anthropic"
	OpenRouter = "openrouter"
)

// DefaultOpenRouterModel is used when no model name is configured.
const DefaultOpenRouterModel = "openai/gpt-4o-mini"

// New returns the adapter selected by cfg.Provider.
func New(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case OpenAI, "":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
		}), nil
	case Anthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
		}), nil
	case OpenRouter:
		if cfg.APIKey == "" {
			return nil, &core.ConfigError{Field: "model.api_key", Message: "openrouter requires an API key"}
		}
		name := cfg.Name
		if name == "" {
			name = DefaultOpenRouterModel
		}
		return openrouter.NewModel(cfg.APIKey, name, func(o *openrouter.Options) {
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			o.Temperature = float32(cfg.Temperature)
		}), nil
	default:
		return nil, &core.ConfigError{Field: "model.provider", Message: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}
