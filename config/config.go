// Package config loads pipemesh settings from the environment.
//
// Environment variables:
//
// Logging:
//   - PIPEMESH_LOG_LEVEL: debug, info, warn, error (default: info)
//   - PIPEMESH_LOG_FORMAT: json or text (default: text)
//
// Pipeline runner:
//   - PIPEMESH_MAX_PARALLEL: concurrent parallel branches, 0 = unlimited (default: 0)
//   - PIPEMESH_ERROR_AGGREGATION: first or all (default: first)
//   - PIPEMESH_CANCEL_ON_ERROR: cancel siblings after a failure (default: true)
//   - PIPEMESH_STEP_TIMEOUT: default timeout for steps without one, e.g. 30s (default: none)
//
// Agent:
//   - PIPEMESH_AGENT_MAX_TURNS: model calls per run (default: 10)
//   - PIPEMESH_AGENT_MAX_PARALLEL_TOOLS: concurrent tool calls per turn, 0 for unlimited (default: 4)
//
// Model:
//   - PIPEMESH_MODEL_PROVIDER: openai, anthropic or openrouter (default: openai)
//   - PIPEMESH_MODEL: model identifier (provider default when empty)
//   - PIPEMESH_MODEL_API_KEY: API key; falls back to OPENAI_API_KEY,
//     ANTHROPIC_API_KEY or OPENROUTER_API_KEY for the selected provider
//   - PIPEMESH_MODEL_BASE_URL: endpoint override
//   - PIPEMESH_MODEL_TEMPERATURE: sampling temperature (default: 0.7)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/engine"
	"github.com/hupe1980/pipemesh/logging"
)

// Config holds all pipemesh settings.
type Config struct {
	// AppEnv selects the optional .env.<AppEnv> overlay.
	AppEnv string `json:"app_env"`

	Log    LogConfig    `json:"log"`
	Engine EngineConfig `json:"engine"`
	Agent  AgentConfig  `json:"agent"`
	Model  ModelConfig  `json:"model"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  logging.LogLevel `json:"level"`
	Format string           `json:"format"`
}

// EngineConfig configures the pipeline runner.
type EngineConfig struct {
	MaxParallel   int                     `json:"max_parallel"`
	Aggregation   engine.ErrorAggregation `json:"aggregation"`
	CancelOnError bool                    `json:"cancel_on_error"`
	StepTimeout   time.Duration           `json:"step_timeout"`
}

// AgentConfig configures agent runs.
type AgentConfig struct {
	MaxTurns         int `json:"max_turns"`
	MaxParallelTools int `json:"max_parallel_tools"`
}

// ModelConfig selects and configures the model provider.
type ModelConfig struct {
	Provider    string  `json:"provider"`
	Name        string  `json:"name"`
	APIKey      string  `json:"-"`
	BaseURL     string  `json:"base_url"`
	Temperature float64 `json:"temperature"`
}

// Runner converts the engine settings into an engine.Config.
func (c EngineConfig) Runner() engine.Config {
	cfg := engine.DefaultConfig
	cfg.MaxParallel = c.MaxParallel
	cfg.Aggregation = c.Aggregation
	cfg.CancelOnError = c.CancelOnError
	cfg.DefaultTimeout = c.StepTimeout
	return cfg
}

// Logger builds the structured logger described by c.
func (c LogConfig) Logger() *logging.StructuredLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  c.Level,
		Format: c.Format,
		Output: os.Stderr,
	})
}

// Load reads dotenv files into the process environment and returns the
// resulting configuration. Without arguments it loads .env and then
// .env.<APP_ENV>, both optional. Explicit files must exist.
func Load(files ...string) (*Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
		return FromEnv()
	}

	if err := loadOptional(godotenv.Load, ".env"); err != nil {
		return nil, err
	}

	if appEnv := os.Getenv("APP_ENV"); appEnv != "" {
		if err := loadOptional(godotenv.Overload, ".env."+appEnv); err != nil {
			return nil, err
		}
	}

	return FromEnv()
}

func loadOptional(load func(...string) error, file string) error {
	if err := load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var p parser

	cfg := &Config{
		AppEnv: os.Getenv("APP_ENV"),
		Log: LogConfig{
			Level:  p.level("PIPEMESH_LOG_LEVEL", logging.LogLevelInfo),
			Format: getEnvString("PIPEMESH_LOG_FORMAT", "text"),
		},
		Engine: EngineConfig{
			MaxParallel:   p.int("PIPEMESH_MAX_PARALLEL", 0),
			Aggregation:   p.aggregation("PIPEMESH_ERROR_AGGREGATION"),
			CancelOnError: p.bool("PIPEMESH_CANCEL_ON_ERROR", true),
			StepTimeout:   p.duration("PIPEMESH_STEP_TIMEOUT", 0),
		},
		Agent: AgentConfig{
			MaxTurns:         p.int("PIPEMESH_AGENT_MAX_TURNS", 10),
			MaxParallelTools: p.int("PIPEMESH_AGENT_MAX_PARALLEL_TOOLS", 4),
		},
		Model: ModelConfig{
			Provider:    strings.ToLower(getEnvString("PIPEMESH_MODEL_PROVIDER", "openai")),
			Name:        os.Getenv("PIPEMESH_MODEL"),
			BaseURL:     os.Getenv("PIPEMESH_MODEL_BASE_URL"),
			Temperature: p.float("PIPEMESH_MODEL_TEMPERATURE", 0.7),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	cfg.Model.APIKey = getEnvString("PIPEMESH_MODEL_API_KEY", providerKey(cfg.Model.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Log.Format != "json" && c.Log.Format != "text":
		return &core.ConfigError{Field: "log.format", Message: fmt.Sprintf("must be json or text, got %q", c.Log.Format)}
	case c.Engine.MaxParallel < 0:
		return &core.ConfigError{Field: "engine.max_parallel", Message: "must not be negative"}
	case c.Engine.StepTimeout < 0:
		return &core.ConfigError{Field: "engine.step_timeout", Message: "must not be negative"}
	case c.Agent.MaxTurns < 1:
		return &core.ConfigError{Field: "agent.max_turns", Message: "must be at least 1"}
	case c.Agent.MaxParallelTools < 0:
		return &core.ConfigError{Field: "agent.max_parallel_tools", Message: "must not be negative"}
	}
	return nil
}

func providerKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser records the first malformed variable.
type parser struct{ err error }

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = &core.ConfigError{Field: key, Message: fmt.Sprintf("invalid value %q: %v", value, err)}
	}
}

func (p *parser) int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return d
}

func (p *parser) level(key string, def logging.LogLevel) logging.LogLevel {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	l, err := logging.ParseLevel(value)
	if err != nil {
		p.fail(key, value, err)
		return def
	}
	return l
}

func (p *parser) aggregation(key string) engine.ErrorAggregation {
	value := os.Getenv(key)
	a, err := engine.ParseAggregation(value)
	if err != nil {
		p.fail(key, value, err)
	}
	return a
}
