package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/engine"
	"github.com/hupe1980/pipemesh/logging"
)

var keys = []string{
	"APP_ENV",
	"PIPEMESH_LOG_LEVEL", "PIPEMESH_LOG_FORMAT",
	"PIPEMESH_MAX_PARALLEL", "PIPEMESH_ERROR_AGGREGATION", "PIPEMESH_CANCEL_ON_ERROR", "PIPEMESH_STEP_TIMEOUT",
	"PIPEMESH_AGENT_MAX_TURNS", "PIPEMESH_AGENT_MAX_PARALLEL_TOOLS",
	"PIPEMESH_MODEL_PROVIDER", "PIPEMESH_MODEL", "PIPEMESH_MODEL_API_KEY", "PIPEMESH_MODEL_BASE_URL", "PIPEMESH_MODEL_TEMPERATURE",
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
}

// clearEnv unsets every variable the package reads. godotenv never
// overrides variables that exist, even empty ones.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "") // registers the restore
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, logging.LogLevelInfo, cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, engine.AggregateFirst, cfg.Engine.Aggregation)
	assert.True(t, cfg.Engine.CancelOnError)
	assert.Equal(t, 10, cfg.Agent.MaxTurns)
	assert.Equal(t, 4, cfg.Agent.MaxParallelTools)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.InDelta(t, 0.7, cfg.Model.Temperature, 1e-9)

	rc := cfg.Engine.Runner()
	assert.True(t, rc.GroupSpans)
	assert.Zero(t, rc.DefaultTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPEMESH_LOG_LEVEL", "debug")
	t.Setenv("PIPEMESH_LOG_FORMAT", "json")
	t.Setenv("PIPEMESH_MAX_PARALLEL", "3")
	t.Setenv("PIPEMESH_ERROR_AGGREGATION", "all")
	t.Setenv("PIPEMESH_CANCEL_ON_ERROR", "false")
	t.Setenv("PIPEMESH_STEP_TIMEOUT", "2s")
	t.Setenv("PIPEMESH_AGENT_MAX_TURNS", "5")
	t.Setenv("PIPEMESH_MODEL_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, logging.LogLevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Agent.MaxTurns)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)

	rc := cfg.Engine.Runner()
	assert.Equal(t, 3, rc.MaxParallel)
	assert.Equal(t, engine.AggregateAll, rc.Aggregation)
	assert.False(t, rc.CancelOnError)
	assert.Equal(t, 2*time.Second, rc.DefaultTimeout)
}

func TestFromEnvUnlimitedParallelTools(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPEMESH_AGENT_MAX_PARALLEL_TOOLS", "0")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Zero(t, cfg.Agent.MaxParallelTools)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key, value, field string
	}{
		{"PIPEMESH_AGENT_MAX_TURNS", "many", "PIPEMESH_AGENT_MAX_TURNS"},
		{"PIPEMESH_AGENT_MAX_TURNS", "0", "agent.max_turns"},
		{"PIPEMESH_STEP_TIMEOUT", "soon", "PIPEMESH_STEP_TIMEOUT"},
		{"PIPEMESH_ERROR_AGGREGATION", "some", "PIPEMESH_ERROR_AGGREGATION"},
		{"PIPEMESH_LOG_LEVEL", "loud", "PIPEMESH_LOG_LEVEL"},
		{"PIPEMESH_LOG_FORMAT", "xml", "log.format"},
		{"PIPEMESH_AGENT_MAX_PARALLEL_TOOLS", "-1", "agent.max_parallel_tools"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			require.ErrorIs(t, err, core.ErrInvalidConfig)

			var cfgErr *core.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PIPEMESH_AGENT_MAX_TURNS=7\nPIPEMESH_MODEL=gpt-4o\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Agent.MaxTurns)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
