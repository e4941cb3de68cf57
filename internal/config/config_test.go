package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsResolveAndValidate(t *testing.T) {
	t.Setenv("CONDUIT_ENV", "")
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Tabs.MaxTabs)
	assert.Equal(t, "claude", cfg.Agents.ClaudeBinary)
	assert.Equal(t, "codex", cfg.Agents.CodexBinary)
	assert.Equal(t, "opencode", cfg.Agents.OpenCodeBinary)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.Contains(t, cfg.Store.Path, "conduit.db")
}

func TestLoad_EnvOverridesLoggingLevel(t *testing.T) {
	t.Setenv("CONDUIT_LOGGING_LEVEL", "debug")
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "nonsense", Format: "json"},
		Tabs:    TabsConfig{MaxTabs: 1},
		Agents:  AgentsConfig{ClaudeBinary: "claude", CodexBinary: "codex", OpenCodeBinary: "opencode"},
	}
	assert.Error(t, validate(cfg))
}

func TestValidate_RejectsNonPositiveMaxTabs(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tabs:    TabsConfig{MaxTabs: 0},
		Agents:  AgentsConfig{ClaudeBinary: "claude", CodexBinary: "codex", OpenCodeBinary: "opencode"},
	}
	assert.Error(t, validate(cfg))
}
