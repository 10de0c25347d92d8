package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SQLITE_BRIDGE_CONFIG", "")
	t.Setenv("SQLITE_BRIDGE_DATA_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	t.Setenv("HOME", "/tmp/home")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.ConfigPath)
	assert.Equal(t, DefaultDataDir(), cfg.DataDir)
	assert.Equal(t, AppName, filepath.Base(cfg.DataDir))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SQLITE_BRIDGE_CONFIG", "/etc/sqlite-bridge.yaml")
	t.Setenv("SQLITE_BRIDGE_LOG_LEVEL", "debug")
	t.Setenv("SQLITE_BRIDGE_LANG", "de")
	t.Setenv("SQLITE_BRIDGE_DATA_DIR", "/var/lib/bridge")
	t.Setenv("SQLITE_BRIDGE_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("SQLITE_BRIDGE_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("SQLITE_BRIDGE_OTEL_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{
		ConfigPath:      "/etc/sqlite-bridge.yaml",
		LogLevel:        "debug",
		Lang:            "de",
		DataDir:         "/var/lib/bridge",
		ShutdownTimeout: 3 * time.Second,
		OTelEndpoint:    "http://collector:4318",
		OTelEnabled:     false,
	}, cfg)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("SQLITE_BRIDGE_SHUTDOWN_TIMEOUT", "soon")
	_, err := Load()
	assert.Error(t, err)
}
