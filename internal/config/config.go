package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppName names the private data directory and the OpenTelemetry service.
const AppName = "sqlite-bridge"

// Config stores environment-driven settings for the bridge.
type Config struct {
	// ConfigPath is the path to the YAML configuration file. Empty selects the embedded default.
	ConfigPath string `env:"SQLITE_BRIDGE_CONFIG"`
	// LogLevel sets the operational logger level.
	LogLevel string `env:"SQLITE_BRIDGE_LOG_LEVEL" envDefault:"info"`
	// Lang selects the audit message language. It overrides audit.lang.
	Lang string `env:"SQLITE_BRIDGE_LANG"`
	// DataDir is the application's private data directory.
	DataDir string `env:"SQLITE_BRIDGE_DATA_DIR"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"SQLITE_BRIDGE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// OTelEndpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	OTelEndpoint string `env:"SQLITE_BRIDGE_OTEL_ENDPOINT"`
	// OTelEnabled can switch tracing off even when an endpoint is set.
	OTelEnabled bool `env:"SQLITE_BRIDGE_OTEL_ENABLED" envDefault:"true"`
}

// Load parses environment variables into Config and resolves DataDir.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	return cfg, nil
}

// DefaultDataDir returns the per-user configuration directory for the
// application, or a relative directory when it cannot be determined.
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return "." + AppName
	}
	return filepath.Join(base, AppName)
}
