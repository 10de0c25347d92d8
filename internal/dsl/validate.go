package dsl

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/codex-k8s/sqlite-bridge/internal/commands"
	"github.com/codex-k8s/sqlite-bridge/internal/constants"
	"github.com/codex-k8s/sqlite-bridge/internal/policy"
	"github.com/codex-k8s/sqlite-bridge/internal/templates"
	"github.com/codex-k8s/sqlite-bridge/internal/timeutil"
)

// Defaults applied by Validate.
const (
	DefaultListen           = ":8080"
	DefaultMCPPath          = "/mcp"
	DefaultCommandsPath     = "/commands/"
	DefaultAuditFile        = "db_access.log"
	DefaultMaxSubjectLength = 200
)

// Validate applies defaults and verifies required fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Name == "" {
		return fmt.Errorf("server.name is required")
	}
	if cfg.Server.Version == "" {
		return fmt.Errorf("server.version is required")
	}
	switch cfg.Server.Transport {
	case "":
		cfg.Server.Transport = constants.TransportHTTP
	case constants.TransportHTTP, constants.TransportStdio:
	default:
		return fmt.Errorf("server.transport must be http or stdio")
	}
	if strings.TrimSpace(cfg.Server.HTTP.Listen) == "" {
		cfg.Server.HTTP.Listen = DefaultListen
	}
	if cfg.Server.HTTP.Path == "" {
		cfg.Server.HTTP.Path = DefaultMCPPath
	}
	if cfg.Server.HTTP.CommandsPath == "" {
		cfg.Server.HTTP.CommandsPath = DefaultCommandsPath
	}
	if !strings.HasPrefix(cfg.Server.HTTP.Path, "/") {
		return fmt.Errorf("server.http.path must start with /")
	}
	if !strings.HasPrefix(cfg.Server.HTTP.CommandsPath, "/") || !strings.HasSuffix(cfg.Server.HTTP.CommandsPath, "/") {
		return fmt.Errorf("server.http.commands_path must start and end with /")
	}
	for field, value := range map[string]string{
		"server.shutdown_timeout":   cfg.Server.ShutdownTimeout,
		"server.http.read_timeout":  cfg.Server.HTTP.ReadTimeout,
		"server.http.write_timeout": cfg.Server.HTTP.WriteTimeout,
		"server.http.idle_timeout":  cfg.Server.HTTP.IdleTimeout,
		"database.busy_timeout":     cfg.Database.BusyTimeout,
	} {
		if _, err := timeutil.Parse(value); err != nil {
			return fmt.Errorf("%s is invalid: %w", field, err)
		}
	}

	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = constants.DriverMattn
	case constants.DriverMattn, constants.DriverModernc:
	default:
		return fmt.Errorf("database.driver must be %s or %s", constants.DriverMattn, constants.DriverModernc)
	}
	if cfg.Database.IsURI && cfg.Database.Target == "" {
		return fmt.Errorf("database.is_uri requires database.target")
	}

	if cfg.Audit.File == "" {
		cfg.Audit.File = DefaultAuditFile
	}
	if cfg.Audit.Lang != "" && !slices.Contains(templates.Languages(), cfg.Audit.Lang) {
		return fmt.Errorf("audit.lang must be one of %s", strings.Join(templates.Languages(), ", "))
	}
	if cfg.Audit.MaxSubjectLength == 0 {
		cfg.Audit.MaxSubjectLength = DefaultMaxSubjectLength
	}
	if cfg.Audit.MaxSubjectLength < 0 {
		return fmt.Errorf("audit.max_subject_length must be > 0")
	}

	seen := map[string]struct{}{}
	for i, cmd := range cfg.Commands {
		if cmd.Name == "" {
			return fmt.Errorf("commands[%d].name is required", i)
		}
		if !commands.Known(cmd.Name) {
			return fmt.Errorf("commands[%d].name: unknown command %s", i, cmd.Name)
		}
		if _, exists := seen[cmd.Name]; exists {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seen[cmd.Name] = struct{}{}
		if _, err := timeutil.Parse(cmd.Timeout); err != nil {
			return fmt.Errorf("commands[%d].timeout is invalid: %w", i, err)
		}
		if cmd.MaxTotal < 0 {
			return fmt.Errorf("commands[%d].max_total must be >= 0", i)
		}
		if cmd.RatePerMinute < 0 {
			return fmt.Errorf("commands[%d].rate_per_minute must be >= 0", i)
		}
	}

	return nil
}

// AuditPath resolves the audit file against the data directory.
func (c AuditConfig) AuditPath(dataDir string) string {
	if filepath.IsAbs(c.File) {
		return c.File
	}
	return filepath.Join(dataDir, c.File)
}

// ConsoleEnabled reports whether lines are copied to stderr.
func (c AuditConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// AutocommitEnabled reports the autocommit mode for the initial target.
func (c DatabaseConfig) AutocommitEnabled() bool {
	return c.Autocommit == nil || *c.Autocommit
}

// BusyTimeoutDuration returns the parsed busy timeout.
func (c DatabaseConfig) BusyTimeoutDuration() time.Duration {
	return timeutil.ParseDurationOrDefault(c.BusyTimeout, 0)
}

// CommandOptions converts the allow-list into registry options.
func (c *Config) CommandOptions() commands.Options {
	opts := commands.Options{Settings: make(map[string]commands.Settings, len(c.Commands))}
	for _, cmd := range c.Commands {
		opts.Enabled = append(opts.Enabled, cmd.Name)
		opts.Settings[cmd.Name] = commands.Settings{
			Timeout: timeutil.ParseDurationOrDefault(cmd.Timeout, 0),
			Rules: policy.Rules{
				MaxTotal:      cmd.MaxTotal,
				RatePerMinute: cmd.RatePerMinute,
				Fields:        toFieldPolicies(cmd.FieldPolicies),
			},
		}
	}
	return opts
}

func toFieldPolicies(policies map[string]FieldPolicy) map[string]policy.FieldPolicy {
	if policies == nil {
		return nil
	}
	out := make(map[string]policy.FieldPolicy, len(policies))
	for key, value := range policies {
		out[key] = policy.FieldPolicy{
			Regex:     value.Regex,
			Min:       value.Min,
			Max:       value.Max,
			MinLength: value.MinLength,
			MaxLength: value.MaxLength,
		}
	}
	return out
}
