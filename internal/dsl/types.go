package dsl

// Config is the top-level YAML configuration.
type Config struct {
	// Server describes the server settings.
	Server ServerConfig `yaml:"server"`
	// Database selects the driver and the initial target.
	Database DatabaseConfig `yaml:"database"`
	// Audit configures the invocation log.
	Audit AuditConfig `yaml:"audit"`
	// Commands is the allow-list. Empty exposes every command.
	Commands []CommandConfig `yaml:"commands"`
}

// ServerConfig defines server settings.
type ServerConfig struct {
	// Name is the MCP server name.
	Name string `yaml:"name"`
	// Version is the MCP server version.
	Version string `yaml:"version"`
	// Transport selects the server transport ("http" or "stdio").
	Transport string `yaml:"transport"`
	// ShutdownTimeout overrides graceful shutdown duration.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// HTTP configures HTTP transport.
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// Path is the MCP HTTP endpoint path.
	Path string `yaml:"path"`
	// CommandsPath is the prefix of the JSON command endpoint.
	CommandsPath string `yaml:"commands_path"`
	// ReadTimeout limits request read time.
	ReadTimeout string `yaml:"read_timeout"`
	// WriteTimeout limits response write time.
	WriteTimeout string `yaml:"write_timeout"`
	// IdleTimeout controls idle connections.
	IdleTimeout string `yaml:"idle_timeout"`
	// Stateless disables MCP session tracking.
	Stateless bool `yaml:"stateless"`
}

// DatabaseConfig configures the SQLite engine.
type DatabaseConfig struct {
	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver"`
	// Target is opened at startup when set.
	Target string `yaml:"target"`
	// IsURI marks Target as a file: URI.
	IsURI bool `yaml:"is_uri"`
	// Autocommit defaults to true.
	Autocommit *bool `yaml:"autocommit"`
	// BusyTimeout is applied on every connect.
	BusyTimeout string `yaml:"busy_timeout"`
}

// AuditConfig configures the invocation log.
type AuditConfig struct {
	// File is the log file. Relative paths live in the data directory.
	File string `yaml:"file"`
	// Console copies every line to stderr. Defaults to true.
	Console *bool `yaml:"console"`
	// Lang selects message wording ("en" or "de").
	Lang string `yaml:"lang"`
	// MaxSubjectLength bounds logged subjects in characters.
	MaxSubjectLength int `yaml:"max_subject_length"`
}

// CommandConfig enables and tunes one command.
type CommandConfig struct {
	// Name is the wire name of the command.
	Name string `yaml:"name"`
	// Timeout bounds the engine call.
	Timeout string `yaml:"timeout"`
	// MaxTotal limits total calls.
	MaxTotal int `yaml:"max_total"`
	// RatePerMinute limits requests per minute.
	RatePerMinute int `yaml:"rate_per_minute"`
	// FieldPolicies validates named parameters.
	FieldPolicies map[string]FieldPolicy `yaml:"fields"`
}

// FieldPolicy defines validation rules for command parameters.
type FieldPolicy struct {
	// Regex validates string value format.
	Regex string `yaml:"regex"`
	// Min sets numeric minimum.
	Min *float64 `yaml:"min"`
	// Max sets numeric maximum.
	Max *float64 `yaml:"max"`
	// MinLength sets string minimum length.
	MinLength *int `yaml:"min_length"`
	// MaxLength sets string maximum length.
	MaxLength *int `yaml:"max_length"`
}
