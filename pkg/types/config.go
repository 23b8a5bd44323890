package types

import (
	"errors"
	"log/slog"
	"strings"
)

// Config holds backend selection and runtime parameters. The CLI fills it
// from config.yaml and flags; tests build it directly.
type Config struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir       string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	MigrationsDir string `json:"migrations_dir,omitempty" yaml:"migrations_dir,omitempty" mapstructure:"migrations_dir"`
	Listen        string `json:"listen,omitempty" yaml:"listen,omitempty" mapstructure:"listen"`
	LogLevel      string `json:"log_level,omitempty" yaml:"log_level,omitempty" mapstructure:"log_level"`
	LogFormat     string `json:"log_format,omitempty" yaml:"log_format,omitempty" mapstructure:"log_format"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultListen is the HTTP address used by serve when none is configured.
const DefaultListen = "127.0.0.1:8080"

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrLogLevelUnknown  = errors.New("unknown log level")
	ErrLogFormatUnknown = errors.New("unknown log format")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", LogFormatText, LogFormatJSON:
	default:
		return ErrLogFormatUnknown
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, ErrLogLevelUnknown
	}
	return lvl, nil
}

// ListenAddr returns Listen or DefaultListen.
func (c Config) ListenAddr() string {
	if c.Listen == "" {
		return DefaultListen
	}
	return c.Listen
}
