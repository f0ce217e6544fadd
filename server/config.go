package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cyp0633/caldelete/server/deletion"
	"gopkg.in/yaml.v3"
)

// Config contains configuration for the CalDAV handler.
type Config struct {
	// Prefix is the base path where the handler is mounted, e.g. "/caldav/".
	Prefix string `yaml:"prefix"`
	// Realm is sent in the Basic auth challenge.
	Realm string `yaml:"realm"`
	// CustomHeaders are added to every response.
	CustomHeaders map[string]string `yaml:"custom_headers"`
	// Deletion configures the delete orchestrator.
	Deletion deletion.Config `yaml:"deletion"`

	// Logger is the slog.Logger to use for logging. If nil, logging is disabled.
	Logger *slog.Logger `yaml:"-"`
	// URLConverter defaults to a DefaultURLConverter on Prefix.
	URLConverter URLConverter `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Prefix: "/caldav/",
		Realm:  "caldelete",
		Deletion: deletion.Config{
			LockTimeout: deletion.DefaultLockTimeout,
			LockClass:   deletion.DefaultLockClass,
		},
	}
}

// Option is a function that modifies Config
type Option func(*Config)

// WithPrefix sets the URL prefix for the handler
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithRealm sets the Basic auth realm
func WithRealm(realm string) Option {
	return func(c *Config) {
		c.Realm = realm
	}
}

// WithCustomHeaders sets custom response headers
func WithCustomHeaders(headers map[string]string) Option {
	return func(c *Config) {
		c.CustomHeaders = headers
	}
}

// WithLogger sets the logger for the handler
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithURLConverter sets the path convention
func WithURLConverter(converter URLConverter) Option {
	return func(c *Config) {
		c.URLConverter = converter
	}
}

// WithConfig replaces the whole configuration, typically one loaded from a file.
// Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// ParseConfig decodes a YAML configuration on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Deletion.LockTimeout < 0 {
		return Config{}, fmt.Errorf("parse config: negative lock_timeout %s", cfg.Deletion.LockTimeout)
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}
