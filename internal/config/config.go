// Package config handles convo configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for convo.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Client controls the HTTP API client.
	Client ClientConfig `yaml:"client" mapstructure:"client"`

	// Stream controls the live event watcher.
	Stream StreamConfig `yaml:"stream" mapstructure:"stream"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where convo stores its data (default: ~/.local/share/convo).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/convo).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ClientConfig contains API client settings.
type ClientConfig struct {
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// PageSize is the number of conversations requested per page.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// RequestsPerSecond caps outgoing API calls per client.
	RequestsPerSecond int `yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StreamConfig contains live event watcher settings.
type StreamConfig struct {
	// Enabled turns the websocket watcher on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ReconnectInterval is the initial delay before reconnecting.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`

	// MaxReconnectInterval caps the reconnect backoff.
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval" mapstructure:"max_reconnect_interval"`

	// Buffer is the event channel capacity.
	Buffer int `yaml:"buffer" mapstructure:"buffer"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// AccountCreationEnabled shows the "add account" entry and the badge dot.
	AccountCreationEnabled bool `yaml:"account_creation_enabled" mapstructure:"account_creation_enabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "convo"),
			ConfigDir: filepath.Join(homeDir, ".config", "convo"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/convo.db
			MaxConnections: 4,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Client: ClientConfig{
			Timeout:           15 * time.Second,
			PageSize:          20,
			RequestsPerSecond: 5,
			UserAgent:         "convo/dev",
		},
		Stream: StreamConfig{
			Enabled:              true,
			ReconnectInterval:    2 * time.Second,
			MaxReconnectInterval: time.Minute,
			Buffer:               256,
		},
		TUI: TUIConfig{
			Theme:                  "default",
			AccountCreationEnabled: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}
	if c.Client.Timeout < 100*time.Millisecond {
		return fmt.Errorf("client.timeout must be at least 100ms")
	}
	if c.Client.PageSize < 1 || c.Client.PageSize > 40 {
		return fmt.Errorf("client.page_size must be between 1 and 40")
	}
	if c.Client.RequestsPerSecond < 1 {
		return fmt.Errorf("client.requests_per_second must be at least 1")
	}
	if c.Stream.ReconnectInterval < 100*time.Millisecond {
		return fmt.Errorf("stream.reconnect_interval must be at least 100ms")
	}
	if c.Stream.MaxReconnectInterval < c.Stream.ReconnectInterval {
		return fmt.Errorf("stream.max_reconnect_interval must not be below stream.reconnect_interval")
	}
	if c.Stream.Buffer < 1 {
		return fmt.Errorf("stream.buffer must be at least 1")
	}
	switch c.TUI.Theme {
	case "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "convo.db")
}

// PreferencesPath returns the preferences file path.
func (c *Config) PreferencesPath() string {
	return filepath.Join(c.Global.DataDir, "preferences.json")
}

// ContextPath returns the active-account context file path.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
