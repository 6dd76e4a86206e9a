// Package config provides configuration management for Cadence.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for Cadence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	// Enable the ops server when running
	Enabled bool `mapstructure:"enabled"`

	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Address returns the listen address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller information
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`
}

// RunnerConfig controls the evaluation loop.
type RunnerConfig struct {
	// Cron expression driving evaluation passes
	TickSpec string `mapstructure:"tick_spec"`

	// Lookback used to count executionsInWindow
	LimitWindow time.Duration `mapstructure:"limit_window"`

	// Number of recent executions handed to the engine
	RecentExecutions int `mapstructure:"recent_executions"`

	// Evaluate and audit without publishing or recording executions
	DryRun bool `mapstructure:"dry_run"`

	// Manifest synced on start, and on change when Watch is set
	Manifest string `mapstructure:"manifest"`
	Watch    bool   `mapstructure:"watch"`

	// How long execution and decision rows are kept (0 keeps forever)
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

// EventsConfig controls the trigger outbox.
type EventsConfig struct {
	Retention       time.Duration `mapstructure:"retention"`
	ProcessInterval time.Duration `mapstructure:"process_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
}
