package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 9464
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 60 * time.Second

	// Database defaults.
	DefaultDBPath       = "cadence.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// Runner defaults.
	DefaultTickSpec         = "* * * * *"
	DefaultLimitWindow      = time.Hour
	DefaultRecentExecutions = 10
	DefaultHistoryRetention = 30 * 24 * time.Hour

	// Events defaults.
	DefaultEventRetention       = 7 * 24 * time.Hour
	DefaultEventProcessInterval = time.Second
	DefaultEventCleanupInterval = time.Hour
	DefaultEventBatchSize       = 100
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:      true,
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			CacheSize:    DefaultCacheSize,
			BusyTimeout:  DefaultBusyTimeout,
			ForeignKeys:  true,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
		Runner: RunnerConfig{
			TickSpec:         DefaultTickSpec,
			LimitWindow:      DefaultLimitWindow,
			RecentExecutions: DefaultRecentExecutions,
			HistoryRetention: DefaultHistoryRetention,
		},
		Events: EventsConfig{
			Retention:       DefaultEventRetention,
			ProcessInterval: DefaultEventProcessInterval,
			CleanupInterval: DefaultEventCleanupInterval,
			BatchSize:       DefaultEventBatchSize,
		},
	}
}
