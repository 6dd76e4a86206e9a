package config

import (
	"fmt"
	"time"
)

// FieldType represents the type of a configuration field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInt      FieldType = "int"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDuration FieldType = "duration"
)

// FieldMeta describes one configuration key with its default and current value.
type FieldMeta struct {
	Key         string    `json:"key" yaml:"key"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any       `json:"default" yaml:"default"`
	Current     any       `json:"current" yaml:"current"`
}

// SectionMeta groups the fields of one top-level configuration section.
type SectionMeta struct {
	Key         string      `json:"key" yaml:"key"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldMeta `json:"fields" yaml:"fields"`
}

// Describe returns every configuration key in file order, annotated with its
// default and the value in current. Durations are rendered in a form viper
// parses back.
func Describe(current *Config) []SectionMeta {
	d := Default()

	return []SectionMeta{
		{
			Key:         "server",
			Name:        "Server",
			Description: "Ops HTTP server exposing /health and /metrics",
			Fields: []FieldMeta{
				boolField("enabled", "Start the ops server with the runner", d.Server.Enabled, current.Server.Enabled),
				stringField("host", "Host to bind the server to", d.Server.Host, current.Server.Host),
				intField("port", "Port to listen on", d.Server.Port, current.Server.Port),
				durationField("read_timeout", "Request read timeout", d.Server.ReadTimeout, current.Server.ReadTimeout),
				durationField("write_timeout", "Response write timeout", d.Server.WriteTimeout, current.Server.WriteTimeout),
				durationField("idle_timeout", "Keep-alive idle timeout", d.Server.IdleTimeout, current.Server.IdleTimeout),
			},
		},
		{
			Key:         "database",
			Name:        "Database",
			Description: "SQLite storage for schedules, history and events",
			Fields: []FieldMeta{
				stringField("path", "Path to SQLite database file", d.Database.Path, current.Database.Path),
				boolField("wal_mode", "Enable WAL journal mode", d.Database.WALMode, current.Database.WALMode),
				intField("cache_size", "Page cache size (negative means KB)", d.Database.CacheSize, current.Database.CacheSize),
				durationField("busy_timeout", "How long to wait on a locked database", d.Database.BusyTimeout, current.Database.BusyTimeout),
				boolField("foreign_keys", "Enforce foreign keys", d.Database.ForeignKeys, current.Database.ForeignKeys),
				intField("max_open_conns", "Maximum open connections", d.Database.MaxOpenConns, current.Database.MaxOpenConns),
				intField("max_idle_conns", "Maximum idle connections", d.Database.MaxIdleConns, current.Database.MaxIdleConns),
				durationField("conn_max_lifetime", "Connection max lifetime (0 keeps forever)", d.Database.ConnMaxLifetime, current.Database.ConnMaxLifetime),
			},
		},
		{
			Key:         "logging",
			Name:        "Logging",
			Description: "Log output",
			Fields: []FieldMeta{
				stringField("level", "trace, debug, info, warn, error, fatal or panic", d.Logging.Level, current.Logging.Level),
				stringField("format", "json or console", d.Logging.Format, current.Logging.Format),
				boolField("caller", "Include caller information", d.Logging.Caller, current.Logging.Caller),
				boolField("timestamp", "Include timestamps", d.Logging.Timestamp, current.Logging.Timestamp),
			},
		},
		{
			Key:         "runner",
			Name:        "Runner",
			Description: "Evaluation loop",
			Fields: []FieldMeta{
				stringField("tick_spec", "Cron expression driving evaluation passes", d.Runner.TickSpec, current.Runner.TickSpec),
				durationField("limit_window", "Lookback for executionsInWindow", d.Runner.LimitWindow, current.Runner.LimitWindow),
				intField("recent_executions", "Recent executions handed to the engine", d.Runner.RecentExecutions, current.Runner.RecentExecutions),
				boolField("dry_run", "Audit decisions without firing", d.Runner.DryRun, current.Runner.DryRun),
				stringField("manifest", "Schedule manifest synced on start", d.Runner.Manifest, current.Runner.Manifest),
				boolField("watch", "Re-sync the manifest when it changes", d.Runner.Watch, current.Runner.Watch),
				durationField("history_retention", "How long executions and decisions are kept", d.Runner.HistoryRetention, current.Runner.HistoryRetention),
			},
		},
		{
			Key:         "events",
			Name:        "Events",
			Description: "Trigger outbox",
			Fields: []FieldMeta{
				durationField("retention", "How long processed events are kept", d.Events.Retention, current.Events.Retention),
				durationField("process_interval", "Outbox poll interval", d.Events.ProcessInterval, current.Events.ProcessInterval),
				durationField("cleanup_interval", "How often old events are deleted", d.Events.CleanupInterval, current.Events.CleanupInterval),
				intField("batch_size", "Events dispatched per poll", d.Events.BatchSize, current.Events.BatchSize),
			},
		},
	}
}

func stringField(key, desc, def, cur string) FieldMeta {
	return FieldMeta{Key: key, Type: FieldTypeString, Description: desc, Default: def, Current: cur}
}

func intField(key, desc string, def, cur int) FieldMeta {
	return FieldMeta{Key: key, Type: FieldTypeInt, Description: desc, Default: def, Current: cur}
}

func boolField(key, desc string, def, cur bool) FieldMeta {
	return FieldMeta{Key: key, Type: FieldTypeBool, Description: desc, Default: def, Current: cur}
}

func durationField(key, desc string, def, cur time.Duration) FieldMeta {
	return FieldMeta{Key: key, Type: FieldTypeDuration, Description: desc, Default: formatDuration(def), Current: formatDuration(cur)}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d%time.Millisecond == 0 {
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
	return d.String()
}
