package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	lines := make([]string, len(e))
	for i, err := range e {
		lines[i] = "  - " + err.Error()
	}
	return "configuration validation failed:\n" + strings.Join(lines, "\n")
}

var (
	logLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	logFormats = []string{"json", "console"}
)

// checker collects failures for one Validate call.
type checker struct {
	errs ValidationErrors
}

func (c *checker) require(ok bool, field, format string, args ...any) {
	if !ok {
		c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
}

func (c *checker) atLeast(field string, d, floor time.Duration) {
	if floor == 0 {
		c.require(d >= 0, field, "must be non-negative")
		return
	}
	c.require(d >= floor, field, "must be at least %s", floor)
}

func (c *checker) oneOf(field, value string, allowed []string) {
	c.require(slices.Contains(allowed, value), field, "must be one of: %s", strings.Join(allowed, ", "))
}

// Validate reports every invalid setting at once.
func Validate(cfg *Config) error {
	c := &checker{}

	if s := cfg.Server; s.Enabled {
		c.require(s.Port >= 1 && s.Port <= 65535, "server.port", "must be between 1 and 65535")
		c.atLeast("server.read_timeout", s.ReadTimeout, 0)
		c.atLeast("server.write_timeout", s.WriteTimeout, 0)
		c.atLeast("server.idle_timeout", s.IdleTimeout, 0)
	}

	db := cfg.Database
	c.require(db.Path != "", "database.path", "required")
	c.atLeast("database.busy_timeout", db.BusyTimeout, 0)
	c.require(db.MaxOpenConns >= 0, "database.max_open_conns", "must be non-negative")

	c.oneOf("logging.level", cfg.Logging.Level, logLevels)
	c.oneOf("logging.format", cfg.Logging.Format, logFormats)

	r := cfg.Runner
	if _, err := cron.ParseStandard(r.TickSpec); err != nil {
		c.require(false, "runner.tick_spec", "invalid cron expression: %v", err)
	}
	c.atLeast("runner.limit_window", r.LimitWindow, time.Minute)
	c.require(r.RecentExecutions >= 0, "runner.recent_executions", "must be non-negative")
	c.require(!r.Watch || r.Manifest != "", "runner.watch", "requires runner.manifest")
	c.atLeast("runner.history_retention", r.HistoryRetention, 0)

	ev := cfg.Events
	c.atLeast("events.retention", ev.Retention, 0)
	c.atLeast("events.process_interval", ev.ProcessInterval, 10*time.Millisecond)
	c.atLeast("events.cleanup_interval", ev.CleanupInterval, time.Second)
	c.require(ev.BatchSize >= 1, "events.batch_size", "must be at least 1")

	if len(c.errs) > 0 {
		return c.errs
	}
	return nil
}
