package runner

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxMissedTicks bounds the missed-tick count reported during recovery.
const maxMissedTicks = 1000

// TickSchedule wraps the cron expression that drives evaluation passes.
type TickSchedule struct {
	spec     string
	schedule cron.Schedule
}

// ParseTickSpec parses a standard five-field cron expression or a
// descriptor such as "@every 30s".
func ParseTickSpec(spec string) (*TickSchedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing tick spec %q: %w", spec, err)
	}
	return &TickSchedule{spec: spec, schedule: schedule}, nil
}

func (t *TickSchedule) String() string { return t.spec }

// Next returns the first tick strictly after the given time.
func (t *TickSchedule) Next(after time.Time) time.Time {
	return t.schedule.Next(after.UTC())
}

// MissedBetween counts the ticks that fell in (from, to].
func (t *TickSchedule) MissedBetween(from, to time.Time) int {
	missed := 0
	for next := t.Next(from); !next.After(to) && missed < maxMissedTicks; next = t.Next(next) {
		missed++
	}
	return missed
}
