package policy

import (
	"encoding/json"
	"time"
)

// ScheduleType discriminates the temporal semantics of a definition.
type ScheduleType string

const (
	// ScheduleTypeOnce fires a single time once its target instant is reached.
	ScheduleTypeOnce ScheduleType = "ONCE"
	// ScheduleTypeInterval fires every N minutes or hours.
	ScheduleTypeInterval ScheduleType = "INTERVAL"
	// ScheduleTypeCalendar fires at a wall-clock hour and minute, optionally
	// filtered by day of week and day of month.
	ScheduleTypeCalendar ScheduleType = "CALENDAR"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleTypeOnce, ScheduleTypeInterval, ScheduleTypeCalendar:
		return true
	}
	return false
}

// ScheduleConfig is the variant payload of a Definition. The set of
// implementations is closed: OnceConfig, IntervalConfig and CalendarConfig.
type ScheduleConfig interface {
	Type() ScheduleType
	isScheduleConfig()
}

// OnceConfig targets a single instant.
type OnceConfig struct {
	TargetDate time.Time
}

func (OnceConfig) Type() ScheduleType { return ScheduleTypeOnce }
func (OnceConfig) isScheduleConfig()  {}

// IntervalConfig repeats every Minutes, or every Hours when Minutes is not
// positive. With neither positive the interval is unusable and evaluation
// degrades to a non-triggering decision.
type IntervalConfig struct {
	Minutes int
	Hours   int
}

func (IntervalConfig) Type() ScheduleType { return ScheduleTypeInterval }
func (IntervalConfig) isScheduleConfig()  {}

// Interval returns the effective interval. Minutes take precedence over hours.
func (c IntervalConfig) Interval() (time.Duration, bool) {
	if c.Minutes > 0 {
		return time.Duration(c.Minutes) * time.Minute, true
	}
	if c.Hours > 0 {
		return time.Duration(c.Hours) * time.Hour, true
	}
	return 0, false
}

// CalendarConfig fires at Hour:Minute in the definition's timezone. Nil day
// filters mean "any day".
type CalendarConfig struct {
	Hour       int
	Minute     int
	DayOfWeek  *time.Weekday
	DayOfMonth *int
}

func (CalendarConfig) Type() ScheduleType { return ScheduleTypeCalendar }
func (CalendarConfig) isScheduleConfig()  {}

func (c CalendarConfig) matchesDay(t time.Time) bool {
	if c.DayOfWeek != nil && t.Weekday() != *c.DayOfWeek {
		return false
	}
	if c.DayOfMonth != nil && t.Day() != *c.DayOfMonth {
		return false
	}
	return true
}

// Definition is an immutable description of what runs and when. Build it with
// NewDefinition or DefinitionSpec.Build so the timezone is resolved up front.
type Definition struct {
	TenantID string
	Name     string
	Type     ScheduleType
	Config   ScheduleConfig
	Timezone string
	Enabled  bool

	loc *time.Location
}

// Location returns the resolved timezone, UTC if the definition was not built
// through a constructor.
func (d *Definition) Location() *time.Location {
	if d.loc == nil {
		return time.UTC
	}
	return d.loc
}

// TimeWindow is an allowed "HH:MM"-"HH:MM" range, inclusive at both ends.
// A window whose start is later than its end wraps past midnight. DaysOfWeek,
// when set, must contain the current local weekday.
type TimeWindow struct {
	Start      string
	End        string
	DaysOfWeek []time.Weekday
}

// Policy is a governance overlay. The zero value imposes no restriction.
type Policy struct {
	ExcludedDates          []string
	ExcludedDaysOfWeek     []time.Weekday
	AllowedTimeWindows     []TimeWindow
	Cooldown               time.Duration
	MaxExecutionsPerWindow int // 0 means unlimited
	SkipMissed             bool
}

// HistorySummary is the caller's pre-aggregated view of past executions.
type HistorySummary struct {
	LastExecutionAt    *time.Time
	ExecutionsInWindow int
	RecentExecutions   []time.Time
}

// EvaluationContext is the moment of judgment.
type EvaluationContext struct {
	Now           time.Time
	History       HistorySummary
	DryRun        bool   // forwarded for audit only
	CorrelationID string // forwarded unchanged
}

// BlockReason enumerates why a decision did not trigger. The empty value means
// the decision was not blocked.
type BlockReason string

const (
	BlockedByNone         BlockReason = ""
	BlockedByDisabled     BlockReason = "DISABLED"
	BlockedByExcludedDate BlockReason = "EXCLUDED_DATE"
	BlockedByExcludedDay  BlockReason = "EXCLUDED_DAY"
	BlockedByWindow       BlockReason = "WINDOW"
	BlockedByCooldown     BlockReason = "COOLDOWN"
	BlockedByLimit        BlockReason = "LIMIT"
	BlockedByNotYet       BlockReason = "NOT_YET"
	BlockedByAlreadyRan   BlockReason = "ALREADY_RAN"
)

// MarshalJSON renders BlockedByNone as null.
func (r BlockReason) MarshalJSON() ([]byte, error) {
	if r == BlockedByNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// MarshalYAML renders BlockedByNone as null.
func (r BlockReason) MarshalYAML() (any, error) {
	if r == BlockedByNone {
		return nil, nil
	}
	return string(r), nil
}

// UnmarshalJSON accepts null as BlockedByNone.
func (r *BlockReason) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = BlockedByNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = BlockReason(s)
	return nil
}

// Decision is the fully populated outcome of an evaluation.
type Decision struct {
	ShouldTrigger  bool           `json:"shouldTrigger" yaml:"shouldTrigger"`
	BlockedBy      BlockReason    `json:"blockedBy" yaml:"blockedBy"`
	Reason         string         `json:"reason" yaml:"reason"`
	NextEligibleAt *time.Time     `json:"nextEligibleAt" yaml:"nextEligibleAt"`
	Details        map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	EvaluatedAt    time.Time      `json:"evaluatedAt" yaml:"evaluatedAt"`
}
