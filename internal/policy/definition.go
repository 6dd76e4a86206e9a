package policy

import (
	"fmt"
	"strings"
	"time"
)

const DefaultTimezone = "UTC"

// DefinitionOption customizes NewDefinition.
type DefinitionOption func(*Definition)

// WithTimezone sets the IANA zone used for every wall-clock comparison.
func WithTimezone(tz string) DefinitionOption {
	return func(d *Definition) {
		d.Timezone = tz
	}
}

// WithEnabled sets the master switch. Definitions are enabled by default.
func WithEnabled(enabled bool) DefinitionOption {
	return func(d *Definition) {
		d.Enabled = enabled
	}
}

// NewDefinition validates and builds a Definition. Unknown timezones, empty
// identities, out-of-range calendar fields and negative intervals are
// rejected here so evaluation never has to fail. An interval with neither
// minutes nor hours set is accepted and reported by the evaluator instead.
func NewDefinition(tenantID, name string, cfg ScheduleConfig, opts ...DefinitionOption) (*Definition, error) {
	d := &Definition{
		TenantID: strings.TrimSpace(tenantID),
		Name:     strings.TrimSpace(name),
		Config:   cfg,
		Timezone: DefaultTimezone,
		Enabled:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.Timezone == "" {
		d.Timezone = DefaultTimezone
	}

	v := &validator{cause: ErrInvalidDefinition}
	if d.TenantID == "" {
		v.add("tenantId", "is required")
	}
	if d.Name == "" {
		v.add("name", "is required")
	}

	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		v.add("timezone", "unknown IANA zone %q", d.Timezone)
	} else {
		d.loc = loc
	}

	switch c := cfg.(type) {
	case nil:
		v.add("config", "is required")
	case OnceConfig:
		if c.TargetDate.IsZero() {
			v.add("config.targetDate", "is required")
		}
	case IntervalConfig:
		if c.Minutes < 0 {
			v.add("config.minutes", "must not be negative")
		}
		if c.Hours < 0 {
			v.add("config.hours", "must not be negative")
		}
	case CalendarConfig:
		validateCalendar(v, c)
		d.Config = copyCalendar(c)
	default:
		v.add("config", "unsupported config %T", cfg)
	}
	if cfg != nil {
		d.Type = cfg.Type()
	}

	if err := v.errs.orNil(); err != nil {
		return nil, err
	}
	return d, nil
}

func validateCalendar(v *validator, c CalendarConfig) {
	if c.Hour < 0 || c.Hour > 23 {
		v.add("config.hour", "must be between 0 and 23")
	}
	if c.Minute < 0 || c.Minute > 59 {
		v.add("config.minute", "must be between 0 and 59")
	}
	if c.DayOfWeek != nil && (*c.DayOfWeek < time.Sunday || *c.DayOfWeek > time.Saturday) {
		v.add("config.dayOfWeek", "must be between 0 and 6")
	}
	if c.DayOfMonth != nil && (*c.DayOfMonth < 1 || *c.DayOfMonth > 31) {
		v.add("config.dayOfMonth", "must be between 1 and 31")
	}
}

// copyCalendar detaches the day filters from caller-owned pointers.
func copyCalendar(c CalendarConfig) CalendarConfig {
	out := CalendarConfig{Hour: c.Hour, Minute: c.Minute}
	if c.DayOfWeek != nil {
		dow := *c.DayOfWeek
		out.DayOfWeek = &dow
	}
	if c.DayOfMonth != nil {
		dom := *c.DayOfMonth
		out.DayOfMonth = &dom
	}
	return out
}

// ConfigSpec is the flat wire form of a ScheduleConfig. Which fields are
// meaningful depends on the definition type.
type ConfigSpec struct {
	TargetDate string `json:"targetDate,omitempty" yaml:"targetDate,omitempty"`
	Minutes    int    `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Hours      int    `json:"hours,omitempty" yaml:"hours,omitempty"`
	Hour       *int   `json:"hour,omitempty" yaml:"hour,omitempty"`
	Minute     *int   `json:"minute,omitempty" yaml:"minute,omitempty"`
	DayOfWeek  *int   `json:"dayOfWeek,omitempty" yaml:"dayOfWeek,omitempty"`
	DayOfMonth *int   `json:"dayOfMonth,omitempty" yaml:"dayOfMonth,omitempty"`
}

// DefinitionSpec is the serializable form of a Definition used by manifests,
// storage and the CLI.
type DefinitionSpec struct {
	TenantID string       `json:"tenantId" yaml:"tenantId"`
	Name     string       `json:"name" yaml:"name"`
	Type     ScheduleType `json:"type" yaml:"type"`
	Config   ConfigSpec   `json:"config" yaml:"config"`
	Timezone string       `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Enabled  *bool        `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Build validates the spec and returns the Definition it describes. Fields
// that do not belong to the declared type are rejected.
func (s DefinitionSpec) Build() (*Definition, error) {
	tz := s.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, ValidationErrors{{Field: "timezone", Message: fmt.Sprintf("unknown IANA zone %q", tz), Cause: ErrInvalidDefinition}}
	}

	v := &validator{cause: ErrInvalidDefinition}
	cfg := s.Config.build(strings.ToUpper(string(s.Type)), loc, v)
	if err := v.errs.orNil(); err != nil {
		return nil, err
	}

	opts := []DefinitionOption{WithTimezone(tz)}
	if s.Enabled != nil {
		opts = append(opts, WithEnabled(*s.Enabled))
	}
	return NewDefinition(s.TenantID, s.Name, cfg, opts...)
}

func (c ConfigSpec) build(typ string, loc *time.Location, v *validator) ScheduleConfig {
	onceOnly := c.TargetDate != ""
	intervalOnly := c.Minutes != 0 || c.Hours != 0
	calendarOnly := c.Hour != nil || c.Minute != nil || c.DayOfWeek != nil || c.DayOfMonth != nil

	switch ScheduleType(typ) {
	case ScheduleTypeOnce:
		if intervalOnly || calendarOnly {
			v.add("config", "only targetDate is allowed for %s", typ)
		}
		if c.TargetDate == "" {
			v.add("config.targetDate", "is required")
			return nil
		}
		target, err := ParseTargetDate(c.TargetDate, loc)
		if err != nil {
			v.add("config.targetDate", "%v", err)
			return nil
		}
		return OnceConfig{TargetDate: target}

	case ScheduleTypeInterval:
		if onceOnly || calendarOnly {
			v.add("config", "only minutes and hours are allowed for %s", typ)
		}
		return IntervalConfig{Minutes: c.Minutes, Hours: c.Hours}

	case ScheduleTypeCalendar:
		if onceOnly || intervalOnly {
			v.add("config", "only hour, minute, dayOfWeek and dayOfMonth are allowed for %s", typ)
		}
		if c.Hour == nil {
			v.add("config.hour", "is required")
			return nil
		}
		cfg := CalendarConfig{Hour: *c.Hour}
		if c.Minute != nil {
			cfg.Minute = *c.Minute
		}
		if c.DayOfWeek != nil {
			dow := time.Weekday(*c.DayOfWeek)
			cfg.DayOfWeek = &dow
		}
		if c.DayOfMonth != nil {
			dom := *c.DayOfMonth
			cfg.DayOfMonth = &dom
		}
		return cfg

	default:
		v.add("type", "must be one of ONCE, INTERVAL, CALENDAR (got %q)", typ)
		return nil
	}
}

// Spec returns the serializable form of d.
func (d *Definition) Spec() DefinitionSpec {
	enabled := d.Enabled
	s := DefinitionSpec{
		TenantID: d.TenantID,
		Name:     d.Name,
		Type:     d.Type,
		Timezone: d.Timezone,
		Enabled:  &enabled,
	}
	switch c := d.Config.(type) {
	case OnceConfig:
		s.Config.TargetDate = c.TargetDate.UTC().Format(time.RFC3339Nano)
	case IntervalConfig:
		s.Config.Minutes = c.Minutes
		s.Config.Hours = c.Hours
	case CalendarConfig:
		hour, minute := c.Hour, c.Minute
		s.Config.Hour = &hour
		s.Config.Minute = &minute
		if c.DayOfWeek != nil {
			dow := int(*c.DayOfWeek)
			s.Config.DayOfWeek = &dow
		}
		if c.DayOfMonth != nil {
			dom := *c.DayOfMonth
			s.Config.DayOfMonth = &dom
		}
	}
	return s
}

var targetLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTargetDate parses an ISO-8601 instant. Strings without an offset are
// read as wall-clock time in loc.
func ParseTargetDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range targetLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date", s)
}
