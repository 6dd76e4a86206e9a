package policy

import (
	"sort"
	"strconv"
	"time"
)

// NewPolicy validates p and returns a normalized copy: excluded dates and
// weekdays are deduplicated and sorted, window order is kept.
func NewPolicy(p Policy) (*Policy, error) {
	v := &validator{cause: ErrInvalidPolicy}
	out := &Policy{
		Cooldown:               p.Cooldown,
		MaxExecutionsPerWindow: p.MaxExecutionsPerWindow,
		SkipMissed:             p.SkipMissed,
	}

	seenDates := make(map[string]bool, len(p.ExcludedDates))
	for i, d := range p.ExcludedDates {
		if _, err := time.Parse(dateLayout, d); err != nil {
			v.add(indexed("excludedDates", i), "expected YYYY-MM-DD, got %q", d)
			continue
		}
		if !seenDates[d] {
			seenDates[d] = true
			out.ExcludedDates = append(out.ExcludedDates, d)
		}
	}
	sort.Strings(out.ExcludedDates)

	out.ExcludedDaysOfWeek = normalizeWeekdays(v, "excludedDaysOfWeek", p.ExcludedDaysOfWeek)

	for i, w := range p.AllowedTimeWindows {
		field := indexed("allowedTimeWindows", i)
		if _, err := parseClock(w.Start); err != nil {
			v.add(field+".startTime", "%v", err)
		}
		if _, err := parseClock(w.End); err != nil {
			v.add(field+".endTime", "%v", err)
		}
		out.AllowedTimeWindows = append(out.AllowedTimeWindows, TimeWindow{
			Start:      w.Start,
			End:        w.End,
			DaysOfWeek: normalizeWeekdays(v, field+".daysOfWeek", w.DaysOfWeek),
		})
	}

	if p.Cooldown < 0 {
		v.add("cooldownPeriodMs", "must not be negative")
	}
	if p.MaxExecutionsPerWindow < 0 {
		v.add("maxExecutionsPerWindow", "must not be negative")
	}

	if err := v.errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeWeekdays(v *validator, field string, days []time.Weekday) []time.Weekday {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for i, d := range days {
		if d < time.Sunday || d > time.Saturday {
			v.add(indexed(field, i), "must be between 0 and 6")
			continue
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TimeWindowSpec is the wire form of a TimeWindow.
type TimeWindowSpec struct {
	StartTime  string `json:"startTime" yaml:"startTime"`
	EndTime    string `json:"endTime" yaml:"endTime"`
	DaysOfWeek []int  `json:"daysOfWeek,omitempty" yaml:"daysOfWeek,omitempty"`
}

// PolicySpec is the serializable form of a Policy. All fields are optional.
type PolicySpec struct {
	ExcludedDates          []string         `json:"excludedDates,omitempty" yaml:"excludedDates,omitempty"`
	ExcludedDaysOfWeek     []int            `json:"excludedDaysOfWeek,omitempty" yaml:"excludedDaysOfWeek,omitempty"`
	AllowedTimeWindows     []TimeWindowSpec `json:"allowedTimeWindows,omitempty" yaml:"allowedTimeWindows,omitempty"`
	CooldownPeriodMs       int64            `json:"cooldownPeriodMs,omitempty" yaml:"cooldownPeriodMs,omitempty"`
	MaxExecutionsPerWindow int              `json:"maxExecutionsPerWindow,omitempty" yaml:"maxExecutionsPerWindow,omitempty"`
	SkipMissed             bool             `json:"skipMissed,omitempty" yaml:"skipMissed,omitempty"`
}

// Build validates the spec and returns the Policy it describes.
func (s PolicySpec) Build() (*Policy, error) {
	p := Policy{
		ExcludedDates:          s.ExcludedDates,
		ExcludedDaysOfWeek:     toWeekdays(s.ExcludedDaysOfWeek),
		Cooldown:               time.Duration(s.CooldownPeriodMs) * time.Millisecond,
		MaxExecutionsPerWindow: s.MaxExecutionsPerWindow,
		SkipMissed:             s.SkipMissed,
	}
	for _, w := range s.AllowedTimeWindows {
		p.AllowedTimeWindows = append(p.AllowedTimeWindows, TimeWindow{
			Start:      w.StartTime,
			End:        w.EndTime,
			DaysOfWeek: toWeekdays(w.DaysOfWeek),
		})
	}
	return NewPolicy(p)
}

// Spec returns the serializable form of p.
func (p *Policy) Spec() PolicySpec {
	if p == nil {
		return PolicySpec{}
	}
	s := PolicySpec{
		ExcludedDates:          append([]string(nil), p.ExcludedDates...),
		ExcludedDaysOfWeek:     fromWeekdays(p.ExcludedDaysOfWeek),
		CooldownPeriodMs:       p.Cooldown.Milliseconds(),
		MaxExecutionsPerWindow: p.MaxExecutionsPerWindow,
		SkipMissed:             p.SkipMissed,
	}
	for _, w := range p.AllowedTimeWindows {
		s.AllowedTimeWindows = append(s.AllowedTimeWindows, TimeWindowSpec{
			StartTime:  w.Start,
			EndTime:    w.End,
			DaysOfWeek: fromWeekdays(w.DaysOfWeek),
		})
	}
	return s
}

func toWeekdays(days []int) []time.Weekday {
	if days == nil {
		return nil
	}
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}

func fromWeekdays(days []time.Weekday) []int {
	if days == nil {
		return nil
	}
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func indexed(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}
