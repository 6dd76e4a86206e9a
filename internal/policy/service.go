package policy

import (
	"fmt"
	"time"
)

const passedPrefix = "All policy checks passed"

// Service evaluates schedules. It holds no state; the zero value is ready to
// use and safe for concurrent callers.
type Service struct{}

// NewService returns a policy service.
func NewService() *Service {
	return &Service{}
}

// Evaluate decides whether def may fire at ec.Now under pol. A nil policy
// imposes no restriction. Checks run in a fixed order and the first failing
// check decides the outcome:
//
//  1. DISABLED
//  2. EXCLUDED_DATE
//  3. EXCLUDED_DAY
//  4. WINDOW
//  5. COOLDOWN
//  6. LIMIT
//  7. the type-specific rule (NOT_YET / ALREADY_RAN)
func (s *Service) Evaluate(def *Definition, pol *Policy, ec EvaluationContext) Decision {
	if pol == nil {
		pol = &Policy{}
	}
	now := ec.Now
	loc := def.Location()
	local := localize(now, loc)
	last := ec.History.LastExecutionAt

	if !def.Enabled {
		return block(now, BlockedByDisabled, "Schedule is disabled", nil, nil)
	}

	if containsString(pol.ExcludedDates, local.date) {
		return block(now, BlockedByExcludedDate,
			fmt.Sprintf("Date %s is excluded by policy", local.date),
			nextIncludedDay(pol, local),
			map[string]any{"excludedDate": local.date})
	}

	if containsWeekday(pol.ExcludedDaysOfWeek, local.weekday) {
		return block(now, BlockedByExcludedDay,
			fmt.Sprintf("Day of week %s is excluded by policy", local.weekday),
			nextIncludedDay(pol, local),
			map[string]any{"dayOfWeek": int(local.weekday)})
	}

	if !insideAnyWindow(pol.AllowedTimeWindows, local) {
		return block(now, BlockedByWindow,
			fmt.Sprintf("Current time %s on %s is outside the allowed time windows", local.clock(), local.weekday),
			nextWindowOpening(pol, local),
			map[string]any{"localTime": local.clock(), "dayOfWeek": int(local.weekday)})
	}

	if pol.Cooldown > 0 && last != nil {
		elapsed := now.Sub(*last)
		if elapsed < pol.Cooldown {
			remaining := pol.Cooldown - elapsed
			return block(now, BlockedByCooldown,
				fmt.Sprintf("Cooldown active: %s remaining of %s", remaining, pol.Cooldown),
				utcPtr(last.Add(pol.Cooldown)),
				map[string]any{
					"cooldownRemainingMs": remaining.Milliseconds(),
					"cooldownPeriodMs":    pol.Cooldown.Milliseconds(),
				})
		}
	}

	if pol.MaxExecutionsPerWindow > 0 && ec.History.ExecutionsInWindow >= pol.MaxExecutionsPerWindow {
		return block(now, BlockedByLimit,
			fmt.Sprintf("Execution limit reached: %d of %d executions in window",
				ec.History.ExecutionsInWindow, pol.MaxExecutionsPerWindow),
			nil,
			map[string]any{
				"executionsInWindow": ec.History.ExecutionsInWindow,
				"maxExecutions":      pol.MaxExecutionsPerWindow,
			})
	}

	switch cfg := def.Config.(type) {
	case OnceConfig:
		return evaluateOnce(cfg, ec)
	case IntervalConfig:
		return evaluateInterval(cfg, pol, ec)
	case CalendarConfig:
		return evaluateCalendar(cfg, loc, local, ec)
	}
	return block(now, BlockedByNotYet,
		"Schedule configuration is missing or unsupported",
		nil,
		map[string]any{"configError": fmt.Sprintf("unsupported config %T", def.Config)})
}

func evaluateOnce(cfg OnceConfig, ec EvaluationContext) Decision {
	target := cfg.TargetDate
	if target.After(ec.Now) {
		return block(ec.Now, BlockedByNotYet,
			fmt.Sprintf("One-time target %s has not been reached", formatInstant(target)),
			utcPtr(target),
			map[string]any{"targetDate": formatInstant(target)})
	}
	if last := ec.History.LastExecutionAt; last != nil {
		return block(ec.Now, BlockedByAlreadyRan,
			fmt.Sprintf("One-time schedule already executed at %s", formatInstant(*last)),
			nil,
			map[string]any{"targetDate": formatInstant(target), "lastExecutionAt": formatInstant(*last)})
	}
	return pass(ec.Now,
		fmt.Sprintf("%s; one-time target %s reached", passedPrefix, formatInstant(target)),
		nil,
		map[string]any{"targetDate": formatInstant(target)})
}

func evaluateInterval(cfg IntervalConfig, pol *Policy, ec EvaluationContext) Decision {
	interval, ok := cfg.Interval()
	if !ok {
		return block(ec.Now, BlockedByNotYet,
			"Invalid interval configuration: minutes or hours must be positive",
			nil,
			map[string]any{"configError": "interval requires positive minutes or hours"})
	}

	last := ec.History.LastExecutionAt
	if last == nil {
		return pass(ec.Now,
			fmt.Sprintf("%s; first run of %s interval", passedPrefix, interval),
			utcPtr(ec.Now.Add(interval)),
			map[string]any{"intervalMs": interval.Milliseconds()})
	}

	elapsed := ec.Now.Sub(*last)
	if elapsed >= interval {
		// Missed ticks are reported, never replayed: one evaluation fires at
		// most once and the next tick is projected from now.
		missed := int64(elapsed/interval) - 1
		return pass(ec.Now,
			fmt.Sprintf("%s; %s elapsed since last execution (interval %s)", passedPrefix, elapsed, interval),
			utcPtr(ec.Now.Add(interval)),
			map[string]any{
				"intervalMs":      interval.Milliseconds(),
				"elapsedMs":       elapsed.Milliseconds(),
				"missedIntervals": missed,
				"skipMissed":      pol.SkipMissed,
			})
	}

	return block(ec.Now, BlockedByNotYet,
		fmt.Sprintf("Interval not elapsed: %s of %s since last execution", elapsed, interval),
		utcPtr(last.Add(interval)),
		map[string]any{
			"intervalMs": interval.Milliseconds(),
			"elapsedMs":  elapsed.Milliseconds(),
		})
}

func evaluateCalendar(cfg CalendarConfig, loc *time.Location, local localClock, ec EvaluationContext) Decision {
	last := ec.History.LastExecutionAt
	next := nextCalendarOccurrence(cfg, loc, ec.Now, last)

	if cfg.DayOfWeek != nil && local.weekday != *cfg.DayOfWeek {
		return block(ec.Now, BlockedByNotYet,
			fmt.Sprintf("Calendar day of week mismatch: expected %s, got %s", *cfg.DayOfWeek, local.weekday),
			next, nil)
	}
	if cfg.DayOfMonth != nil && local.day != *cfg.DayOfMonth {
		return block(ec.Now, BlockedByNotYet,
			fmt.Sprintf("Calendar day of month mismatch: expected %d, got %d", *cfg.DayOfMonth, local.day),
			next, nil)
	}
	if local.hour != cfg.Hour {
		return block(ec.Now, BlockedByNotYet,
			fmt.Sprintf("Calendar hour mismatch: expected %02d, got %02d", cfg.Hour, local.hour),
			next, nil)
	}
	if local.minute != cfg.Minute {
		return block(ec.Now, BlockedByNotYet,
			fmt.Sprintf("Calendar minute mismatch: expected %02d, got %02d", cfg.Minute, local.minute),
			next, nil)
	}

	occurrence := local.dayAt(0, cfg.Hour, cfg.Minute)
	if last != nil && firedFor(occurrence, *last, loc) {
		return block(ec.Now, BlockedByAlreadyRan,
			fmt.Sprintf("Already triggered on %s at %s", local.date, formatInstant(*last)),
			nextCalendarOccurrence(cfg, loc, ec.Now, &ec.Now),
			map[string]any{"lastExecutionAt": formatInstant(*last)})
	}

	return pass(ec.Now,
		fmt.Sprintf("%s; calendar match at %s %s", passedPrefix, local.clock(), loc),
		nextCalendarOccurrence(cfg, loc, ec.Now, &ec.Now),
		nil)
}

// NextEligible projects when def would next be eligible, ignoring the policy's
// blackout, window, cooldown and limit checks. A nil result means "eligible
// now", "never again" or "cannot be determined", depending on the type.
func (s *Service) NextEligible(def *Definition, _ *Policy, ec EvaluationContext) *time.Time {
	last := ec.History.LastExecutionAt
	switch cfg := def.Config.(type) {
	case OnceConfig:
		if last != nil {
			return nil
		}
		return utcPtr(cfg.TargetDate)
	case IntervalConfig:
		interval, ok := cfg.Interval()
		if !ok || last == nil {
			return nil
		}
		return utcPtr(last.Add(interval))
	case CalendarConfig:
		return nextCalendarOccurrence(cfg, def.Location(), ec.Now, last)
	}
	return nil
}

func block(now time.Time, reason BlockReason, msg string, next *time.Time, details map[string]any) Decision {
	return Decision{
		ShouldTrigger:  false,
		BlockedBy:      reason,
		Reason:         msg,
		NextEligibleAt: next,
		Details:        details,
		EvaluatedAt:    now,
	}
}

func pass(now time.Time, msg string, next *time.Time, details map[string]any) Decision {
	return Decision{
		ShouldTrigger:  true,
		BlockedBy:      BlockedByNone,
		Reason:         msg,
		NextEligibleAt: next,
		Details:        details,
		EvaluatedAt:    now,
	}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
