package policy

import "time"

// calendarLookaheadDays bounds the forward walk so impossible day filters
// (say, the 31st that is also a given weekday in a short year) resolve to nil.
const calendarLookaheadDays = 366

// nextCalendarOccurrence returns the first Hour:Minute instant strictly after
// after that satisfies the day filters. An occurrence is skipped when last
// shows it already fired: same local date, at or after the occurrence.
// Days on which Hour:Minute does not exist locally (DST gaps) are skipped.
func nextCalendarOccurrence(cfg CalendarConfig, loc *time.Location, after time.Time, last *time.Time) *time.Time {
	base := localize(after, loc)
	for offset := 0; offset <= calendarLookaheadDays; offset++ {
		candidate := base.dayAt(offset, cfg.Hour, cfg.Minute)
		if candidate.Hour() != cfg.Hour || candidate.Minute() != cfg.Minute {
			continue
		}
		if !candidate.After(after) || !cfg.matchesDay(candidate) {
			continue
		}
		if last != nil && firedFor(candidate, *last, loc) {
			continue
		}
		return utcPtr(candidate)
	}
	return nil
}

// firedFor reports whether an execution at last belongs to the calendar cycle
// that starts at occurrence: the same local date, not before the occurrence.
func firedFor(occurrence, last time.Time, loc *time.Location) bool {
	if last.Before(occurrence) {
		return false
	}
	return last.In(loc).Format(dateLayout) == occurrence.In(loc).Format(dateLayout)
}
