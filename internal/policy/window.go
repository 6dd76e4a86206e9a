package policy

import "time"

// bounds returns the window's start and end in minutes since midnight.
func (w TimeWindow) bounds() (start, end int, ok bool) {
	start, err := parseClock(w.Start)
	if err != nil {
		return 0, 0, false
	}
	end, err = parseClock(w.End)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func (w TimeWindow) opensOn(d time.Weekday) bool {
	return len(w.DaysOfWeek) == 0 || containsWeekday(w.DaysOfWeek, d)
}

// contains reports whether the local clock c falls inside the window. The
// day filter is matched against c's own weekday, so a window wrapping
// midnight covers [00:00, End] and [Start, 24:00) of each allowed day.
func (w TimeWindow) contains(c localClock) bool {
	start, end, ok := w.bounds()
	if !ok || !w.opensOn(c.weekday) {
		return false
	}
	m := c.minuteOfDay
	if start <= end {
		return m >= start && m <= end
	}
	return m >= start || m <= end
}

// openings returns the minutes of day at which the window starts admitting.
func (w TimeWindow) openings() []int {
	start, end, ok := w.bounds()
	if !ok {
		return nil
	}
	if start > end {
		return []int{0, start}
	}
	return []int{start}
}

// insideAnyWindow reports whether c is inside at least one window. An empty
// list imposes no restriction.
func insideAnyWindow(windows []TimeWindow, c localClock) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.contains(c) {
			return true
		}
	}
	return false
}

const windowLookaheadDays = 8

// nextWindowOpening finds the earliest window opening strictly after c on a
// day the policy does not exclude.
func nextWindowOpening(p *Policy, c localClock) *time.Time {
	var best *time.Time
	for offset := 0; offset < windowLookaheadDays; offset++ {
		for _, w := range p.AllowedTimeWindows {
			for _, opening := range w.openings() {
				candidate := c.dayAt(offset, opening/60, opening%60)
				if !candidate.After(c.at) || !w.opensOn(candidate.Weekday()) {
					continue
				}
				if p.excludes(localize(candidate, c.at.Location())) {
					continue
				}
				if best == nil || candidate.Before(*best) {
					cc := candidate
					best = &cc
				}
			}
		}
		if best != nil {
			return utcPtr(*best)
		}
	}
	return nil
}

// excludes reports whether the local day of c is blacked out by date or weekday.
func (p *Policy) excludes(c localClock) bool {
	return containsString(p.ExcludedDates, c.date) || containsWeekday(p.ExcludedDaysOfWeek, c.weekday)
}

const exclusionLookaheadDays = 366

// nextIncludedDay returns the next local midnight after c that is neither an
// excluded date nor an excluded weekday.
func nextIncludedDay(p *Policy, c localClock) *time.Time {
	for offset := 1; offset <= exclusionLookaheadDays; offset++ {
		midnight := c.dayAt(offset, 0, 0)
		if !p.excludes(localize(midnight, c.at.Location())) {
			return utcPtr(midnight)
		}
	}
	return nil
}
