package policy

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// localClock is an instant broken into the wall-clock fields the evaluator
// compares against, all in one timezone.
type localClock struct {
	at          time.Time
	date        string
	weekday     time.Weekday
	day         int
	hour        int
	minute      int
	minuteOfDay int
}

func localize(t time.Time, loc *time.Location) localClock {
	lt := t.In(loc)
	return localClock{
		at:          lt,
		date:        lt.Format(dateLayout),
		weekday:     lt.Weekday(),
		day:         lt.Day(),
		hour:        lt.Hour(),
		minute:      lt.Minute(),
		minuteOfDay: lt.Hour()*60 + lt.Minute(),
	}
}

func (c localClock) clock() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

// dayAt returns hour:minute on the local day offset days after c.
func (c localClock) dayAt(offset, hour, minute int) time.Time {
	return time.Date(c.at.Year(), c.at.Month(), c.at.Day()+offset, hour, minute, 0, 0, c.at.Location())
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, wd := range days {
		if wd == d {
			return true
		}
	}
	return false
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func utcPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
