package contacts

import (
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used by every backend.
const DateLayout = "2006-01-02"

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// DateOf converts an instant to the civil date it falls on in loc,
// represented as midnight UTC. A nil loc keeps t's own location.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is DateOf(clock(), loc).
func Today(clock Clock, loc *time.Location) time.Time {
	if clock == nil {
		clock = SystemClock
	}
	return DateOf(clock(), loc)
}

// AddDays shifts a civil date by n calendar days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = DateOf(a, nil)
	b = DateOf(b, nil)
	return int(b.Sub(a).Hours() / 24)
}

// ParseDate accepts YYYY-MM-DD or any RFC3339 timestamp starting with one.
// The time part is ignored; anything else reports false.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) {
		return time.Time{}, false
	}
	if len(s) > len(DateLayout) && s[len(DateLayout)] != 'T' && s[len(DateLayout)] != ' ' {
		return time.Time{}, false
	}
	d, err := time.Parse(DateLayout, s[:len(DateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
