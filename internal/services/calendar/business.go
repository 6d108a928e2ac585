// Package calendar resolves contract work calendars and performs
// business-minute time arithmetic on them.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// ErrComputationOverflow is returned when the walk-forward simulation
// exceeds its iteration bound, which only happens with a malformed calendar
// (e.g. no working day left within reach).
var ErrComputationOverflow = errors.New("calendar: deadline computation exceeded iteration bound")

// AddWorkingMinutes returns the instant at which exactly `minutes` business
// minutes have elapsed after start, counting only minutes that fall inside a
// working window on a non-holiday weekday of the calendar.
//
// The implementation is a minute-granularity walk-forward simulation rather
// than closed-form date arithmetic: partial-day windows, holidays and
// weekday gaps interact in ways that make closed forms error-prone, and SLA
// windows are bounded by days, so the walk stays cheap. The function is pure
// and safe for concurrent use.
func AddWorkingMinutes(c *models.WorkCalendar, start time.Time, minutes int) (time.Time, error) {
	if c == nil {
		return time.Time{}, fmt.Errorf("calendar: nil calendar")
	}
	if minutes < 0 {
		return time.Time{}, fmt.Errorf("calendar: negative minutes %d", minutes)
	}
	if minutes == 0 {
		return start, nil
	}

	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	cursor := start.In(loc)
	remaining := minutes

	// Guards against calendars that never yield a working minute. Each loop
	// pass either consumes a minute or skips toward the next window, so a
	// healthy calendar finishes well inside the bound.
	maxIterations := 10 * minutes

	for iterations := 0; ; iterations++ {
		if iterations > maxIterations {
			return time.Time{}, fmt.Errorf("%w (calendar %s, %d minutes)", ErrComputationOverflow, c.ID, minutes)
		}

		if c.IsHoliday(cursor) {
			cursor = nextDay(cursor)
			continue
		}
		window, working := c.WindowFor(cursor.Weekday())
		if !working {
			cursor = nextDay(cursor)
			continue
		}

		minuteOfDay := cursor.Hour()*60 + cursor.Minute()
		switch {
		case minuteOfDay < window.StartMinute:
			cursor = atMinute(cursor, window.StartMinute)
		case minuteOfDay >= window.EndMinute:
			cursor = nextDay(cursor)
		default:
			remaining--
			cursor = cursor.Add(time.Minute)
			if remaining == 0 {
				return cursor, nil
			}
		}
	}
}

// IsWorkingTime reports whether t falls inside a working window on a
// non-holiday working day.
func IsWorkingTime(c *models.WorkCalendar, t time.Time) bool {
	if c == nil {
		return true
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	if c.IsHoliday(t) {
		return false
	}
	window, working := c.WindowFor(t.Weekday())
	if !working {
		return false
	}
	minuteOfDay := t.Hour()*60 + t.Minute()
	return minuteOfDay >= window.StartMinute && minuteOfDay < window.EndMinute
}

// WorkingMinutesBetween counts the business minutes between a and b. It
// walks day by day, intersecting [a, b) with each day's working window.
func WorkingMinutesBetween(c *models.WorkCalendar, a, b time.Time) int {
	if c == nil || !b.After(a) {
		return 0
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	a = a.In(loc)
	b = b.In(loc)

	total := 0
	for day := startOfDay(a); day.Before(b); day = nextDay(day) {
		if c.IsHoliday(day) {
			continue
		}
		window, working := c.WindowFor(day.Weekday())
		if !working {
			continue
		}
		windowStart := atMinute(day, window.StartMinute)
		windowEnd := atMinute(day, window.EndMinute)
		from := laterOf(windowStart, a)
		to := earlierOf(windowEnd, b)
		if to.After(from) {
			total += int(to.Sub(from) / time.Minute)
		}
	}
	return total
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func nextDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, t.Location())
}

func atMinute(t time.Time, minuteOfDay int) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, minuteOfDay/60, minuteOfDay%60, 0, 0, t.Location())
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
