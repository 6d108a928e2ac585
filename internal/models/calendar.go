package models

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
)

// DateKey is the format used to key one-time holiday dates.
const DateKey = "2006-01-02"

// WorkingWindow is a single working-hours range for one weekday, expressed
// as minutes from midnight in the calendar's location.
type WorkingWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Duration returns the length of the window in minutes.
func (w WorkingWindow) Duration() int {
	return w.EndMinute - w.StartMinute
}

// WorkCalendar describes the business hours of a contract: an optional
// working window per weekday (absent entry = non-working day), a set of
// one-time holiday dates, and optional recurring public holidays.
type WorkCalendar struct {
	ID       string
	Name     string
	Location *time.Location

	// Windows maps a weekday to its working window. A missing entry means
	// the whole day is non-working.
	Windows map[time.Weekday]WorkingWindow

	// Holidays holds one-time non-working dates keyed by DateKey, value is
	// the holiday name.
	Holidays map[string]string

	// Recurring holds annually recurring holidays (e.g. Christmas) evaluated
	// through rickar/cal. Nil when the calendar has none.
	Recurring *cal.Calendar
}

// NewWorkCalendar returns an empty calendar in the given location.
// A nil location defaults to UTC.
func NewWorkCalendar(id, name string, loc *time.Location) *WorkCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &WorkCalendar{
		ID:       id,
		Name:     name,
		Location: loc,
		Windows:  make(map[time.Weekday]WorkingWindow),
		Holidays: make(map[string]string),
	}
}

// SetWindow marks a weekday as working with the given window.
func (c *WorkCalendar) SetWindow(day time.Weekday, startMinute, endMinute int) {
	if c.Windows == nil {
		c.Windows = make(map[time.Weekday]WorkingWindow)
	}
	c.Windows[day] = WorkingWindow{StartMinute: startMinute, EndMinute: endMinute}
}

// AddHoliday registers a one-time non-working date.
func (c *WorkCalendar) AddHoliday(date time.Time, name string) {
	if c.Holidays == nil {
		c.Holidays = make(map[string]string)
	}
	c.Holidays[date.Format(DateKey)] = name
}

// AddRecurringHoliday registers an annually recurring holiday by month/day.
func (c *WorkCalendar) AddRecurringHoliday(month time.Month, day int, name string) {
	if c.Recurring == nil {
		c.Recurring = &cal.Calendar{Name: c.Name}
	}
	c.Recurring.AddHoliday(&cal.Holiday{
		Name:  name,
		Type:  cal.ObservancePublic,
		Month: month,
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	})
}

// WindowFor returns the working window for the weekday and whether the day
// is a working day at all.
func (c *WorkCalendar) WindowFor(day time.Weekday) (WorkingWindow, bool) {
	w, ok := c.Windows[day]
	return w, ok
}

// IsHoliday reports whether the date (in the calendar's location) is a
// one-time or recurring holiday.
func (c *WorkCalendar) IsHoliday(t time.Time) bool {
	t = c.localize(t)
	if _, ok := c.Holidays[t.Format(DateKey)]; ok {
		return true
	}
	if c.Recurring != nil {
		actual, observed, _ := c.Recurring.IsHoliday(t)
		return actual || observed
	}
	return false
}

// HasWorkingDay reports whether at least one weekday carries a window.
func (c *WorkCalendar) HasWorkingDay() bool {
	return len(c.Windows) > 0
}

func (c *WorkCalendar) localize(t time.Time) time.Time {
	if c.Location == nil {
		return t.In(time.UTC)
	}
	return t.In(c.Location)
}

// Validate checks the structural invariants: every declared window must have
// start < end and stay inside a single day.
func (c *WorkCalendar) Validate() error {
	for day, w := range c.Windows {
		if w.StartMinute < 0 || w.EndMinute > 24*60 {
			return fmt.Errorf("calendar %s: window for %s out of range", c.ID, day)
		}
		if w.StartMinute >= w.EndMinute {
			return fmt.Errorf("calendar %s: window for %s has start >= end", c.ID, day)
		}
	}
	return nil
}
