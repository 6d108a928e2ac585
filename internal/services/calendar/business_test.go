package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

// businessWeek is a Mon-Fri 09:00-18:00 calendar in UTC.
func businessWeek() *models.WorkCalendar {
	c := models.NewWorkCalendar("std", "Standard Business Hours", time.UTC)
	for day := time.Monday; day <= time.Friday; day++ {
		c.SetWindow(day, 9*60, 18*60)
	}
	return c
}

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestAddWorkingMinutes(t *testing.T) {
	// 2026-01-05 is a Monday, 2026-01-09 a Friday.
	tests := []struct {
		name    string
		start   time.Time
		minutes int
		want    time.Time
	}{
		{
			name:    "within window",
			start:   date(2026, time.January, 5, 9, 0),
			minutes: 60,
			want:    date(2026, time.January, 5, 10, 0),
		},
		{
			name:    "start before window clamps to window start",
			start:   date(2026, time.January, 5, 8, 0),
			minutes: 60,
			want:    date(2026, time.January, 5, 10, 0),
		},
		{
			name:    "spills into next business day over a weekend",
			start:   date(2026, time.January, 9, 17, 59),
			minutes: 2,
			want:    date(2026, time.January, 12, 9, 1),
		},
		{
			name:    "friday remainder lands monday",
			start:   date(2026, time.January, 9, 17, 0),
			minutes: 120,
			want:    date(2026, time.January, 12, 10, 0),
		},
		{
			name:    "weekend start clamps to monday",
			start:   date(2026, time.January, 10, 14, 30),
			minutes: 30,
			want:    date(2026, time.January, 12, 9, 30),
		},
		{
			name:    "start after window end moves to next day",
			start:   date(2026, time.January, 5, 19, 0),
			minutes: 30,
			want:    date(2026, time.January, 6, 9, 30),
		},
		{
			name:    "full day spans to the next",
			start:   date(2026, time.January, 5, 9, 0),
			minutes: 10 * 60,
			want:    date(2026, time.January, 6, 10, 0),
		},
		{
			name:    "zero minutes returns start",
			start:   date(2026, time.January, 5, 12, 34),
			minutes: 0,
			want:    date(2026, time.January, 5, 12, 34),
		},
	}

	c := businessWeek()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddWorkingMinutes(c, tt.start, tt.minutes)
			if err != nil {
				t.Fatalf("AddWorkingMinutes: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("AddWorkingMinutes(%s, %d) = %s, want %s", tt.start, tt.minutes, got, tt.want)
			}
		})
	}
}

func TestAddWorkingMinutesSkipsHolidays(t *testing.T) {
	c := businessWeek()
	c.AddHoliday(date(2026, time.January, 5, 0, 0), "Company Day")

	got, err := AddWorkingMinutes(c, date(2026, time.January, 5, 9, 0), 60)
	if err != nil {
		t.Fatalf("AddWorkingMinutes: %v", err)
	}
	want := date(2026, time.January, 6, 10, 0)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestAddWorkingMinutesSkipsRecurringHolidays(t *testing.T) {
	c := businessWeek()
	c.AddRecurringHoliday(time.December, 25, "Christmas")

	// 2026-12-24 is a Thursday, the 25th a Friday.
	got, err := AddWorkingMinutes(c, date(2026, time.December, 24, 17, 30), 60)
	if err != nil {
		t.Fatalf("AddWorkingMinutes: %v", err)
	}
	want := date(2026, time.December, 28, 9, 30)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestAddWorkingMinutesErrors(t *testing.T) {
	c := businessWeek()

	if _, err := AddWorkingMinutes(nil, time.Now(), 10); err == nil {
		t.Error("expected error for nil calendar")
	}
	if _, err := AddWorkingMinutes(c, time.Now(), -1); err == nil {
		t.Error("expected error for negative minutes")
	}

	empty := models.NewWorkCalendar("empty", "No Windows", time.UTC)
	_, err := AddWorkingMinutes(empty, date(2026, time.January, 5, 9, 0), 30)
	if !errors.Is(err, ErrComputationOverflow) {
		t.Errorf("expected ErrComputationOverflow, got %v", err)
	}
}

func TestAddWorkingMinutesIsDeterministic(t *testing.T) {
	c := businessWeek()
	start := date(2026, time.January, 7, 11, 17)

	first, err := AddWorkingMinutes(c, start, 960)
	if err != nil {
		t.Fatalf("AddWorkingMinutes: %v", err)
	}
	second, err := AddWorkingMinutes(c, start, 960)
	if err != nil {
		t.Fatalf("AddWorkingMinutes: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("repeated computation differs: %s vs %s", first, second)
	}
}

func TestIsWorkingTime(t *testing.T) {
	c := businessWeek()
	c.AddHoliday(date(2026, time.January, 6, 0, 0), "Holiday")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"inside window", date(2026, time.January, 5, 10, 0), true},
		{"before window", date(2026, time.January, 5, 8, 59), false},
		{"at window end", date(2026, time.January, 5, 18, 0), false},
		{"weekend", date(2026, time.January, 10, 10, 0), false},
		{"holiday", date(2026, time.January, 6, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWorkingTime(c, tt.at); got != tt.want {
				t.Errorf("IsWorkingTime(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestWorkingMinutesBetween(t *testing.T) {
	c := businessWeek()

	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same day", date(2026, time.January, 5, 9, 0), date(2026, time.January, 5, 10, 0), 60},
		{"over weekend", date(2026, time.January, 9, 17, 0), date(2026, time.January, 12, 10, 0), 120},
		{"outside windows", date(2026, time.January, 10, 0, 0), date(2026, time.January, 11, 23, 0), 0},
		{"reversed", date(2026, time.January, 5, 10, 0), date(2026, time.January, 5, 9, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WorkingMinutesBetween(c, tt.a, tt.b); got != tt.want {
				t.Errorf("WorkingMinutesBetween = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWorkingMinutesBetweenInvertsAdd(t *testing.T) {
	c := businessWeek()
	start := date(2026, time.January, 5, 9, 0)
	const minutes = 600

	end, err := AddWorkingMinutes(c, start, minutes)
	if err != nil {
		t.Fatalf("AddWorkingMinutes: %v", err)
	}
	if got := WorkingMinutesBetween(c, start, end); got != minutes {
		t.Errorf("WorkingMinutesBetween(start, AddWorkingMinutes(start, %d)) = %d", minutes, got)
	}
}
