package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of distinct wall-clock minutes in a calendar day.
const MinutesPerDay = 24 * 60

// ErrInvalidClock indicates a time-of-day string could not be parsed.
var ErrInvalidClock = errors.New("window: invalid time of day")

// Clock is a timezone-naive wall-clock time expressed as minutes since midnight.
type Clock int

// NewClock builds a Clock from an hour and minute pair.
func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d", ErrInvalidClock, hour, minute)
	}
	return Clock(hour*60 + minute), nil
}

// MustClock is NewClock for constant inputs; it panics on invalid values.
func MustClock(hour, minute int) Clock {
	c, err := NewClock(hour, minute)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the minute-of-day of t in loc. Seconds are truncated.
func ClockOf(t time.Time, loc *time.Location) Clock {
	if loc != nil {
		t = t.In(loc)
	}
	return Clock(t.Hour()*60 + t.Minute())
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

// Valid reports whether the clock lies within a single day.
func (c Clock) Valid() bool { return c >= 0 && c < MinutesPerDay }

// String renders the clock in 24-hour "HH:MM" form.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On anchors the clock to the calendar day of ref in loc.
func (c Clock) On(ref time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = ref.Location()
	}
	y, m, d := ref.In(loc).Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
}

// ParseClock parses a time of day in either 12-hour ("5:00 AM", "5:00pm") or
// 24-hour ("05:00", "17:30", "05:00:00") notation.
func ParseClock(value string) (Clock, error) {
	raw := strings.ToUpper(strings.TrimSpace(value))
	if raw == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidClock)
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(raw, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(raw, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		raw = strings.TrimSpace(strings.TrimSuffix(raw, meridiem))
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}

	hour, err := parseComponent(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err := parseComponent(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	if len(parts) == 3 {
		sec, err := parseComponent(parts[2])
		if err != nil || sec > 59 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
		}
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
		}
		// 12 AM is midnight, 12 PM is noon.
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	}

	c, err := NewClock(hour, minute)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return c, nil
}

func parseComponent(s string) (int, error) {
	if s == "" || len(s) > 2 {
		return 0, ErrInvalidClock
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrInvalidClock
	}
	return n, nil
}
