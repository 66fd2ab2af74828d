package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date representation used as part of
// the attendance record identity.
const DateLayout = "2006-01-02"

// ErrInvalidRange indicates the requested date range is inverted or unbounded.
var ErrInvalidRange = errors.New("calendar: range end must not precede range start")

// ErrInvalidDate indicates a calendar date string could not be parsed.
var ErrInvalidDate = errors.New("calendar: invalid date")

// ErrInvalidWeekday indicates an unknown weekday name.
var ErrInvalidWeekday = errors.New("calendar: invalid weekday")

// ErrRangeTooLong indicates the requested date range spans more than MaxRangeDays.
var ErrRangeTooLong = errors.New("calendar: range too long")

// MaxRangeDays bounds history queries to a little over a year.
const MaxRangeDays = 400

// DefaultWorkdays is Monday through Saturday, the field sales working week.
var DefaultWorkdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
}

// Calendar resolves calendar days in the organization's local timezone and
// decides which of them are expected working days.
type Calendar struct {
	location *time.Location
	workdays map[time.Weekday]struct{}
}

// New constructs a Calendar. A nil location means UTC; an empty workday list
// means DefaultWorkdays.
func New(loc *time.Location, workdays []time.Weekday) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if len(workdays) == 0 {
		workdays = DefaultWorkdays
	}
	set := make(map[time.Weekday]struct{}, len(workdays))
	for _, day := range workdays {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		set[day] = struct{}{}
	}
	return &Calendar{location: loc, workdays: set}
}

// Location returns the organization timezone.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// DateOf returns the local calendar date of t.
func (c *Calendar) DateOf(t time.Time) string {
	return t.In(c.location).Format(DateLayout)
}

// ParseDate parses a "2006-01-02" date at local midnight.
func (c *Calendar) ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), c.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return d, nil
}

// IsWorkday reports whether the weekday of the given date is a working day.
func (c *Calendar) IsWorkday(date time.Time) bool {
	_, ok := c.workdays[date.In(c.location).Weekday()]
	return ok
}

// Days expands the inclusive range [from, to] into the dates that are working days.
//
// Iteration uses calendar arithmetic rather than 24h steps so daylight saving
// transitions never skip or repeat a date.
func (c *Calendar) Days(from, to time.Time) ([]string, error) {
	start := c.midnight(from)
	end := c.midnight(to)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrRangeTooLong, MaxRangeDays)
	}

	days := make([]string, 0)
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if c.IsWorkday(current) {
			days = append(days, current.Format(DateLayout))
		}
	}
	return days, nil
}

func (c *Calendar) midnight(t time.Time) time.Time {
	y, m, d := t.In(c.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.location)
}

// ParseWeekdays parses a comma separated list such as "mon,tue,wed".
func ParseWeekdays(value string) ([]time.Weekday, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		day, err := parseWeekday(part)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, nil
}

func parseWeekday(value string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "sun", "sunday":
		return time.Sunday, nil
	case "mon", "monday":
		return time.Monday, nil
	case "tue", "tuesday":
		return time.Tuesday, nil
	case "wed", "wednesday":
		return time.Wednesday, nil
	case "thu", "thursday":
		return time.Thursday, nil
	case "fri", "friday":
		return time.Friday, nil
	case "sat", "saturday":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
}
