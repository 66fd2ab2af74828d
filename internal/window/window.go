// Package window evaluates the daily attendance window.
//
// Every client and the server share this single evaluator so that the
// PendingOpen/Open/OpenWarning/ClosedExpired boundaries never drift between
// surfaces. Evaluation is pure: callers supply the instant and the location
// that defines the organization's local day.
package window

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow indicates a window whose start is not strictly before its end.
var ErrInvalidWindow = errors.New("window: start time must be before end time")

// WarningFraction is the elapsed share of the window after which OpenWarning is reported.
const WarningFraction = 0.75

// State is the rendered attendance state for the current day.
type State string

const (
	// StatePendingOpen means the window has not opened yet today.
	StatePendingOpen State = "pending_open"
	// StateOpen means attendance may be marked.
	StateOpen State = "open"
	// StateOpenWarning means the window is open but in its last quartile.
	StateOpenWarning State = "open_warning"
	// StateClosedExpired means the window closed for today.
	StateClosedExpired State = "closed_expired"
	// StateAlreadyMarked means the server confirmed a record for today.
	StateAlreadyMarked State = "already_marked"
)

// AcceptsMarking reports whether a marking may be submitted in this state.
func (s State) AcceptsMarking() bool {
	return s == StateOpen || s == StateOpenWarning
}

// TimeWindow is the configured start/end pair for one organizational scope.
type TimeWindow struct {
	Start Clock
	End   Clock
}

// New validates and constructs a TimeWindow.
func New(start, end Clock) (TimeWindow, error) {
	if !start.Valid() || !end.Valid() {
		return TimeWindow{}, fmt.Errorf("%w: %d-%d", ErrInvalidClock, start, end)
	}
	if start >= end {
		return TimeWindow{}, fmt.Errorf("%w: %s-%s", ErrInvalidWindow, start, end)
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Parse builds a TimeWindow from two time-of-day strings in 12- or 24-hour form.
func Parse(start, end string) (TimeWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}
	return New(s, e)
}

// Length returns the window duration in minutes.
func (w TimeWindow) Length() int {
	return int(w.End - w.Start)
}

// Contains reports whether c lies inside the window, both bounds inclusive.
func (w TimeWindow) Contains(c Clock) bool {
	return c >= w.Start && c <= w.End
}

// LateThreshold returns start plus the grace period, clamped to the window end.
func (w TimeWindow) LateThreshold(graceMinutes int) Clock {
	if graceMinutes < 0 {
		graceMinutes = 0
	}
	threshold := w.Start + Clock(graceMinutes)
	if threshold > w.End {
		return w.End
	}
	return threshold
}

// String renders the window as "HH:MM-HH:MM".
func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Evaluate maps the window and the instant now to a time-derived state. It
// never returns StateAlreadyMarked; see Resolve.
func Evaluate(w TimeWindow, now time.Time, loc *time.Location) State {
	return EvaluateClock(w, ClockOf(now, loc))
}

// EvaluateClock is Evaluate for a pre-computed minute-of-day.
func EvaluateClock(w TimeWindow, c Clock) State {
	switch {
	case c < w.Start:
		return StatePendingOpen
	case c > w.End:
		return StateClosedExpired
	}

	length := w.Length()
	if length <= 0 {
		return StateOpen
	}
	elapsed := float64(c-w.Start) / float64(length)
	if elapsed >= WarningFraction {
		return StateOpenWarning
	}
	return StateOpen
}

// Resolve applies the server's "already marked" flag, which outranks any
// time-derived state.
func Resolve(timeState State, hasMarked bool) State {
	if hasMarked {
		return StateAlreadyMarked
	}
	return timeState
}
