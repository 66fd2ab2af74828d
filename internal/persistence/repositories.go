package persistence

import "context"

// WindowConfigRepository stores one active window per scope. Saving replaces
// the previous value; no history is kept.
type WindowConfigRepository interface {
	GetWindowConfig(ctx context.Context, scope string) (WindowConfig, error)
	SaveWindowConfig(ctx context.Context, cfg WindowConfig) error
}

// AttendanceRepository stores attendance records keyed by agent and calendar date.
type AttendanceRepository interface {
	// ClaimDay inserts record unless one already exists for the same agent and
	// date. On conflict it returns the stored record together with ErrDuplicate.
	ClaimDay(ctx context.Context, record AttendanceRecord) (AttendanceRecord, error)
	GetForDay(ctx context.Context, agentID, calendarDate string) (AttendanceRecord, error)
	// ListRange returns records with from <= CalendarDate <= to ordered by date.
	ListRange(ctx context.Context, agentID, from, to string) ([]AttendanceRecord, error)
}
