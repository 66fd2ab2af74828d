package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrWindowClosed is returned when a marking arrives after today's window ended.
	ErrWindowClosed = errors.New("attendance window has closed")
	// ErrWindowNotOpen is returned when a marking arrives before today's window opened.
	ErrWindowNotOpen = errors.New("attendance window is not open yet")
	// ErrAlreadyMarked is returned when the agent already holds a record for the day.
	ErrAlreadyMarked = errors.New("attendance already marked for today")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// AlreadyMarkedError carries the record that already occupies the agent's day.
type AlreadyMarkedError struct {
	Record AttendanceRecord
}

// Error implements the error interface.
func (e *AlreadyMarkedError) Error() string {
	return ErrAlreadyMarked.Error()
}

// Is reports ErrAlreadyMarked equivalence for errors.Is.
func (e *AlreadyMarkedError) Is(target error) bool {
	return target == ErrAlreadyMarked
}
