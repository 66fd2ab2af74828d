package client

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowClosed mirrors the server's WINDOW_CLOSED rejection.
	ErrWindowClosed = errors.New("attendance window has closed")
	// ErrWindowNotOpen mirrors the server's WINDOW_NOT_OPEN rejection.
	ErrWindowNotOpen = errors.New("attendance window is not open yet")
	// ErrAlreadyMarked matches *AlreadyMarkedError through errors.Is.
	ErrAlreadyMarked = errors.New("attendance already marked for today")
	// ErrUnauthorized covers missing, invalid, or insufficient credentials.
	ErrUnauthorized = errors.New("not authorized")
	// ErrRateLimited is returned when the server throttles the caller.
	ErrRateLimited = errors.New("too many requests")
)

// AlreadyMarkedError carries the record the server already holds for today.
type AlreadyMarkedError struct {
	Record Record
}

func (e *AlreadyMarkedError) Error() string { return ErrAlreadyMarked.Error() }

// Is reports ErrAlreadyMarked equivalence for errors.Is.
func (e *AlreadyMarkedError) Is(target error) bool { return target == ErrAlreadyMarked }

// ValidationError lists the fields the server rejected.
type ValidationError struct {
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.FieldErrors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %d field(s)", len(e.FieldErrors))
}

// NetworkError wraps transport failures and undecodable responses. Callers
// treat it as transient.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is any other non-success response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server responded %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server responded %d: %s", e.StatusCode, e.Message)
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	var nErr *NetworkError
	return errors.As(err, &nErr)
}
