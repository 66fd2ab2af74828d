package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/field-attendance/internal/application"
)

// Error codes carried in error_code so clients branch without parsing messages.
const (
	codeForbidden      = "AUTH_FORBIDDEN"
	codeUnauthorized   = "AUTH_REQUIRED"
	codeNotFound       = "NOT_FOUND"
	codeAlreadyMarked  = "ALREADY_MARKED"
	codeWindowClosed   = "WINDOW_CLOSED"
	codeWindowNotOpen  = "WINDOW_NOT_OPEN"
	codeValidation     = "VALIDATION_FAILED"
	codeBadRequest     = "BAD_REQUEST"
	codeRateLimited    = "RATE_LIMITED"
	codeInternal       = "INTERNAL"
	codeStorageFailure = "STORAGE_UNAVAILABLE"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errInvalidDate    = errors.New("dates must use the YYYY-MM-DD format")
	errMissingToken   = errors.New("a bearer token is required")
	errInvalidToken   = errors.New("token is invalid or expired")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, codeInternal, errors.New("unknown error"))
		return
	}

	var marked *application.AlreadyMarkedError
	var vErr *application.ValidationError
	switch {
	case errors.As(err, &marked):
		record := toAttendanceDTO(marked.Record)
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: codeAlreadyMarked,
			Message:   application.ErrAlreadyMarked.Error(),
			Record:    &record,
		})
	case errors.Is(err, application.ErrWindowClosed):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: codeWindowClosed,
			Message:   application.ErrWindowClosed.Error(),
		})
	case errors.Is(err, application.ErrWindowNotOpen):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: codeWindowNotOpen,
			Message:   application.ErrWindowNotOpen.Error(),
		})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: codeForbidden,
			Message:   "you are not allowed to perform this operation",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{
			ErrorCode: codeNotFound,
			Message:   "the requested resource was not found",
		})
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: codeValidation,
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: codeInternal,
			Message:   "an internal error occurred",
		})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
	Record    *attendanceDTO    `json:"record,omitempty"`
}
