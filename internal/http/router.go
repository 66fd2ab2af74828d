package http

import (
	"context"
	"net/http"
	"strings"
)

const (
	pathWindowConfig      = "/window-config"
	pathAttendance        = "/attendance"
	pathAttendanceStatus  = "/attendance/status"
	pathAttendanceHistory = "/attendance/history"
	pathHealth            = "/healthz"
	pathMetrics           = "/metrics"
)

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig wires handlers and middleware into the router.
type RouterConfig struct {
	Windows    *WindowHandler
	Attendance *AttendanceHandler
	Health     Pinger
	Metrics    http.Handler
	// Authenticate guards every route except health and metrics.
	Authenticate func(http.Handler) http.Handler
	// MarkMiddleware wraps only POST /attendance, e.g. rate limiting.
	MarkMiddleware []func(http.Handler) http.Handler
	Middleware     []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP surface described in the package documentation.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	protect := cfg.Authenticate
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	if cfg.Windows != nil {
		mux.Handle(pathWindowConfig, protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Windows.Get(w, r)
			case http.MethodPut:
				cfg.Windows.Update(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})))
	}

	if cfg.Attendance != nil {
		mark := chain(http.HandlerFunc(cfg.Attendance.Mark), cfg.MarkMiddleware)
		mux.Handle(pathAttendance, protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			mark.ServeHTTP(w, r)
		})))
		mux.Handle(pathAttendanceStatus, protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Attendance.Status(w, r)
		})))
		mux.Handle(pathAttendanceHistory, protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Attendance.History(w, r)
		})))
	}

	mux.HandleFunc(pathHealth, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		responder := newResponder(nil)
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				responder.writeError(r.Context(), w, http.StatusServiceUnavailable, codeStorageFailure, err)
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil {
		mux.Handle(pathMetrics, cfg.Metrics)
	}

	return chain(mux, cfg.Middleware)
}

// chain applies middleware so that the first entry is the outermost.
func chain(handler http.Handler, middleware []func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			handler = middleware[i](handler)
		}
	}
	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
