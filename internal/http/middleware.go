package http

import (
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/identity"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*identity.Claims, error)
}

// RequirePrincipal authenticates the bearer token and attaches the resulting
// principal to the request context.
func RequirePrincipal(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthorized, errMissingToken)
				return
			}
			if validator == nil {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthorized, errInvalidToken)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "token rejected", "error", err)
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthorized, errInvalidToken)
				return
			}

			principal, ok := principalFromClaims(claims)
			if !ok {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthorized, errInvalidToken)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("principal_id", principal.UserID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromClaims(claims *identity.Claims) (application.Principal, bool) {
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		return application.Principal{}, false
	}
	role := application.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if role == "" {
		role = application.RoleAgent
	}
	if !role.Valid() {
		return application.Principal{}, false
	}
	return application.Principal{
		UserID: claims.Subject,
		Role:   role,
		Scope:  application.NormalizeScope(claims.Scope),
	}, true
}

func extractBearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RequestObserver records per-request outcomes, e.g. into Prometheus.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

// RequestLogger attaches a request scoped logger and logs start and completion.
// A client supplied X-Request-ID is propagated; otherwise one is generated.
func RequestLogger(base *slog.Logger, observer RequestObserver) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			elapsed := time.Since(start)
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", elapsed)

			if observer != nil {
				observer.ObserveRequest(routeLabel(r), recorder.status, elapsed)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wrote {
		s.status = status
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// routeLabel bounds metric cardinality to the known routes.
func routeLabel(r *http.Request) string {
	switch r.URL.Path {
	case pathWindowConfig, pathAttendance, pathAttendanceStatus, pathAttendanceHistory, pathHealth, pathMetrics:
		return r.Method + " " + r.URL.Path
	}
	return "unmatched"
}

// RateLimiter throttles requests per principal, falling back to the client IP
// for anonymous callers.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
	rejected  atomic.Uint64
	responder responder
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond sustained requests with the given burst per key.
func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(perSecond),
		burst:     burst,
		idleTTL:   10 * time.Minute,
		now:       time.Now,
		responder: newResponder(logger),
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idleTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Rejected returns the number of throttled requests.
func (rl *RateLimiter) Rejected() uint64 {
	return rl.rejected.Load()
}

// Middleware enforces the limit and answers 429 with Retry-After when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, wait := rl.Allow(rateKey(r))
		if !allowed {
			rl.rejected.Add(1)
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			rl.responder.writeError(r.Context(), w, http.StatusTooManyRequests, codeRateLimited, errors.New("too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateKey(r *http.Request) string {
	if principal, ok := PrincipalFromContext(r.Context()); ok && principal.UserID != "" {
		return "principal:" + principal.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
