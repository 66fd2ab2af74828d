package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/window"
)

// WindowConfigRepository captures the persistence operations needed by the service.
type WindowConfigRepository interface {
	GetWindowConfig(ctx context.Context, scope string) (WindowConfig, error)
	SaveWindowConfig(ctx context.Context, cfg WindowConfig) (WindowConfig, error)
}

// WindowDefaults is the system window used when no scope has been configured.
type WindowDefaults struct {
	Window       window.TimeWindow
	GraceMinutes int
}

// WindowService resolves and updates the attendance window per scope.
type WindowService struct {
	windows  WindowConfigRepository
	defaults WindowDefaults
	now      func() time.Time
	cache    *windowCache
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// NewWindowService constructs a window service with the provided dependencies.
func NewWindowService(windows WindowConfigRepository, defaults WindowDefaults, now func() time.Time) *WindowService {
	return NewWindowServiceWithLogger(windows, defaults, now, nil)
}

// NewWindowServiceWithLogger constructs a window service with a specified logger.
func NewWindowServiceWithLogger(windows WindowConfigRepository, defaults WindowDefaults, now func() time.Time, logger *slog.Logger) *WindowService {
	if now == nil {
		now = time.Now
	}
	return &WindowService{
		windows:  windows,
		defaults: defaults,
		now:      now,
		cache:    newWindowCache(30*time.Second, 256, now),
		logger:   defaultLogger(logger),
		metrics:  noopMetrics{},
	}
}

// WithMetrics attaches a metrics recorder and returns the service.
func (s *WindowService) WithMetrics(recorder MetricsRecorder) *WindowService {
	s.metrics = defaultMetrics(recorder)
	return s
}

// WithCacheTTL replaces the read cache; a non-positive ttl disables caching.
func (s *WindowService) WithCacheTTL(ttl time.Duration) *WindowService {
	if ttl <= 0 {
		s.cache = nil
		return s
	}
	s.cache = newWindowCache(ttl, 256, s.now)
	return s
}

func (s *WindowService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "WindowService", operation, attrs...)
}

// GetWindow returns the window governing scope. A scope without its own
// window falls back to the global window and then to the system default.
func (s *WindowService) GetWindow(ctx context.Context, scope string) (WindowConfig, error) {
	if s == nil {
		return WindowConfig{}, fmt.Errorf("WindowService is nil")
	}

	scope = NormalizeScope(scope)
	if cfg, ok := s.cache.Get(scope); ok {
		return cfg, nil
	}

	candidates := []string{scope}
	if scope != GlobalScope {
		candidates = append(candidates, GlobalScope)
	}

	if s.windows != nil {
		for _, candidate := range candidates {
			cfg, err := s.windows.GetWindowConfig(ctx, candidate)
			if err == nil {
				s.cache.Store(scope, cfg)
				return cfg, nil
			}
			if !isNotFound(err) {
				s.loggerWith(ctx, "GetWindow", "scope", candidate).
					ErrorContext(ctx, "failed to load window", "error", err, "error_kind", ErrorKind(err))
				return WindowConfig{}, err
			}
		}
	}

	cfg := WindowConfig{
		Scope:        scope,
		Window:       s.defaults.Window,
		GraceMinutes: s.defaults.GraceMinutes,
		IsDefault:    true,
	}
	s.cache.Store(scope, cfg)
	return cfg, nil
}

// UpdateWindow validates and replaces the window for a scope. Only managers
// and administrators may write; managers are limited to the global scope and
// their own team scope.
func (s *WindowService) UpdateWindow(ctx context.Context, params UpdateWindowParams) (cfg WindowConfig, err error) {
	if s == nil {
		err = fmt.Errorf("WindowService is nil")
		return
	}

	scope := NormalizeScope(params.Scope)
	logger := s.loggerWith(ctx, "UpdateWindow",
		"principal_id", params.Principal.UserID,
		"scope", scope,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update window", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("window", cfg.Window.String(), "grace_minutes", cfg.GraceMinutes).InfoContext(ctx, "window updated")
	}()

	if !params.Principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	vErr.merge(validateScope(scope))
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if !mayWriteScope(params.Principal, scope) {
		err = ErrUnauthorized
		return
	}

	grace := s.defaults.GraceMinutes
	if params.Input.GraceMinutes != nil {
		grace = *params.Input.GraceMinutes
	} else if current, getErr := s.GetWindow(ctx, scope); getErr == nil {
		grace = current.GraceMinutes
	}

	var tw window.TimeWindow
	tw, vErr = validateWindowInput(params.Input, grace)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	cfg = WindowConfig{
		Scope:        scope,
		Window:       tw,
		GraceMinutes: grace,
		UpdatedBy:    params.Principal.UserID,
		UpdatedAt:    s.now(),
	}

	if s.windows == nil {
		err = fmt.Errorf("window repository not configured")
		return
	}

	cfg, err = s.windows.SaveWindowConfig(ctx, cfg)
	if err != nil {
		err = mapWindowRepoError(err)
		return
	}

	s.cache.Invalidate()
	s.metrics.WindowUpdated(scope)
	return
}

func validateScope(scope string) *ValidationError {
	vErr := &ValidationError{}
	if scope == GlobalScope {
		return vErr
	}
	managerID, ok := strings.CutPrefix(scope, managerScopePrefix)
	if !ok || strings.TrimSpace(managerID) == "" {
		vErr.add("scope", "scope must be \"global\" or \"manager:<id>\"")
	}
	return vErr
}

func mayWriteScope(principal Principal, scope string) bool {
	switch principal.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return scope == GlobalScope || scope == ManagerScope(principal.UserID)
	}
	return false
}

func validateWindowInput(input WindowInput, grace int) (window.TimeWindow, *ValidationError) {
	vErr := &ValidationError{}

	start, startErr := window.ParseClock(input.StartTime)
	if strings.TrimSpace(input.StartTime) == "" {
		vErr.add("start_time", "start time is required")
	} else if startErr != nil {
		vErr.add("start_time", "start time must be HH:MM or h:MM AM/PM")
	}

	end, endErr := window.ParseClock(input.EndTime)
	if strings.TrimSpace(input.EndTime) == "" {
		vErr.add("end_time", "end time is required")
	} else if endErr != nil {
		vErr.add("end_time", "end time must be HH:MM or h:MM AM/PM")
	}

	if grace < 0 {
		vErr.add("grace_minutes", "grace minutes must not be negative")
	}

	if vErr.HasErrors() {
		return window.TimeWindow{}, vErr
	}

	tw, err := window.New(start, end)
	if err != nil {
		vErr.add("end_time", "end time must be after start time")
		return window.TimeWindow{}, vErr
	}
	if grace > tw.Length() {
		vErr.add("grace_minutes", "grace minutes must not exceed the window length")
	}
	return tw, vErr
}

func mapWindowRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("end_time", "end time must be after start time")
		return vErr
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
