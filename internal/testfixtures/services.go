package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/window"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Calendar    *calendar.Calendar
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults: the reference
// clock, "record" identifiers and a UTC Monday to Saturday calendar.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("record"),
		Calendar:    calendar.New(time.UTC, nil),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("record")
	}
	if factory.Calendar == nil {
		factory.Calendar = calendar.New(time.UTC, nil)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithCalendar overrides the working calendar used by attendance services.
func WithCalendar(cal *calendar.Calendar) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Calendar = cal
	}
}

// DefaultWindow is the system window used by factory-built window services.
func DefaultWindow() application.WindowDefaults {
	return application.WindowDefaults{
		Window:       window.TimeWindow{Start: window.MustClock(6, 0), End: window.MustClock(9, 0)},
		GraceMinutes: 15,
	}
}

// WindowServiceDeps captures dependencies for constructing a window service.
type WindowServiceDeps struct {
	Windows  application.WindowConfigRepository
	Defaults *application.WindowDefaults
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  application.MetricsRecorder
	// CacheTTL of zero keeps the service default; a negative value disables caching.
	CacheTTL time.Duration
}

// NewWindowService builds a window service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewWindowService(deps WindowServiceDeps) *application.WindowService {
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	defaults := DefaultWindow()
	if deps.Defaults != nil {
		defaults = *deps.Defaults
	}
	svc := application.NewWindowServiceWithLogger(deps.Windows, defaults, now, deps.Logger)
	if deps.Metrics != nil {
		svc.WithMetrics(deps.Metrics)
	}
	if deps.CacheTTL != 0 {
		svc.WithCacheTTL(deps.CacheTTL)
	}
	return svc
}

// AttendanceServiceDeps captures dependencies for constructing an attendance service.
type AttendanceServiceDeps struct {
	Records     application.AttendanceRepository
	Windows     application.WindowResolver
	Calendar    *calendar.Calendar
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     application.MetricsRecorder
}

// NewAttendanceService builds an attendance service using the supplied dependencies.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	cal := deps.Calendar
	if cal == nil {
		cal = f.Calendar
	}
	svc := application.NewAttendanceServiceWithLogger(deps.Records, deps.Windows, cal, idGen, now, deps.Logger)
	if deps.Metrics != nil {
		svc.WithMetrics(deps.Metrics)
	}
	return svc
}
