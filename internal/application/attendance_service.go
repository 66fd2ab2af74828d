package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/field-attendance/internal/calendar"
	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/window"
)

const (
	maxLocationLength  = 200
	maxSectorLength    = 100
	defaultHistoryDays = 30
)

// AttendanceRepository captures the persistence operations needed by the service.
type AttendanceRepository interface {
	// ClaimDay stores the record unless the agent already has one for the date,
	// in which case it returns the stored record with persistence.ErrDuplicate.
	ClaimDay(ctx context.Context, record AttendanceRecord) (AttendanceRecord, error)
	GetForDay(ctx context.Context, agentID, calendarDate string) (AttendanceRecord, error)
	ListRange(ctx context.Context, agentID, from, to string) ([]AttendanceRecord, error)
}

// WindowResolver resolves the window governing a scope.
type WindowResolver interface {
	GetWindow(ctx context.Context, scope string) (WindowConfig, error)
}

// AttendanceService marks attendance and reports status and history.
type AttendanceService struct {
	records     AttendanceRepository
	windows     WindowResolver
	calendar    *calendar.Calendar
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	metrics     MetricsRecorder
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(records AttendanceRepository, windows WindowResolver, cal *calendar.Calendar, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(records, windows, cal, idGenerator, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(records AttendanceRepository, windows WindowResolver, cal *calendar.Calendar, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cal == nil {
		cal = calendar.New(time.UTC, nil)
	}
	return &AttendanceService{
		records:     records,
		windows:     windows,
		calendar:    cal,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		metrics:     noopMetrics{},
	}
}

// WithMetrics attaches a metrics recorder and returns the service.
func (s *AttendanceService) WithMetrics(recorder MetricsRecorder) *AttendanceService {
	s.metrics = defaultMetrics(recorder)
	return s
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// MarkAttendance records today's attendance for the principal. The server
// clock decides the day, the window state, and the classification; the
// client-reported instant is stored for audit only.
func (s *AttendanceService) MarkAttendance(ctx context.Context, params MarkAttendanceParams) (record AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	agentID := strings.TrimSpace(params.AgentID)
	if agentID == "" {
		agentID = params.Principal.UserID
	}

	logger := s.loggerWith(ctx, "MarkAttendance",
		"principal_id", params.Principal.UserID,
		"agent_id", agentID,
	)
	defer func() {
		if err != nil {
			s.metrics.MarkingRejected(ErrorKind(err))
			logger.ErrorContext(ctx, "failed to mark attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.metrics.MarkingRecorded(record.Classification)
		logger.With(
			"record_id", record.ID,
			"calendar_date", record.CalendarDate,
			"classification", string(record.Classification),
		).InfoContext(ctx, "attendance marked")
	}()

	if params.Principal.UserID == "" || agentID != params.Principal.UserID {
		err = ErrUnauthorized
		return
	}

	location, sector, vErr := validateMarkingInput(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.records == nil || s.windows == nil {
		err = fmt.Errorf("attendance service not configured")
		return
	}

	now := s.now()
	loc := s.calendar.Location()
	date := s.calendar.DateOf(now)

	var existing AttendanceRecord
	existing, err = s.records.GetForDay(ctx, agentID, date)
	switch {
	case err == nil:
		err = &AlreadyMarkedError{Record: existing}
		return
	case !isNotFound(err):
		err = mapAttendanceRepoError(err, AttendanceRecord{})
		return
	}
	err = nil

	var cfg WindowConfig
	cfg, err = s.windows.GetWindow(ctx, params.Principal.Scope)
	if err != nil {
		return
	}

	switch window.Evaluate(cfg.Window, now, loc) {
	case window.StateClosedExpired:
		err = ErrWindowClosed
		return
	case window.StatePendingOpen:
		err = ErrWindowNotOpen
		return
	}

	candidate := AttendanceRecord{
		ID:               s.idGenerator(),
		AgentID:          agentID,
		CalendarDate:     date,
		MarkedAt:         now,
		Location:         location,
		Sector:           sector,
		Classification:   window.Classify(window.ClockOf(now, loc), cfg.LateThreshold()),
		ClientReportedAt: params.ClientTime,
	}

	var stored AttendanceRecord
	stored, err = s.records.ClaimDay(ctx, candidate)
	if err != nil {
		err = mapAttendanceRepoError(err, stored)
		return
	}

	record = stored
	return
}

// Status reports whether the agent has marked today together with the
// server-evaluated window state. AlreadyMarked outranks every time state.
func (s *AttendanceService) Status(ctx context.Context, params StatusParams) (status AttendanceStatus, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	agentID, err := s.authorizeRead(params.Principal, params.AgentID)
	if err != nil {
		return
	}
	if s.records == nil || s.windows == nil {
		err = fmt.Errorf("attendance service not configured")
		return
	}

	scope, err := readScope(params.Principal, agentID, params.Scope)
	if err != nil {
		return
	}

	now := s.now()
	status = AttendanceStatus{
		AgentID:      agentID,
		CalendarDate: s.calendar.DateOf(now),
		ServerTime:   now,
	}

	status.Window, err = s.windows.GetWindow(ctx, scope)
	if err != nil {
		return
	}

	record, getErr := s.records.GetForDay(ctx, agentID, status.CalendarDate)
	switch {
	case getErr == nil:
		status.HasMarkedToday = true
		status.Record = &record
	case !isNotFound(getErr):
		err = mapAttendanceRepoError(getErr, AttendanceRecord{})
		s.loggerWith(ctx, "Status", "agent_id", agentID).
			ErrorContext(ctx, "failed to load attendance status", "error", err, "error_kind", ErrorKind(err))
		return
	}

	status.State = window.Resolve(window.Evaluate(status.Window.Window, now, s.calendar.Location()), status.HasMarkedToday)
	return
}

// History lists the agent's records over a date range, synthesizing Absent
// entries for expected working days without a record. Today only counts as
// absent once its window has closed; future days never count.
func (s *AttendanceService) History(ctx context.Context, params HistoryParams) (history AttendanceHistory, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	agentID, err := s.authorizeRead(params.Principal, params.AgentID)
	if err != nil {
		return
	}
	if s.records == nil || s.windows == nil {
		err = fmt.Errorf("attendance service not configured")
		return
	}

	logger := s.loggerWith(ctx, "History",
		"principal_id", params.Principal.UserID,
		"agent_id", agentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build attendance history", "error", err, "error_kind", ErrorKind(err))
			return
		}
		s.metrics.HistoryServed(history.ExpectedDays, history.AttendanceRate)
		logger.With(
			"from", history.From,
			"to", history.To,
			"expected_days", history.ExpectedDays,
		).InfoContext(ctx, "attendance history listed")
	}()

	now := s.now()
	from, to := params.From, params.To
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -(defaultHistoryDays - 1))
	}

	history.AgentID = agentID
	history.From = s.calendar.DateOf(from)
	history.To = s.calendar.DateOf(to)
	if history.From > history.To {
		vErr := &ValidationError{}
		vErr.add("from", "from must not be after to")
		err = vErr
		return
	}

	var scope string
	scope, err = readScope(params.Principal, agentID, params.Scope)
	if err != nil {
		return
	}
	var cfg WindowConfig
	cfg, err = s.windows.GetWindow(ctx, scope)
	if err != nil {
		return
	}

	var days []string
	days, err = s.calendar.Days(from, to)
	if err != nil {
		vErr := &ValidationError{}
		switch {
		case errors.Is(err, calendar.ErrRangeTooLong):
			vErr.add("to", fmt.Sprintf("range must not exceed %d days", calendar.MaxRangeDays))
		case errors.Is(err, calendar.ErrInvalidRange):
			vErr.add("from", "from must not be after to")
		default:
			return
		}
		err = vErr
		return
	}

	today := s.calendar.DateOf(now)
	todayClosed := window.Evaluate(cfg.Window, now, s.calendar.Location()) == window.StateClosedExpired

	var records []AttendanceRecord
	records, err = s.records.ListRange(ctx, agentID, history.From, history.To)
	if err != nil {
		err = mapAttendanceRepoError(err, AttendanceRecord{})
		return
	}

	byDate := make(map[string]AttendanceRecord, len(records))
	for _, r := range records {
		byDate[r.CalendarDate] = r
	}

	entries := make([]HistoryEntry, 0, len(days)+len(records))
	for _, day := range days {
		if _, ok := byDate[day]; ok {
			continue
		}
		if day > today || (day == today && !todayClosed) {
			continue
		}
		entries = append(entries, HistoryEntry{CalendarDate: day, Classification: window.ClassificationAbsent})
	}
	for _, r := range records {
		r := r
		entries = append(entries, HistoryEntry{CalendarDate: r.CalendarDate, Classification: r.Classification, Record: &r})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CalendarDate < entries[j].CalendarDate
	})

	for _, entry := range entries {
		switch entry.Classification {
		case window.ClassificationPresent:
			history.PresentCount++
		case window.ClassificationLate:
			history.LateCount++
		case window.ClassificationAbsent:
			history.AbsentCount++
		}
	}
	history.Entries = entries
	history.ExpectedDays = len(entries)
	if history.ExpectedDays > 0 {
		history.AttendanceRate = float64(history.PresentCount+history.LateCount) / float64(history.ExpectedDays)
	}
	return
}

// authorizeRead resolves the target agent and rejects agents reading others.
func (s *AttendanceService) authorizeRead(principal Principal, agentID string) (string, error) {
	if principal.UserID == "" {
		return "", ErrUnauthorized
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = principal.UserID
	}
	if agentID != principal.UserID && !principal.CanManage() {
		return "", ErrUnauthorized
	}
	return agentID, nil
}

// readScope picks the window scope for a read. Callers reading their own
// attendance default to their token scope; a manager reading another agent
// must name that agent's scope.
func readScope(principal Principal, agentID, scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope != "" {
		return scope, nil
	}
	if agentID != principal.UserID {
		vErr := &ValidationError{}
		vErr.add("scope", "scope is required when reading another agent's attendance")
		return "", vErr
	}
	return principal.Scope, nil
}

func validateMarkingInput(params MarkAttendanceParams) (string, string, *ValidationError) {
	vErr := &ValidationError{}

	location := strings.TrimSpace(params.Location)
	sector := strings.TrimSpace(params.Sector)

	switch {
	case location == "":
		vErr.add("location", "location is required")
	case len(location) > maxLocationLength:
		vErr.add("location", fmt.Sprintf("location must be at most %d characters", maxLocationLength))
	}
	switch {
	case sector == "":
		vErr.add("sector", "sector is required")
	case len(sector) > maxSectorLength:
		vErr.add("sector", fmt.Sprintf("sector must be at most %d characters", maxSectorLength))
	}

	return location, sector, vErr
}

func mapAttendanceRepoError(err error, stored AttendanceRecord) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return &AlreadyMarkedError{Record: stored}
	}
	if isNotFound(err) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("record", "attendance record is incomplete")
		return vErr
	}
	return err
}
