package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/calendar"
)

type attendanceService interface {
	MarkAttendance(ctx context.Context, params application.MarkAttendanceParams) (application.AttendanceRecord, error)
	Status(ctx context.Context, params application.StatusParams) (application.AttendanceStatus, error)
	History(ctx context.Context, params application.HistoryParams) (application.AttendanceHistory, error)
}

// AttendanceHandler serves marking, status, and history endpoints.
type AttendanceHandler struct {
	service   attendanceService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewAttendanceHandler constructs an AttendanceHandler. loc is the timezone
// history date parameters are interpreted in; nil means UTC.
func NewAttendanceHandler(service attendanceService, loc *time.Location, logger *slog.Logger) *AttendanceHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &AttendanceHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

// Mark records today's attendance for the caller.
func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Mark", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode attendance request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Mark", "principal_id", principal.UserID)

	record, err := h.service.MarkAttendance(r.Context(), application.MarkAttendanceParams{
		Principal:  principal,
		AgentID:    strings.TrimSpace(req.AgentID),
		Location:   req.Location,
		Sector:     req.Sector,
		ClientTime: req.ClientTime,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "attendance marking rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("record_id", record.ID, "classification", string(record.Classification)).InfoContext(r.Context(), "attendance marked")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, attendanceResponse{Record: toAttendanceDTO(record)})
}

// Status reports whether ?agent_id= (default: caller) has marked today.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	status, err := h.service.Status(r.Context(), application.StatusParams{
		Principal: principal,
		AgentID:   strings.TrimSpace(query.Get("agent_id")),
		Scope:     strings.TrimSpace(query.Get("scope")),
	})
	if err != nil {
		h.log(r.Context(), "Status", "principal_id", principal.UserID).ErrorContext(r.Context(), "status lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStatusDTO(status))
}

// History lists ?agent_id= attendance between ?from= and ?to= (YYYY-MM-DD).
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	from, fromErr := h.parseDate(query.Get("from"))
	to, toErr := h.parseDate(query.Get("to"))
	if fromErr != nil || toErr != nil {
		h.log(r.Context(), "History", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "invalid history range")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, codeBadRequest, errInvalidDate)
		return
	}

	logger := h.log(r.Context(), "History", "principal_id", principal.UserID)

	history, err := h.service.History(r.Context(), application.HistoryParams{
		Principal: principal,
		AgentID:   strings.TrimSpace(query.Get("agent_id")),
		Scope:     strings.TrimSpace(query.Get("scope")),
		From:      from,
		To:        to,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "history lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("entries", len(history.Entries)).InfoContext(r.Context(), "history listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHistoryDTO(history))
}

func (h *AttendanceHandler) parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(calendar.DateLayout, value, h.location)
}

type markRequest struct {
	AgentID    string     `json:"agent_id"`
	Location   string     `json:"location"`
	Sector     string     `json:"sector"`
	ClientTime *time.Time `json:"client_time"`
}

type attendanceResponse struct {
	Record attendanceDTO `json:"record"`
}

type attendanceDTO struct {
	ID               string `json:"id"`
	AgentID          string `json:"agent_id"`
	CalendarDate     string `json:"calendar_date"`
	MarkedAt         string `json:"marked_at"`
	Location         string `json:"location"`
	Sector           string `json:"sector"`
	Classification   string `json:"classification"`
	ClientReportedAt string `json:"client_reported_at,omitempty"`
}

func toAttendanceDTO(record application.AttendanceRecord) attendanceDTO {
	dto := attendanceDTO{
		ID:             record.ID,
		AgentID:        record.AgentID,
		CalendarDate:   record.CalendarDate,
		Location:       record.Location,
		Sector:         record.Sector,
		Classification: string(record.Classification),
	}
	if !record.MarkedAt.IsZero() {
		dto.MarkedAt = record.MarkedAt.UTC().Format(time.RFC3339Nano)
	}
	if record.ClientReportedAt != nil {
		dto.ClientReportedAt = record.ClientReportedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

type statusDTO struct {
	AgentID        string         `json:"agent_id"`
	CalendarDate   string         `json:"calendar_date"`
	HasMarkedToday bool           `json:"has_marked_today"`
	Time           string         `json:"time,omitempty"`
	Classification string         `json:"classification,omitempty"`
	Record         *attendanceDTO `json:"record,omitempty"`
	State          string         `json:"state"`
	Window         windowDTO      `json:"window"`
	ServerTime     string         `json:"server_time"`
}

func toStatusDTO(status application.AttendanceStatus) statusDTO {
	dto := statusDTO{
		AgentID:        status.AgentID,
		CalendarDate:   status.CalendarDate,
		HasMarkedToday: status.HasMarkedToday,
		State:          string(status.State),
		Window:         toWindowDTO(status.Window),
		ServerTime:     status.ServerTime.UTC().Format(time.RFC3339Nano),
	}
	if status.Record != nil {
		record := toAttendanceDTO(*status.Record)
		dto.Record = &record
		dto.Time = record.MarkedAt
		dto.Classification = record.Classification
	}
	return dto
}

type historyEntryDTO struct {
	CalendarDate   string         `json:"calendar_date"`
	Classification string         `json:"classification"`
	Record         *attendanceDTO `json:"record,omitempty"`
}

type historyDTO struct {
	AgentID        string            `json:"agent_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Entries        []historyEntryDTO `json:"entries"`
	PresentCount   int               `json:"present_count"`
	LateCount      int               `json:"late_count"`
	AbsentCount    int               `json:"absent_count"`
	ExpectedDays   int               `json:"expected_days"`
	AttendanceRate float64           `json:"attendance_rate"`
}

func toHistoryDTO(history application.AttendanceHistory) historyDTO {
	entries := make([]historyEntryDTO, 0, len(history.Entries))
	for _, entry := range history.Entries {
		dto := historyEntryDTO{CalendarDate: entry.CalendarDate, Classification: string(entry.Classification)}
		if entry.Record != nil {
			record := toAttendanceDTO(*entry.Record)
			dto.Record = &record
		}
		entries = append(entries, dto)
	}
	return historyDTO{
		AgentID:        history.AgentID,
		From:           history.From,
		To:             history.To,
		Entries:        entries,
		PresentCount:   history.PresentCount,
		LateCount:      history.LateCount,
		AbsentCount:    history.AbsentCount,
		ExpectedDays:   history.ExpectedDays,
		AttendanceRate: history.AttendanceRate,
	}
}
