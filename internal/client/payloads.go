package client

import (
	"fmt"
	"time"

	"github.com/example/field-attendance/internal/window"
)

type errorPayload struct {
	ErrorCode string            `json:"error_code"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
	Record    *recordPayload    `json:"record"`
}

type windowEnvelope struct {
	Window windowPayload `json:"window"`
}

type windowPayload struct {
	Scope         string `json:"scope"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	GraceMinutes  int    `json:"grace_minutes"`
	LateThreshold string `json:"late_threshold"`
	IsDefault     bool   `json:"is_default"`
}

func (p windowPayload) toWindowConfig() (WindowConfig, error) {
	w, err := window.Parse(p.StartTime, p.EndTime)
	if err != nil {
		return WindowConfig{}, fmt.Errorf("decode window: %w", err)
	}
	threshold := w.LateThreshold(p.GraceMinutes)
	if p.LateThreshold != "" {
		if parsed, err := window.ParseClock(p.LateThreshold); err == nil {
			threshold = parsed
		}
	}
	return WindowConfig{
		Scope:         p.Scope,
		Window:        w,
		GraceMinutes:  p.GraceMinutes,
		LateThreshold: threshold,
		IsDefault:     p.IsDefault,
	}, nil
}

type recordEnvelope struct {
	Record recordPayload `json:"record"`
}

type recordPayload struct {
	ID             string `json:"id"`
	AgentID        string `json:"agent_id"`
	CalendarDate   string `json:"calendar_date"`
	MarkedAt       string `json:"marked_at"`
	Location       string `json:"location"`
	Sector         string `json:"sector"`
	Classification string `json:"classification"`
}

func (p recordPayload) toRecord() (Record, error) {
	rec := Record{
		ID:             p.ID,
		AgentID:        p.AgentID,
		CalendarDate:   p.CalendarDate,
		Location:       p.Location,
		Sector:         p.Sector,
		Classification: window.Classification(p.Classification),
	}
	if p.MarkedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, p.MarkedAt)
		if err != nil {
			return Record{}, fmt.Errorf("decode marked_at: %w", err)
		}
		rec.MarkedAt = t
	}
	return rec, nil
}

type statusPayload struct {
	AgentID        string         `json:"agent_id"`
	CalendarDate   string         `json:"calendar_date"`
	HasMarkedToday bool           `json:"has_marked_today"`
	Record         *recordPayload `json:"record"`
	State          string         `json:"state"`
	Window         windowPayload  `json:"window"`
	ServerTime     string         `json:"server_time"`
}

func (p statusPayload) toStatus() (Status, error) {
	cfg, err := p.Window.toWindowConfig()
	if err != nil {
		return Status{}, err
	}
	status := Status{
		AgentID:        p.AgentID,
		CalendarDate:   p.CalendarDate,
		HasMarkedToday: p.HasMarkedToday,
		State:          window.State(p.State),
		Window:         cfg,
	}
	if p.Record != nil {
		rec, err := p.Record.toRecord()
		if err != nil {
			return Status{}, err
		}
		status.Record = &rec
	}
	if p.ServerTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.ServerTime); err == nil {
			status.ServerTime = t
		}
	}
	return status, nil
}

type historyPayload struct {
	AgentID string `json:"agent_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Entries []struct {
		CalendarDate   string         `json:"calendar_date"`
		Classification string         `json:"classification"`
		Record         *recordPayload `json:"record"`
	} `json:"entries"`
	PresentCount   int     `json:"present_count"`
	LateCount      int     `json:"late_count"`
	AbsentCount    int     `json:"absent_count"`
	ExpectedDays   int     `json:"expected_days"`
	AttendanceRate float64 `json:"attendance_rate"`
}

func (p historyPayload) toHistory() (History, error) {
	history := History{
		AgentID:        p.AgentID,
		From:           p.From,
		To:             p.To,
		Entries:        make([]HistoryEntry, 0, len(p.Entries)),
		PresentCount:   p.PresentCount,
		LateCount:      p.LateCount,
		AbsentCount:    p.AbsentCount,
		ExpectedDays:   p.ExpectedDays,
		AttendanceRate: p.AttendanceRate,
	}
	for _, e := range p.Entries {
		entry := HistoryEntry{CalendarDate: e.CalendarDate, Classification: window.Classification(e.Classification)}
		if e.Record != nil {
			rec, err := e.Record.toRecord()
			if err != nil {
				return History{}, err
			}
			entry.Record = &rec
		}
		history.Entries = append(history.Entries, entry)
	}
	return history, nil
}
