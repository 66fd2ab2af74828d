package main

import (
	"context"
	"time"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/window"
)

type windowRepositoryAdapter struct {
	repo persistence.WindowConfigRepository
}

func newWindowRepositoryAdapter(repo persistence.WindowConfigRepository) *windowRepositoryAdapter {
	return &windowRepositoryAdapter{repo: repo}
}

func (a *windowRepositoryAdapter) GetWindowConfig(ctx context.Context, scope string) (application.WindowConfig, error) {
	stored, err := a.repo.GetWindowConfig(ctx, scope)
	if err != nil {
		return application.WindowConfig{}, err
	}
	return toApplicationWindow(stored), nil
}

func (a *windowRepositoryAdapter) SaveWindowConfig(ctx context.Context, cfg application.WindowConfig) (application.WindowConfig, error) {
	if err := a.repo.SaveWindowConfig(ctx, toPersistenceWindow(cfg)); err != nil {
		return application.WindowConfig{}, err
	}
	stored, err := a.repo.GetWindowConfig(ctx, cfg.Scope)
	if err != nil {
		return application.WindowConfig{}, err
	}
	return toApplicationWindow(stored), nil
}

type attendanceRepositoryAdapter struct {
	repo persistence.AttendanceRepository
}

func newAttendanceRepositoryAdapter(repo persistence.AttendanceRepository) *attendanceRepositoryAdapter {
	return &attendanceRepositoryAdapter{repo: repo}
}

// ClaimDay passes the stored record through on conflict so the service can
// report which marking already holds the day.
func (a *attendanceRepositoryAdapter) ClaimDay(ctx context.Context, record application.AttendanceRecord) (application.AttendanceRecord, error) {
	stored, err := a.repo.ClaimDay(ctx, toPersistenceRecord(record))
	if err != nil {
		return toApplicationRecord(stored), err
	}
	return toApplicationRecord(stored), nil
}

func (a *attendanceRepositoryAdapter) GetForDay(ctx context.Context, agentID, calendarDate string) (application.AttendanceRecord, error) {
	stored, err := a.repo.GetForDay(ctx, agentID, calendarDate)
	if err != nil {
		return application.AttendanceRecord{}, err
	}
	return toApplicationRecord(stored), nil
}

func (a *attendanceRepositoryAdapter) ListRange(ctx context.Context, agentID, from, to string) ([]application.AttendanceRecord, error) {
	models, err := a.repo.ListRange(ctx, agentID, from, to)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	records := make([]application.AttendanceRecord, 0, len(models))
	for _, model := range models {
		records = append(records, toApplicationRecord(model))
	}
	return records, nil
}

func toApplicationWindow(model persistence.WindowConfig) application.WindowConfig {
	return application.WindowConfig{
		Scope: model.Scope,
		Window: window.TimeWindow{
			Start: window.Clock(model.StartMinute),
			End:   window.Clock(model.EndMinute),
		},
		GraceMinutes: model.GraceMinutes,
		UpdatedBy:    model.UpdatedBy,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toPersistenceWindow(cfg application.WindowConfig) persistence.WindowConfig {
	return persistence.WindowConfig{
		Scope:        cfg.Scope,
		StartMinute:  int(cfg.Window.Start),
		EndMinute:    int(cfg.Window.End),
		GraceMinutes: cfg.GraceMinutes,
		UpdatedBy:    cfg.UpdatedBy,
		UpdatedAt:    cfg.UpdatedAt,
	}
}

func toApplicationRecord(model persistence.AttendanceRecord) application.AttendanceRecord {
	return application.AttendanceRecord{
		ID:               model.ID,
		AgentID:          model.AgentID,
		CalendarDate:     model.CalendarDate,
		MarkedAt:         model.MarkedAt,
		Location:         model.Location,
		Sector:           model.Sector,
		Classification:   window.Classification(model.Classification),
		ClientReportedAt: cloneTime(model.ClientReportedAt),
	}
}

func toPersistenceRecord(record application.AttendanceRecord) persistence.AttendanceRecord {
	return persistence.AttendanceRecord{
		ID:               record.ID,
		AgentID:          record.AgentID,
		CalendarDate:     record.CalendarDate,
		MarkedAt:         record.MarkedAt,
		Location:         record.Location,
		Sector:           record.Sector,
		Classification:   string(record.Classification),
		ClientReportedAt: cloneTime(record.ClientReportedAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
