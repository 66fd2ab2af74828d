package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/field-attendance/internal/application"
	"github.com/example/field-attendance/internal/persistence"
	"github.com/example/field-attendance/internal/window"
)

var recordCounter uint64

// referenceTime is a Thursday, one hour into the default 06:00-09:00 window.
var referenceTime = time.Date(2024, time.March, 14, 7, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ReferenceDate returns the calendar date of ReferenceTime.
func ReferenceDate() string {
	return referenceTime.Format("2006-01-02")
}

// ----------------------------- Window fixtures -----------------------------

// WindowFixture represents a deterministic window configuration.
type WindowFixture struct {
	Scope        string
	Start        window.Clock
	End          window.Clock
	GraceMinutes int
	UpdatedBy    string
	UpdatedAt    time.Time
}

// WindowOption configures the generated window fixture.
type WindowOption func(*WindowFixture)

// NewWindowFixture returns the global 06:00-09:00 window with a 15 minute grace.
func NewWindowFixture(opts ...WindowOption) WindowFixture {
	fixture := WindowFixture{
		Scope:        persistence.GlobalScope,
		Start:        window.MustClock(6, 0),
		End:          window.MustClock(9, 0),
		GraceMinutes: 15,
		UpdatedBy:    "admin-1",
		UpdatedAt:    referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithWindowScope overrides the scope.
func WithWindowScope(scope string) WindowOption {
	return func(f *WindowFixture) {
		f.Scope = scope
	}
}

// WithWindowTimes overrides the start and end of the window.
func WithWindowTimes(start, end window.Clock) WindowOption {
	return func(f *WindowFixture) {
		f.Start = start
		f.End = end
	}
}

// WithGraceMinutes overrides the grace period.
func WithGraceMinutes(minutes int) WindowOption {
	return func(f *WindowFixture) {
		f.GraceMinutes = minutes
	}
}

// WithWindowUpdatedBy overrides the last editor.
func WithWindowUpdatedBy(userID string) WindowOption {
	return func(f *WindowFixture) {
		f.UpdatedBy = userID
	}
}

// Application converts the fixture into an application.WindowConfig.
func (f WindowFixture) Application() application.WindowConfig {
	return application.WindowConfig{
		Scope:        f.Scope,
		Window:       window.TimeWindow{Start: f.Start, End: f.End},
		GraceMinutes: f.GraceMinutes,
		UpdatedBy:    f.UpdatedBy,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Persistence converts the fixture into a persistence.WindowConfig.
func (f WindowFixture) Persistence() persistence.WindowConfig {
	return persistence.WindowConfig{
		Scope:        f.Scope,
		StartMinute:  int(f.Start),
		EndMinute:    int(f.End),
		GraceMinutes: f.GraceMinutes,
		UpdatedBy:    f.UpdatedBy,
		UpdatedAt:    f.UpdatedAt,
	}
}

// ----------------------------- Attendance fixtures -----------------------------

// RecordFixture represents a deterministic attendance record.
type RecordFixture struct {
	ID               string
	AgentID          string
	CalendarDate     string
	MarkedAt         time.Time
	Location         string
	Sector           string
	Classification   window.Classification
	ClientReportedAt *time.Time
}

// RecordOption configures the generated record fixture.
type RecordOption func(*RecordFixture)

// NewRecordFixture returns an on-time record for agent-001 on the reference date.
func NewRecordFixture(opts ...RecordOption) RecordFixture {
	idx := atomic.AddUint64(&recordCounter, 1)
	fixture := RecordFixture{
		ID:             fmt.Sprintf("record-%03d", idx),
		AgentID:        "agent-001",
		CalendarDate:   ReferenceDate(),
		MarkedAt:       referenceTime,
		Location:       "Jl. Sudirman 1",
		Sector:         "north",
		Classification: window.ClassificationPresent,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRecordID overrides the generated record ID.
func WithRecordID(id string) RecordOption {
	return func(f *RecordFixture) {
		f.ID = id
	}
}

// WithRecordAgent overrides the agent.
func WithRecordAgent(agentID string) RecordOption {
	return func(f *RecordFixture) {
		f.AgentID = agentID
	}
}

// WithRecordMarkedAt sets the marking instant and derives the UTC calendar date from it.
func WithRecordMarkedAt(markedAt time.Time) RecordOption {
	return func(f *RecordFixture) {
		f.MarkedAt = markedAt
		f.CalendarDate = markedAt.UTC().Format("2006-01-02")
	}
}

// WithRecordDate overrides the calendar date without touching the marking instant.
func WithRecordDate(date string) RecordOption {
	return func(f *RecordFixture) {
		f.CalendarDate = date
	}
}

// WithRecordClassification overrides the classification.
func WithRecordClassification(classification window.Classification) RecordOption {
	return func(f *RecordFixture) {
		f.Classification = classification
	}
}

// WithRecordPlace overrides location and sector.
func WithRecordPlace(location, sector string) RecordOption {
	return func(f *RecordFixture) {
		f.Location = location
		f.Sector = sector
	}
}

// WithClientReportedAt sets the device timestamp.
func WithClientReportedAt(t time.Time) RecordOption {
	return func(f *RecordFixture) {
		f.ClientReportedAt = &t
	}
}

// Application converts the fixture into an application.AttendanceRecord.
func (f RecordFixture) Application() application.AttendanceRecord {
	return application.AttendanceRecord{
		ID:               f.ID,
		AgentID:          f.AgentID,
		CalendarDate:     f.CalendarDate,
		MarkedAt:         f.MarkedAt,
		Location:         f.Location,
		Sector:           f.Sector,
		Classification:   f.Classification,
		ClientReportedAt: cloneTime(f.ClientReportedAt),
	}
}

// Persistence converts the fixture into a persistence.AttendanceRecord.
func (f RecordFixture) Persistence() persistence.AttendanceRecord {
	return persistence.AttendanceRecord{
		ID:               f.ID,
		AgentID:          f.AgentID,
		CalendarDate:     f.CalendarDate,
		MarkedAt:         f.MarkedAt,
		Location:         f.Location,
		Sector:           f.Sector,
		Classification:   string(f.Classification),
		ClientReportedAt: cloneTime(f.ClientReportedAt),
	}
}

// ----------------------------- Principals -----------------------------

// AgentPrincipal returns an agent governed by the given manager's window.
func AgentPrincipal(agentID, managerID string) application.Principal {
	scope := application.GlobalScope
	if managerID != "" {
		scope = application.ManagerScope(managerID)
	}
	return application.Principal{UserID: agentID, Role: application.RoleAgent, Scope: scope}
}

// ManagerPrincipal returns a manager whose own window is their manager scope.
func ManagerPrincipal(managerID string) application.Principal {
	return application.Principal{UserID: managerID, Role: application.RoleManager, Scope: application.ManagerScope(managerID)}
}

// AdminPrincipal returns an administrator on the global window.
func AdminPrincipal(adminID string) application.Principal {
	return application.Principal{UserID: adminID, Role: application.RoleAdmin, Scope: application.GlobalScope}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
