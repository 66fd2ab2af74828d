package persistence

import "time"

// GlobalScope identifies the organization-wide window configuration.
const GlobalScope = "global"

// WindowConfig is the single active attendance window for a scope.
type WindowConfig struct {
	Scope        string
	StartMinute  int
	EndMinute    int
	GraceMinutes int
	UpdatedBy    string
	UpdatedAt    time.Time
}

// AttendanceRecord is one agent's marking for one calendar day.
// (AgentID, CalendarDate) is unique.
type AttendanceRecord struct {
	ID               string
	AgentID          string
	CalendarDate     string
	MarkedAt         time.Time
	Location         string
	Sector           string
	Classification   string
	ClientReportedAt *time.Time
}
