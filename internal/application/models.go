package application

import (
	"strings"
	"time"

	"github.com/example/field-attendance/internal/window"
)

// GlobalScope identifies the organization-wide window.
const GlobalScope = "global"

// managerScopePrefix prefixes per-manager window scopes, e.g. "manager:m-17".
const managerScopePrefix = "manager:"

// Role is the portal role carried by a principal.
type Role string

const (
	// RoleAgent is a field sales agent marking their own attendance.
	RoleAgent Role = "agent"
	// RoleManager supervises agents and configures their window.
	RoleManager Role = "manager"
	// RoleAdmin administers every scope.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
	// Scope is the window scope the principal's attendance is governed by.
	Scope string
}

// CanManage reports whether the principal may read other agents and write windows.
func (p Principal) CanManage() bool {
	return p.Role == RoleManager || p.Role == RoleAdmin
}

// ManagerScope returns the window scope owned by a manager.
func ManagerScope(managerID string) string {
	return managerScopePrefix + managerID
}

// NormalizeScope trims scope and maps the empty value to GlobalScope.
func NormalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return GlobalScope
	}
	return scope
}

// WindowConfig is the resolved window for a scope.
type WindowConfig struct {
	Scope        string
	Window       window.TimeWindow
	GraceMinutes int
	UpdatedBy    string
	UpdatedAt    time.Time
	// IsDefault is set when no scope had a stored window and the system default applied.
	IsDefault bool
}

// LateThreshold returns the last minute still classified as present.
func (c WindowConfig) LateThreshold() window.Clock {
	return c.Window.LateThreshold(c.GraceMinutes)
}

// WindowInput captures caller provided window fields. Times accept 12- or 24-hour notation.
type WindowInput struct {
	StartTime    string
	EndTime      string
	GraceMinutes *int
}

// UpdateWindowParams wraps the data required to replace a scope's window.
type UpdateWindowParams struct {
	Principal Principal
	Scope     string
	Input     WindowInput
}

// AttendanceRecord is the canonical stored marking.
type AttendanceRecord struct {
	ID               string
	AgentID          string
	CalendarDate     string
	MarkedAt         time.Time
	Location         string
	Sector           string
	Classification   window.Classification
	ClientReportedAt *time.Time
}

// MarkAttendanceParams wraps the data required to mark attendance.
type MarkAttendanceParams struct {
	Principal Principal
	// AgentID defaults to the principal. Agents may only mark for themselves.
	AgentID  string
	Location string
	Sector   string
	// ClientTime is the device clock at submission. It is stored but never trusted.
	ClientTime *time.Time
}

// AttendanceStatus is the server view of an agent's current day.
type AttendanceStatus struct {
	AgentID        string
	CalendarDate   string
	HasMarkedToday bool
	Record         *AttendanceRecord
	Window         WindowConfig
	State          window.State
	ServerTime     time.Time
}

// StatusParams wraps the data required to read an agent's current day.
// Empty AgentID means the principal; empty Scope means the principal's scope.
type StatusParams struct {
	Principal Principal
	AgentID   string
	Scope     string
}

// HistoryParams wraps the data required to list an agent's attendance history.
// Zero From/To default to the last 30 days ending today.
type HistoryParams struct {
	Principal Principal
	AgentID   string
	Scope     string
	From      time.Time
	To        time.Time
}

// HistoryEntry is one expected or recorded day in a history listing.
type HistoryEntry struct {
	CalendarDate   string
	Classification window.Classification
	Record         *AttendanceRecord
}

// AttendanceHistory aggregates an agent's attendance over a date range.
type AttendanceHistory struct {
	AgentID        string
	From           string
	To             string
	Entries        []HistoryEntry
	PresentCount   int
	LateCount      int
	AbsentCount    int
	ExpectedDays   int
	AttendanceRate float64
}
