// Package memory provides an in-process implementation of the persistence
// repositories for tests and single-node deployments without a database file.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/field-attendance/internal/persistence"
)

type dayKey struct {
	agentID string
	date    string
}

// Storage keeps window configurations and attendance records in maps guarded
// by a single RWMutex. ClaimDay holds the write lock for its check-and-insert
// so concurrent claims for the same day serialize.
type Storage struct {
	mu      sync.RWMutex
	windows map[string]persistence.WindowConfig
	records map[dayKey]persistence.AttendanceRecord
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		windows: make(map[string]persistence.WindowConfig),
		records: make(map[dayKey]persistence.AttendanceRecord),
	}
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate initialises the storage. No-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- WindowConfigRepository implementation ---

// GetWindowConfig returns the active window for scope.
func (s *Storage) GetWindowConfig(ctx context.Context, scope string) (persistence.WindowConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.windows[normalizeScope(scope)]
	if !ok {
		return persistence.WindowConfig{}, persistence.ErrNotFound
	}
	return cfg, nil
}

// SaveWindowConfig replaces the active window for the config's scope.
func (s *Storage) SaveWindowConfig(ctx context.Context, cfg persistence.WindowConfig) error {
	if cfg.StartMinute >= cfg.EndMinute || cfg.GraceMinutes < 0 {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Scope = normalizeScope(cfg.Scope)
	s.windows[cfg.Scope] = cfg
	return nil
}

// --- AttendanceRepository implementation ---

// ClaimDay stores record unless the agent already has one for its date.
func (s *Storage) ClaimDay(ctx context.Context, record persistence.AttendanceRecord) (persistence.AttendanceRecord, error) {
	if record.ID == "" || record.AgentID == "" || record.CalendarDate == "" {
		return persistence.AttendanceRecord{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{agentID: record.AgentID, date: record.CalendarDate}
	if existing, ok := s.records[key]; ok {
		return cloneRecord(existing), persistence.ErrDuplicate
	}

	s.records[key] = cloneRecord(record)
	return cloneRecord(record), nil
}

// GetForDay returns the agent's record for date.
func (s *Storage) GetForDay(ctx context.Context, agentID, calendarDate string) (persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[dayKey{agentID: agentID, date: calendarDate}]
	if !ok {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}
	return cloneRecord(record), nil
}

// ListRange returns the agent's records between from and to inclusive, ordered by date.
func (s *Storage) ListRange(ctx context.Context, agentID, from, to string) ([]persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.AttendanceRecord, 0)
	for key, record := range s.records {
		if key.agentID != agentID {
			continue
		}
		if key.date < from || key.date > to {
			continue
		}
		records = append(records, cloneRecord(record))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CalendarDate < records[j].CalendarDate
	})
	return records, nil
}

func cloneRecord(record persistence.AttendanceRecord) persistence.AttendanceRecord {
	clone := record
	if record.ClientReportedAt != nil {
		reported := *record.ClientReportedAt
		clone.ClientReportedAt = &reported
	}
	return clone
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return persistence.GlobalScope
	}
	return scope
}
