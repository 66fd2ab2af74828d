package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/field-attendance/internal/persistence"
)

const attendanceColumns = `id, agent_id, calendar_date, marked_at, location, sector, classification, client_reported_at`

// AttendanceRepository implements persistence.AttendanceRepository using SQLite
type AttendanceRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewAttendanceRepository creates a new SQLite attendance repository
func NewAttendanceRepository(pool *ConnectionPool) *AttendanceRepository {
	return &AttendanceRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// ClaimDay inserts the record unless (agent_id, calendar_date) already exists.
// The insert and the conflict lookup share one transaction so a concurrent
// claim for the same day always observes the winning row.
func (r *AttendanceRepository) ClaimDay(ctx context.Context, record persistence.AttendanceRecord) (persistence.AttendanceRecord, error) {
	if record.ID == "" || record.AgentID == "" || record.CalendarDate == "" {
		return persistence.AttendanceRecord{}, persistence.ErrConstraintViolation
	}

	var (
		existing persistence.AttendanceRecord
		conflict bool
	)

	err := r.retry.WithRetry(ctx, func() error {
		conflict = false
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO attendance_records (`+attendanceColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (agent_id, calendar_date) DO NOTHING`,
				record.ID,
				record.AgentID,
				record.CalendarDate,
				formatTime(record.MarkedAt),
				record.Location,
				record.Sector,
				record.Classification,
				formatOptionalTime(record.ClientReportedAt),
			)
			if err != nil {
				return err
			}

			inserted, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			if inserted == 1 {
				return nil
			}

			conflict = true
			existing, err = scanAttendance(tx.QueryRowContext(ctx,
				`SELECT `+attendanceColumns+` FROM attendance_records WHERE agent_id = ? AND calendar_date = ?`,
				record.AgentID, record.CalendarDate,
			))
			return err
		})
	})
	if err != nil {
		return persistence.AttendanceRecord{}, r.mapper.MapError(err)
	}
	if conflict {
		return existing, persistence.ErrDuplicate
	}
	return record, nil
}

// GetForDay returns the record for agentID on calendarDate
func (r *AttendanceRepository) GetForDay(ctx context.Context, agentID, calendarDate string) (persistence.AttendanceRecord, error) {
	if agentID == "" || calendarDate == "" {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}

	record, err := scanAttendance(r.pool.DB().QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE agent_id = ? AND calendar_date = ?`,
		agentID, calendarDate,
	))
	if err != nil {
		return persistence.AttendanceRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// ListRange returns the agent's records with from <= calendar_date <= to ordered by date
func (r *AttendanceRepository) ListRange(ctx context.Context, agentID, from, to string) ([]persistence.AttendanceRecord, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE agent_id = ? AND calendar_date >= ? AND calendar_date <= ?
		ORDER BY calendar_date ASC`,
		agentID, from, to,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	records := make([]persistence.AttendanceRecord, 0)
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (persistence.AttendanceRecord, error) {
	var (
		record   persistence.AttendanceRecord
		markedAt string
		reported sql.NullString
	)
	err := row.Scan(
		&record.ID,
		&record.AgentID,
		&record.CalendarDate,
		&markedAt,
		&record.Location,
		&record.Sector,
		&record.Classification,
		&reported,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.AttendanceRecord{}, persistence.ErrNotFound
		}
		return persistence.AttendanceRecord{}, err
	}

	if record.MarkedAt, err = parseTime(markedAt); err != nil {
		return persistence.AttendanceRecord{}, fmt.Errorf("failed to parse marked_at: %w", err)
	}
	if reported.Valid {
		t, err := parseTime(reported.String)
		if err != nil {
			return persistence.AttendanceRecord{}, fmt.Errorf("failed to parse client_reported_at: %w", err)
		}
		record.ClientReportedAt = &t
	}
	return record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
