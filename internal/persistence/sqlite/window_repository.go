package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/field-attendance/internal/persistence"
)

// WindowConfigRepository implements persistence.WindowConfigRepository using SQLite
type WindowConfigRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewWindowConfigRepository creates a new SQLite window configuration repository
func NewWindowConfigRepository(pool *ConnectionPool) *WindowConfigRepository {
	return &WindowConfigRepository{pool: pool, mapper: NewErrorMapper()}
}

// GetWindowConfig returns the active window for scope
func (r *WindowConfigRepository) GetWindowConfig(ctx context.Context, scope string) (persistence.WindowConfig, error) {
	var (
		cfg       persistence.WindowConfig
		updatedAt string
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT scope, start_minute, end_minute, grace_minutes, updated_by, updated_at
		FROM window_configs
		WHERE scope = ?`,
		normalizeScope(scope),
	).Scan(&cfg.Scope, &cfg.StartMinute, &cfg.EndMinute, &cfg.GraceMinutes, &cfg.UpdatedBy, &updatedAt)
	if err != nil {
		return persistence.WindowConfig{}, r.mapper.MapError(err)
	}

	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.WindowConfig{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return cfg, nil
}

// SaveWindowConfig upserts the single active window for the config's scope
func (r *WindowConfigRepository) SaveWindowConfig(ctx context.Context, cfg persistence.WindowConfig) error {
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO window_configs (scope, start_minute, end_minute, grace_minutes, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope) DO UPDATE SET
			start_minute = excluded.start_minute,
			end_minute = excluded.end_minute,
			grace_minutes = excluded.grace_minutes,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		normalizeScope(cfg.Scope),
		cfg.StartMinute,
		cfg.EndMinute,
		cfg.GraceMinutes,
		cfg.UpdatedBy,
		formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		mapped := r.mapper.MapError(err)
		if errors.Is(mapped, persistence.ErrConstraintViolation) {
			return persistence.ErrConstraintViolation
		}
		return mapped
	}
	return nil
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return persistence.GlobalScope
	}
	return scope
}
