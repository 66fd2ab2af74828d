package migration

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager orchestrates scanning, validating, and executing pending migrations.
type Manager struct {
	scanner  Scanner
	executor Executor
	logger   *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default.
func NewManager(scanner Scanner, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run executes all pending migrations in version order. Execution stops at the
// first failure; earlier migrations stay applied.
func (m *Manager) Run(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "database schema up to date", "current_version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending_count", len(status.Pending),
	)

	for i, migration := range status.Pending {
		logger := m.logger.With(
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			logger.ErrorContext(ctx, "migration failed", "error", err)
			return newMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		logger.InfoContext(ctx, "migration applied")
	}

	return nil
}

// Status reports the applied and pending migrations after validating that the
// available sequence is consistent with what the database has recorded.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, fmt.Errorf("failed to initialize version table: %w", err)
	}

	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, fmt.Errorf("failed to scan migrations: %w", err)
	}

	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get applied versions: %w", err)
	}

	if err := validateSequence(available, applied); err != nil {
		return Status{}, fmt.Errorf("migration sequence validation failed: %w", err)
	}

	appliedSet := make(map[int]struct{}, len(applied))
	current := ""
	for _, a := range applied {
		appliedSet[versionNumber(a.Version)] = struct{}{}
		if current == "" || versionNumber(a.Version) > versionNumber(current) {
			current = a.Version
		}
	}

	var pending []Migration
	for _, migration := range available {
		if _, ok := appliedSet[versionNumber(migration.Version)]; !ok {
			pending = append(pending, migration)
		}
	}

	return Status{CurrentVersion: current, Applied: applied, Pending: pending}, nil
}

// validateSequence rejects gaps in the available versions, applied versions
// with no file, and applied files whose content changed.
func validateSequence(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for i, migration := range available {
		n := versionNumber(migration.Version)
		if i > 0 && n != versionNumber(available[i-1].Version)+1 {
			return fmt.Errorf("%w: missing migration version %03d in sequence",
				ErrVersionConflict, versionNumber(available[i-1].Version)+1)
		}
		byVersion[n] = migration
	}

	for _, a := range applied {
		migration, ok := byVersion[versionNumber(a.Version)]
		if !ok {
			return fmt.Errorf("%w: applied migration %s not found in available migrations",
				ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && migration.Checksum != "" && a.Checksum != migration.Checksum {
			return newMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
