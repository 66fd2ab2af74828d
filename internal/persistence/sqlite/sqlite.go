package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/field-attendance/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage bundles the SQLite-backed repositories over one connection pool.
type Storage struct {
	*AttendanceRepository
	*WindowConfigRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open opens the database at dsn with the default configuration.
func Open(dsn string) (*Storage, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(dsn), nil)
}

// OpenWithConfig opens a database with an explicit configuration and logger.
func OpenWithConfig(cfg migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return newStorage(pool, logger), nil
}

// NewStorage wraps an existing connection pool.
func NewStorage(pool *ConnectionPool, logger *slog.Logger) *Storage {
	return newStorage(pool, logger)
}

func newStorage(pool *ConnectionPool, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		AttendanceRepository:   NewAttendanceRepository(pool),
		WindowConfigRepository: NewWindowConfigRepository(pool),
		pool:                   pool,
		logger:                 logger,
	}
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewFSScanner(migrationsFS, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
