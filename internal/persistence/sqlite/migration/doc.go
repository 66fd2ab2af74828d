// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files are read from an fs.FS (typically an embed.FS compiled into
// the binary) and follow the naming convention {version}_{description}.sql,
// for example "001_attendance_schema.sql". Applied versions are tracked in a
// schema_migrations table; each migration runs in its own transaction together
// with its bookkeeping row.
//
// Example usage:
//
//	manager := migration.NewManager(
//		migration.NewFSScanner(migrationsFS, "migrations"),
//		migration.NewSQLiteExecutor(db),
//		logger,
//	)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
