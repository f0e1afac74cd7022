// Package migration applies versioned SQL schema changes to SQLite databases.
//
// Migration files are read from an fs.FS, usually an embed.FS compiled into
// the binary, and follow the naming convention {version}_{description}.sql
// (e.g., "001_initial_schema.sql"). Applied versions are tracked in a
// schema_migrations table; each migration runs in its own transaction
// together with its version record.
//
// Example usage:
//
//	manager := NewManager(NewScanner(), NewSQLiteExecutor(db), migrations, logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
