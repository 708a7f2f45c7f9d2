package database

import (
	"context"
	"fmt"
)

// migrations is the ordered, additive-only schema history for the
// session index. Each entry runs once, in its own transaction, tracked
// by position in the schema_migrations table. Never reorder or edit an
// applied entry: append a new one.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at  TEXT NOT NULL,
		ended_at    TEXT,
		port        TEXT,
		data_file   TEXT NOT NULL,
		stats_file  TEXT,
		points      INTEGER NOT NULL DEFAULT 0,
		errors      INTEGER NOT NULL DEFAULT 0,
		reconnects  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at
		ON sessions (started_at)`,
}

// Migrate applies all pending schema migrations in order.
//
// Each migration runs in its own transaction: if migration N fails,
// migrations 1..N-1 stay committed, N is rolled back, and re-running
// Migrate after fixing the issue continues from N.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedMigrationCount(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	if applied > len(migrations) {
		return fmt.Errorf("database is ahead of this binary: %d applied, %d known", applied, len(migrations))
	}

	for version := applied; version < len(migrations); version++ {
		if err := db.applyMigration(ctx, version); err != nil {
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
	}

	return nil
}

// createMigrationsTable creates the tracking table if it doesn't exist.
func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TEXT NOT NULL
		)
	`)
	return err
}

// appliedMigrationCount returns how many migrations have been applied.
func (db *DB) appliedMigrationCount(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyMigration runs one migration and records it, atomically.
func (db *DB) applyMigration(ctx context.Context, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
		return fmt.Errorf("executing migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
		version,
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
