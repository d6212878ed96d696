package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; the schema version is PRAGMA user_version.
var migrations = [][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS nodes (
			node_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			first_seen_at INTEGER NOT NULL,
			last_seen_at INTEGER NOT NULL,
			last_snr REAL NULL,
			last_rssi INTEGER NULL,
			last_heard_at INTEGER NOT NULL DEFAULT 0
		);`,
	},
	2: {
		`ALTER TABLE nodes ADD COLUMN hops_away INTEGER NULL;`,
		`CREATE INDEX IF NOT EXISTS nodes_last_seen_at_idx ON nodes(last_seen_at DESC);`,
	},
}

// SchemaVersion is the version a freshly migrated database reports.
func SchemaVersion() int {
	return len(migrations) - 1
}

func migrate(ctx context.Context, db *sql.DB) error {
	var current int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > SchemaVersion() {
		return fmt.Errorf("database schema version %d is newer than supported %d", current, SchemaVersion())
	}

	for version := current + 1; version <= SchemaVersion(); version++ {
		if err := applyMigration(ctx, db, version, migrations[version]); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, version)); err != nil {
		return fmt.Errorf("set schema version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}

	return nil
}
