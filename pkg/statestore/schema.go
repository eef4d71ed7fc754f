package statestore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the state schema in-place.
//
// The schema supports:
// - server records with their installed-application set
// - append-only deployment history
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS servers (
			name TEXT PRIMARY KEY,
			provider TEXT,
			server_type TEXT,
			region TEXT,
			image TEXT,
			ip_address TEXT,
			status TEXT NOT NULL,
			-- apps is the JSON array of application names currently
			-- believed installed on this server.
			apps TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS deployments (
			deployment_id TEXT PRIMARY KEY,
			server TEXT NOT NULL,
			app TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_server ON deployments(server, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_deployments_app ON deployments(app, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE schema_meta SET schema_version = ? WHERE id = 1 AND schema_version < ?`,
		SchemaVersion, SchemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}
