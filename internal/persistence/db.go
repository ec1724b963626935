package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver
)

func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS relays (
		url TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS contacts (
		public_key TEXT PRIMARY KEY,
		alias TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		event_id TEXT PRIMARY KEY,
		peer TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		mine INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_peer_created_at
		ON messages(peer, created_at);`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrationStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}

	return nil
}
