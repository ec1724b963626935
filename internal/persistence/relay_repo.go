package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

type RelayRepo struct {
	db *sql.DB
}

func NewRelayRepo(db *sql.DB) *RelayRepo {
	return &RelayRepo{db: db}
}

// ReplaceAll rewrites the relay list, preserving the given order.
func (r *RelayRepo) ReplaceAll(ctx context.Context, urls []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin relay replace tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM relays`); err != nil {
		return fmt.Errorf("clear relays: %w", err)
	}
	for i, url := range urls {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relays(url, position) VALUES(?, ?)
		`, url, i); err != nil {
			return fmt.Errorf("insert relay: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit relay replace tx: %w", err)
	}

	return nil
}

func (r *RelayRepo) ListOrdered(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT url FROM relays ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list relays: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan relay: %w", err)
		}
		out = append(out, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relays: %w", err)
	}

	return out, nil
}
