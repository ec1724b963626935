package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"nostrchat/internal/domain"
)

type ContactRepo struct {
	db *sql.DB
}

func NewContactRepo(db *sql.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

func (r *ContactRepo) Upsert(ctx context.Context, c domain.Contact) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts(public_key, alias) VALUES(?, ?)
		ON CONFLICT(public_key) DO UPDATE SET alias = excluded.alias
	`, c.PublicKey, c.Alias); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	return nil
}

func (r *ContactRepo) Delete(ctx context.Context, publicKey string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM contacts WHERE public_key = ?
	`, publicKey); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	return nil
}

func (r *ContactRepo) ListSortedByAlias(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT public_key, alias FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.PublicKey, &c.Alias); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Alias == out[j].Alias {
			return out[i].PublicKey < out[j].PublicKey
		}
		return out[i].Alias < out[j].Alias
	})

	return out, nil
}
