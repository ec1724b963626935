package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"nostrchat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert stores one message. Re-inserting an already stored event ID is a
// no-op so relay replays stay idempotent.
func (r *MessageRepo) Insert(ctx context.Context, m domain.Message) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages(event_id, peer, author, content, created_at, mine)
		VALUES(?, ?, ?, ?, ?, ?)
	`, m.EventID, m.Peer, m.Author, m.Content, timeToUnixMillis(m.CreatedAt), boolToInt(m.Mine)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

func (r *MessageRepo) ListRecentByPeer(ctx context.Context, peer string, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, peer, author, content, created_at, mine
		FROM messages
		WHERE peer = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, peer, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages by peer: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages by peer: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// LoadRecentPerPeer returns the most recent messages for every peer with
// stored history, oldest first within each peer.
func (r *MessageRepo) LoadRecentPerPeer(ctx context.Context, limit int) (map[string][]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT peer FROM messages`)
	if err != nil {
		return nil, fmt.Errorf("list message peers: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var peers []string
	for rows.Next() {
		var peer string
		if err := rows.Scan(&peer); err != nil {
			return nil, fmt.Errorf("scan message peer: %w", err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message peers: %w", err)
	}

	result := make(map[string][]domain.Message, len(peers))
	for _, peer := range peers {
		msgs, err := r.ListRecentByPeer(ctx, peer, limit)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			result[peer] = msgs
		}
	}

	return result, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.Message, error) {
	var (
		m    domain.Message
		atMs int64
		mine int
	)
	if err := scanner.Scan(&m.EventID, &m.Peer, &m.Author, &m.Content, &atMs, &mine); err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.CreatedAt = unixMillisToTime(atMs)
	m.Mine = mine != 0

	return m, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
