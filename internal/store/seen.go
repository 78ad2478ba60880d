package store

import (
	"context"
	"fmt"
	"time"
)

// MarkSeen records a message ID in the dedup set. Idempotent.
func (s *Store) MarkSeen(ctx context.Context, messageID string, at time.Time) error {
	return retryOnBusy(ctx, defaultBusyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO seen_messages (message_id, seen_at) VALUES (?, ?)
			ON CONFLICT(message_id) DO NOTHING
		`, messageID, toNanos(at))
		if err != nil {
			return fmt.Errorf("write seen message: %w", err)
		}
		return nil
	})
}

// LoadSeen returns every message ID in the dedup set.
// Returns an empty slice (not nil) if there are none.
func (s *Store) LoadSeen(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id FROM seen_messages ORDER BY message_id COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("read seen messages: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen message: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
