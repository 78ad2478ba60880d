package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// AppendActivity writes a notification to the activity log.
func (s *Store) AppendActivity(ctx context.Context, n model.Notification) error {
	return retryOnBusy(ctx, defaultBusyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO activity_log (seq, timestamp, action_item_id, component, event, result, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.Seq, toNanos(n.Timestamp), n.ActionItemID, n.Component, n.Event, n.Result, n.Detail)
		if err != nil {
			return fmt.Errorf("write activity: %w", err)
		}
		return nil
	})
}

// ActivityFilter narrows ListActivity. Zero values mean "any".
type ActivityFilter struct {
	ActionItemID string
	Component    string
	Event        string
	Result       string
	Limit        uint64
}

// ListActivity returns logged notifications in insertion order.
// Returns an empty slice (not nil) if none match.
func (s *Store) ListActivity(ctx context.Context, f ActivityFilter) ([]model.Notification, error) {
	b := sq.Select("seq", "timestamp", "action_item_id", "component", "event", "result", "detail").
		From("activity_log").
		OrderBy("id ASC")
	if f.ActionItemID != "" {
		b = b.Where(sq.Eq{"action_item_id": f.ActionItemID})
	}
	if f.Component != "" {
		b = b.Where(sq.Eq{"component": f.Component})
	}
	if f.Event != "" {
		b = b.Where(sq.Eq{"event": f.Event})
	}
	if f.Result != "" {
		b = b.Where(sq.Eq{"result": f.Result})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n  model.Notification
			ts int64
		)
		if err := rows.Scan(&n.Seq, &ts, &n.ActionItemID, &n.Component, &n.Event, &n.Result, &n.Detail); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		n.Timestamp = fromNanos(ts)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return out, nil
}

// LastActivitySeq returns the highest logged seq, or 0 for an empty log.
func (s *Store) LastActivitySeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM activity_log`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read activity seq: %w", err)
	}
	return seq, nil
}
