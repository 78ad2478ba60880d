package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// CreateActionItem persists msg and its new action item in one transaction.
// If an item already exists for msg.ID, ErrDuplicate is returned and nothing
// is written.
func (s *Store) CreateActionItem(ctx context.Context, msg model.Message, item model.ActionItem) error {
	scoreJSON, err := json.Marshal(item.Score)
	if err != nil {
		return fmt.Errorf("write action item: marshal score: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := saveMessage(ctx, tx, msg); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO action_items
			(id, source_message_id, score, priority, category, risk, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID,
			item.SourceMessageID,
			string(scoreJSON),
			item.Score.Priority,
			string(item.Score.Category),
			item.Score.Risk,
			string(item.State),
			toNanos(item.CreatedAt),
			toNanos(item.UpdatedAt),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("action item for message %s: %w", item.SourceMessageID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("write action item: %w", err)
		}
		return nil
	})
	return err
}

const actionItemColumns = `id, source_message_id, score, state, created_at, updated_at`

// GetActionItem returns the item with its plan and sent response, or ErrNotFound.
func (s *Store) GetActionItem(ctx context.Context, id string) (model.ActionItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionItemColumns+` FROM action_items WHERE id = ?`, id)
	return s.loadActionItem(ctx, row, id)
}

// GetActionItemBySource returns the item created for a message, or ErrNotFound.
func (s *Store) GetActionItemBySource(ctx context.Context, messageID string) (model.ActionItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionItemColumns+` FROM action_items WHERE source_message_id = ?`, messageID)
	return s.loadActionItem(ctx, row, messageID)
}

func (s *Store) loadActionItem(ctx context.Context, row *sql.Row, key string) (model.ActionItem, error) {
	item, err := scanActionItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActionItem{}, fmt.Errorf("action item %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return model.ActionItem{}, fmt.Errorf("read action item: %w", err)
	}

	plan, err := s.GetPlan(ctx, item.ID)
	switch {
	case err == nil:
		item.Plan = &plan
	case !errors.Is(err, ErrNotFound):
		return model.ActionItem{}, err
	}

	sent, err := s.getSentResponse(ctx, item.ID)
	switch {
	case err == nil:
		item.SentResponse = &sent
	case !errors.Is(err, ErrNotFound):
		return model.ActionItem{}, err
	}
	return item, nil
}

// ActionItemFilter narrows ListActionItems. Zero values mean "any".
type ActionItemFilter struct {
	State       model.State
	Category    model.Category
	MinPriority int
	Limit       uint64
}

// ListActionItems returns items matching f ordered by creation.
// Plans and sent responses are not loaded; use GetActionItem for detail.
// Returns an empty slice (not nil) if none match.
func (s *Store) ListActionItems(ctx context.Context, f ActionItemFilter) ([]model.ActionItem, error) {
	b := sq.Select(actionItemColumns).From("action_items").OrderBy("created_at ASC", "id ASC")
	if f.State != "" {
		b = b.Where(sq.Eq{"state": string(f.State)})
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{"category": string(f.Category)})
	}
	if f.MinPriority > 0 {
		b = b.Where(sq.GtOrEq{"priority": f.MinPriority})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()

	items := []model.ActionItem{}
	for rows.Next() {
		item, err := scanActionItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	return items, nil
}

// CountActionItems returns the number of items per state.
func (s *Store) CountActionItems(ctx context.Context) (map[model.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM action_items GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count action items: %w", err)
	}
	defer rows.Close()

	counts := map[model.State]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.State(state)] = n
	}
	return counts, rows.Err()
}

func scanActionItem(r rowScanner) (model.ActionItem, error) {
	var (
		item      model.ActionItem
		scoreJSON string
		state     string
		createdAt int64
		updatedAt int64
	)
	if err := r.Scan(&item.ID, &item.SourceMessageID, &scoreJSON, &state, &createdAt, &updatedAt); err != nil {
		return model.ActionItem{}, err
	}
	if err := json.Unmarshal([]byte(scoreJSON), &item.Score); err != nil {
		return model.ActionItem{}, fmt.Errorf("unmarshal score: %w", err)
	}
	item.State = model.State(state)
	item.CreatedAt = fromNanos(createdAt)
	item.UpdatedAt = fromNanos(updatedAt)
	return item, nil
}

// Transition describes one state change to persist atomically.
type Transition struct {
	ActionItemID string
	Event        model.Event
	From         model.State
	To           model.State
	Actor        string
	Note         string
	At           time.Time

	// Plan, if set, is inserted (or replaced) with the state change.
	Plan *model.Plan
	// SentResponse, if set, is inserted with the state change.
	SentResponse *model.SentResponse
}

// ApplyTransition moves an item from t.From to t.To with a compare-and-set
// and appends a history row, all in one transaction. Returns the history seq.
//
// Errors:
//   - ErrNotFound if the item does not exist
//   - ErrStateConflict if the item is not in t.From
func (s *Store) ApplyTransition(ctx context.Context, t Transition) (int64, error) {
	var seq int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE action_items SET state = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(t.To), toNanos(t.At), t.ActionItemID, string(t.From))
		if err != nil {
			return fmt.Errorf("update action item state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update action item state: %w", err)
		}
		if n == 0 {
			var current string
			err := tx.QueryRowContext(ctx, `SELECT state FROM action_items WHERE id = ?`, t.ActionItemID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("action item %s: %w", t.ActionItemID, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("read action item state: %w", err)
			}
			return fmt.Errorf("action item %s is %s, expected %s: %w", t.ActionItemID, current, t.From, ErrStateConflict)
		}

		if t.Plan != nil {
			if err := upsertPlan(ctx, tx, *t.Plan); err != nil {
				return err
			}
		}
		if t.SentResponse != nil {
			if err := insertSentResponse(ctx, tx, *t.SentResponse); err != nil {
				return err
			}
		}

		res, err = tx.ExecContext(ctx, `
			INSERT INTO action_events
			(action_item_id, event, from_state, to_state, actor, note, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ActionItemID, string(t.Event), string(t.From), string(t.To), t.Actor, t.Note, toNanos(t.At))
		if err != nil {
			return fmt.Errorf("write action event: %w", err)
		}
		seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// History returns an item's transition history in order.
// Returns an empty slice (not nil) if there is none.
func (s *Store) History(ctx context.Context, actionItemID string) ([]model.ActionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, action_item_id, event, from_state, to_state, actor, note, at
		FROM action_events
		WHERE action_item_id = ?
		ORDER BY seq ASC
	`, actionItemID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	events := []model.ActionEvent{}
	for rows.Next() {
		var ev model.ActionEvent
		var event, from, to string
		var at int64
		if err := rows.Scan(&ev.Seq, &ev.ActionItemID, &event, &from, &to, &ev.Actor, &ev.Note, &at); err != nil {
			return nil, fmt.Errorf("scan action event: %w", err)
		}
		ev.Event = model.Event(event)
		ev.FromState = model.State(from)
		ev.ToState = model.State(to)
		ev.At = fromNanos(at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return events, nil
}
