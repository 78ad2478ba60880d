package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// GetPlan returns the plan attached to an action item, or ErrNotFound.
func (s *Store) GetPlan(ctx context.Context, actionItemID string) (model.Plan, error) {
	var (
		p                    model.Plan
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, action_item_id, body, content_hash, revision, created_at, updated_at
		FROM plans WHERE action_item_id = ?
	`, actionItemID).Scan(&p.ID, &p.ActionItemID, &p.Body, &p.ContentHash, &p.Revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Plan{}, fmt.Errorf("plan for %s: %w", actionItemID, ErrNotFound)
	}
	if err != nil {
		return model.Plan{}, fmt.Errorf("read plan: %w", err)
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return p, nil
}

// RevisePlan replaces a plan body while its item is in the planned state.
// If expectedRevision > 0 it must match the stored revision. The revision is
// incremented and the content hash recomputed. Returns the updated plan.
//
// Errors:
//   - ErrNotFound if the item or its plan does not exist
//   - ErrStateConflict if the item is not planned
//   - ErrRevisionConflict if expectedRevision does not match
func (s *Store) RevisePlan(ctx context.Context, actionItemID, body string, expectedRevision int, at time.Time) (model.Plan, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx, `SELECT state FROM action_items WHERE id = ?`, actionItemID).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("action item %s: %w", actionItemID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read action item state: %w", err)
		}
		if model.State(state) != model.StatePlanned {
			return fmt.Errorf("action item %s is %s: %w", actionItemID, state, ErrStateConflict)
		}

		var revision int
		err = tx.QueryRowContext(ctx, `SELECT revision FROM plans WHERE action_item_id = ?`, actionItemID).Scan(&revision)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plan for %s: %w", actionItemID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read plan revision: %w", err)
		}
		if expectedRevision > 0 && expectedRevision != revision {
			return fmt.Errorf("plan for %s at revision %d, expected %d: %w", actionItemID, revision, expectedRevision, ErrRevisionConflict)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE plans SET body = ?, content_hash = ?, revision = revision + 1, updated_at = ?
			WHERE action_item_id = ? AND revision = ?
		`, body, model.PlanContentHash(actionItemID, body), toNanos(at), actionItemID, revision)
		if err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Plan{}, err
	}
	return s.GetPlan(ctx, actionItemID)
}

// upsertPlan inserts p, or replaces the body of an existing plan for the
// same item and bumps its revision.
func upsertPlan(ctx context.Context, tx *sql.Tx, p model.Plan) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plans (id, action_item_id, body, content_hash, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_item_id) DO UPDATE SET
			body = excluded.body,
			content_hash = excluded.content_hash,
			revision = plans.revision + 1,
			updated_at = excluded.updated_at
	`, p.ID, p.ActionItemID, p.Body, p.ContentHash, p.Revision, toNanos(p.CreatedAt), toNanos(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

func insertSentResponse(ctx context.Context, tx *sql.Tx, r model.SentResponse) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sent_responses (action_item_id, recipient, subject, body, sent_at, provider_ref)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_item_id) DO NOTHING
	`, r.ActionItemID, r.Recipient, r.Subject, r.Body, toNanos(r.SentAt), r.ProviderRef)
	if err != nil {
		return fmt.Errorf("write sent response: %w", err)
	}
	return nil
}

func (s *Store) getSentResponse(ctx context.Context, actionItemID string) (model.SentResponse, error) {
	var (
		r      model.SentResponse
		sentAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT action_item_id, recipient, subject, body, sent_at, provider_ref
		FROM sent_responses WHERE action_item_id = ?
	`, actionItemID).Scan(&r.ActionItemID, &r.Recipient, &r.Subject, &r.Body, &sentAt, &r.ProviderRef)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SentResponse{}, fmt.Errorf("sent response for %s: %w", actionItemID, ErrNotFound)
	}
	if err != nil {
		return model.SentResponse{}, fmt.Errorf("read sent response: %w", err)
	}
	r.SentAt = fromNanos(sentAt)
	return r, nil
}
