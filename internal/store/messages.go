package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

const messageColumns = `id, source, sender, subject, body, received_at, important, unread`

// SaveMessage inserts a message. Uses ON CONFLICT(id) DO NOTHING so
// re-saving the same message is a no-op.
func (s *Store) SaveMessage(ctx context.Context, msg model.Message) error {
	return retryOnBusy(ctx, defaultBusyRetries, func() error {
		return saveMessage(ctx, s.db, msg)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveMessage(ctx context.Context, db execer, msg model.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages
		(id, source, sender, sender_domain, subject, body, received_at, important, unread)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		msg.ID,
		msg.Source,
		msg.Sender,
		model.SenderDomain(msg.Sender),
		msg.Subject,
		msg.Body,
		toNanos(msg.ReceivedAt),
		boolToInt(msg.Flags.Important),
		boolToInt(msg.Flags.Unread),
	)
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// GetMessage returns the message with the given ID or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("read message: %w", err)
	}
	return msg, nil
}

// ListMessages returns all messages in ingestion order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// SenderDomains returns every distinct sender domain seen so far, sorted.
func (s *Store) SenderDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT sender_domain FROM messages
		WHERE sender_domain != ''
		ORDER BY sender_domain COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list sender domains: %w", err)
	}
	defer rows.Close()

	domains := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan sender domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (model.Message, error) {
	var (
		msg        model.Message
		receivedAt int64
		important  int
		unread     int
	)
	if err := r.Scan(&msg.ID, &msg.Source, &msg.Sender, &msg.Subject, &msg.Body, &receivedAt, &important, &unread); err != nil {
		return model.Message{}, err
	}
	msg.ReceivedAt = fromNanos(receivedAt)
	msg.Flags = model.Flags{Important: important != 0, Unread: unread != 0}
	return msg, nil
}
