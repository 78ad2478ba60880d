package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// OutboxRefPrefix prefixes the provider references Outbox returns.
const OutboxRefPrefix = "outbox:"

// Outbox is an orchestrator.Sender that writes each reply to a file for an
// external mailer. Sending the same item twice overwrites its file, so a
// retried send never produces a second mail.
type Outbox struct {
	dir   string
	clock clock.Clock
}

type outboxEntry struct {
	ActionItemID string    `yaml:"action_item_id"`
	Recipient    string    `yaml:"recipient"`
	Subject      string    `yaml:"subject"`
	InReplyTo    string    `yaml:"in_reply_to"`
	QueuedAt     time.Time `yaml:"queued_at"`
	Body         string    `yaml:"body"`
}

// NewOutbox creates an outbox writing into dir.
func NewOutbox(dir string, clk clock.Clock) *Outbox {
	return &Outbox{dir: dir, clock: clock.Or(clk)}
}

// Send writes r to <dir>/<action item id>.yaml.
func (o *Outbox) Send(ctx context.Context, r model.Reply) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.ActionItemID == "" {
		return "", fmt.Errorf("outbox: reply has no action item id")
	}
	if r.Recipient == "" {
		return "", fmt.Errorf("outbox: reply for %s has no recipient", r.ActionItemID)
	}

	data, err := yaml.Marshal(outboxEntry{
		ActionItemID: r.ActionItemID,
		Recipient:    r.Recipient,
		Subject:      r.Subject,
		InReplyTo:    r.InReplyTo,
		QueuedAt:     o.clock.Now(),
		Body:         r.Body,
	})
	if err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}
	name := r.ActionItemID + ".yaml"
	if err := writeFileAtomic(filepath.Join(o.dir, name), data); err != nil {
		return "", fmt.Errorf("outbox: %w", err)
	}
	return OutboxRefPrefix + name, nil
}
