package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/orchestrator"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// Actors recorded by the watcher.
const (
	ActorOperator = "operator"
	ActorOutbox   = "outbox"
)

// DecisionWatcherName is the health record key of the watcher.
const DecisionWatcherName = "decisions"

// Lifecycle is the part of *lifecycle.Manager the watcher drives.
type Lifecycle interface {
	List(ctx context.Context, f store.ActionItemFilter) ([]model.ActionItem, error)
	Get(ctx context.Context, id string) (model.ActionItem, error)
	Transition(ctx context.Context, id string, ev model.Event, opts ...lifecycle.TransitionOption) (lifecycle.Result, error)
	RevisePlan(ctx context.Context, id, body string, expectedRevision int) (model.Plan, error)
}

// MessageReader loads source messages. *store.Store implements it.
type MessageReader interface {
	GetMessage(ctx context.Context, id string) (model.Message, error)
}

// PlanFile is the review document exported to pending/. The operator may
// edit Body and Note before moving the file to approved/ or rejected/.
type PlanFile struct {
	ActionItemID string `yaml:"action_item_id"`
	Revision     int    `yaml:"revision"`
	Recipient    string `yaml:"recipient"`
	Subject      string `yaml:"subject"`
	InReplyTo    string `yaml:"in_reply_to"`
	Priority     int    `yaml:"priority"`
	Category     string `yaml:"category"`
	Risk         int    `yaml:"risk"`
	Note         string `yaml:"note,omitempty"`
	Body         string `yaml:"body"`
}

// DecisionWatcher translates file moves into lifecycle transitions.
//
// Each poll exports a review file for every planned item that has none,
// then applies the files found in approved/ and rejected/. An approved
// plan is sent through the Sender and confirmed with response-sent. Files
// whose transition is refused move to failed/; files hit by a transient
// error stay put and are retried on the next poll.
type DecisionWatcher struct {
	layout   Layout
	items    Lifecycle
	messages MessageReader
	sender   orchestrator.Sender
	logger   *slog.Logger
}

// NewDecisionWatcher creates a watcher over layout.
func NewDecisionWatcher(layout Layout, items Lifecycle, messages MessageReader, sender orchestrator.Sender, logger *slog.Logger) *DecisionWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionWatcher{
		layout:   layout,
		items:    items,
		messages: messages,
		sender:   sender,
		logger:   logger.With("collector", DecisionWatcherName),
	}
}

// Name implements Poller.
func (w *DecisionWatcher) Name() string {
	return DecisionWatcherName
}

// Poll exports new plans and applies pending decisions. It returns the
// number of decisions applied.
func (w *DecisionWatcher) Poll(ctx context.Context) (int, error) {
	if _, err := w.Export(ctx); err != nil {
		return 0, err
	}
	return w.Apply(ctx)
}

// Export writes a review file for each planned item without one and
// returns how many were written.
func (w *DecisionWatcher) Export(ctx context.Context) (int, error) {
	planned, err := w.items.List(ctx, store.ActionItemFilter{State: model.StatePlanned})
	if err != nil {
		return 0, fmt.Errorf("export plans: %w", err)
	}
	if err := os.MkdirAll(w.layout.Pending(), 0o755); err != nil {
		return 0, fmt.Errorf("export plans: %w", err)
	}

	n := 0
	for _, summary := range planned {
		if w.hasFile(summary.ID) {
			continue
		}
		item, err := w.items.Get(ctx, summary.ID)
		if err != nil {
			return n, fmt.Errorf("export plan %s: %w", summary.ID, err)
		}
		if item.Plan == nil {
			continue
		}
		pf := PlanFile{
			ActionItemID: item.ID,
			Revision:     item.Plan.Revision,
			InReplyTo:    item.SourceMessageID,
			Priority:     item.Score.Priority,
			Category:     string(item.Score.Category),
			Risk:         item.Score.Risk,
			Body:         item.Plan.Body,
		}
		msg, err := w.messages.GetMessage(ctx, item.SourceMessageID)
		switch {
		case err == nil:
			pf.Recipient = model.SenderAddress(msg.Sender)
			pf.Subject = model.ReplySubject(msg.Subject)
		case !errors.Is(err, store.ErrNotFound):
			return n, fmt.Errorf("export plan %s: %w", item.ID, err)
		}

		data, err := yaml.Marshal(pf)
		if err != nil {
			return n, fmt.Errorf("export plan %s: %w", item.ID, err)
		}
		if err := writeFileAtomic(filepath.Join(w.layout.Pending(), item.ID+".yaml"), data); err != nil {
			return n, err
		}
		n++
		w.logger.Info("plan exported for review", "item_id", item.ID, "revision", pf.Revision)
	}
	return n, nil
}

func (w *DecisionWatcher) hasFile(id string) bool {
	for _, dir := range []string{w.layout.Pending(), w.layout.Approved(), w.layout.Rejected()} {
		if _, err := os.Stat(filepath.Join(dir, id+".yaml")); err == nil {
			return true
		}
	}
	return false
}

// Apply processes every file in approved/ and rejected/ and returns how
// many decisions were applied.
func (w *DecisionWatcher) Apply(ctx context.Context) (int, error) {
	n := 0
	for _, d := range []struct {
		dir     string
		approve bool
	}{
		{w.layout.Approved(), true},
		{w.layout.Rejected(), false},
	} {
		files, err := listFiles(d.dir, ".yaml", ".yml")
		if err != nil {
			return n, err
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			applied, err := w.applyFile(ctx, path, d.approve)
			if err != nil {
				return n, err
			}
			if applied {
				n++
			}
		}
	}
	return n, nil
}

// applyFile returns false when the decision was refused and filed away.
func (w *DecisionWatcher) applyFile(ctx context.Context, path string, approve bool) (bool, error) {
	pf, err := readPlanFile(path)
	if err != nil {
		w.logger.Warn("unreadable decision file", "file", filepath.Base(path), "error", err)
		return false, moveFile(path, w.layout.Failed())
	}

	if approve {
		err = w.approve(ctx, pf)
	} else {
		_, err = w.items.Transition(ctx, pf.ActionItemID, model.EventHumanRejects,
			lifecycle.WithActor(ActorOperator),
			lifecycle.WithNote(pf.Note),
		)
	}

	var le *lifecycle.Error
	if errors.As(err, &le) {
		w.logger.Warn("decision refused", "item_id", pf.ActionItemID, "code", le.Code, "error", err)
		return false, moveFile(path, w.layout.Failed())
	}
	if err != nil {
		return false, err
	}

	w.logger.Info("decision applied", "item_id", pf.ActionItemID, "approved", approve)
	return true, moveFile(path, w.layout.Archive())
}

// approve records the approval, sends the reply and confirms delivery.
// Every step is idempotent so a retried file picks up where it stopped.
func (w *DecisionWatcher) approve(ctx context.Context, pf PlanFile) error {
	item, err := w.items.Get(ctx, pf.ActionItemID)
	if err != nil {
		return err
	}
	if item.State == model.StateDone {
		return nil
	}

	revision := pf.Revision
	edited := strings.TrimSpace(pf.Body)
	if item.State == model.StatePlanned && item.Plan != nil && edited != "" && edited != strings.TrimSpace(item.Plan.Body) {
		plan, err := w.items.RevisePlan(ctx, item.ID, pf.Body, pf.Revision)
		if err != nil {
			return err
		}
		revision = plan.Revision
		w.logger.Info("plan revised by operator", "item_id", item.ID, "revision", revision)
	}

	res, err := w.items.Transition(ctx, item.ID, model.EventHumanApproves,
		lifecycle.WithExpectedRevision(revision),
		lifecycle.WithActor(ActorOperator),
		lifecycle.WithNote(pf.Note),
	)
	if err != nil {
		return err
	}
	item = res.Item
	if item.Plan == nil {
		return fmt.Errorf("approve %s: approved item has no plan", item.ID)
	}
	if w.sender == nil {
		return fmt.Errorf("approve %s: %w", item.ID, orchestrator.ErrNoSender)
	}

	reply := model.Reply{
		ActionItemID: item.ID,
		Recipient:    pf.Recipient,
		Subject:      pf.Subject,
		Body:         item.Plan.Body,
		InReplyTo:    item.SourceMessageID,
	}
	ref, err := w.sender.Send(ctx, reply)
	if err != nil {
		return fmt.Errorf("send reply for %s: %w", item.ID, err)
	}

	_, err = w.items.Transition(ctx, item.ID, model.EventResponseSent,
		lifecycle.WithSentResponse(model.SentResponse{
			Recipient:   reply.Recipient,
			Subject:     reply.Subject,
			Body:        reply.Body,
			ProviderRef: ref,
		}),
		lifecycle.WithActor(ActorOutbox),
	)
	return err
}

func readPlanFile(path string) (PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanFile{}, err
	}
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return PlanFile{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if pf.ActionItemID == "" {
		pf.ActionItemID = stem(path)
	}
	return pf, nil
}
