package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/dedup"
	"github.com/khanzadigithubid/AI-Employee-System/internal/health"
	"github.com/khanzadigithubid/AI-Employee-System/internal/lifecycle"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/policy"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
)

// Actors recorded in transition history.
const (
	ActorPolicy       = "policy"
	ActorOrchestrator = "orchestrator"
)

// Sender delivers a reply and returns the provider's reference for it.
type Sender interface {
	Send(ctx context.Context, r model.Reply) (string, error)
}

// ErrNoSender is reported when an auto-send is attempted without a Sender.
var ErrNoSender = errors.New("no sender configured")

// Loader restores orchestrator state on startup. *store.Store implements it.
type Loader interface {
	SenderDomains(ctx context.Context) ([]string, error)
	LastActivitySeq(ctx context.Context) (int64, error)
}

// RetryConfig bounds persistence retries.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry returns the default persistence retry bounds.
func DefaultRetry() RetryConfig {
	return RetryConfig{Attempts: 4, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (r RetryConfig) delay(attempt int) time.Duration {
	d := r.BaseDelay
	for i := 1; i < attempt && d < r.MaxDelay; i++ {
		d *= 2
	}
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

// Orchestrator is the single-writer ingestion loop.
//
// Collectors call Ingest (or TryIngest) from their own goroutines; Run
// consumes the bounded queue in FIFO order and takes every message through
// dedup, scoring, policy and the lifecycle.
//
// Thread-safety model:
//   - Ingest, TryIngest, Heartbeat, ReportFailure, Stats: any goroutine
//   - Run: exactly one goroutine
//   - Process: the Run goroutine, or callers that do not run the loop
type Orchestrator struct {
	scorer    *scoring.Engine
	lifecycle *lifecycle.Manager
	dedup     *dedup.Cache
	monitor   *health.Monitor
	domains   *scoring.DomainSet
	sender    Sender
	notifier  *Notifier
	queue     *messageQueue
	retry     RetryConfig
	logger    *slog.Logger

	ingested   atomic.Int64
	duplicates atomic.Int64
	autoSent   atomic.Int64
	autoDone   atomic.Int64
	planned    atomic.Int64
	failures   atomic.Int64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMonitor sets the health monitor collectors report to.
func WithMonitor(m *health.Monitor) Option {
	return func(o *Orchestrator) {
		o.monitor = m
	}
}

// WithDomains sets the known-sender set the scorer consults. Sender
// domains of processed messages are added to it.
func WithDomains(d *scoring.DomainSet) Option {
	return func(o *Orchestrator) {
		o.domains = d
	}
}

// WithSender sets the outbound reply sender used for auto-send.
func WithSender(s Sender) Option {
	return func(o *Orchestrator) {
		o.sender = s
	}
}

// WithNotifier sets the notifier. Share it with the health monitor.
func WithNotifier(n *Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithQueueSize bounds the ingestion queue.
func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		o.queue = newMessageQueue(n)
	}
}

// WithRetry sets persistence retry bounds.
func WithRetry(r RetryConfig) Option {
	return func(o *Orchestrator) {
		if r.Attempts > 0 {
			o.retry = r
		}
	}
}

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(scorer *scoring.Engine, lc *lifecycle.Manager, cache *dedup.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scorer:    scorer,
		lifecycle: lc,
		dedup:     cache,
		queue:     newMessageQueue(DefaultQueueSize),
		retry:     DefaultRetry(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = NewNotifier(nil, nil, o.logger)
	}
	return o
}

// Load restores the dedup set, health records, learned sender domains and
// the notification sequence.
func (o *Orchestrator) Load(ctx context.Context, l Loader) error {
	if err := o.dedup.Load(ctx); err != nil {
		return err
	}
	if o.monitor != nil {
		if err := o.monitor.Load(ctx); err != nil {
			return err
		}
	}
	if o.domains != nil {
		domains, err := l.SenderDomains(ctx)
		if err != nil {
			return fmt.Errorf("load sender domains: %w", err)
		}
		for _, d := range domains {
			o.domains.Add(d)
		}
	}
	seq, err := l.LastActivitySeq(ctx)
	if err != nil {
		return err
	}
	o.notifier.Resume(seq)
	o.logger.Info("orchestrator state loaded",
		"seen", o.dedup.Len(),
		"known_domains", o.knownDomains(),
		"seq", seq,
	)
	return nil
}

func (o *Orchestrator) knownDomains() int {
	if o.domains == nil {
		return 0
	}
	return o.domains.Len()
}

// Ingest queues msg, blocking while the queue is full.
func (o *Orchestrator) Ingest(ctx context.Context, msg model.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return o.queue.Enqueue(ctx, msg)
}

// TryIngest queues msg or fails fast with ErrQueueFull.
func (o *Orchestrator) TryIngest(msg model.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return o.queue.TryEnqueue(msg)
}

// Pending returns the number of queued messages.
func (o *Orchestrator) Pending() int {
	return o.queue.Len()
}

// Heartbeat records a successful collector poll.
func (o *Orchestrator) Heartbeat(name string) {
	if o.monitor != nil {
		o.monitor.Heartbeat(name)
	}
}

// ReportFailure records a failed collector poll.
func (o *Orchestrator) ReportFailure(name string, err error) {
	if o.monitor != nil {
		o.monitor.ReportFailure(name, err)
	}
}

// Run consumes the queue until ctx is cancelled or Stop is called.
//
// Cancellation is honoured only between messages: a message that has been
// dequeued is processed to completion on a context detached from ctx.
// Processing errors are logged and the loop continues.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting")

	for {
		if msg, ok := o.queue.TryDequeue(); ok {
			if _, err := o.Process(context.WithoutCancel(ctx), msg); err != nil {
				o.logger.Error("message processing failed", "message_id", msg.ID, "error", err)
			}
			if ctx.Err() != nil {
				o.logger.Info("orchestrator stopping: context cancelled", "pending", o.queue.Len())
				return ctx.Err()
			}
			continue
		}

		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopping: context cancelled")
			return ctx.Err()
		case <-o.queue.Wait():
			// The channel is closed once the queue closes; drain first.
			if o.queue.Len() == 0 && o.queue.Closed() {
				o.logger.Info("orchestrator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once it has drained.
func (o *Orchestrator) Stop() {
	o.queue.Close()
}

// Outcome describes what Process did with one message.
type Outcome struct {
	MessageID    string
	ActionItemID string
	Duplicate    bool
	Score        model.ScoreResult
	Decision     policy.Result
	State        model.State
	AutoSent     bool
	ProviderRef  string
	// FellBack is set when an auto-send failed and the item was routed to review.
	FellBack bool
}

// Process takes one message through dedup, scoring, policy and the
// lifecycle. It returns an error only when the action item could not be
// created; later failures are reported to the notifier and leave the item
// in needs_action or planned.
func (o *Orchestrator) Process(ctx context.Context, msg model.Message) (Outcome, error) {
	if err := msg.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("process message: %w", err)
	}
	msg = msg.Normalized()
	out := Outcome{MessageID: msg.ID}

	if o.dedup.Seen(msg.ID) {
		o.duplicates.Add(1)
		o.logger.Debug("duplicate message dropped", "message_id", msg.ID, "code", CodeDuplicateMessage)
		out.Duplicate = true
		return out, nil
	}

	score := o.scorer.Score(msg.Sender, msg.Subject, msg.Body)
	decision := o.lifecycle.Policy().Decide(score)
	out.Score, out.Decision = score, decision
	if score.Degraded {
		o.logger.Warn("scoring degraded", "message_id", msg.ID, "code", CodeScoringDegraded)
	}

	var item model.ActionItem
	err := o.persist(ctx, "create action item", model.ActionItemID(msg.ID), func() error {
		var err error
		item, err = o.lifecycle.Create(ctx, msg, score)
		return err
	})
	if lifecycle.IsDuplicate(err) {
		// Created before a crash that lost the dedup mark.
		o.markSeen(ctx, msg.ID)
		o.duplicates.Add(1)
		o.logger.Debug("duplicate message dropped by store", "message_id", msg.ID, "code", CodeDuplicateMessage)
		out.Duplicate = true
		return out, nil
	}
	if err != nil {
		o.failures.Add(1)
		o.notify(ctx, model.Notification{
			ActionItemID: model.ActionItemID(msg.ID),
			Event:        EventPersist,
			Result:       model.ResultFailed,
			Detail:       err.Error(),
		})
		return out, err
	}
	out.ActionItemID = item.ID
	out.State = item.State

	o.markSeen(ctx, msg.ID)
	if d := model.SenderDomain(msg.Sender); d != "" && o.domains != nil {
		o.domains.Add(d)
	}
	o.ingested.Add(1)
	o.notify(ctx, model.Notification{
		ActionItemID: item.ID,
		Component:    msg.Source,
		Event:        EventIngested,
		Result:       model.ResultOK,
		Detail: fmt.Sprintf("priority=%d category=%s risk=%d confidence=%.2f decision=%s",
			score.Priority, score.Category, score.Risk, score.Confidence, decision.Decision),
	})

	if decision.AutoSend() {
		o.autoApprove(ctx, msg, item, &out)
	} else {
		o.attachPlan(ctx, msg, item, &out, "review required: "+strings.Join(decision.Reasons, "; "))
	}
	return out, nil
}

// autoApprove sends the suggested reply when one is needed and closes the
// item. Any failure routes the item to review instead.
func (o *Orchestrator) autoApprove(ctx context.Context, msg model.Message, item model.ActionItem, out *Outcome) {
	opts := []lifecycle.TransitionOption{lifecycle.WithActor(ActorPolicy)}

	if item.Score.NeedsReply {
		reply := o.scorer.BuildReply(item.ID, msg, item.Score)
		ref, err := o.send(ctx, reply)
		if err != nil {
			o.notify(ctx, model.Notification{
				ActionItemID: item.ID,
				Event:        EventAutoSend,
				Result:       model.ResultFailed,
				Detail:       err.Error(),
			})
			out.FellBack = true
			o.attachPlan(ctx, msg, item, out, "auto-send failed: "+err.Error())
			return
		}
		o.autoSent.Add(1)
		out.AutoSent = true
		out.ProviderRef = ref
		o.notify(ctx, model.Notification{
			ActionItemID: item.ID,
			Event:        EventAutoSend,
			Result:       model.ResultOK,
			Detail:       ref,
		})
		opts = append(opts,
			lifecycle.WithPlan(reply.Body),
			lifecycle.WithSentResponse(model.SentResponse{
				Recipient:   reply.Recipient,
				Subject:     reply.Subject,
				Body:        reply.Body,
				ProviderRef: ref,
			}),
		)
	} else {
		opts = append(opts, lifecycle.WithNote("no reply needed"))
	}

	res, err := o.transition(ctx, item.ID, model.EventAutoApprove, opts...)
	if err != nil {
		o.failures.Add(1)
		detail := err.Error()
		if out.AutoSent {
			// The reply went out; do not queue it for a second send.
			detail = fmt.Sprintf("reply sent as %s but not recorded: %v", out.ProviderRef, err)
		}
		o.notify(ctx, model.Notification{
			ActionItemID: item.ID,
			Event:        string(model.EventAutoApprove),
			Result:       model.ResultFailed,
			Detail:       detail,
		})
		if !out.AutoSent {
			out.FellBack = true
			o.attachPlan(ctx, msg, item, out, "auto-approve failed: "+err.Error())
		}
		return
	}
	o.autoDone.Add(1)
	out.State = res.To
	o.notify(ctx, model.Notification{
		ActionItemID: item.ID,
		Event:        string(model.EventAutoApprove),
		Result:       model.ResultOK,
	})
}

// attachPlan drafts the suggested reply as a plan and moves the item to
// planned. On failure the item stays in needs_action.
func (o *Orchestrator) attachPlan(ctx context.Context, msg model.Message, item model.ActionItem, out *Outcome, note string) {
	body := o.scorer.SuggestReply(msg, item.Score)
	res, err := o.transition(ctx, item.ID, model.EventPlanCreated,
		lifecycle.WithPlan(body),
		lifecycle.WithActor(ActorOrchestrator),
		lifecycle.WithNote(note),
	)
	if err != nil {
		o.failures.Add(1)
		o.notify(ctx, model.Notification{
			ActionItemID: item.ID,
			Event:        string(model.EventPlanCreated),
			Result:       model.ResultFailed,
			Detail:       err.Error(),
		})
		return
	}
	o.planned.Add(1)
	out.State = res.To
	o.notify(ctx, model.Notification{
		ActionItemID: item.ID,
		Event:        string(model.EventPlanCreated),
		Result:       model.ResultOK,
		Detail:       note,
	})
}

func (o *Orchestrator) send(ctx context.Context, r model.Reply) (string, error) {
	if o.sender == nil {
		return "", ErrNoSender
	}
	ref, err := o.sender.Send(ctx, r)
	if err != nil {
		return "", fmt.Errorf("send reply to %s: %w", r.Recipient, err)
	}
	return ref, nil
}

func (o *Orchestrator) transition(ctx context.Context, id string, ev model.Event, opts ...lifecycle.TransitionOption) (lifecycle.Result, error) {
	var res lifecycle.Result
	err := o.persist(ctx, "transition "+string(ev), id, func() error {
		var err error
		res, err = o.lifecycle.Transition(ctx, id, ev, opts...)
		return err
	})
	return res, err
}

func (o *Orchestrator) markSeen(ctx context.Context, id string) {
	err := o.persist(ctx, "mark seen", model.ActionItemID(id), func() error {
		return o.dedup.Mark(ctx, id)
	})
	if err != nil {
		// The store's unique constraint still rejects a second item.
		o.notify(ctx, model.Notification{
			ActionItemID: model.ActionItemID(id),
			Event:        EventDedup,
			Result:       model.ResultFailed,
			Detail:       err.Error(),
		})
	}
}

// persist runs fn, retrying store failures with exponential backoff.
// Lifecycle rejections are returned immediately.
func (o *Orchestrator) persist(ctx context.Context, op, itemID string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= o.retry.Attempts {
			return NewPersistenceError(op, itemID, attempt, err)
		}
		d := o.retry.delay(attempt)
		o.logger.Warn("store write failed, retrying", "op", op, "item_id", itemID, "attempt", attempt, "delay", d, "error", err)

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return NewPersistenceError(op, itemID, attempt, errors.Join(err, ctx.Err()))
		case <-t.C:
		}
	}
}

func retryable(err error) bool {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		return false
	}
	if errors.Is(err, model.ErrMissingMessageID) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) notify(ctx context.Context, n model.Notification) {
	// Errors are already logged by the notifier.
	_ = o.notifier.Notify(ctx, n)
}

// Stats counts processed messages by outcome.
type Stats struct {
	Ingested     int64 `json:"ingested"`
	Duplicates   int64 `json:"duplicates"`
	AutoSent     int64 `json:"auto_sent"`
	AutoApproved int64 `json:"auto_approved"`
	Planned      int64 `json:"planned"`
	Failures     int64 `json:"failures"`
	Pending      int   `json:"pending"`
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Ingested:     o.ingested.Load(),
		Duplicates:   o.duplicates.Load(),
		AutoSent:     o.autoSent.Load(),
		AutoApproved: o.autoDone.Load(),
		Planned:      o.planned.Load(),
		Failures:     o.failures.Load(),
		Pending:      o.queue.Len(),
	}
}
