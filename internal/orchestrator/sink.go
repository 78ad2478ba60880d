package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/khanzadigithubid/AI-Employee-System/internal/clock"
	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// Notification events emitted by the orchestrator, in addition to the
// lifecycle event names and the health monitor's restart events.
const (
	EventIngested = "ingested"
	EventAutoSend = "auto-send"
	EventPersist  = "persist"
	EventDedup    = "dedup"
)

// Sink receives operator notifications.
type Sink interface {
	Notify(ctx context.Context, n model.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n model.Notification) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, n model.Notification) error {
	return f(ctx, n)
}

// ActivityAppender persists notifications. *store.Store implements it.
type ActivityAppender interface {
	AppendActivity(ctx context.Context, n model.Notification) error
}

// StoreSink writes notifications to the activity log.
type StoreSink struct {
	store ActivityAppender
}

// NewStoreSink creates a sink over a.
func NewStoreSink(a ActivityAppender) *StoreSink {
	return &StoreSink{store: a}
}

// Notify appends n to the activity log.
func (s *StoreSink) Notify(ctx context.Context, n model.Notification) error {
	return s.store.AppendActivity(ctx, n)
}

// LogSink writes notifications as structured log records. Failures are
// logged at warn level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink over l. Nil means slog.Default().
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l}
}

// Notify logs n.
func (s *LogSink) Notify(ctx context.Context, n model.Notification) error {
	level := slog.LevelInfo
	if n.Result == model.ResultFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "notification",
		"seq", n.Seq,
		"event", n.Event,
		"result", n.Result,
		"item_id", n.ActionItemID,
		"component", n.Component,
		"detail", n.Detail,
	)
	return nil
}

// FanOut delivers to every sink, even after one fails.
type FanOut []Sink

// Notify calls each sink and joins their errors.
func (f FanOut) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notifier stamps notifications with a sequence number and timestamp
// before handing them to a Sink. The orchestrator and the health monitor
// share one Notifier so the activity log has a single order.
//
// Thread-safety: safe for concurrent use; delivery is serialized.
type Notifier struct {
	mu     sync.Mutex
	sink   Sink
	seq    *Sequence
	clock  clock.Clock
	logger *slog.Logger
}

// NewNotifier creates a Notifier over sink. A nil sink logs to slog.Default().
func NewNotifier(sink Sink, clk clock.Clock, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Notifier{
		sink:   sink,
		seq:    NewSequence(),
		clock:  clock.Or(clk),
		logger: logger,
	}
}

// Resume continues numbering after seq.
func (n *Notifier) Resume(seq int64) {
	n.seq.resume(seq)
}

// Last returns the last seq handed out.
func (n *Notifier) Last() int64 {
	return n.seq.Current()
}

// Notify stamps note and delivers it. Delivery errors are logged and
// returned.
func (n *Notifier) Notify(ctx context.Context, note model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	note.Seq = n.seq.Next()
	if note.Timestamp.IsZero() {
		note.Timestamp = n.clock.Now()
	}
	if err := n.sink.Notify(ctx, note); err != nil {
		n.logger.Error("notification delivery failed", "seq", note.Seq, "event", note.Event, "error", err)
		return err
	}
	return nil
}
