package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// DefaultQueueSize bounds the ingestion queue.
const DefaultQueueSize = 256

// messageQueue is a bounded, thread-safe FIFO of inbound messages.
//
// Collectors enqueue from their own goroutines; the Run loop dequeues.
// Two coalescing signal channels (buffer of 1) wake the consumer when an
// item arrives and blocked producers when a slot frees, so both sides can
// wait in a select alongside ctx.Done().
type messageQueue struct {
	mu       sync.Mutex
	items    []model.Message
	capacity int
	closed   bool
	ready    chan struct{}
	space    chan struct{}
}

func newMessageQueue(capacity int) *messageQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &messageQueue{
		items:    make([]model.Message, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
}

// TryEnqueue appends msg without blocking.
// Returns ErrQueueFull or ErrQueueClosed when it cannot.
func (q *messageQueue) TryEnqueue(msg model.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, msg)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	// Pass the wake-up on to the next blocked producer while room remains.
	if len(q.items) < q.capacity {
		q.signalSpace()
	}
	return nil
}

// Enqueue appends msg, blocking while the queue is full until a slot
// frees, the queue closes, or ctx is done.
func (q *messageQueue) Enqueue(ctx context.Context, msg model.Message) error {
	for {
		err := q.TryEnqueue(msg)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.space:
		}
	}
}

// TryDequeue removes the front message.
// Returns false if the queue is empty.
func (q *messageQueue) TryDequeue() (model.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.Message{}, false
	}
	msg := q.items[0]
	q.items[0] = model.Message{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	if !q.closed {
		q.signalSpace()
	}
	return msg, true
}

// signalSpace wakes one blocked producer. Caller must hold q.mu.
func (q *messageQueue) signalSpace() {
	select {
	case q.space <- struct{}{}:
	default:
	}
}

// Wait returns a channel that signals when messages may be available.
// It is closed when the queue closes.
func (q *messageQueue) Wait() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued messages.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *messageQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further enqueues and wakes every waiter. Messages already
// queued can still be dequeued.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
	close(q.space)
}
