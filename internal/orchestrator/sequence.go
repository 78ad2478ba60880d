package orchestrator

import "sync/atomic"

// Sequence is a monotonic counter stamping notifications.
//
// Every notification gets a strictly increasing Seq, so the activity log
// has a total order independent of wall-clock resolution.
//
// Thread-safety: safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence resuming after start.
// Used on startup to continue from the last logged notification.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// resume moves the sequence forward to start if it is behind.
func (s *Sequence) resume(start int64) {
	for {
		cur := s.seq.Load()
		if cur >= start || s.seq.CompareAndSwap(cur, start) {
			return
		}
	}
}
