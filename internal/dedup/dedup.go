// Package dedup gates message processing on an O(1) membership check of
// already-seen message IDs, backed by the store so the set survives restarts.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Persister stores seen IDs durably.
type Persister interface {
	MarkSeen(ctx context.Context, messageID string, at time.Time) error
	LoadSeen(ctx context.Context) ([]string, error)
}

// Cache is an in-memory set of seen message IDs checkpointed to a Persister.
type Cache struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	store Persister
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow overrides the clock used to stamp seen_at.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New returns an empty cache. Call Load to restore persisted IDs.
func New(store Persister, opts ...Option) *Cache {
	c := &Cache{
		seen:  make(map[string]struct{}),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the in-memory set with the persisted one.
func (c *Cache) Load(ctx context.Context) error {
	ids, err := c.store.LoadSeen(ctx)
	if err != nil {
		return fmt.Errorf("load dedup set: %w", err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	c.mu.Lock()
	c.seen = seen
	c.mu.Unlock()
	return nil
}

// Seen reports whether id has been marked.
func (c *Cache) Seen(id string) bool {
	c.mu.RLock()
	_, ok := c.seen[id]
	c.mu.RUnlock()
	return ok
}

// Mark persists id and then adds it to the in-memory set. If persistence
// fails the set is unchanged, so a retry will reprocess the message.
func (c *Cache) Mark(ctx context.Context, id string) error {
	if c.Seen(id) {
		return nil
	}
	if err := c.store.MarkSeen(ctx, id, c.now()); err != nil {
		return fmt.Errorf("mark seen %s: %w", id, err)
	}
	c.mu.Lock()
	c.seen[id] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Len returns the number of seen IDs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}
