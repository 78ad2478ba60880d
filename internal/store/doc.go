// Package store provides SQLite-backed durable storage for messages, action
// items, plans, tasks, collector health records and the dedup set.
//
// The store is the only component with transactional semantics:
//   - Messages: every ingested message, ordered by seq for replay
//   - Action items: one per message (UNIQUE source_message_id)
//   - Plans and sent responses: owned by their action item
//   - Action events: append-only transition history
//   - Tasks: free-standing CRUD work items
//   - Health records: checkpointed collector supervision state
//   - Seen messages: the persisted dedup set
//   - Activity log: persisted notifications
//
// # Transitions
//
// ApplyTransition performs a compare-and-set on the prior state and writes
// the state change, optional plan and sent-response rows, and the history
// row in one transaction. A lost race surfaces as ErrStateConflict.
//
// # Deterministic Query Results
//
// List queries order by a seq column or by (created_at, id) so results are
// stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
