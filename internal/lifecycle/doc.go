// Package lifecycle owns the state machine of action items.
//
// An item moves needs_action → planned → approved/rejected → done, or
// straight from needs_action to done when the auto-approval policy allows
// it. Every applied transition is one store transaction guarded by a
// compare-and-set on the prior state, and leaves a history row behind.
//
// Key types:
//   - Manager: creates items and applies events
//   - Error: typed failures (INVALID_TRANSITION, GUARD_FAILED, NOT_FOUND, DUPLICATE)
//   - Result: outcome of a Transition, including idempotent no-ops
package lifecycle
