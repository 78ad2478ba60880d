// Package model provides the domain types shared by every other package:
// inbound messages, score results, action items and their plans, collector
// health records, tasks, and notifications.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Messages and ScoreResults are immutable once produced
//   - ActionItem IDs are derived from the source message ID, so re-creating
//     an item for the same message always yields the same ID
//   - All JSON tags use snake_case
//   - Content hashes use RFC 8785 canonical JSON with domain separation
package model
