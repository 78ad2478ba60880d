// Package spool connects the triage engine to a directory tree.
//
// Collectors pick up message files dropped into inbox/<name>/ and hand
// them to the orchestrator. Planned items are exported to pending/ for
// review; an operator moves a file to approved/ or rejected/ and the
// DecisionWatcher turns that move into a lifecycle transition. Approved
// replies are written to outbox/ by Outbox, which an external mailer
// drains.
//
// Runner polls every collector on its own goroutine, reports each poll to
// the health monitor, and restarts collectors on the monitor's request.
package spool
