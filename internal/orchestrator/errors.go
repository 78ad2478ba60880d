package orchestrator

import (
	"errors"
	"fmt"
)

// Queue errors.
var (
	ErrQueueFull   = errors.New("ingestion queue full")
	ErrQueueClosed = errors.New("ingestion queue closed")
)

// ErrorCode categorizes orchestrator errors.
type ErrorCode string

const (
	// CodeDuplicateMessage marks a message dropped at the dedup gate.
	// Counted and logged, never returned as a failure.
	CodeDuplicateMessage ErrorCode = "DUPLICATE_MESSAGE"

	// CodeScoringDegraded marks a message scored without usable text.
	// A flag on the score, never an error.
	CodeScoringDegraded ErrorCode = "SCORING_DEGRADED"

	// CodeCollectorTimeout indicates a collector poll exceeded its deadline.
	CodeCollectorTimeout ErrorCode = "COLLECTOR_TIMEOUT"

	// CodeCollectorCrash indicates a collector poll panicked or exited.
	CodeCollectorCrash ErrorCode = "COLLECTOR_CRASH"

	// CodePersistenceFailure indicates store writes failed after retries.
	CodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
)

// Error is an orchestrator failure with structured context.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Component names the collector, for collector errors.
	Component string

	// ActionItemID identifies the affected item, if any.
	ActionItemID string

	// Attempts is the number of tries made, for persistence failures.
	Attempts int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var s string
	switch {
	case e.ActionItemID != "":
		s = fmt.Sprintf("%s: %s (item=%s)", e.Code, e.Message, e.ActionItemID)
	case e.Component != "":
		s = fmt.Sprintf("%s: %s (collector=%s)", e.Code, e.Message, e.Component)
	default:
		s = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsPersistenceFailure reports whether err is an exhausted store retry.
// Uses errors.As to handle wrapped errors.
func IsPersistenceFailure(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == CodePersistenceFailure
	}
	return false
}

// IsCollectorError reports whether err is a collector timeout or crash.
func IsCollectorError(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Code == CodeCollectorTimeout || oe.Code == CodeCollectorCrash
	}
	return false
}

// NewPersistenceError creates an Error for exhausted store retries.
func NewPersistenceError(op, itemID string, attempts int, cause error) *Error {
	return &Error{
		Code:         CodePersistenceFailure,
		Message:      fmt.Sprintf("%s failed after %d attempts", op, attempts),
		ActionItemID: itemID,
		Attempts:     attempts,
		Err:          cause,
	}
}

// NewCollectorError creates a collector timeout or crash error.
func NewCollectorError(code ErrorCode, component string, cause error) *Error {
	msg := "collector poll timed out"
	if code == CodeCollectorCrash {
		msg = "collector poll crashed"
	}
	return &Error{
		Code:      code,
		Message:   msg,
		Component: component,
		Err:       cause,
	}
}
