package lifecycle

import (
	"errors"
	"fmt"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// ErrorCode categorizes lifecycle errors.
type ErrorCode string

const (
	// CodeInvalidTransition indicates the (state, event) pair is not in the table.
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// CodeGuardFailed indicates the pair is in the table but its guard rejected it.
	// Reported as the InvalidTransition kind.
	CodeGuardFailed ErrorCode = "GUARD_FAILED"

	// CodeNotFound indicates the action item does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicate indicates an item already exists for the source message.
	CodeDuplicate ErrorCode = "DUPLICATE"
)

// Error is returned by Manager operations. The item's state is unchanged
// whenever an Error is returned.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ActionItemID identifies the affected item.
	ActionItemID string

	// State is the item's state when the error was detected.
	State model.State

	// Event is the event that was rejected, if any.
	Event model.Event

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Event != "" && e.State != "":
		return fmt.Sprintf("%s: %s (item=%s, state=%s, event=%s)", e.Code, e.Message, e.ActionItemID, e.State, e.Event)
	case e.ActionItemID != "":
		return fmt.Sprintf("%s: %s (item=%s)", e.Code, e.Message, e.ActionItemID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalidTransition reports whether err rejected a transition, either
// because the pair is not in the table or because a guard failed.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == CodeInvalidTransition || le.Code == CodeGuardFailed
	}
	return false
}

// IsGuardFailed reports whether err is a guard rejection.
func IsGuardFailed(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == CodeGuardFailed
	}
	return false
}

// IsNotFound reports whether err is a missing-item error.
func IsNotFound(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == CodeNotFound
	}
	return false
}

// IsDuplicate reports whether err is a duplicate-item error.
func IsDuplicate(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == CodeDuplicate
	}
	return false
}

// NewInvalidTransitionError creates an Error for a pair missing from the table.
func NewInvalidTransitionError(id string, from model.State, ev model.Event) *Error {
	return &Error{
		Code:         CodeInvalidTransition,
		Message:      fmt.Sprintf("no transition from %s on %s", from, ev),
		ActionItemID: id,
		State:        from,
		Event:        ev,
	}
}

// NewGuardError creates an Error for a failed guard.
func NewGuardError(id string, from model.State, ev model.Event, reason string) *Error {
	return &Error{
		Code:         CodeGuardFailed,
		Message:      reason,
		ActionItemID: id,
		State:        from,
		Event:        ev,
	}
}

// NewNotFoundError creates an Error for a missing item.
func NewNotFoundError(id string, cause error) *Error {
	return &Error{
		Code:         CodeNotFound,
		Message:      "action item not found",
		ActionItemID: id,
		Err:          cause,
	}
}
