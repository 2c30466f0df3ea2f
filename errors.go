package vgraph

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested node or action does not exist.
	ErrNotFound = errors.New("vgraph: not found")

	// ErrConflict is returned when an undo detects that the graph has
	// diverged from the recorded change-set. Callers should treat this as
	// retryable by recomputation, not as a bug.
	ErrConflict = errors.New("vgraph: conflicting change")

	// ErrAlreadyReverted is returned when undoing an action that has
	// already been reverted.
	ErrAlreadyReverted = errors.New("vgraph: action already reverted")

	// ErrNotUndoable is returned when undoing an action that permanently
	// deleted nodes: no prior state exists to restore.
	ErrNotUndoable = errors.New("vgraph: action permanently deleted nodes and cannot be undone")
)

// RequestError represents an invalid data-request composition, such as
// requesting the same property twice or under two different flags.
// It is raised at construction time, never deferred to compilation.
type RequestError struct {
	Property string // Property or virtual property name
	Reason   string
}

// Error returns the error string.
func (e *RequestError) Error() string {
	return fmt.Sprintf("vgraph: invalid request for %q: %s", e.Property, e.Reason)
}

// NewRequestError returns a new RequestError for the given property.
func NewRequestError(property, reason string) *RequestError {
	return &RequestError{Property: property, Reason: reason}
}

// IsRequestError returns true if the error is a RequestError.
func IsRequestError(err error) bool {
	if err == nil {
		return false
	}
	var e *RequestError
	return errors.As(err, &e)
}

// InternalError indicates a bug in the framework itself, such as a working
// variable that was never consumed by the compiled query. It must never be
// silently swallowed.
type InternalError struct {
	Msg string
}

// Error returns the error string.
func (e *InternalError) Error() string {
	return fmt.Sprintf("vgraph: internal error: %s", e.Msg)
}

// NewInternalError returns a new InternalError with the given message.
func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}

// IsInternalError returns true if the error is an InternalError.
func IsInternalError(err error) bool {
	if err == nil {
		return false
	}
	var e *InternalError
	return errors.As(err, &e)
}

// ValidationError represents a schema validation failure on a node touched
// by an action. The offending field or label is always named.
type ValidationError struct {
	Label string // Node type label
	Field string // Field or label that failed, if known
	Err   error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vgraph: validation failed for %s.%s: %s", e.Label, e.Field, e.Err)
	}
	return fmt.Sprintf("vgraph: validation failed for %s: %s", e.Label, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given type and field.
func NewValidationError(label, field string, err error) *ValidationError {
	return &ValidationError{Label: label, Field: field, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// IdentityError is returned when the acting identity of an action cannot be
// resolved. It is deliberately distinct from NotFoundError so callers can
// tell a bad actor reference apart from missing data.
type IdentityError struct {
	UserID string
}

// Error returns the error string.
func (e *IdentityError) Error() string {
	return fmt.Sprintf("vgraph: unknown acting identity %q", e.UserID)
}

// NewIdentityError returns a new IdentityError for the given user id.
func NewIdentityError(userID string) *IdentityError {
	return &IdentityError{UserID: userID}
}

// IsIdentityError returns true if the error is an IdentityError.
func IsIdentityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IdentityError
	return errors.As(err, &e)
}

// ConflictError is returned when an undo's equality guards detect that the
// graph has changed since the original action ran. No partial undo is ever
// committed alongside it.
type ConflictError struct {
	ActionID string // Action being undone
	Detail   string // What diverged
}

// Error returns the error string.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("vgraph: cannot undo action %s: %s", e.ActionID, e.Detail)
}

// Is reports whether the target error matches ConflictError.
// This allows errors.Is(conflictErr, ErrConflict) to return true.
func (e *ConflictError) Is(err error) bool {
	return err == ErrConflict
}

// NewConflictError returns a new ConflictError for the given action.
func NewConflictError(actionID, detail string) *ConflictError {
	return &ConflictError{ActionID: actionID, Detail: detail}
}

// IsConflictError returns true if the error is a ConflictError.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConflictError
	return errors.As(err, &e) || errors.Is(err, ErrConflict)
}

// NotFoundError represents an error when a node or action is not found.
type NotFoundError struct {
	label string
	key   any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.key != nil {
		return fmt.Sprintf("vgraph: %s not found (key=%v)", e.label, e.key)
	}
	return fmt.Sprintf("vgraph: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the node type or entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// Key returns the key that was searched for, if available.
func (e *NotFoundError) Key() any {
	return e.key
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithKey returns a new NotFoundError with the key that was
// searched for.
func NewNotFoundErrorWithKey(label string, key any) *NotFoundError {
	return &NotFoundError{label: label, key: key}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}
