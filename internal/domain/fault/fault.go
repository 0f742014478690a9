package fault

import "fmt"

// ValidationError rejects malformed input before any write. Field names the
// offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError covers entities that are absent or outside the caller's
// organization.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return e.Entity + " " + e.ID + " not found"
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// AuthorizationError means the actor exists but is not allowed to act on the
// entity, e.g. a reviewer submitting a decision on someone else's item.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func Forbidden(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason}
}

// StateConflictError means the entity was found but is not in a state that
// permits the operation: campaign not draft, item no longer pending,
// violation already resolved. Surfaced distinctly from validation so callers
// can offer "someone already handled this" messaging.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string {
	return e.Reason
}

func Conflict(reason string) *StateConflictError {
	return &StateConflictError{Reason: reason}
}

func Conflictf(format string, args ...any) *StateConflictError {
	return &StateConflictError{Reason: fmt.Sprintf(format, args...)}
}
