// Package errs defines the ledger's error taxonomy.
//
// Four categories cover every failure the core surfaces to callers:
// validation (fix the input), conflict (retry), policy (a rule blocked the
// operation, with a human-readable reason), and not-found. Everything else is
// wrapped and treated as internal.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before any persistence write.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// ConflictError signals a double-apply or concurrent edit of the same
// entity. Ledger mutations are transactional, so a conflict is never
// partially applied and the caller may retry.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

// PolicyError signals that a business rule blocked the operation, e.g.
// deleting a partially settled expense. Not retried automatically.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "policy: " + e.Reason }

// NotFoundError signals an unknown entity ID.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// Policyf builds a PolicyError from a format string.
func Policyf(format string, args ...any) error {
	return &PolicyError{Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError for the given entity kind and ID.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

// IsPolicy reports whether err is (or wraps) a PolicyError.
func IsPolicy(err error) bool {
	var e *PolicyError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
