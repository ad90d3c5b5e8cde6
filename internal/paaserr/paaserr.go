// Package paaserr defines the error kinds shared across the control plane.
//
// Every fallible operation in the deployment workflow, the edge router, and
// the managed-service supervisor surfaces one of a small fixed set of kinds
// so callers can branch on Kind instead of matching error strings.
package paaserr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind string

const (
	// KindValidation means the caller supplied malformed input.
	KindValidation Kind = "validation"
	// KindNotFound means the referenced resource does not exist.
	KindNotFound Kind = "not-found"
	// KindConflict means the current state prevents the requested mutation.
	KindConflict Kind = "conflict"
	// KindSourceUnavailable means an external dependency failed.
	KindSourceUnavailable Kind = "source-unavailable"
	// KindTimeout means a bounded wait elapsed.
	KindTimeout Kind = "timeout"
	// KindInternal means an invariant was violated.
	KindInternal Kind = "internal"
	// KindCancelled means the operation was cooperatively cancelled.
	KindCancelled Kind = "cancelled"
)

// Error is a kind-tagged error with a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error wrapping cause. If cause is nil, Wrap returns nil,
// so it is safe to use as `return paaserr.Wrap(...)` after an `if err != nil`.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error with the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// KindInternal otherwise — callers that need a kind for logging or metrics
// always get one back.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
