// Package apperr defines the typed failures returned by the domain services.
// Callers branch on the kind (via KindOf or errors.Is) to decide between a
// retry, a 4xx response, or a state-machine violation message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a category of domain failure.
type Kind string

const (
	InvalidCode            Kind = "invalid_code"
	ExpiredCode            Kind = "expired_code"
	InvalidStateTransition Kind = "invalid_state_transition"
	QuotaExhausted         Kind = "quota_exhausted"
	DuplicateSession       Kind = "duplicate_session"
	PaymentFailed          Kind = "payment_failed"
	UnauthorizedAccess     Kind = "unauthorized_access"
	NotFound               Kind = "not_found"
)

// Error is a kind-tagged domain error. It may wrap an underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.New(kind, "")) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a kind-tagged error with a human-readable message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain. Returns "" when the error
// carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the failure is safe to retry from the caller's
// side. Only payment failures qualify; state-machine violations are terminal.
func Retryable(err error) bool {
	return KindOf(err) == PaymentFailed
}
