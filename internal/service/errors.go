package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.  The HTTP layer maps each kind to
// exactly one status code.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindUnauthorized
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is the only error type services return.  Message is safe to show
// to clients; Err holds the cause for logs and is never rendered.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, service.ErrForbidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Kind sentinels for errors.Is.
var (
	ErrInternal     = &Error{Kind: KindInternal}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func invalidInput(msg string) *Error { return newError(KindInvalidInput, msg, nil) }
func unauthorized(msg string) *Error { return newError(KindUnauthorized, msg, nil) }
func internal(msg string, cause error) *Error {
	return newError(KindInternal, msg, cause)
}

// KindOf returns the kind of err.  Errors that did not come from a service
// are reported as KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "Internal server error"
}
