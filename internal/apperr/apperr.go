// Package apperr defines the error kinds surfaced by the mediator core.
// Every abortive error carries a Kind so callers can tell "nothing to analyze"
// apart from "the model failed" without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

// Error kinds.
const (
	KindUnknown        Kind = "UNKNOWN"
	KindNotFound       Kind = "NOT_FOUND"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindExternalLookup Kind = "EXTERNAL_LOOKUP"
	KindModel          Kind = "MODEL"
	KindPersistence    Kind = "PERSISTENCE"
)

// Error is an application error with a kind, a short human-readable reason
// and an optional cause.
type Error struct {
	kind    Kind
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Reason returns the human-readable message without the cause chain.
func (e *Error) Reason() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) error {
	return &Error{kind: kind, message: message, err: cause}
}

// NotFound reports a missing channel, prompt or user.
func NotFound(format string, args ...any) error {
	return &Error{kind: KindNotFound, message: fmt.Sprintf(format, args...)}
}

// InvalidInput reports a request that cannot be served as given.
func InvalidInput(format string, args ...any) error {
	return &Error{kind: KindInvalidInput, message: fmt.Sprintf(format, args...)}
}

// ExternalLookup reports a failed entity resolution or message fetch.
func ExternalLookup(message string, cause error) error {
	return &Error{kind: KindExternalLookup, message: message, err: cause}
}

// Model reports a failed, empty or unparseable completion.
func Model(message string, cause error) error {
	return &Error{kind: KindModel, message: message, err: cause}
}

// Persistence reports a failed storage write.
func Persistence(message string, cause error) error {
	return &Error{kind: KindPersistence, message: message, err: cause}
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the short message of the first *Error in the chain, falling
// back to err.Error().
func Reason(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
