package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between retrying, aborting
// the stage, or rejecting the request synchronously.
type Kind string

const (
	// Transient covers network faults, timeouts and rate limits. Only this
	// kind is ever retried.
	Transient Kind = "transient"
	// InvalidInput is a caller error (empty topic, unknown voice). Not retried.
	InvalidInput Kind = "invalid_input"
	// ProviderUnavailable means a missing or rejected credential.
	ProviderUnavailable Kind = "provider_unavailable"
	// IncompleteScene is raised by the render stage when a scene has neither
	// audio nor image asset.
	IncompleteScene Kind = "incomplete_scene"
	// EncodeFailure is a downstream encoding fault, retried once by the
	// render stage before surfacing.
	EncodeFailure Kind = "encode_failure"
	// InvalidTransition is an illegal project status change.
	InvalidTransition Kind = "invalid_transition"
	// Conflict means the operation raced with another writer.
	Conflict Kind = "conflict"
	// InvalidState means the operation does not apply to the current data,
	// e.g. regenerating a scene on a project with no manifest.
	InvalidState Kind = "invalid_state"
)

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

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classified kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the failure is eligible for the bounded retry
// policy. Unclassified errors are treated as fatal.
func Retryable(err error) bool {
	return IsKind(err, Transient)
}
