package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why an onboarding stage failed.
type ErrorKind string

const (
	KindUnreachable         ErrorKind = "unreachable"
	KindAuthFailed          ErrorKind = "authentication_failed"
	KindUnsupportedPlatform ErrorKind = "unsupported_platform"
	KindProtocolError       ErrorKind = "protocol_error"
	KindIncompleteFacts     ErrorKind = "incomplete_facts"
	KindConflictingEntity   ErrorKind = "conflicting_entity"
	KindStoreUnavailable    ErrorKind = "store_unavailable"
	// KindConfig covers invalid requests and policies that forbid creating a
	// missing entity.
	KindConfig ErrorKind = "config"
	// KindCancelled is recorded when a job is cancelled before completion.
	KindCancelled ErrorKind = "cancelled"
	// KindInternal is a fault inside netonboard itself, such as a recovered panic.
	KindInternal ErrorKind = "internal_error"
)

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindUnreachable || k == KindStoreUnavailable
}

// OnboardError is a classified failure. Message is the human readable cause;
// Err keeps the underlying error for unwrapping.
type OnboardError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *OnboardError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *OnboardError) Unwrap() error { return e.Err }

// Is matches another *OnboardError of the same kind, so errors.Is(err, ErrUnreachable) works.
func (e *OnboardError) Is(target error) bool {
	t, ok := target.(*OnboardError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels usable with errors.Is.
var (
	ErrUnreachable         = &OnboardError{Kind: KindUnreachable}
	ErrAuthFailed          = &OnboardError{Kind: KindAuthFailed}
	ErrUnsupportedPlatform = &OnboardError{Kind: KindUnsupportedPlatform}
	ErrProtocol            = &OnboardError{Kind: KindProtocolError}
	ErrIncompleteFacts     = &OnboardError{Kind: KindIncompleteFacts}
	ErrConflictingEntity   = &OnboardError{Kind: KindConflictingEntity}
	ErrStoreUnavailable    = &OnboardError{Kind: KindStoreUnavailable}
	ErrConfig              = &OnboardError{Kind: KindConfig}
	ErrCancelled           = &OnboardError{Kind: KindCancelled}
	ErrInternal            = &OnboardError{Kind: KindInternal}
)

// NewError builds a classified error.
func NewError(kind ErrorKind, msg string, err error) *OnboardError {
	return &OnboardError{Kind: kind, Message: msg, Err: err}
}

// Errorf builds a classified error with a formatted message and no cause.
func Errorf(kind ErrorKind, format string, args ...any) *OnboardError {
	return &OnboardError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err. Unclassified context errors map
// to cancelled/unreachable; anything else is reported as a protocol error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var oe *OnboardError
	if errors.As(err, &oe) {
		return oe.Kind
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindUnreachable
	}

	return KindProtocolError
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
