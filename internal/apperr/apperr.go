// Package apperr defines the error kinds shared by clients, services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a stable machine-readable error code.
type Kind string

// Configuration
const (
	MissingCredentials   Kind = "MissingCredentials"
	AccountNotConfigured Kind = "AccountNotConfigured"
)

// Authentication
const (
	InvalidToken        Kind = "InvalidToken"
	AccountNotConnected Kind = "AccountNotConnected"
)

// Validation
const (
	ContentTooLong  Kind = "ContentTooLong"
	TooManyHashtags Kind = "TooManyHashtags"
	MediaRequired   Kind = "MediaRequired"
	InvalidInput    Kind = "InvalidInput"
)

// Transport and provider
const (
	TransportError    Kind = "TransportError"
	ProtocolError     Kind = "ProtocolError"
	ProviderRejected  Kind = "ProviderRejected"
	ProcessingTimeout Kind = "ProcessingTimeout"
	RateLimitExceeded Kind = "RateLimitExceeded"
)

// Service level
const (
	NotFound             Kind = "NotFound"
	InvalidState         Kind = "InvalidState"
	Unsupported          Kind = "Unsupported"
	AnalyticsUnavailable Kind = "AnalyticsUnavailable"
	Internal             Kind = "Internal"
)

type Error struct {
	Kind       Kind
	Message    string
	Platform   string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s", e.Platform, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithPlatform(platform string) *Error {
	e.Platform = platform
	return e
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// OfKind is a sentinel usable with errors.Is.
func OfKind(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the scheduler may try the operation again later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case TransportError, ProtocolError, ProviderRejected, ProcessingTimeout, RateLimitExceeded, Internal:
		return true
	default:
		return false
	}
}

// RetryAfter returns the wait hint carried by a RateLimitExceeded error.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
