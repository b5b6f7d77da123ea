// Package apperr defines the error kinds that cross the service boundary.
// Handlers map a Kind to an HTTP status; the message is safe to show a client.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindTooLarge
	KindConfiguration
	KindStorage
	KindNotFound
	KindAccessDenied
	KindExpired
	KindUnsupportedPreview
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	case KindConfiguration:
		return "configuration"
	case KindStorage:
		return "storage"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindExpired:
		return "expired"
	case KindUnsupportedPreview:
		return "unsupported_preview"
	case KindUnsupported:
		return "unsupported"
	}
	return "internal"
}

// Client-facing messages. A wrong access code must be indistinguishable from
// an unknown share code.
const (
	MsgShareNotFound      = "share link not found or access code incorrect"
	MsgExpired            = "share link has expired"
	MsgStorageFailure     = "storage failure"
	MsgInternal           = "internal server error"
	MsgUnsupportedPreview = "preview is only available for images"
)

// Error is a classified failure. Cause is kept for logging only.
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

func (e *Error) Unwrap() error { return e.Cause }

// New returns an Error of kind k.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Wrap returns an Error of kind k that keeps cause in the chain.
func Wrap(k Kind, message string, cause error) *Error {
	return &Error{Kind: k, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func TooLarge(format string, args ...any) *Error {
	return New(KindTooLarge, fmt.Sprintf(format, args...))
}

func Configuration(cause error) *Error {
	return Wrap(KindConfiguration, cause.Error(), cause)
}

func Storage(cause error) *Error {
	return Wrap(KindStorage, MsgStorageFailure, cause)
}

func NotFound() *Error {
	return New(KindNotFound, MsgShareNotFound)
}

func AccessDenied() *Error {
	return New(KindAccessDenied, MsgShareNotFound)
}

func Expired() *Error {
	return New(KindExpired, MsgExpired)
}

func UnsupportedPreview() *Error {
	return New(KindUnsupportedPreview, MsgUnsupportedPreview)
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, MsgInternal, cause)
}

// KindOf reports the Kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
