// Package apperr defines the error taxonomy returned by the core to the
// transport layer. Every rejected command maps to a stable (kind, message)
// pair; the transport decides how to present it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindNotFound         Kind = "not_found"
	KindForbidden        Kind = "forbidden"
	KindActionFailed     Kind = "action_failed"
	KindValidationFailed Kind = "validation_failed"
	// KindBusy signals that a room's lease could not be acquired in time.
	// It is backpressure, not a business failure; callers may retry.
	KindBusy Kind = "busy"
)

// Error carries a taxonomy kind alongside a stable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New creates an Error with an explicit kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func ActionFailed(format string, args ...any) *Error {
	return New(KindActionFailed, format, args...)
}

func ValidationFailed(format string, args ...any) *Error {
	return New(KindValidationFailed, format, args...)
}

func Busy(format string, args ...any) *Error {
	return New(KindBusy, format, args...)
}

// KindOf extracts the taxonomy kind from err, or KindUnknown for errors
// that did not originate in the core's validation paths.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
