package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure class in the canonical error envelope.
type Kind string

const (
	KindSessionMissing    Kind = "SessionMissing"
	KindSchemaViolation   Kind = "SchemaViolation"
	KindLockRequired      Kind = "LockRequired"
	KindLockHeld          Kind = "LockHeld"
	KindLockOwnerMismatch Kind = "LockOwnerMismatch"
	KindPreviewMissing    Kind = "PreviewMissing"
	KindPreviewStale      Kind = "PreviewStale"
	KindEntropyMissing    Kind = "EntropyMissing"
	KindEntropyExhausted  Kind = "EntropyExhausted"
	KindExpressionInvalid Kind = "ExpressionInvalid"
	KindConflict          Kind = "Conflict"
	KindUnavailable       Kind = "Unavailable"
	KindInternal          Kind = "Internal"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface keeps handler error mapping extensible.
type HTTPError interface {
	error
	StatusCode() int
}

// Error is the canonical domain error. Every failure that crosses the
// HTTP boundary is an *Error so the envelope always carries a kind.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is matches two domain errors by kind, enabling errors.Is checks
// against the sentinel constructors below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// StatusCode implements HTTPError.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindSessionMissing, KindPreviewMissing:
		return http.StatusNotFound
	case KindSchemaViolation, KindExpressionInvalid, KindEntropyExhausted, KindEntropyMissing:
		return http.StatusBadRequest
	case KindLockRequired, KindLockHeld, KindLockOwnerMismatch, KindPreviewStale, KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// E builds a domain error of the given kind.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a domain error that wraps a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// WithDetails attaches structured details for the error envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Sentinels for errors.Is matching. Handlers and tests compare against
// these; constructors above produce values that match by kind.
var (
	ErrSessionMissing    = &Error{Kind: KindSessionMissing}
	ErrSchemaViolation   = &Error{Kind: KindSchemaViolation}
	ErrLockRequired      = &Error{Kind: KindLockRequired}
	ErrLockHeld          = &Error{Kind: KindLockHeld}
	ErrLockOwnerMismatch = &Error{Kind: KindLockOwnerMismatch}
	ErrPreviewMissing    = &Error{Kind: KindPreviewMissing}
	ErrPreviewStale      = &Error{Kind: KindPreviewStale}
	ErrEntropyMissing    = &Error{Kind: KindEntropyMissing}
	ErrEntropyExhausted  = &Error{Kind: KindEntropyExhausted}
	ErrExpressionInvalid = &Error{Kind: KindExpressionInvalid}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
	ErrInternal          = &Error{Kind: KindInternal}
)

// KindOf extracts the kind from any error, defaulting to Internal so
// unexpected failures never leak implementation detail to clients.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
