// Package apperrors defines the error taxonomy shared by the ingest and
// agents services: a small set of sentinel kinds, each mapped to a stable
// HTTP status code at the transport boundary, with stack-aware wrapping for
// internal diagnostics.
package apperrors

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
)

// Kind is one of the error categories from the error-handling design.
type Kind string

const (
	KindValidationFailed    Kind = "validation_failed"
	KindUnauthenticated     Kind = "unauthenticated"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindDependency          Kind = "dependency_error"
	KindXMLSecurity         Kind = "xml_security_error"
	KindPathTraversal       Kind = "path_traversal_error"
	KindPersistentInternal  Kind = "persistent_internal_error"
	KindUnsupportedSource   Kind = "unsupported_source_type"
)

// Error is the concrete error type returned by every component boundary.
// Components never mix an error return with a "success-but-degraded" value;
// a non-nil Error always means the caller's request did not complete.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a new apperrors.Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying cause, recording the
// stack trace at the wrap site via go-faster/errors.WithStack. The message
// lives only in Message; WithStack doesn't prefix it onto cause's own
// Error() text, so Error() below doesn't end up printing it twice.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// Is allows errors.Is(err, apperrors.NotFound) style matching against a kind
// sentinel constructed with New(kind, "").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons against a specific kind, independent of
// message text.
var (
	NotFound            = New(KindNotFound, "")
	Unauthenticated      = New(KindUnauthenticated, "")
	Forbidden            = New(KindForbidden, "")
	Conflict             = New(KindConflict, "")
	ValidationFailed     = New(KindValidationFailed, "")
	Dependency           = New(KindDependency, "")
	XMLSecurity          = New(KindXMLSecurity, "")
	PathTraversal        = New(KindPathTraversal, "")
	PersistentInternal   = New(KindPersistentInternal, "")
	UnsupportedSourceType = New(KindUnsupportedSource, "")
)

// HTTPStatus maps a Kind to the stable status code the HTTP layer returns.
// Internal diagnostic detail never crosses this boundary; only Kind and a
// redacted Message do.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindValidationFailed, KindXMLSecurity, KindPathTraversal, KindUnsupportedSource:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to send to a caller: the Kind's
// Message field, never the wrapped cause chain.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
