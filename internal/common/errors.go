package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies application errors.
type ErrorKind string

const (
	KindAuthRequired       ErrorKind = "AUTH_REQUIRED"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindPreconditionFailed ErrorKind = "PRECONDITION_FAILED"
	KindRateLimited        ErrorKind = "UPSTREAM_RATE_LIMITED"
	KindUpstreamTimeout    ErrorKind = "UPSTREAM_TIMEOUT"
	KindUpstreamFailure    ErrorKind = "UPSTREAM_FAILURE"
	KindTransport          ErrorKind = "TRANSPORT_ERROR"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is the application error value. Detail is human-readable;
// HTTPStatus is the upstream status code when one was observed.
// Errors carry structure so callers never re-parse formatted strings.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.HTTPStatus > 0:
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.HTTPStatus, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.HTTPStatus > 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Detail)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an application error with no cause.
func NewError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and detail to an underlying cause.
func WrapError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// UpstreamError records a non-2xx response from a collaborator.
func UpstreamError(kind ErrorKind, httpStatus int, detail string) *Error {
	return &Error{Kind: kind, HTTPStatus: httpStatus, Detail: detail}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Message returns a user-facing message for err. Structured errors render
// their detail with the upstream status when present; anything else falls
// back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		detail := ae.Detail
		if detail == "" && ae.Err != nil {
			detail = ae.Err.Error()
		}
		if ae.HTTPStatus > 0 {
			return fmt.Sprintf("OCR failed (%d): %s", ae.HTTPStatus, detail)
		}
		return detail
	}
	return err.Error()
}

// HTTPStatusForKind maps an error kind to the status the HTTP surface returns.
func HTTPStatusForKind(kind ErrorKind) int {
	switch kind {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamFailure, KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retriable reports whether a failed OCR job with this kind is worth a retry.
func Retriable(kind ErrorKind) bool {
	switch kind {
	case KindRateLimited, KindUpstreamTimeout, KindUpstreamFailure, KindTransport, KindInternal:
		return true
	default:
		return false
	}
}
