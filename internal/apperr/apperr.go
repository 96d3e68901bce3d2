// Package apperr is the closed error taxonomy exposed at the API boundary.
//
// Services return *Error values for business failures and plain wrapped
// errors for everything else; Classify turns any error into an *Error so
// that no internal error type reaches a transport unclassified.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind enumerates the error classes a client can observe.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// Status returns the HTTP status code of the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code sent to clients.
func (k Kind) Code() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	default:
		return "INTERNAL_ERROR"
	}
}

func (k Kind) String() string { return k.Code() }

// Error is a classified failure. Message is safe to show to clients;
// the cause is kept for logs only.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status is a shortcut for e.Kind.Status().
func (e *Error) Status() int { return e.Kind.Status() }

// ServerSide reports whether the failure is the server's fault (5xx).
func (e *Error) ServerSide() bool { return e.Kind.Status() >= http.StatusInternalServerError }

// Stack renders the cause together with the stack recorded when it was
// wrapped. Empty when there is no cause.
func (e *Error) Stack() string {
	if e.cause == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.cause)
}

// WithDetails returns a copy of e carrying per-field details.
func (e *Error) WithDetails(details map[string]string) *Error {
	c := *e
	c.Details = details
	return &c
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func BadRequest(msg string) *Error      { return newError(KindBadRequest, msg) }
func Unauthorized(msg string) *Error    { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) *Error       { return newError(KindForbidden, msg) }
func NotFound(msg string) *Error        { return newError(KindNotFound, msg) }
func Conflict(msg string) *Error        { return newError(KindConflict, msg) }
func TooManyRequests(msg string) *Error { return newError(KindTooManyRequests, msg) }

// Internal classifies cause as a server failure. The client only ever sees
// the generic message; cause is recorded with a stack trace for the logs.
func Internal(cause error) *Error {
	if cause != nil {
		var st interface{ StackTrace() pkgerrors.StackTrace }
		if !errors.As(cause, &st) {
			cause = pkgerrors.WithStack(cause)
		}
	}
	return &Error{Kind: KindInternal, Message: "internal server error", cause: cause}
}

// KindOf returns the kind err would be classified as.
func KindOf(err error) Kind {
	return Classify(err).Kind
}
