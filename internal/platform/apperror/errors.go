// Package apperror defines the three error kinds surfaced to callers:
// not-found, bad-request, and forbidden. Internal failures stay wrapped and
// map to a generic 500 at the boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind discriminates caller-visible errors.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
)

// Error is a caller-visible error with an optional list of itemized reasons.
type Error struct {
	Kind    Kind
	Message string
	Details []string
}

func (e *Error) Error() string { return e.Message }

// NotFound reports a missing claim, report, or other resource.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports invalid input or an invalid lifecycle transition.
func BadRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports a role-scoped access violation.
func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches itemized validation reasons and returns the error.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// KindOf extracts the Kind from err, or "" when err is not an apperror.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsBadRequest reports whether err is a bad-request error.
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// IsForbidden reports whether err is a forbidden error.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
