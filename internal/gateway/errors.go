// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

package gateway

import (
	"fmt"
	"time"
)

// Kind classifies a pipeline failure. Each kind maps to exactly one
// transport status code and machine-readable error code.
type Kind int

const (
	// KindValidation indicates a request section failed schema validation.
	KindValidation Kind = iota

	// KindAuthentication indicates no configured credential method validated.
	KindAuthentication

	// KindAuthorization indicates the principal lacks a required role,
	// permission, ownership, or predicate.
	KindAuthorization

	// KindRateLimit indicates the caller exceeded the endpoint's quota.
	KindRateLimit

	// KindNotFound indicates no endpoint matched the method and path.
	KindNotFound

	// KindTimeout indicates the handler did not complete within its bound.
	KindTimeout

	// KindInternal is the catch-all for unhandled handler failures.
	KindInternal
)

// Machine-readable error codes, one per kind.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeNotFound         = "NOT_FOUND"
	CodeTimeout          = "TIMEOUT"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Error is the typed error envelope produced by the pipeline.
// Every Error carries the request id so failures are traceable
// end-to-end without leaking internal state.
type Error struct {
	// Kind classifies the failure for status mapping.
	Kind Kind `json:"-"`

	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description safe to show callers.
	Message string `json:"message"`

	// RequestID correlates the failure with server-side logs.
	RequestID string `json:"requestId,omitempty"`

	// Field identifies the failing section/field for validation errors.
	Field string `json:"field,omitempty"`

	// MethodsAttempted lists the credential methods tried for
	// authentication errors.
	MethodsAttempted []string `json:"methodsAttempted,omitempty"`

	// Required and Actual describe what authorization needed vs what
	// the principal had.
	Required []string `json:"required,omitempty"`
	Actual   []string `json:"actual,omitempty"`

	// Limit and RetryAfterMs describe rate-limit rejections.
	Limit        int   `json:"limit,omitempty"`
	WindowMs     int64 `json:"windowMs,omitempty"`
	RetryAfterMs int64 `json:"retryAfterMs,omitempty"`

	// cause is the wrapped internal error, never serialized.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the transport status code for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindNotFound:
		return 404
	case KindRateLimit:
		return 429
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// RetryAfter returns the retry-after duration for rate-limit errors,
// zero otherwise.
func (e *Error) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMs) * time.Millisecond
}

// NewValidationError creates a validation error for the given field path.
// The field is "section.name" (e.g. "body.email", "query.limit").
func NewValidationError(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeValidationFailed,
		Message: message,
		Field:   field,
	}
}

// NewAuthenticationError creates an authentication error naming the
// credential methods attempted.
func NewAuthenticationError(methods []string) *Error {
	return &Error{
		Kind:             KindAuthentication,
		Code:             CodeUnauthorized,
		Message:          "authentication required",
		MethodsAttempted: methods,
	}
}

// NewAuthorizationError creates an authorization error describing what
// was required and what the principal actually had.
func NewAuthorizationError(message string, required, actual []string) *Error {
	return &Error{
		Kind:     KindAuthorization,
		Code:     CodeForbidden,
		Message:  message,
		Required: required,
		Actual:   actual,
	}
}

// NewRateLimitError creates a rate-limit error carrying the limit, the
// window length, and the time remaining in the current window.
func NewRateLimitError(limit int, window, retryAfter time.Duration) *Error {
	return &Error{
		Kind:         KindRateLimit,
		Code:         CodeTooManyRequests,
		Message:      "rate limit exceeded",
		Limit:        limit,
		WindowMs:     window.Milliseconds(),
		RetryAfterMs: retryAfter.Milliseconds(),
	}
}

// NewNotFoundError creates a not-found error for an unresolvable route.
func NewNotFoundError(method, path string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no endpoint registered for %s %s", method, path),
	}
}

// NewTimeoutError creates a timeout error for a handler that exceeded
// its processing bound.
func NewTimeoutError(timeout time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Code:    CodeTimeout,
		Message: fmt.Sprintf("handler did not complete within %s", timeout),
	}
}

// NewInternalError wraps an unhandled failure. The cause is retained for
// server-side logging only; callers see a generic message plus the
// request id.
func NewInternalError(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternalError,
		Message: "an internal error occurred",
		cause:   cause,
	}
}

// WithRequestID returns the error with the request id attached.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}
