// Package apperr is the closed error taxonomy (§4.8) that threads through
// the request limiter, LLM invoker, tool executor, and round loop. It
// generalizes the plain sentinel-error idiom used elsewhere in the module
// (see internal/domain.ErrNotFound et al.) into a richer error carrying a
// stable code, an HTTP status, a hint, and a trace id.
package apperr

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Code string

const (
	InvalidRequest       Code = "INVALID_REQUEST"
	AuthRequired         Code = "AUTH_REQUIRED"
	Unauthorized         Code = "UNAUTHORIZED"
	Forbidden            Code = "FORBIDDEN"
	PermissionDenied     Code = "PERMISSION_DENIED"
	NotFound             Code = "NOT_FOUND"
	SessionNotFound      Code = "SESSION_NOT_FOUND"
	TaskNotFound         Code = "TASK_NOT_FOUND"
	RequestTimeout       Code = "REQUEST_TIMEOUT"
	HandshakeTimeout     Code = "HANDSHAKE_TIMEOUT"
	Conflict             Code = "CONFLICT"
	TaskNotCancelable    Code = "TASK_NOT_CANCELABLE"
	PayloadTooLarge      Code = "PAYLOAD_TOO_LARGE"
	ContentTypeUnsupported Code = "CONTENT_TYPE_NOT_SUPPORTED"
	UserBusy             Code = "USER_BUSY"
	UserQuotaExceeded    Code = "USER_QUOTA_EXCEEDED"
	RateLimited          Code = "RATE_LIMITED"
	InternalError        Code = "INTERNAL_ERROR"
	PushNotSupported     Code = "PUSH_NOT_SUPPORTED"
	ServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	ConnectionClosed     Code = "CONNECTION_CLOSED"
	LLMUnavailable       Code = "LLM_UNAVAILABLE"
	UpstreamTimeout      Code = "UPSTREAM_TIMEOUT"
	Cancelled            Code = "CANCELLED"
)

var statusByCode = map[Code]int{
	InvalidRequest:         400,
	AuthRequired:           401,
	Unauthorized:           401,
	Forbidden:              403,
	PermissionDenied:       403,
	NotFound:               404,
	SessionNotFound:        404,
	TaskNotFound:           404,
	RequestTimeout:         408,
	HandshakeTimeout:       408,
	Conflict:               409,
	TaskNotCancelable:      409,
	PayloadTooLarge:        413,
	ContentTypeUnsupported: 415,
	UserBusy:               429,
	UserQuotaExceeded:      429,
	RateLimited:            429,
	InternalError:          500,
	PushNotSupported:       501,
	ServiceUnavailable:     503,
	ConnectionClosed:       503,
	LLMUnavailable:         503,
	UpstreamTimeout:        504,
	Cancelled:              499,
}

var hintByCode = map[Code]string{
	InvalidRequest:    "check that user_id and question are non-empty",
	UserBusy:          "a request for this session is already in flight; retry shortly",
	UserQuotaExceeded: "daily quota exhausted; retry after the quota window resets",
	LLMUnavailable:    "the model provider is not configured or unreachable",
	Cancelled:         "the request was cancelled by the caller",
	InternalError:     "an unexpected internal error occurred",
}

const defaultHint = "see error.message for detail"

// Status returns the HTTP status a code maps to, per §4.8.
func (c Code) Status() int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return 500
}

func (c Code) hint() string {
	if h, ok := hintByCode[c]; ok {
		return h
	}
	return defaultHint
}

// Error is the engine's structured error type. It wraps an optional
// underlying cause so storage/provider errors remain inspectable via
// errors.Unwrap/errors.As.
type Error struct {
	Code      Code
	Message   string
	Detail    map[string]interface{}
	TraceID   string
	Timestamp time.Time
	cause     error
}

func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		TraceID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// Wrap builds an Error around an underlying cause, keeping it reachable via
// errors.Unwrap so %w-style chains still work with errors.Is/errors.As.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

func (e *Error) WithDetail(detail map[string]interface{}) *Error {
	e.Detail = detail
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Payload builds the §4.8 error envelope body.
func (e *Error) Payload() map[string]interface{} {
	errObj := map[string]interface{}{
		"code":      string(e.Code),
		"message":   e.Message,
		"status":    e.Code.Status(),
		"hint":      e.Code.hint(),
		"trace_id":  e.TraceID,
		"timestamp": e.Timestamp,
	}
	payload := map[string]interface{}{
		"ok":    false,
		"error": errObj,
	}
	if e.Detail != nil {
		detail := map[string]interface{}{"message": e.Message}
		for k, v := range e.Detail {
			detail[k] = v
		}
		payload["detail"] = detail
	}
	return payload
}

// As reports whether err (or anything in its chain) is an *Error, returning
// it if so — a thin convenience over errors.As.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, otherwise
// InternalError — used at the boundary that turns any error into a terminal
// `error` event or HTTP response.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return InternalError
}
