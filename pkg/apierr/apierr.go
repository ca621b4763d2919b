// Package apierr provides the structured error value rendered by every
// HTTP-facing component: validation rejections, route misses, body parse
// failures and unhandled handler errors.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeInvalidBody      = "INVALID_BODY"
	CodeUnknown          = "UNKNOWN_ERROR"
)

// Error is a terminal, structured error. It is rendered once and discarded.
type Error struct {
	Message string
	Status  int
	Code    string

	// Stack is captured when the error was derived from a panic.
	Stack []byte

	cause error
}

// New creates an error. Zero status and empty code fall back to
// 500 and UNKNOWN_ERROR.
func New(status int, code, message string) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if code == "" {
		code = CodeUnknown
	}
	return &Error{Message: message, Status: status, Code: code}
}

// Newf creates an error with a formatted message.
func Newf(status int, code, format string, args ...any) *Error {
	return New(status, code, fmt.Sprintf(format, args...))
}

// From derives an Error from any error value. An *Error anywhere in the chain
// is returned as is; anything else becomes a 500 UNKNOWN_ERROR carrying the
// original error as its cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Message: err.Error(),
		Status:  http.StatusInternalServerError,
		Code:    CodeUnknown,
		cause:   err,
	}
}

// FromPanic converts a recovered panic value and records the stack.
func FromPanic(v any) *Error {
	var e *Error
	switch x := v.(type) {
	case *Error:
		e = x
	case error:
		e = From(x)
	default:
		e = New(http.StatusInternalServerError, CodeUnknown, fmt.Sprint(x))
	}
	if e.Stack == nil {
		e.Stack = debug.Stack()
	}
	return e
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil && e.cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Body is the JSON shape written to clients.
type Body struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Body returns the client-facing representation.
func (e *Error) Body() Body {
	return Body{Error: true, Message: e.Message, Code: e.Code}
}

// Write renders the error as JSON with its HTTP status.
func (e *Error) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.Body())
}

// ValidationFailed is a 400 rejection with the failure reason as message.
func ValidationFailed(message string) *Error {
	return New(http.StatusBadRequest, CodeValidationFailed, message)
}

// RouteNotFound is the 404 produced by the predictive and static guards.
func RouteNotFound(method, path string) *Error {
	return Newf(http.StatusNotFound, CodeRouteNotFound, "Route %s %s not found!", method, path)
}

// InvalidBody is the 400 produced when the request body cannot be parsed.
func InvalidBody(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidBody, "Invalid request body!").WithCause(err)
}

// Internal is the generic 500 rendered for unhandled errors. The cause is kept
// for reporting but never shown to clients.
func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeUnknown, "Internal server error!").WithCause(err)
}
