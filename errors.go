package dispatch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by every registry lookup failure.
	ErrNotFound = errors.New("not found")

	// ErrNoViewEngine is returned when a View response is emitted by a
	// driver without a configured ViewEngine.
	ErrNoViewEngine = errors.New("no view engine configured")

	// ErrAbort stops a handler chain quietly. Before hooks return it after
	// writing a complete response themselves.
	ErrAbort = errors.New("chain aborted")
)

// HTTPError represents an HTTP error with a status code and message.
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, error=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError with the given code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new HTTPError wrapping an existing error.
func WrapError(code int, message string, err error) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *HTTPError {
	if msg == "" {
		msg = http.StatusText(http.StatusBadRequest)
	}
	return NewHTTPError(http.StatusBadRequest, msg)
}

// ErrUnauthorized returns a 401 Unauthorized error.
func ErrUnauthorized(msg string) *HTTPError {
	if msg == "" {
		msg = http.StatusText(http.StatusUnauthorized)
	}
	return NewHTTPError(http.StatusUnauthorized, msg)
}

// ErrForbidden returns a 403 Forbidden error.
func ErrForbidden(msg string) *HTTPError {
	if msg == "" {
		msg = http.StatusText(http.StatusForbidden)
	}
	return NewHTTPError(http.StatusForbidden, msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *HTTPError {
	if msg == "" {
		msg = http.StatusText(http.StatusInternalServerError)
	}
	return NewHTTPError(http.StatusInternalServerError, msg)
}

// LookupError reports a name that the registry could not resolve.
// It is distinct from application errors: endpoints never return it
// themselves, the driver does when instantiation fails.
type LookupError struct {
	Kind string // "controller" or "middleware"
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q could not be resolved: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// Unwrap returns the factory error, if any.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is makes every LookupError match ErrNotFound.
func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound
}
