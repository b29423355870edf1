// Package errs holds the error kinds shared by every service in the gateway.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput is returned before any network call for bad locators or formats.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream covers non-2xx responses, malformed payloads and vendor-reported errors.
	ErrUpstream = errors.New("upstream error")
	// ErrTimeout is returned when a poll policy runs out of attempts or time.
	ErrTimeout = errors.New("operation timed out")
)

// Invalid wraps ErrInvalidInput with a formatted message.
func Invalid(format string, args ...any) error {
	return &kindError{kind: ErrInvalidInput, msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps ErrUpstream with a formatted message.
func Upstream(format string, args ...any) error {
	return &kindError{kind: ErrUpstream, msg: fmt.Sprintf(format, args...)}
}

// Timeout wraps ErrTimeout with a formatted message.
func Timeout(format string, args ...any) error {
	return &kindError{kind: ErrTimeout, msg: fmt.Sprintf(format, args...)}
}

// kindError keeps the message verbatim so the HTTP layer can pass it through,
// while errors.Is still matches the kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
