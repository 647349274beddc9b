// Package errs defines the failure kinds shared by the RAG components and
// their mapping to HTTP status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput means the request carried no usable content.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means a requested record or per-user index does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstream means an embedding, LLM or store call failed.
	ErrUpstream = errors.New("upstream failure")

	// ErrNoAnswer means the LLM returned an empty or unusable result.
	ErrNoAnswer = errors.New("no answer returned")
)

// kindError attaches a failure kind to an underlying cause so that
// errors.Is matches both.
type kindError struct {
	kind  error
	op    string
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	}
	return fmt.Sprintf("%s: %v", e.op, e.cause)
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Upstream wraps err as an ErrUpstream failure of op.
// Returns nil if err is nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrUpstream, op: op, cause: err}
}

// InvalidInput returns an ErrInvalidInput failure with a formatted message.
func InvalidInput(format string, args ...any) error {
	return &kindError{kind: ErrInvalidInput, op: "invalid input", cause: fmt.Errorf(format, args...)}
}

// NotFound returns an ErrNotFound failure with a formatted message.
func NotFound(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, op: "not found", cause: fmt.Errorf(format, args...)}
}

// HTTPStatus maps an error to the status code used by hard-error endpoints.
// Anything not invalid input or not found maps to 500; Type tells
// them apart in the response body.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Type returns the short error type string used in JSON error bodies.
func Type(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_request_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoAnswer):
		return "no_answer"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "api_error"
	}
}
