// Package errors holds the error kinds shared by the query, cache and search
// layers and maps them onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration marks a request whose parameters cannot be honored.
	ErrConfiguration = errors.New("configuration error")
	// ErrExpansion marks a failure to analyze query or synonym text.
	ErrExpansion = errors.New("query expansion failed")
	// ErrCompilation marks a boost expression that does not compile.
	ErrCompilation = errors.New("boost expression does not compile")
	// ErrMissingCacheEntry marks a boost cache lookup with no entry.
	ErrMissingCacheEntry = errors.New("boost cache entry not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTimeout           = errors.New("operation timed out")
)

// AppError pins an HTTP status and a client-facing message to a kind.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(kind error, statusCode int, message string) *AppError {
	return &AppError{Err: kind, Message: message, StatusCode: statusCode}
}

func Newf(kind error, statusCode int, format string, args ...any) *AppError {
	return New(kind, statusCode, fmt.Sprintf(format, args...))
}

// Configf returns a configuration error that handlers report as a rejected
// request.
func Configf(format string, args ...any) *AppError {
	return Newf(ErrConfiguration, http.StatusBadRequest, format, args...)
}

var kinds = []struct {
	err    error
	code   string
	status int
}{
	{ErrConfiguration, "configuration", http.StatusBadRequest},
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrCompilation, "compilation", http.StatusBadRequest},
	{ErrMissingCacheEntry, "missing_cache_entry", http.StatusBadRequest},
	{ErrExpansion, "expansion", http.StatusUnprocessableEntity},
	{ErrTimeout, "timeout", http.StatusServiceUnavailable},
}

// HTTPStatusCode picks the response status for err. An AppError's own status
// wins; unknown errors are 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Code names the kind of err for clients, "internal" when it has none.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}

// Response is the JSON error body of every endpoint.
type Response struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewResponse builds the body for err. Server errors hide their detail behind
// fallback.
func NewResponse(err error, fallback, requestID string) Response {
	msg := err.Error()
	if HTTPStatusCode(err) >= http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	return Response{Error: msg, Code: Code(err), RequestID: requestID}
}
