package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/chat-gateway/pkg/models"
)

// ErrorKind classifies an upstream completion failure.
type ErrorKind string

const (
	// KindRateLimited is an HTTP 429 from the upstream.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUpstream is any other non-2xx response.
	KindUpstream ErrorKind = "upstream_error"
	// KindTransport is a network-level failure or timeout.
	KindTransport ErrorKind = "transport_error"
	// KindMalformed is a 2xx response that could not be used.
	KindMalformed ErrorKind = "malformed_response"
	// KindConfiguration is a caller error detected before any network call.
	KindConfiguration ErrorKind = "configuration_error"
)

// Error is a classified failure of a single completion call.
type Error struct {
	Kind       ErrorKind
	Detail     string // Sanitized, human-readable
	StatusCode int    // HTTP status code if applicable
	Model      string // Model name if known
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Kind)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// Rate limits, transport failures and 5xx responses are transient.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransport:
		return true
	case KindUpstream:
		return e.StatusCode >= 500
	default:
		return false
	}
}

func newError(kind ErrorKind, model, detail string, status int, cause error) *Error {
	return &Error{Kind: kind, Model: model, Detail: detail, StatusCode: status, Cause: cause}
}

// KindOf extracts the ErrorKind from err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return ""
}

// AggregateError is returned when every model in a cascade failed.
// Attempts are in the order they were tried.
type AggregateError struct {
	Attempts []models.Attempt
}

// Error implements the error interface with one consolidated message.
func (e *AggregateError) Error() string {
	if len(e.Attempts) == 0 {
		return "all models failed"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Model, KindOf(a.Err)))
	}
	return fmt.Sprintf("all %d models failed (%s)", len(e.Attempts), strings.Join(parts, "; "))
}

// Last returns the failure of the final attempt, or nil.
func (e *AggregateError) Last() *Error {
	if len(e.Attempts) == 0 {
		return nil
	}
	var llmErr *Error
	if errors.As(e.Attempts[len(e.Attempts)-1].Err, &llmErr) {
		return llmErr
	}
	return nil
}

// AllKind reports whether every attempt failed with the given kind.
func (e *AggregateError) AllKind(kind ErrorKind) bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if KindOf(a.Err) != kind {
			return false
		}
	}
	return true
}

// Models returns the attempted model ids in order.
func (e *AggregateError) Models() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Model
	}
	return out
}
