package llm

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "llm_request_id"

// WithRequestID returns a context carrying the id of the chat request that
// triggered upstream calls, for log and telemetry correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id from ctx, or "" when none is set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// EnsureRequestID returns ctx with a request id, generating one when absent.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}
