package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// WithCorrelationID stores a correlation ID on the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// CorrelationID returns the correlation ID from the context, or "".
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// NewCorrelationID generates a fresh UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}
