package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeySchemaKey contextKey = "schema_key"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithSchemaKey adds the active schema key to the context
func WithSchemaKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ContextKeySchemaKey, key)
}

// SchemaKeyFromContext extracts the active schema key from context
func SchemaKeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(ContextKeySchemaKey).(string); ok {
		return key
	}
	return ""
}
