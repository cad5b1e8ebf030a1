package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey struct{}

var requestIDKey ctxKey

// WithRequestID stores the admin request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Attrs returns the correlation attributes carried by ctx as slog key/value
// pairs: request_id when set, and trace_id/span_id inside a valid span.
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return attrs
}
