package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	// LoggerKey holds the request or event scoped *zap.Logger.
	LoggerKey ctxKey = iota
	// RequestIDKey holds the inbound X-Request-ID.
	RequestIDKey
	senderKey
	eventIDKey
)

// WithContext stores l on ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// FromContext returns the logger stored on ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, nil)
}

// FromContextOr returns the logger stored on ctx, or fallback. Entries carry
// trace_id and span_id when ctx has a valid span.
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	l, ok := ctx.Value(LoggerKey).(*zap.Logger)
	if !ok || l == nil {
		l = fallback
	}
	if l == nil {
		return zap.NewNop()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// WithSender scopes ctx and the returned logger to one marketplace.
func WithSender(ctx context.Context, l *zap.Logger, sender string) (context.Context, *zap.Logger) {
	return scope(ctx, l, senderKey, "sender", sender)
}

// WithEventID scopes ctx and the returned logger to one stored event.
func WithEventID(ctx context.Context, l *zap.Logger, eventID string) (context.Context, *zap.Logger) {
	return scope(ctx, l, eventIDKey, "event_id", eventID)
}

func scope(ctx context.Context, l *zap.Logger, key ctxKey, field, value string) (context.Context, *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	l = l.With(zap.String(field, value))
	ctx = context.WithValue(ctx, key, value)
	return WithContext(ctx, l), l
}

func str(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// RequestID returns the request id on ctx, if any.
func RequestID(ctx context.Context) string { return str(ctx, RequestIDKey) }

// Sender returns the sender code on ctx, if any.
func Sender(ctx context.Context) string { return str(ctx, senderKey) }

// EventID returns the event id on ctx, if any.
func EventID(ctx context.Context) string { return str(ctx, eventIDKey) }

// TraceID returns the active trace id, or "" without a valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
