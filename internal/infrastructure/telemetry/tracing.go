package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/meschain/webhook-gateway"

// Span attribute keys of the ingestion pipeline.
const (
	SpanSender    = attribute.Key("webhook.sender")
	SpanEventType = attribute.Key("webhook.event_type")
	SpanEventID   = attribute.Key("webhook.event_id")
	SpanHandler   = attribute.Key("webhook.handler")
	SpanAttempt   = attribute.Key("webhook.attempt")
	SpanBodyBytes = attribute.Key("webhook.body_bytes")
	SpanRequestID = attribute.Key("http.request_id")
)

// StartSpan starts an internal span on the global tracer provider. The
// caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful.
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}
