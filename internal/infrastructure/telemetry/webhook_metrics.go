package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// HandlerDurationBuckets are bucket boundaries for domain handler runtime (seconds).
var HandlerDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// WebhookMetrics records the ingestion pipeline on an OpenTelemetry meter.
type WebhookMetrics struct {
	received        *Counter
	rejected        *Counter
	accepted        *Counter
	duplicates      *Counter
	handled         *Counter
	reclaimed       *Counter
	requeued        *Counter
	handlerDuration *Histogram
}

// NewWebhookMetrics registers all webhook instruments on meter.
func NewWebhookMetrics(meter metric.Meter) (*WebhookMetrics, error) {
	m := &WebhookMetrics{}
	var err error

	counters := []struct {
		target **Counter
		name   string
		desc   string
	}{
		{&m.received, "webhook_events_received_total", "Webhook deliveries received"},
		{&m.rejected, "webhook_events_rejected_total", "Webhook deliveries rejected at intake"},
		{&m.accepted, "webhook_events_accepted_total", "Webhook deliveries accepted and persisted"},
		{&m.duplicates, "webhook_events_duplicate_total", "Webhook deliveries dropped as redeliveries"},
		{&m.handled, "webhook_events_handled_total", "Handler executions by terminal status"},
		{&m.reclaimed, "webhook_events_reclaimed_total", "Stale processing events reclaimed"},
		{&m.requeued, "webhook_events_requeued_total", "Failed events requeued for retry"},
	}
	for _, c := range counters {
		*c.target, err = NewCounter(meter, c.name, c.desc, "{event}")
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
	}

	m.handlerDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "webhook_handler_duration_seconds",
		Description: "Runtime of domain handlers",
		Unit:        "s",
		Buckets:     HandlerDurationBuckets,
	})
	if err != nil {
		return nil, fmt.Errorf("create handler duration histogram: %w", err)
	}
	return m, nil
}

// EventReceived counts a delivery before any verification.
func (m *WebhookMetrics) EventReceived(ctx context.Context, sender webhook.Sender) {
	m.received.Inc(ctx, AttrSender.String(string(sender)))
}

// EventRejected counts an intake rejection by error class.
func (m *WebhookMetrics) EventRejected(ctx context.Context, sender webhook.Sender, class webhook.ErrorClass) {
	m.rejected.Inc(ctx, AttrSender.String(string(sender)), AttrReason.String(string(class)))
}

// EventAccepted counts a persisted event.
func (m *WebhookMetrics) EventAccepted(ctx context.Context, sender webhook.Sender, eventType webhook.EventType, priority webhook.Priority) {
	m.accepted.Inc(ctx,
		AttrSender.String(string(sender)),
		AttrEventType.String(string(eventType)),
		AttrPriority.String(string(priority)),
	)
}

// EventDuplicate counts a redelivery dropped by the delivery guard.
func (m *WebhookMetrics) EventDuplicate(ctx context.Context, sender webhook.Sender) {
	m.duplicates.Inc(ctx, AttrSender.String(string(sender)))
}

// HandlerFinished records one handler run.
func (m *WebhookMetrics) HandlerFinished(ctx context.Context, handler webhook.HandlerID, status webhook.Status, d time.Duration) {
	attrs := []attribute.KeyValue{
		AttrHandler.String(string(handler)),
		AttrStatus.String(string(status)),
	}
	m.handled.Inc(ctx, attrs...)
	m.handlerDuration.RecordDuration(ctx, d, attrs...)
}

// EventsReclaimed counts stale events returned to the queue.
func (m *WebhookMetrics) EventsReclaimed(ctx context.Context, n int) {
	if n > 0 {
		m.reclaimed.Add(ctx, int64(n))
	}
}

// EventsRequeued counts failed events scheduled for another attempt.
func (m *WebhookMetrics) EventsRequeued(ctx context.Context, n int) {
	if n > 0 {
		m.requeued.Add(ctx, int64(n))
	}
}
