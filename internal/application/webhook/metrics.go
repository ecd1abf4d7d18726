// Package webhook runs the intake and processing pipeline: scheduling,
// dispatch to the domain handlers, the background processor and the
// operator queries over the event log.
package webhook

import (
	"context"
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Metrics receives pipeline counters. Both the OTel and the Prometheus
// recorders in the telemetry package satisfy it.
type Metrics interface {
	EventReceived(ctx context.Context, sender webhook.Sender)
	EventRejected(ctx context.Context, sender webhook.Sender, class webhook.ErrorClass)
	EventAccepted(ctx context.Context, sender webhook.Sender, eventType webhook.EventType, priority webhook.Priority)
	EventDuplicate(ctx context.Context, sender webhook.Sender)
	HandlerFinished(ctx context.Context, handler webhook.HandlerID, status webhook.Status, d time.Duration)
	EventsReclaimed(ctx context.Context, n int)
	EventsRequeued(ctx context.Context, n int)
}

type nopMetrics struct{}

func (nopMetrics) EventReceived(context.Context, webhook.Sender)                      {}
func (nopMetrics) EventRejected(context.Context, webhook.Sender, webhook.ErrorClass) {}
func (nopMetrics) EventAccepted(context.Context, webhook.Sender, webhook.EventType, webhook.Priority) {
}
func (nopMetrics) EventDuplicate(context.Context, webhook.Sender) {}
func (nopMetrics) HandlerFinished(context.Context, webhook.HandlerID, webhook.Status, time.Duration) {
}
func (nopMetrics) EventsReclaimed(context.Context, int) {}
func (nopMetrics) EventsRequeued(context.Context, int)  {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
