package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// PrometheusMetrics exposes the ingestion pipeline on a private registry
// scraped from the worker's /metrics endpoint.
type PrometheusMetrics struct {
	registry        *prometheus.Registry
	received        *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	accepted        *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	handled         *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	reclaimed       prometheus.Counter
	requeued        prometheus.Counter
}

// NewPrometheusMetrics creates the collectors under namespace and registers
// them along with the Go runtime and process collectors.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "webhook"
	}
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Webhook deliveries received.",
		}, []string{"sender"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Webhook deliveries rejected at intake.",
		}, []string{"sender", "reason"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Webhook deliveries accepted and persisted.",
		}, []string{"sender", "event_type", "priority"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_duplicate_total",
			Help:      "Webhook deliveries dropped as redeliveries.",
		}, []string{"sender"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Handler executions by terminal status.",
		}, []string{"handler", "status"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Runtime of domain handlers.",
			Buckets:   HandlerDurationBuckets,
		}, []string{"handler"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_reclaimed_total",
			Help:      "Stale processing events reclaimed.",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_requeued_total",
			Help:      "Failed events requeued for retry.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.received, m.rejected, m.accepted, m.duplicates,
		m.handled, m.handlerDuration, m.reclaimed, m.requeued,
	)
	return m
}

// Registry returns the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBStats exports the connection pool statistics of db labelled
// with dbName.
func (m *PrometheusMetrics) RegisterDBStats(db *sql.DB, dbName string) error {
	if err := m.registry.Register(collectors.NewDBStatsCollector(db, dbName)); err != nil {
		return fmt.Errorf("register db stats: %w", err)
	}
	return nil
}

// Handler serves the registry in the OpenMetrics exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *PrometheusMetrics) EventReceived(_ context.Context, sender webhook.Sender) {
	m.received.WithLabelValues(string(sender)).Inc()
}

func (m *PrometheusMetrics) EventRejected(_ context.Context, sender webhook.Sender, class webhook.ErrorClass) {
	m.rejected.WithLabelValues(string(sender), string(class)).Inc()
}

func (m *PrometheusMetrics) EventAccepted(_ context.Context, sender webhook.Sender, eventType webhook.EventType, priority webhook.Priority) {
	m.accepted.WithLabelValues(string(sender), string(eventType), string(priority)).Inc()
}

func (m *PrometheusMetrics) EventDuplicate(_ context.Context, sender webhook.Sender) {
	m.duplicates.WithLabelValues(string(sender)).Inc()
}

func (m *PrometheusMetrics) HandlerFinished(_ context.Context, handler webhook.HandlerID, status webhook.Status, d time.Duration) {
	m.handled.WithLabelValues(string(handler), string(status)).Inc()
	m.handlerDuration.WithLabelValues(string(handler)).Observe(d.Seconds())
}

func (m *PrometheusMetrics) EventsReclaimed(_ context.Context, n int) {
	if n > 0 {
		m.reclaimed.Add(float64(n))
	}
}

func (m *PrometheusMetrics) EventsRequeued(_ context.Context, n int) {
	if n > 0 {
		m.requeued.Add(float64(n))
	}
}

// =============================================================================
// Recorder fan-out
// =============================================================================

// PipelineRecorder is the method set shared by WebhookMetrics and PrometheusMetrics.
type PipelineRecorder interface {
	EventReceived(ctx context.Context, sender webhook.Sender)
	EventRejected(ctx context.Context, sender webhook.Sender, class webhook.ErrorClass)
	EventAccepted(ctx context.Context, sender webhook.Sender, eventType webhook.EventType, priority webhook.Priority)
	EventDuplicate(ctx context.Context, sender webhook.Sender)
	HandlerFinished(ctx context.Context, handler webhook.HandlerID, status webhook.Status, d time.Duration)
	EventsReclaimed(ctx context.Context, n int)
	EventsRequeued(ctx context.Context, n int)
}

type teeRecorder []PipelineRecorder

// Tee returns a recorder forwarding every call to each non-nil recorder.
func Tee(recorders ...PipelineRecorder) PipelineRecorder {
	out := make(teeRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (t teeRecorder) EventReceived(ctx context.Context, sender webhook.Sender) {
	for _, r := range t {
		r.EventReceived(ctx, sender)
	}
}

func (t teeRecorder) EventRejected(ctx context.Context, sender webhook.Sender, class webhook.ErrorClass) {
	for _, r := range t {
		r.EventRejected(ctx, sender, class)
	}
}

func (t teeRecorder) EventAccepted(ctx context.Context, sender webhook.Sender, eventType webhook.EventType, priority webhook.Priority) {
	for _, r := range t {
		r.EventAccepted(ctx, sender, eventType, priority)
	}
}

func (t teeRecorder) EventDuplicate(ctx context.Context, sender webhook.Sender) {
	for _, r := range t {
		r.EventDuplicate(ctx, sender)
	}
}

func (t teeRecorder) HandlerFinished(ctx context.Context, handler webhook.HandlerID, status webhook.Status, d time.Duration) {
	for _, r := range t {
		r.HandlerFinished(ctx, handler, status, d)
	}
}

func (t teeRecorder) EventsReclaimed(ctx context.Context, n int) {
	for _, r := range t {
		r.EventsReclaimed(ctx, n)
	}
}

func (t teeRecorder) EventsRequeued(ctx context.Context, n int) {
	for _, r := range t {
		r.EventsRequeued(ctx, n)
	}
}
