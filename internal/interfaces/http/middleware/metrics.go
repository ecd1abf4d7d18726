package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// Marketplace payloads rarely exceed a few hundred kilobytes.
var bodySizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576}

type serverInstruments struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	bodySize *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newServerInstruments(meter metric.Meter) (serverInstruments, error) {
	var (
		si  serverInstruments
		err error
	)
	if si.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"HTTP requests by route, status and sender", "{request}"); err != nil {
		return si, err
	}
	if si.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name: "http_server_request_duration_seconds", Description: "HTTP request latency",
		Unit: "s", Buckets: telemetry.HTTPDurationBuckets,
	}); err != nil {
		return si, err
	}
	if si.bodySize, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name: "http_server_request_size_bytes", Description: "HTTP request body size",
		Unit: "By", Buckets: bodySizeBuckets,
	}); err != nil {
		return si, err
	}
	si.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests being served"), metric.WithUnit("{request}"))
	return si, err
}

// HTTPMetrics counts requests and records latency and body size per route
// pattern. Only known senders become a label so probing with made-up
// sender names cannot grow the series count. A nil meter, or one that
// refuses the instruments, disables collection.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	var si serverInstruments
	enabled := false
	if meter != nil {
		var err error
		si, err = newServerInstruments(meter)
		enabled = err == nil
	}

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		began := time.Now()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		base := []attribute.KeyValue{
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
		}
		si.inFlight.Add(ctx, 1, metric.WithAttributes(base...))
		defer si.inFlight.Add(ctx, -1, metric.WithAttributes(base...))

		c.Next()

		si.latency.RecordDuration(ctx, time.Since(began), base...)
		if n := c.Request.ContentLength; n > 0 {
			si.bodySize.Record(ctx, float64(n), base...)
		}
		labels := append(base[:len(base):len(base)], attribute.String("status_code", strconv.Itoa(c.Writer.Status())))
		if s, err := webhook.ParseSender(c.Param("sender")); err == nil {
			labels = append(labels, attribute.String("sender", s.String()))
		}
		si.requests.Inc(ctx, labels...)
	}
}
