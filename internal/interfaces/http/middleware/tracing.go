package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// Tracing starts an otelgin server span per request. Requests to untraced
// paths, such as health checks, get none.
func Tracing(serviceName string, enabled bool, untraced ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	skip := make(map[string]bool, len(untraced))
	for _, p := range untraced {
		skip[p] = true
	}
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool { return !skip[r.URL.Path] }),
	)
}

// AnnotateSpan adds the request id and sender to the server span and marks
// it failed for any 4xx or 5xx answer. Place it after RequestID and Tracing.
func AnnotateSpan() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		if id := GetRequestID(c); id != "" {
			span.SetAttributes(telemetry.SpanRequestID.String(id))
		}
		if sender := c.Param("sender"); sender != "" {
			span.SetAttributes(telemetry.SpanSender.String(sender))
		}

		c.Next()

		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
