package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// ProfilingLabels labels CPU samples of the rest of the chain with the
// matched route so profiles split per endpoint. Unmatched requests stay
// unlabelled to bound cardinality.
func ProfilingLabels(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if !enabled || route == "" {
			c.Next()
			return
		}
		telemetry.Labeled(c.Request.Context(), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}, telemetry.LabelRoute, c.Request.Method+" "+route)
	}
}
