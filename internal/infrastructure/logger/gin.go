package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLog writes one entry per request and puts a request-scoped logger
// on the request context for FromContext. The level follows the status:
// 5xx error, 4xx warn, anything else info. Requests to quiet paths, such as
// health checks, are logged at debug unless they fail.
func AccessLog(base *zap.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		// Set by middleware.RequestID.
		requestID := c.GetString("request_id")
		reqLog := base.With(
			zap.String("request_id", requestID),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		)
		if sender := c.Param("sender"); sender != "" {
			reqLog = reqLog.With(zap.String("sender", sender))
		}
		ctx := req.Context()
		if requestID != "" {
			ctx = context.WithValue(ctx, RequestIDKey, requestID)
		}
		c.Request = req.WithContext(WithContext(ctx, reqLog))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int64("bytes_in", req.ContentLength),
			zap.Int("bytes_out", c.Writer.Size()),
		}
		if q := req.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if ua := req.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		case skip[req.URL.Path]:
			level = zapcore.DebugLevel
		}
		if ce := reqLog.Check(level, "HTTP request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 with the standard error body
// and logs it with the stack.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log, ok := c.Request.Context().Value(LoggerKey).(*zap.Logger)
			if !ok {
				log = base
			}
			if log == nil {
				log = zap.NewNop()
			}
			log.Error("Panic recovered",
				zap.String("route", c.FullPath()),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "internal server error",
			})
		}()
		c.Next()
	}
}
