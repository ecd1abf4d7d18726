package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func findEntry(t *testing.T, logs *observer.ObservedLogs, msg string) observer.LoggedEntry {
	t.Helper()
	entries := logs.FilterMessage(msg).All()
	require.NotEmpty(t, entries, "expected a %q entry", msg)
	return entries[0]
}

func TestAccessLog(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"success logs info", http.StatusOK, zapcore.InfoLevel},
		{"client error logs warn", http.StatusUnauthorized, zapcore.WarnLevel},
		{"server error logs error", http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.InfoLevel)
			router := gin.New()
			router.Use(func(c *gin.Context) {
				c.Set("request_id", "req-123")
				c.Next()
			})
			router.Use(AccessLog(zap.New(core)))
			router.POST("/api/v1/webhooks/:sender", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/trendyol?x=1", nil)
			router.ServeHTTP(w, req)

			entry := findEntry(t, recorded, "HTTP request")
			assert.Equal(t, tt.level, entry.Level)
			m := entry.ContextMap()
			assert.Equal(t, "req-123", m["request_id"])
			assert.Equal(t, "trendyol", m["sender"])
			assert.Equal(t, "x=1", m["query"])
			assert.EqualValues(t, tt.status, m["status"])
		})
	}
}

func TestAccessLog_AttachesLoggerToRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-ctx")
		c.Next()
	})
	router.Use(AccessLog(zap.New(core)))
	router.GET("/x", func(c *gin.Context) {
		assert.Equal(t, "req-ctx", RequestID(c.Request.Context()))
		FromContext(c.Request.Context()).Info("from handler")
		c.Status(http.StatusNoContent)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	entry := findEntry(t, recorded, "from handler")
	assert.Equal(t, "req-ctx", entry.ContextMap()["request_id"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("handler exploded")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	findEntry(t, recorded, "Panic recovered")
}

func TestAccessLog_QuietPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(AccessLog(zap.New(core), "/health", "/ready"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ready", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

	entries := recorded.FilterMessage("HTTP request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level, "failing health checks are not quieted")
}

func TestRecovery_UsesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base, baseLogs := observer.New(zapcore.ErrorLevel)
	reqCore, reqLogs := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), zap.New(reqCore).With(zap.String("request_id", "req-p"))))
		c.Next()
	})
	router.Use(Recovery(zap.New(base)))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Zero(t, baseLogs.Len())
	entry := findEntry(t, reqLogs, "Panic recovered")
	assert.Equal(t, "req-p", entry.ContextMap()["request_id"])
	assert.Equal(t, "/panic", entry.ContextMap()["route"])
}
