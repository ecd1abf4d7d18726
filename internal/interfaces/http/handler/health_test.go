package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthRouter(h *HealthHandler) *gin.Engine {
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	return router
}

func TestHealthHandler_Healthy(t *testing.T) {
	h := NewHealthHandler(pingFunc(func(context.Context) error { return nil }), "1.2.3")

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "ok", resp.Checks["database"])
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("connection refused") }), "1.2.3")

	w := httptest.NewRecorder()
	healthRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["database"])
}

func TestHealthHandler_Ready(t *testing.T) {
	h := NewHealthHandler(nil, "dev")
	router := healthRouter(h)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.SetReady(false)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
