package handler

import (
	"context"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	db        Pinger
	version   string
	startTime time.Time
	ready     atomic.Bool
	timeout   time.Duration
}

// NewHealthHandler creates a new HealthHandler. It reports ready until
// SetReady(false) is called during shutdown.
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	h := &HealthHandler{db: db, version: version, startTime: time.Now(), timeout: 2 * time.Second}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness check. The server clears it before draining
// so load balancers stop routing deliveries here.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status" example:"healthy"`
	Version   string            `json:"version" example:"1.0.0"`
	GoVersion string            `json:"go_version" example:"go1.25.5"`
	Uptime    string            `json:"uptime" example:"1h30m45s"`
	Checks    map[string]string `json:"checks"`
}

// Health godoc
//
//	@ID				getHealth
//	@Summary		Health check
//	@Description	Reports healthy when the database answers a ping
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    map[string]string{"database": "ok"},
	}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, resp)
}

// Ready godoc
//
//	@ID				getReady
//	@Summary		Readiness check
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	dto.Response
//	@Failure		503	{object}	dto.Response
//	@Router			/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Message: "shutting down"})
		return
	}
	c.JSON(http.StatusOK, dto.Response{Success: true, Message: "ready"})
}
