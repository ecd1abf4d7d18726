package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	_ "github.com/meschain/webhook-gateway/docs"
	"github.com/meschain/webhook-gateway/internal/infrastructure/auth"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/handler"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/middleware"
)

// Handlers are the endpoint groups served by the engine
type Handlers struct {
	Webhook *handler.WebhookHandler
	// Admin is optional; the operator API is not mounted without it.
	Admin  *handler.AdminHandler
	Health *handler.HealthHandler
}

// EngineConfig configures the middleware chain
type EngineConfig struct {
	ServiceName      string
	Logger           *zap.Logger
	Meter            metric.Meter
	Tokens           middleware.TokenVerifier
	TracingEnabled   bool
	ProfilingEnabled bool
	SwaggerEnabled   bool
	MaxBodySize      int64
	TrustedProxies   []string
}

// NewEngine builds the gin engine: global middleware, health checks, the intake
// endpoint and, when a token verifier is configured, the operator API.
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	if h.Webhook == nil || h.Health == nil {
		return nil, fmt.Errorf("router: webhook and health handlers are required")
	}
	if h.Admin != nil && cfg.Tokens == nil {
		return nil, fmt.Errorf("router: the operator API requires a token verifier")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("router: trusted proxies: %w", err)
	}

	// Order matters: the request ID feeds the logger and the span, the span
	// must exist before it is enriched or marked.
	engine.Use(
		middleware.RequestID(),
		logger.AccessLog(cfg.Logger, "/health", "/ready"),
		logger.Recovery(cfg.Logger),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled, "/health", "/ready"),
		middleware.AnnotateSpan(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.ProfilingLabels(cfg.ProfilingEnabled),
		middleware.Secure(),
	)

	engine.GET("/health", h.Health.Health)
	engine.GET("/ready", h.Health.Ready)
	if cfg.SwaggerEnabled {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	groups := []routeGroup{{
		prefix: "/webhooks",
		use:    []gin.HandlerFunc{middleware.BodyLimit(bodyLimit(cfg.MaxBodySize))},
		routes: []route{post("/:sender", "", h.Webhook.Receive)},
	}}
	if h.Admin != nil {
		groups = append(groups, routeGroup{
			prefix: "/admin",
			use:    []gin.HandlerFunc{middleware.JWTAuth(middleware.JWTMiddlewareConfig{Verifier: cfg.Tokens, Logger: cfg.Logger})},
			routes: []route{
				get("/events", auth.RoleViewer, h.Admin.ListEvents),
				get("/events/:id", auth.RoleViewer, h.Admin.GetEvent),
				get("/stats", auth.RoleViewer, h.Admin.Stats),
				post("/events/:id/retry", auth.RoleOperator, h.Admin.RetryEvent),
			},
		})
	}
	mountAll(engine, groups...)
	return engine, nil
}

func bodyLimit(n int64) int64 {
	if n <= 0 {
		return handler.DefaultMaxPayloadSize
	}
	return n
}
