// Command worker runs the background processor without the intake API:
// deferred events, stale claims and automatic retries. It exposes
// Prometheus metrics and health checks on telemetry.metrics_addr.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/bootstrap"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/handler"
)

var version = "dev"

const metricsNamespace = "webhook_gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, bootstrap.WithPrometheus(metricsNamespace))
	if err != nil {
		panic("Failed to initialize runtime: " + err.Error())
	}
	log := rt.Logger.Named("worker")

	processor := rt.NewProcessor()
	if err := processor.Start(ctx); err != nil {
		log.Error("Failed to start processor", zap.Error(err))
		_ = rt.Close(context.Background())
		os.Exit(1)
	}

	health := handler.NewHealthHandler(rt.DB, version)
	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.GET("/metrics", gin.WrapH(rt.Prometheus.Handler()))
	engine.GET("/health", health.Health)
	engine.GET("/ready", health.Ready)

	srv := &http.Server{
		Addr:              cfg.Telemetry.MetricsAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Metrics endpoint listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics endpoint failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down worker...")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := processor.Stop(shutdownCtx); err != nil {
		log.Error("Processor did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics endpoint forced to shutdown", zap.Error(err))
	}
	if err := rt.Close(shutdownCtx); err != nil {
		os.Exit(1)
	}
}
