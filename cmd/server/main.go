package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/bootstrap"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/handler"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Marketplace Webhook Gateway API
//	@version		1.0
//	@description	Receives, verifies and dispatches marketplace webhooks.

//	@contact.name	MesChain Platform Team
//	@contact.url	https://github.com/meschain/webhook-gateway

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		panic("Failed to initialize runtime: " + err.Error())
	}
	log := rt.Logger

	log.Info("Starting webhook gateway",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.Bool("embedded_worker", cfg.Webhook.EmbeddedWorker),
	)

	if err := run(ctx, rt); err != nil {
		log.Error("Gateway stopped with error", zap.Error(err))
		_ = rt.Close(context.Background())
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}

func run(ctx context.Context, rt *bootstrap.Runtime) error {
	cfg := rt.Config
	log := rt.Logger

	ingest, err := rt.NewIngestService(ctx)
	if err != nil {
		return err
	}

	health := handler.NewHealthHandler(rt.DB, version)
	engineCfg := router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		Logger:           log,
		Meter:            rt.Meter,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		SwaggerEnabled:   cfg.HTTP.SwaggerEnabled,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
	}
	handlers := router.Handlers{
		Webhook: handler.NewWebhookHandler(ingest, cfg.HTTP.MaxBodySize),
		Health:  health,
	}

	tokens, err := rt.NewTokenService()
	if err != nil {
		return err
	}
	if tokens != nil {
		engineCfg.Tokens = tokens
		handlers.Admin = handler.NewAdminHandler(rt.NewAdminService())
	}

	engine, err := router.NewEngine(engineCfg, handlers)
	if err != nil {
		return err
	}

	var processor *appwebhook.Processor
	if cfg.Webhook.EmbeddedWorker {
		processor = rt.NewProcessor()
		if err := processor.Start(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info("Shutting down server...")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if processor != nil {
		if err := processor.Stop(shutdownCtx); err != nil {
			log.Error("Processor did not stop in time", zap.Error(err))
		}
	}
	return rt.Close(shutdownCtx)
}
