// Package bootstrap builds the runtime shared by the gateway binaries: the
// logger, telemetry providers, database, event store and dispatch table.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/auth"
	"github.com/meschain/webhook-gateway/internal/infrastructure/cache"
	"github.com/meschain/webhook-gateway/internal/infrastructure/collaborator"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/infrastructure/marketplace"
	"github.com/meschain/webhook-gateway/internal/infrastructure/messaging"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence"
	"github.com/meschain/webhook-gateway/internal/infrastructure/storage"
	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// MeterName is the instrumentation scope of the pipeline metrics.
const MeterName = "github.com/meschain/webhook-gateway"

// Postgres often starts alongside the gateway in compose setups.
const (
	dbConnectAttempts = 5
	dbConnectDelay    = 2 * time.Second
)

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// Runtime owns every long-lived resource of a gateway process. Close
// releases them in reverse order of acquisition.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *persistence.Database
	Store      *persistence.GormWebhookEventRepository
	Restocks   *persistence.GormRestockLedger
	Taxonomy   *webhook.Taxonomy
	Aliases    *webhook.AliasRegistry
	Meter      metric.Meter
	Metrics    appwebhook.Metrics
	Dispatcher *appwebhook.Dispatcher

	// Prometheus is set only when requested with WithPrometheus.
	Prometheus *telemetry.PrometheusMetrics

	providers    *telemetry.Providers
	cacheFactory *cache.Factory
	closers      []closer
}

type options struct {
	db          *gorm.DB
	logger      *zap.Logger
	promNS      string
	collaborate *appwebhook.Collaborators
}

// Option customizes New
type Option func(*options)

// WithDatabase uses an already opened handle instead of dialing Postgres.
// The caller keeps ownership of the handle.
func WithDatabase(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithLogger replaces the configured logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPrometheus additionally records pipeline metrics in a Prometheus
// registry under namespace.
func WithPrometheus(namespace string) Option {
	return func(o *options) { o.promNS = namespace }
}

// WithCollaborators replaces the HTTP clients of the downstream services.
func WithCollaborators(c appwebhook.Collaborators) Option {
	return func(o *options) { o.collaborate = &c }
}

// New builds the runtime. On error every resource acquired so far is
// released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{Config: cfg}
	if err := rt.init(ctx, o); err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) init(ctx context.Context, o options) error {
	if err := rt.initLogging(ctx, o.logger); err != nil {
		return err
	}
	if err := rt.initTelemetry(ctx); err != nil {
		return err
	}
	if err := rt.initDatabase(ctx, o.db); err != nil {
		return err
	}

	var err error
	rt.Taxonomy, rt.Aliases, err = config.LoadTaxonomy(rt.Config.Webhook.TaxonomyFile, webhook.AllHandlerIDs())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	rt.Logger.Info("Event taxonomy loaded", zap.Int("event_types", len(rt.Taxonomy.Descriptors())))

	if err := rt.initMetrics(o.promNS); err != nil {
		return err
	}
	if err := rt.initDispatcher(o.collaborate); err != nil {
		return err
	}
	rt.cacheFactory = cache.NewFactory(rt.Config.Redis, cache.WithLogger(rt.Logger))
	return nil
}

// initLogging sets up the OTLP providers before the logger so the logger
// can tee into the log pipeline. Providers report through the logger
// once it exists.
func (rt *Runtime) initLogging(ctx context.Context, override *zap.Logger) error {
	cfg := rt.Config
	tc := cfg.Telemetry

	providers, err := telemetry.Setup(ctx, telemetry.ExportConfig{
		Traces:            tc.Enabled,
		Metrics:           tc.Enabled,
		Logs:              tc.Enabled && tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		Insecure:          tc.Insecure,
		ServiceName:       tc.ServiceName,
		Environment:       cfg.App.Env,
		SamplingRatio:     tc.SamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	rt.providers = providers
	rt.addCloser("telemetry", providers.Shutdown)

	if override != nil {
		rt.Logger = override
	} else {
		log, err := logger.New(&logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, providers.ZapCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			return fmt.Errorf("bootstrap: logger: %w", err)
		}
		rt.Logger = log
	}
	if signals := providers.Signals(); len(signals) > 0 {
		rt.Logger.Info("Telemetry export enabled",
			zap.Strings("signals", signals),
			zap.String("collector_endpoint", tc.CollectorEndpoint),
			zap.Float64("sampling_ratio", tc.SamplingRatio),
		)
	}
	return nil
}

func (rt *Runtime) initTelemetry(context.Context) error {
	tc := rt.Config.Telemetry
	rt.Meter = rt.providers.Meter(MeterName)

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.PyroscopeEndpoint,
		ApplicationName: tc.ServiceName,
		Tags:            map[string]string{"env": rt.Config.App.Env},
	}, rt.Logger)
	if err != nil {
		return fmt.Errorf("bootstrap: profiler: %w", err)
	}
	rt.addCloser("profiler", func(context.Context) error { return profiler.Stop() })
	if profiler.Running() && rt.providers.EnableSpanProfiles() {
		rt.Logger.Info("Span profiles enabled")
	}
	return nil
}

func (rt *Runtime) initDatabase(ctx context.Context, handle *gorm.DB) error {
	cfg := rt.Config
	if handle != nil {
		rt.DB = persistence.NewDatabaseFromGorm(handle)
	} else {
		gormLog := logger.NewGormLogger(rt.Logger, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
			logger.WithPlaceholders(cfg.App.Env == "production"))
		db, err := persistence.NewDatabase(ctx, &cfg.Database,
			persistence.WithGormLogger(gormLog),
			persistence.WithConnectRetry(dbConnectAttempts, dbConnectDelay))
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		rt.DB = db
		rt.addCloser("database", func(context.Context) error { return db.Close() })
		rt.Logger.Info("Database connected", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
	}

	dbName := cfg.Database.DBName
	if dbName == "" {
		dbName = "postgresql"
	}
	if err := telemetry.InstrumentStore(rt.DB.DB, telemetry.StoreTracing{
		Enabled:       cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		WithVariables: cfg.Telemetry.DBLogFullSQL,
		SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
		DBName:        dbName,
	}, rt.Logger); err != nil {
		return fmt.Errorf("bootstrap: store tracing: %w", err)
	}

	rt.Store = persistence.NewGormWebhookEventRepository(rt.DB.DB, persistence.WithMaxAttempts(cfg.Webhook.MaxAttempts))
	rt.Restocks = persistence.NewGormRestockLedger(rt.DB.DB)
	return nil
}

func (rt *Runtime) initMetrics(promNamespace string) error {
	otelMetrics, err := telemetry.NewWebhookMetrics(rt.Meter)
	if err != nil {
		return fmt.Errorf("bootstrap: metrics: %w", err)
	}
	if promNamespace == "" {
		rt.Metrics = otelMetrics
		return nil
	}
	rt.Prometheus = telemetry.NewPrometheusMetrics(promNamespace)
	if pool := rt.DB.SQL(); pool != nil {
		if err := rt.Prometheus.RegisterDBStats(pool, rt.Config.Database.DBName); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	rt.Metrics = telemetry.Tee(otelMetrics, rt.Prometheus)
	return nil
}

func (rt *Runtime) initDispatcher(override *appwebhook.Collaborators) error {
	cfg := rt.Config

	var collaborators appwebhook.Collaborators
	if override != nil {
		collaborators = *override
	} else {
		services, err := collaborator.NewServices(cfg.Collaborators)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		collaborators = appwebhook.Collaborators{
			Orders:        services.Orders,
			Inventory:     services.Inventory,
			Pricing:       services.Pricing,
			Listings:      services.Listings,
			Notifications: services.Notifications,
		}
	}

	dispatchOpts := []appwebhook.DispatcherOption{
		appwebhook.WithDispatchMetrics(rt.Metrics),
		appwebhook.WithHandlerTimeout(cfg.Webhook.HandlerTimeout),
	}
	if cfg.Kafka.Enabled {
		notifier := messaging.NewKafkaNotifier(messaging.NewWriter(cfg.Kafka, cfg.Kafka.NotificationTopic))
		rt.addCloser("kafka notifier", func(context.Context) error { return notifier.Close() })
		collaborators.Notifications = notifier

		publisher := messaging.NewEventPublisher(messaging.NewWriter(cfg.Kafka, cfg.Kafka.EventsTopic), rt.Logger)
		rt.addCloser("kafka publisher", func(context.Context) error { return publisher.Close() })
		dispatchOpts = append(dispatchOpts, appwebhook.WithPublisher(publisher))

		rt.Logger.Info("Kafka enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("events_topic", cfg.Kafka.EventsTopic),
			zap.String("notification_topic", cfg.Kafka.NotificationTopic),
		)
	}

	handlers, err := appwebhook.NewHandlers(collaborators, rt.Store, rt.Restocks, rt.Logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	rt.Dispatcher, err = appwebhook.NewDispatcher(handlers, rt.Taxonomy, rt.Store, rt.Logger, dispatchOpts...)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}

// Credentials maps the sender configuration onto verifier credentials.
func (rt *Runtime) Credentials() marketplace.Credentials {
	creds := make(marketplace.Credentials, len(rt.Config.Senders))
	for s, sc := range rt.Config.Senders {
		cred := marketplace.DefaultCredential(s)
		cred.Enabled = sc.Enabled
		cred.Secret = sc.Secret
		if sc.SignatureHeader != "" {
			cred.SignatureHeader = sc.SignatureHeader
		}
		if sc.EventHeader != "" {
			cred.EventHeader = sc.EventHeader
		}
		if sc.TimestampHeader != "" {
			cred.TimestampHeader = sc.TimestampHeader
		}
		if cred.Enabled && cred.Secret == "" {
			rt.Logger.Warn("Sender enabled without a secret, every delivery will fail verification",
				zap.String("sender", s.String()))
		}
		creds[s] = cred
	}
	return creds
}

// NewIngestService wires the intake pipeline: adapters, scheduler, delivery
// guard, rate limiter and the optional payload archive.
func (rt *Runtime) NewIngestService(ctx context.Context) (*appwebhook.IngestService, error) {
	cfg := rt.Config
	svcCfg := appwebhook.IngestServiceConfig{
		Adapters: marketplace.NewDefaultRegistry(rt.Credentials(), rt.Aliases, marketplace.RegistryOptions{
			ReplayWindow: cfg.Webhook.ReplayWindow,
		}),
		Taxonomy: rt.Taxonomy,
		Store:    rt.Store,
		Scheduler: appwebhook.NewScheduler(appwebhook.SchedulerConfig{
			HighDelay:   cfg.Webhook.HighDelay,
			MediumDelay: cfg.Webhook.MediumDelay,
			LowDelay:    cfg.Webhook.LowDelay,
		}),
		Dispatcher: rt.Dispatcher,
		Metrics:    rt.Metrics,
		Logger:     rt.Logger,
		Config: appwebhook.IngestConfig{
			PersistRejected: cfg.Webhook.PersistRejected,
			DedupeEnabled:   cfg.Webhook.DedupeEnabled,
			DedupeTTL:       cfg.Webhook.DedupeTTL,
		},
	}

	if cfg.Webhook.DedupeEnabled {
		guard, err := rt.cacheFactory.CreateDeliveryGuard(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: delivery guard: %w", err)
		}
		rt.addCloser("delivery guard", func(context.Context) error { return guard.Close() })
		svcCfg.Guard = guard
	}
	if cfg.Webhook.RateLimitEnabled {
		limiter, err := rt.cacheFactory.CreateRateLimiter(ctx, cfg.Webhook.RateLimitPerMinute)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: rate limiter: %w", err)
		}
		svcCfg.Limiter = limiter
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3PayloadArchive(&cfg.Storage, storage.WithLogger(rt.Logger))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.Logger.Info("Payload archive enabled", zap.String("bucket", archive.Bucket()))
		svcCfg.Archive = archive
	}

	return appwebhook.NewIngestService(svcCfg)
}

// NewProcessor builds the background processor of deferred and failed
// events.
func (rt *Runtime) NewProcessor() *appwebhook.Processor {
	w := rt.Config.Webhook
	return appwebhook.NewProcessor(rt.Store, rt.Dispatcher, appwebhook.ProcessorConfig{
		BatchSize:       w.BatchSize,
		Concurrency:     w.Concurrency,
		PollInterval:    w.PollInterval,
		ReclaimInterval: w.ReclaimInterval,
		StaleThreshold:  w.StaleThreshold,
		MaxAttempts:     w.MaxAttempts,
	}, rt.Logger, appwebhook.WithProcessorMetrics(rt.Metrics))
}

// NewAdminService builds the operator query and retry service.
func (rt *Runtime) NewAdminService() *appwebhook.AdminService {
	return appwebhook.NewAdminService(rt.Store, rt.Config.Webhook.MaxAttempts, rt.Logger)
}

// NewTokenService returns the operator token verifier, or nil when no JWT
// secret is configured and the operator API stays disabled.
func (rt *Runtime) NewTokenService() (*auth.TokenService, error) {
	if rt.Config.Auth.JWTSecret == "" {
		rt.Logger.Warn("auth.jwt_secret is empty, operator API disabled")
		return nil, nil
	}
	return auth.NewTokenService(rt.Config.Auth)
}

func (rt *Runtime) addCloser(name string, fn func(ctx context.Context) error) {
	rt.closers = append(rt.closers, closer{name: name, close: fn})
}

// Close releases resources in reverse order and flushes the logger. All
// closers run; the errors are joined.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			if rt.Logger != nil {
				rt.Logger.Error("Failed to close resource", zap.String("resource", c.name), zap.Error(err))
			}
		}
	}
	rt.closers = nil
	if rt.Logger != nil {
		_ = logger.Sync(rt.Logger)
	}
	return errors.Join(errs...)
}
