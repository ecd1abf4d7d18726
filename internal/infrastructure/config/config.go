package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	HTTP          HTTPConfig
	Webhook       WebhookConfig
	Senders       map[webhook.Sender]SenderConfig
	Kafka         KafkaConfig
	Telemetry     TelemetryConfig
	Auth          AuthConfig
	Collaborators CollaboratorsConfig
	Storage       StorageConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
	SwaggerEnabled  bool // serve /swagger/*any
}

// WebhookConfig holds intake, scheduling and processing settings
type WebhookConfig struct {
	ReplayWindow   time.Duration
	HighDelay      time.Duration
	MediumDelay    time.Duration
	LowDelay       time.Duration
	MaxAttempts    int
	StaleThreshold time.Duration

	PollInterval    time.Duration
	ReclaimInterval time.Duration
	BatchSize       int
	Concurrency     int
	HandlerTimeout  time.Duration
	EmbeddedWorker  bool

	PersistRejected bool
	TaxonomyFile    string // empty = embedded default

	DedupeEnabled bool
	DedupeTTL     time.Duration

	RateLimitEnabled   bool
	RateLimitPerMinute int
}

// SenderConfig holds the credential and header names of one marketplace
type SenderConfig struct {
	Enabled         bool
	Secret          string
	SignatureHeader string
	EventHeader     string
	TimestampHeader string
}

// KafkaConfig holds the event stream settings
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	EventsTopic       string
	NotificationTopic string
	WriteTimeout      time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Bridge zap logs to the collector
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Prometheus scrape endpoint of the standalone worker
	MetricsAddr string
	// Continuous profiling (Pyroscope)
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// AuthConfig holds operator API authentication settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// CollaboratorsConfig holds the endpoints of the order, inventory,
// pricing, listing and notification services
type CollaboratorsConfig struct {
	BaseURL         string
	OrderURL        string
	InventoryURL    string
	PricingURL      string
	ListingURL      string
	NotificationURL string
	APIKey          string
	Timeout         time.Duration
}

// StorageConfig holds the S3-compatible object storage that archives raw
// payloads of accepted events
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
	Prefix       string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with WEBHOOK_ prefix (e.g., WEBHOOK_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("WEBHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
			SwaggerEnabled:  v.GetBool("http.swagger_enabled"),
		},
		Webhook: WebhookConfig{
			ReplayWindow:       v.GetDuration("webhook.replay_window"),
			HighDelay:          v.GetDuration("webhook.high_delay"),
			MediumDelay:        v.GetDuration("webhook.medium_delay"),
			LowDelay:           v.GetDuration("webhook.low_delay"),
			MaxAttempts:        v.GetInt("webhook.max_attempts"),
			StaleThreshold:     v.GetDuration("webhook.stale_threshold"),
			PollInterval:       v.GetDuration("webhook.poll_interval"),
			ReclaimInterval:    v.GetDuration("webhook.reclaim_interval"),
			BatchSize:          v.GetInt("webhook.batch_size"),
			Concurrency:        v.GetInt("webhook.concurrency"),
			HandlerTimeout:     v.GetDuration("webhook.handler_timeout"),
			EmbeddedWorker:     boolOr(v, "webhook.embedded_worker", true),
			PersistRejected:    v.GetBool("webhook.persist_rejected"),
			TaxonomyFile:       v.GetString("webhook.taxonomy_file"),
			DedupeEnabled:      boolOr(v, "webhook.dedupe_enabled", true),
			DedupeTTL:          v.GetDuration("webhook.dedupe_ttl"),
			RateLimitEnabled:   boolOr(v, "webhook.rate_limit_enabled", true),
			RateLimitPerMinute: v.GetInt("webhook.rate_limit_per_minute"),
		},
		Senders: make(map[webhook.Sender]SenderConfig, len(webhook.AllSenders())),
		Kafka: KafkaConfig{
			Enabled:           v.GetBool("kafka.enabled"),
			Brokers:           v.GetStringSlice("kafka.brokers"),
			EventsTopic:       v.GetString("kafka.events_topic"),
			NotificationTopic: v.GetString("kafka.notification_topic"),
			WriteTimeout:      v.GetDuration("kafka.write_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsAddr:       v.GetString("telemetry.metrics_addr"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeEndpoint: v.GetString("telemetry.pyroscope_endpoint"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
		},
		Collaborators: CollaboratorsConfig{
			BaseURL:         v.GetString("collaborators.base_url"),
			OrderURL:        v.GetString("collaborators.order_url"),
			InventoryURL:    v.GetString("collaborators.inventory_url"),
			PricingURL:      v.GetString("collaborators.pricing_url"),
			ListingURL:      v.GetString("collaborators.listing_url"),
			NotificationURL: v.GetString("collaborators.notification_url"),
			APIKey:          v.GetString("collaborators.api_key"),
			Timeout:         v.GetDuration("collaborators.timeout"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: boolOr(v, "storage.use_path_style", true),
			Prefix:       v.GetString("storage.prefix"),
		},
	}

	for _, s := range webhook.AllSenders() {
		prefix := "senders." + s.String() + "."
		cfg.Senders[s] = SenderConfig{
			Enabled:         boolOr(v, prefix+"enabled", true),
			Secret:          v.GetString(prefix + "secret"),
			SignatureHeader: v.GetString(prefix + "signature_header"),
			EventHeader:     v.GetString(prefix + "event_header"),
			TimestampHeader: v.GetString(prefix + "timestamp_header"),
		}
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// boolOr reads a bool that defaults to def when the key is absent.
func boolOr(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	return v.GetBool(key)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "webhook-gateway"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "webhooks"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1 MB
	}

	w := &cfg.Webhook
	if w.ReplayWindow == 0 {
		w.ReplayWindow = 300 * time.Second
	}
	if w.HighDelay == 0 {
		w.HighDelay = 60 * time.Second
	}
	if w.MediumDelay == 0 {
		w.MediumDelay = 300 * time.Second
	}
	if w.LowDelay == 0 {
		w.LowDelay = 1800 * time.Second
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = webhook.DefaultMaxAttempts
	}
	if w.StaleThreshold == 0 {
		w.StaleThreshold = 10 * time.Minute
	}
	if w.PollInterval == 0 {
		w.PollInterval = 5 * time.Second
	}
	if w.ReclaimInterval == 0 {
		w.ReclaimInterval = time.Minute
	}
	if w.BatchSize == 0 {
		w.BatchSize = 50
	}
	if w.Concurrency == 0 {
		w.Concurrency = 8
	}
	if w.HandlerTimeout == 0 {
		w.HandlerTimeout = 30 * time.Second
	}
	if w.DedupeTTL == 0 {
		w.DedupeTTL = 24 * time.Hour
	}
	if w.RateLimitPerMinute == 0 {
		w.RateLimitPerMinute = 100
	}

	for s, sc := range cfg.Senders {
		prefix := s.HeaderPrefix()
		if sc.SignatureHeader == "" {
			sc.SignatureHeader = prefix + "-Signature"
		}
		if sc.EventHeader == "" {
			sc.EventHeader = prefix + "-Event"
		}
		if sc.TimestampHeader == "" {
			sc.TimestampHeader = prefix + "-Timestamp"
		}
		cfg.Senders[s] = sc
	}

	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "webhook.events"
	}
	if cfg.Kafka.NotificationTopic == "" {
		cfg.Kafka.NotificationTopic = "webhook.notifications"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 && cfg.App.Env != "production" {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.MetricsAddr == "" {
		cfg.Telemetry.MetricsAddr = ":9090"
	}
	if cfg.Telemetry.PyroscopeEndpoint == "" {
		cfg.Telemetry.PyroscopeEndpoint = "http://localhost:4040"
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "webhook-payloads"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "raw"
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "meschain"
	}

	c := &cfg.Collaborators
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8000"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.OrderURL == "" {
		c.OrderURL = c.BaseURL
	}
	if c.InventoryURL == "" {
		c.InventoryURL = c.BaseURL
	}
	if c.PricingURL == "" {
		c.PricingURL = c.BaseURL
	}
	if c.ListingURL == "" {
		c.ListingURL = c.BaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be at least 1")
	}
	if c.Webhook.Concurrency < 1 {
		return fmt.Errorf("webhook.concurrency must be at least 1")
	}
	if c.Webhook.ReplayWindow < 0 {
		return fmt.Errorf("webhook.replay_window cannot be negative")
	}
	if c.Webhook.StaleThreshold <= c.Webhook.HandlerTimeout {
		return fmt.Errorf("webhook.stale_threshold (%s) must exceed webhook.handler_timeout (%s)",
			c.Webhook.StaleThreshold, c.Webhook.HandlerTimeout)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Storage.Enabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, s := range webhook.AllSenders() {
			if sc := c.Senders[s]; sc.Enabled && sc.Secret == "" {
				return fmt.Errorf("senders.%s.secret is required in production while the sender is enabled", s)
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
