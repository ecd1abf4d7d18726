package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// Factory creates the delivery guard and rate limiter from configuration.
// Both share one Redis client when Redis is enabled and reachable.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	dialTimeout           time.Duration

	client *redis.Client
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory
// implementations when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// WithDialTimeout bounds the initial Redis PING.
func WithDialTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.dialTimeout = d
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		dialTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// redisClient connects lazily and caches the client for later calls.
func (f *Factory) redisClient(ctx context.Context) (*redis.Client, error) {
	if f.client != nil {
		return f.client, nil
	}
	client, err := NewRedisClient(ctx, RedisConfig{
		Addr:        f.redisConfig.Addr(),
		Password:    f.redisConfig.Password,
		DB:          f.redisConfig.DB,
		DialTimeout: f.dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

func (f *Factory) fallback(component string, err error) error {
	if !f.allowInMemoryFallback {
		return fmt.Errorf("Redis required for %s but unavailable: %w", component, err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory "+component+". "+
		"State is not shared across gateway instances.",
		zap.Error(err),
	)
	return nil
}

// CreateDeliveryGuard returns a Redis guard when Redis is enabled and
// reachable, an in-memory guard otherwise.
func (f *Factory) CreateDeliveryGuard(ctx context.Context) (shared.DeliveryGuard, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory delivery guard")
		return NewInMemoryDeliveryGuard(), nil
	}
	client, err := f.redisClient(ctx)
	if err != nil {
		if ferr := f.fallback("delivery guard", err); ferr != nil {
			return nil, ferr
		}
		return NewInMemoryDeliveryGuard(), nil
	}
	f.logger.Info("using Redis delivery guard", zap.String("addr", f.redisConfig.Addr()))
	return NewRedisDeliveryGuard(client, DeliveryKeyPrefix), nil
}

// CreateRateLimiter returns a limiter allowing perMinute requests per key.
func (f *Factory) CreateRateLimiter(ctx context.Context, perMinute int) (shared.RateLimiter, error) {
	if !f.redisConfig.Enabled {
		return NewInMemoryRateLimiter(perMinute, time.Minute), nil
	}
	client, err := f.redisClient(ctx)
	if err != nil {
		if ferr := f.fallback("rate limiter", err); ferr != nil {
			return nil, ferr
		}
		return NewInMemoryRateLimiter(perMinute, time.Minute), nil
	}
	return NewRedisRateLimiter(client, perMinute, time.Minute), nil
}
