package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
)

// Default key prefixes.
const (
	DeliveryKeyPrefix  = "webhook:delivery:"
	RateLimitKeyPrefix = "webhook:ratelimit:"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// NewRedisClient opens a client and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisDeliveryGuard implements shared.DeliveryGuard using Redis. Every
// gateway instance sharing the Redis database sees the same claims.
type RedisDeliveryGuard struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisDeliveryGuard creates a guard with an existing Redis client
func NewRedisDeliveryGuard(client redis.UniversalClient, keyPrefix string) *RedisDeliveryGuard {
	if keyPrefix == "" {
		keyPrefix = DeliveryKeyPrefix
	}
	return &RedisDeliveryGuard{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Claim records key for ttl using SET NX.
// Returns true if the key was newly claimed, false if it is already held
func (g *RedisDeliveryGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return ok, nil
}

// Release deletes key
func (g *RedisDeliveryGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release delivery: %w", err)
	}
	return nil
}

// Seen checks if key is currently held
func (g *RedisDeliveryGuard) Seen(ctx context.Context, key string) (bool, error) {
	exists, err := g.client.Exists(ctx, g.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return exists > 0, nil
}

// Close closes the Redis client
func (g *RedisDeliveryGuard) Close() error {
	return g.client.Close()
}

// Ensure RedisDeliveryGuard implements DeliveryGuard
var _ shared.DeliveryGuard = (*RedisDeliveryGuard)(nil)

// =============================================================================
// Rate limiting
// =============================================================================

// RedisRateLimiter implements shared.RateLimiter with one INCR counter per
// key and window, expired by Redis after the window ends.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	period    time.Duration
	now       func() time.Time
}

// NewRedisRateLimiter allows limit requests per key in each period.
func NewRedisRateLimiter(client redis.UniversalClient, limit int, period time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: RateLimitKeyPrefix,
		limit:     limit,
		period:    period,
		now:       time.Now,
	}
}

func (l *RedisRateLimiter) windowKey(key string) string {
	slot := l.now().Truncate(l.period).Unix()
	return l.keyPrefix + key + ":" + strconv.FormatInt(slot, 10)
}

// Allow reports whether one more request for key fits in the current window
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.windowKey(key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// Ensure RedisRateLimiter implements RateLimiter
var _ shared.RateLimiter = (*RedisRateLimiter)(nil)
