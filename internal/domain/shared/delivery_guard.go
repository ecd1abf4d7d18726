package shared

import (
	"context"
	"time"
)

// DeliveryGuard remembers delivery fingerprints so a redelivered request is
// recognised before it produces a second event row.
type DeliveryGuard interface {
	// Claim records the key for ttl.
	// Returns true if the key was newly claimed, false if it was already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets the key so the sender's own retry can be accepted again.
	Release(ctx context.Context, key string) error

	// Seen checks if the key is currently held
	Seen(ctx context.Context, key string) (bool, error)

	// Close closes the guard and releases resources
	Close() error
}

// DeliveryGuardConfig holds configuration for delivery deduplication
type DeliveryGuardConfig struct {
	// TTL is how long a fingerprint is remembered.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether deduplication is applied
	// Default: true
	Enabled bool
}

// DefaultDeliveryGuardConfig returns the default deduplication configuration
func DefaultDeliveryGuardConfig() DeliveryGuardConfig {
	return DeliveryGuardConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	// Allow reports whether one more request for key fits in the current window.
	Allow(ctx context.Context, key string) (bool, error)
}
