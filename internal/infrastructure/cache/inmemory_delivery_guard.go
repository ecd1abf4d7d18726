package cache

import (
	"context"
	"sync"
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
)

// entry represents a claimed fingerprint with expiration
type entry struct {
	expiresAt time.Time
}

// InMemoryDeliveryGuard implements shared.DeliveryGuard using an in-memory map.
// It is suitable for single-instance deployments and testing; separate
// processes do not see each other's claims.
type InMemoryDeliveryGuard struct {
	mu        sync.RWMutex
	entries   map[string]entry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDeliveryGuard creates a new in-memory guard and starts a
// background goroutine that removes expired claims.
func NewInMemoryDeliveryGuard() *InMemoryDeliveryGuard {
	g := &InMemoryDeliveryGuard{
		entries:  make(map[string]entry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.cleanupLoop()

	return g
}

// Claim records key for ttl.
// Returns true if the key was newly claimed, false if it is already held
func (g *InMemoryDeliveryGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, exists := g.entries[key]; exists && now.Before(e.expiresAt) {
		return false, nil
	}
	g.entries[key] = entry{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release forgets key
func (g *InMemoryDeliveryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

// Seen checks if key is currently held
func (g *InMemoryDeliveryGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, exists := g.entries[key]
	if !exists {
		return false, nil
	}
	return g.now().Before(e.expiresAt), nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (g *InMemoryDeliveryGuard) Close() error {
	g.closeOnce.Do(func() {
		close(g.stopChan)
		g.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (g *InMemoryDeliveryGuard) cleanupLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *InMemoryDeliveryGuard) cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for key, e := range g.entries {
		if !now.Before(e.expiresAt) {
			delete(g.entries, key)
		}
	}
}

// Size returns the number of entries held (for testing/monitoring)
func (g *InMemoryDeliveryGuard) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Ensure InMemoryDeliveryGuard implements DeliveryGuard
var _ shared.DeliveryGuard = (*InMemoryDeliveryGuard)(nil)

// =============================================================================
// Rate limiting
// =============================================================================

type window struct {
	start time.Time
	count int
}

// InMemoryRateLimiter implements shared.RateLimiter with fixed windows kept
// in process memory.
type InMemoryRateLimiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimiter allows limit requests per key in each period.
func NewInMemoryRateLimiter(limit int, period time.Duration) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether one more request for key fits in the current window
func (l *InMemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Truncate(l.period)
	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Ensure InMemoryRateLimiter implements RateLimiter
var _ shared.RateLimiter = (*InMemoryRateLimiter)(nil)
