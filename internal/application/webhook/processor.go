package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// ProcessorConfig holds configuration for the background processor
type ProcessorConfig struct {
	BatchSize       int
	Concurrency     int
	PollInterval    time.Duration
	ReclaimInterval time.Duration
	StaleThreshold  time.Duration
	MaxAttempts     int
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:       50,
		Concurrency:     4,
		PollInterval:    10 * time.Second,
		ReclaimInterval: time.Minute,
		StaleThreshold:  10 * time.Minute,
		MaxAttempts:     webhook.DefaultMaxAttempts,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	def := DefaultProcessorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = def.ReclaimInterval
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = def.StaleThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	return c
}

// outcomeGrace is the time a claimed event gets past its handler timeout to
// record the outcome.
const outcomeGrace = 5 * time.Second

// RunStats summarizes one RunDue pass.
type RunStats struct {
	Due       int
	Claimed   int
	Completed int
	Failed    int
}

// Processor drains the queue of deferred events, reclaims events stuck in
// processing and schedules automatic retries of failed ones.
type Processor struct {
	store      webhook.EventStore
	dispatcher *Dispatcher
	metrics    Metrics
	config     ProcessorConfig
	logger     *zap.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithProcessorMetrics records reclaim and requeue counts.
func WithProcessorMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = metricsOrNop(m) }
}

// WithProcessorClock overrides the clock.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProcessor creates a new processor
func NewProcessor(store webhook.EventStore, dispatcher *Dispatcher, config ProcessorConfig, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		store:      store,
		dispatcher: dispatcher,
		metrics:    nopMetrics{},
		config:     config.withDefaults(),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the background loops
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(2)
	go p.loop(ctx, p.config.PollInterval, func(ctx context.Context) {
		if _, err := p.RunDue(ctx); err != nil {
			p.logger.Error("Failed to process due webhooks", zap.Error(err))
		}
	})
	go p.loop(ctx, p.config.ReclaimInterval, func(ctx context.Context) {
		if _, err := p.Reclaim(ctx); err != nil {
			p.logger.Error("Failed to reclaim stale webhooks", zap.Error(err))
		}
		if _, err := p.RetryFailed(ctx); err != nil {
			p.logger.Error("Failed to schedule webhook retries", zap.Error(err))
		}
	})

	p.logger.Info("Webhook processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("concurrency", p.config.Concurrency),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("reclaim_interval", p.config.ReclaimInterval),
	)
	return nil
}

// Stop cancels the loops and waits for in-flight events to record their
// outcome. No new event is claimed once Stop is called.
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Webhook processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// RunDue processes one batch of due events. Each event is claimed first;
// an event claimed by another worker is skipped.
func (p *Processor) RunDue(ctx context.Context) (RunStats, error) {
	due, err := p.store.ListDue(ctx, p.now(), p.config.BatchSize)
	if err != nil {
		return RunStats{}, err
	}
	stats := RunStats{Due: len(due)}
	if len(due) == 0 {
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.config.Concurrency)
	)
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(e *webhook.WebhookEvent) {
			defer func() {
				<-sem
				wg.Done()
			}()
			status, claimed := p.process(ctx, e)
			if !claimed {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			stats.Claimed++
			switch status {
			case webhook.StatusCompleted:
				stats.Completed++
			case webhook.StatusFailed:
				stats.Failed++
			}
		}(e)
	}
	wg.Wait()

	if stats.Claimed > 0 {
		p.logger.Info("Processed due webhooks",
			zap.Int("due", stats.Due),
			zap.Int("claimed", stats.Claimed),
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

func (p *Processor) process(ctx context.Context, e *webhook.WebhookEvent) (webhook.Status, bool) {
	claimed, err := p.store.ClaimForProcessing(ctx, e.ID)
	if err != nil {
		p.logger.Error("Failed to claim webhook", zap.String("event_id", e.ID.String()), zap.Error(err))
		return "", false
	}
	if !claimed {
		return "", false
	}
	if err := e.StartProcessing(p.now()); err != nil {
		p.logger.Error("Claimed webhook has inconsistent state",
			zap.String("event_id", e.ID.String()),
			zap.String("status", string(e.Status)),
			zap.Error(err),
		)
		return "", false
	}

	// A claimed event runs to its outcome even when Stop cancels the loops;
	// otherwise it would sit in processing until the stale reclaim.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.dispatcher.timeout+outcomeGrace)
	defer cancel()
	res := p.dispatcher.Dispatch(dctx, e)
	return res.Status, true
}

// Reclaim returns events stuck in processing past the stale threshold to
// the queue, or fails them when their budget is spent.
func (p *Processor) Reclaim(ctx context.Context) (int, error) {
	reclaimed, err := p.store.ReclaimStale(ctx, p.config.StaleThreshold, p.config.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if len(reclaimed) == 0 {
		return 0, nil
	}
	p.metrics.EventsReclaimed(ctx, len(reclaimed))
	for _, e := range reclaimed {
		p.logger.Warn("Reclaimed stale webhook",
			zap.String("event_id", e.ID.String()),
			zap.String("event_type", string(e.EventType)),
			zap.String("status", string(e.Status)),
			zap.Int("attempt", e.AttemptCount),
		)
	}
	return len(reclaimed), nil
}

// RetryFailed requeues failed events with budget left, each at its backoff
// time measured from the last attempt.
func (p *Processor) RetryFailed(ctx context.Context) (int, error) {
	failed, err := p.store.ListRetryable(ctx, p.config.MaxAttempts, p.config.BatchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, e := range failed {
		from := e.UpdatedAt
		if e.ProcessedAt != nil {
			from = *e.ProcessedAt
		}
		at := RetryAt(e.AttemptCount, from)
		if err := p.store.Requeue(ctx, e.ID, at, false); err != nil {
			if errors.Is(err, webhook.ErrInvalidTransition) || errors.Is(err, webhook.ErrRetryBudgetSpent) {
				continue
			}
			return requeued, err
		}
		requeued++
		p.logger.Info("Scheduled webhook retry",
			zap.String("event_id", e.ID.String()),
			zap.Int("attempt", e.AttemptCount),
			zap.Time("process_at", at),
		)
	}
	if requeued > 0 {
		p.metrics.EventsRequeued(ctx, requeued)
	}
	return requeued, nil
}
