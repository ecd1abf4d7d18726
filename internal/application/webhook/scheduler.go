package webhook

import (
	"time"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// SchedulerConfig holds the deferral delay of each non-critical tier
type SchedulerConfig struct {
	HighDelay   time.Duration
	MediumDelay time.Duration
	LowDelay    time.Duration
}

// DefaultSchedulerConfig returns the standard tiers
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HighDelay:   60 * time.Second,
		MediumDelay: 300 * time.Second,
		LowDelay:    1800 * time.Second,
	}
}

// Decision is the scheduling outcome for one event type.
type Decision struct {
	Synchronous bool
	Delay       time.Duration
}

// Scheduler maps priorities onto synchronous or deferred processing.
type Scheduler struct {
	cfg SchedulerConfig
}

// NewScheduler creates a scheduler. Zero delays take the defaults.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.HighDelay <= 0 {
		cfg.HighDelay = def.HighDelay
	}
	if cfg.MediumDelay <= 0 {
		cfg.MediumDelay = def.MediumDelay
	}
	if cfg.LowDelay <= 0 {
		cfg.LowDelay = def.LowDelay
	}
	return &Scheduler{cfg: cfg}
}

// Classify decides how events of the descriptor's type are processed.
// Critical events run inside the inbound request; the rest are queued.
func (s *Scheduler) Classify(d webhook.EventTypeDescriptor) Decision {
	switch d.Priority {
	case webhook.PriorityCritical:
		return Decision{Synchronous: true}
	case webhook.PriorityHigh:
		return Decision{Delay: s.cfg.HighDelay}
	case webhook.PriorityMedium:
		return Decision{Delay: s.cfg.MediumDelay}
	default:
		return Decision{Delay: s.cfg.LowDelay}
	}
}

// ProcessAt returns the earliest processing time for a deferred decision.
func (s *Scheduler) ProcessAt(d Decision, now time.Time) time.Time {
	if d.Synchronous {
		return now
	}
	return now.Add(d.Delay)
}

// maxBackoffExponent caps the retry delay at 32 minutes.
const maxBackoffExponent = 5

// RetryAt returns when a failed event that already ran attempt times may
// run again: 2^min(5, attempt) minutes after from.
func RetryAt(attempt int, from time.Time) time.Time {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	return from.Add(time.Duration(1<<attempt) * time.Minute)
}
