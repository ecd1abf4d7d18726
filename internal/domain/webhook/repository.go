package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStore is the durable event log. Implementations must make
// ClaimForProcessing atomic; it is the only concurrency control the
// processing pipeline relies on.
type EventStore interface {
	// Insert persists a new event and returns its id.
	Insert(ctx context.Context, event *WebhookEvent) (uuid.UUID, error)

	// UpdateStatus moves an event to status, validating the transition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, message string) error

	// ClaimForProcessing atomically moves a pending or queued event to
	// processing and increments its attempt count. It returns false when the
	// event is not claimable, typically because another worker won.
	ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error)

	// FindByExternalID returns the most recent completed event for the
	// sender and external id, or nil when there is none.
	FindByExternalID(ctx context.Context, sender Sender, externalID string) (*WebhookEvent, error)

	// ListDue returns queued events whose process_at is not after now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*WebhookEvent, error)

	// ReclaimStale resets processing events idle longer than threshold. Events
	// with retry budget left are queued, the rest are failed.
	ReclaimStale(ctx context.Context, threshold time.Duration, maxAttempts int) ([]*WebhookEvent, error)

	// ListRetryable returns failed events with budget left.
	ListRetryable(ctx context.Context, maxAttempts int, limit int) ([]*WebhookEvent, error)

	// Requeue moves a failed event back to queued at processAt.
	Requeue(ctx context.Context, id uuid.UUID, processAt time.Time, resetAttempts bool) error

	// FindByID returns one event or ErrEventNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)

	// History lists events matching filter, newest first.
	History(ctx context.Context, filter HistoryFilter) ([]*WebhookEvent, int64, error)

	// Stats counts events received since the given time.
	Stats(ctx context.Context, since time.Time) (*EventStats, error)
}

// HistoryFilter narrows History results. Zero values do not filter.
type HistoryFilter struct {
	Sender    Sender
	EventType EventType
	Status    Status
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Default and maximum page sizes for History.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

// Normalize clamps the page size.
func (f HistoryFilter) Normalize() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// EventStats aggregates the event log over a period.
type EventStats struct {
	Since    time.Time        `json:"since"`
	Total    int64            `json:"total"`
	ByStatus map[Status]int64 `json:"by_status"`
	BySender map[Sender]int64 `json:"by_sender"`
}

// RestockKey names one SKU of one order. Stock for it returns at most once,
// whichever cancellation or return event gets there first.
type RestockKey struct {
	Sender          Sender
	ExternalOrderID string
	SKU             string
}

// RestockLedger remembers which order lines went back to stock so retried
// and redelivered cancellations do not restock them again.
type RestockLedger interface {
	// ClaimRestock records key for eventID. It returns false when the line
	// was already claimed.
	ClaimRestock(ctx context.Context, key RestockKey, eventID uuid.UUID, quantity int) (bool, error)

	// ReleaseRestock drops a claim whose restock did not happen.
	ReleaseRestock(ctx context.Context, key RestockKey) error
}
