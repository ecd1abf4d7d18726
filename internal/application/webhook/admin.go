package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// AdminService answers operator queries over the event log and retries
// failed events on request.
type AdminService struct {
	store       webhook.EventStore
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(store webhook.EventStore, maxAttempts int, logger *zap.Logger) *AdminService {
	if maxAttempts <= 0 {
		maxAttempts = webhook.DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{store: store, maxAttempts: maxAttempts, logger: logger, now: time.Now}
}

// EventDTO represents a stored webhook event
type EventDTO struct {
	ID              uuid.UUID      `json:"id"`
	Sender          string         `json:"sender"`
	EventType       string         `json:"event_type"`
	RawEventName    string         `json:"raw_event_name,omitempty"`
	ExternalID      string         `json:"external_id,omitempty"`
	Priority        string         `json:"priority"`
	Status          string         `json:"status"`
	AttemptCount    int            `json:"attempt_count"`
	DeadLetter      bool           `json:"dead_letter"`
	ResponseMessage string         `json:"response_message,omitempty"`
	ReceivedAt      time.Time      `json:"received_at"`
	ProcessAt       *time.Time     `json:"process_at,omitempty"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CanonicalData   map[string]any `json:"canonical_data,omitempty"`
}

// HistoryQuery filters the event history
type HistoryQuery struct {
	Sender    string     `form:"sender" binding:"omitempty,alphanum,lowercase"`
	EventType string     `form:"event_type" binding:"omitempty,max=64"`
	Status    string     `form:"status" binding:"omitempty,oneof=pending rejected queued processing completed failed"`
	From      *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset    int        `form:"offset" binding:"omitempty,min=0"`
}

// HistoryResult is one page of history
type HistoryResult struct {
	Events []EventDTO `json:"events"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// StatsDTO represents event log counts over a period
type StatsDTO struct {
	Period   string           `json:"period"`
	Since    time.Time        `json:"since"`
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	BySender map[string]int64 `json:"by_sender"`
}

// Stats periods accepted by ParsePeriod.
var statsPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// DefaultStatsPeriod is used when no period is given.
const DefaultStatsPeriod = "24h"

// ParsePeriod converts a stats period name into a duration.
func ParsePeriod(period string) (time.Duration, error) {
	if period == "" {
		period = DefaultStatsPeriod
	}
	d, ok := statsPeriods[period]
	if !ok {
		return 0, fmt.Errorf("%w: period must be one of 1h, 24h, 7d, 30d", shared.ErrInvalidInput)
	}
	return d, nil
}

// History lists events newest first.
func (s *AdminService) History(ctx context.Context, q HistoryQuery) (*HistoryResult, error) {
	filter := webhook.HistoryFilter{
		EventType: webhook.EventType(q.EventType),
		Status:    webhook.Status(q.Status),
		From:      q.From,
		To:        q.To,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Sender != "" {
		sender, err := webhook.ParseSender(q.Sender)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		filter.Sender = sender
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, fmt.Errorf("%w: to is before from", shared.ErrInvalidInput)
	}
	filter = filter.Normalize()

	events, total, err := s.store.History(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to query webhook history", zap.Error(err))
		return nil, err
	}
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = s.toDTO(e, false)
	}
	return &HistoryResult{Events: dtos, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get returns one event with its canonical data.
func (s *AdminService) Get(ctx context.Context, id uuid.UUID) (*EventDTO, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := s.toDTO(e, true)
	return &dto, nil
}

// Stats counts events received within period.
func (s *AdminService) Stats(ctx context.Context, period string) (*StatsDTO, error) {
	d, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultStatsPeriod
	}
	stats, err := s.store.Stats(ctx, s.now().Add(-d))
	if err != nil {
		s.logger.Error("Failed to compute webhook stats", zap.Error(err))
		return nil, err
	}

	dto := &StatsDTO{
		Period:   period,
		Since:    stats.Since,
		Total:    stats.Total,
		ByStatus: make(map[string]int64, len(stats.ByStatus)),
		BySender: make(map[string]int64, len(stats.BySender)),
	}
	for st, n := range stats.ByStatus {
		dto.ByStatus[string(st)] = n
	}
	for sender, n := range stats.BySender {
		dto.BySender[string(sender)] = n
	}
	return dto, nil
}

// Retry requeues a failed event for immediate processing. A dead letter is
// only requeued with force, which also resets its attempt budget.
func (s *AdminService) Retry(ctx context.Context, id uuid.UUID, force bool) (*EventDTO, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != webhook.StatusFailed {
		return nil, &webhook.TransitionError{From: e.Status, To: webhook.StatusQueued}
	}
	if e.IsDeadLetter(s.maxAttempts) && !force {
		return nil, fmt.Errorf("%w: event %s ran %d of %d attempts, retry with force", webhook.ErrRetryBudgetSpent, id, e.AttemptCount, s.maxAttempts)
	}

	if err := s.store.Requeue(ctx, id, s.now(), force); err != nil {
		if !errors.Is(err, webhook.ErrInvalidTransition) && !errors.Is(err, webhook.ErrRetryBudgetSpent) {
			s.logger.Error("Failed to requeue webhook", zap.String("event_id", id.String()), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Webhook requeued by operator",
		zap.String("event_id", id.String()),
		zap.Bool("force", force),
		zap.Int("attempt", e.AttemptCount),
	)
	return s.Get(ctx, id)
}

func (s *AdminService) toDTO(e *webhook.WebhookEvent, withData bool) EventDTO {
	dto := EventDTO{
		ID:              e.ID,
		Sender:          string(e.Sender),
		EventType:       string(e.EventType),
		RawEventName:    e.RawEventName,
		ExternalID:      e.ExternalID,
		Priority:        string(e.Priority),
		Status:          string(e.Status),
		AttemptCount:    e.AttemptCount,
		DeadLetter:      e.IsDeadLetter(s.maxAttempts),
		ResponseMessage: e.ResponseMessage,
		ReceivedAt:      e.ReceivedAt,
		ProcessAt:       e.ProcessAt,
		ProcessedAt:     e.ProcessedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if withData && e.CanonicalData != nil {
		dto.CanonicalData = map[string]any(e.CanonicalData.Clone())
	}
	return dto
}
