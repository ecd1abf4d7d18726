package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/infrastructure/marketplace"
	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// ErrRateLimited is returned when a sender exceeds its delivery rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// AdapterRegistry resolves the adapter of a sender.
type AdapterRegistry interface {
	Get(sender webhook.Sender) (marketplace.Adapter, bool)
}

// Intake messages
const (
	MsgDuplicate = "duplicate delivery ignored"
	MsgQueued    = "event queued for processing"
)

// InboundRequest is one raw delivery.
type InboundRequest struct {
	Sender     string
	Body       []byte
	Header     http.Header
	ReceivedAt time.Time
}

// PayloadArchive keeps an audit copy of accepted raw payloads.
type PayloadArchive interface {
	Archive(ctx context.Context, e *webhook.WebhookEvent) error
}

// IngestResult describes an accepted delivery.
type IngestResult struct {
	EventID   uuid.UUID      `json:"event_id,omitempty"`
	Status    webhook.Status `json:"status,omitempty"`
	Message   string         `json:"message"`
	Duplicate bool           `json:"duplicate,omitempty"`
}

// IngestConfig holds the intake switches.
type IngestConfig struct {
	PersistRejected bool
	DedupeEnabled   bool
	DedupeTTL       time.Duration
}

// IngestService verifies, normalizes, stores and schedules deliveries.
type IngestService struct {
	adapters   AdapterRegistry
	taxonomy   *webhook.Taxonomy
	store      webhook.EventStore
	scheduler  *Scheduler
	dispatcher *Dispatcher
	guard      shared.DeliveryGuard
	limiter    shared.RateLimiter
	archive    PayloadArchive
	metrics    Metrics
	logger     *zap.Logger
	cfg        IngestConfig
	now        func() time.Time
}

// IngestServiceConfig contains the dependencies of IngestService
type IngestServiceConfig struct {
	Adapters   AdapterRegistry
	Taxonomy   *webhook.Taxonomy
	Store      webhook.EventStore
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	// Guard, Limiter and Archive are optional.
	Guard   shared.DeliveryGuard
	Limiter shared.RateLimiter
	Archive PayloadArchive
	Metrics Metrics
	Logger  *zap.Logger
	Config  IngestConfig
	Clock   func() time.Time
}

// NewIngestService creates an IngestService
func NewIngestService(cfg IngestServiceConfig) (*IngestService, error) {
	if cfg.Adapters == nil || cfg.Taxonomy == nil || cfg.Store == nil || cfg.Dispatcher == nil {
		return nil, errors.New("ingest: adapters, taxonomy, store and dispatcher are required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewScheduler(DefaultSchedulerConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Config.DedupeTTL <= 0 {
		cfg.Config.DedupeTTL = shared.DefaultDeliveryGuardConfig().TTL
	}
	return &IngestService{
		adapters:   cfg.Adapters,
		taxonomy:   cfg.Taxonomy,
		store:      cfg.Store,
		scheduler:  cfg.Scheduler,
		dispatcher: cfg.Dispatcher,
		guard:      cfg.Guard,
		limiter:    cfg.Limiter,
		archive:    cfg.Archive,
		metrics:    metricsOrNop(cfg.Metrics),
		logger:     cfg.Logger,
		cfg:        cfg.Config,
		now:        cfg.Clock,
	}, nil
}

// Ingest handles one delivery. Errors carry a webhook sentinel (or
// ErrRateLimited) that webhook.Classify maps onto the response class.
func (s *IngestService) Ingest(ctx context.Context, in InboundRequest) (*IngestResult, error) {
	log := logger.FromContextOr(ctx, s.logger)

	sender, err := webhook.ParseSender(in.Sender)
	if err != nil {
		logger.Validation(log, "Webhook from unknown sender", zap.String("sender", in.Sender))
		return nil, fmt.Errorf("%w: %q", webhook.ErrUnknownSender, in.Sender)
	}
	ctx, log = logger.WithSender(ctx, log, sender.String())
	ctx, span := telemetry.StartSpan(ctx, "webhook.ingest",
		telemetry.SpanSender.String(sender.String()),
		telemetry.SpanBodyBytes.Int(len(in.Body)),
	)
	defer span.End()
	s.metrics.EventReceived(ctx, sender)

	res, err := s.ingest(ctx, log, sender, in)
	if err != nil {
		class := webhook.Classify(err)
		if errors.Is(err, ErrRateLimited) {
			class = webhook.ClassValidation
		}
		s.metrics.EventRejected(ctx, sender, class)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return res, nil
}

func (s *IngestService) ingest(ctx context.Context, log *zap.Logger, sender webhook.Sender, in InboundRequest) (*IngestResult, error) {
	adapter, ok := s.adapters.Get(sender)
	if !ok {
		logger.Validation(log, "Webhook from disabled sender")
		return nil, fmt.Errorf("%w: %s", webhook.ErrSenderDisabled, sender)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, sender.String())
		if err != nil {
			log.Warn("Rate limiter unavailable, allowing delivery", zap.Error(err))
		} else if !allowed {
			log.Warn("Webhook rate limit exceeded")
			return nil, fmt.Errorf("%w for %s", ErrRateLimited, sender)
		}
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	req := &marketplace.Request{Sender: sender, Body: in.Body, Header: in.Header, ReceivedAt: receivedAt}

	if !adapter.Validate(req) {
		logger.Security(log, "Webhook signature or timestamp rejected",
			zap.Int("body_bytes", len(in.Body)),
		)
		return nil, fmt.Errorf("%w from %s", webhook.ErrInvalidSignature, sender)
	}

	env, err := adapter.Process(req)
	if err != nil {
		logger.Validation(log, "Webhook payload rejected", zap.Error(err))
		return nil, err
	}

	desc, err := s.taxonomy.Lookup(env.EventType, sender)
	if err != nil {
		logger.Validation(log, "Webhook event type rejected",
			zap.String("event_type", string(env.EventType)),
			zap.String("raw_event_name", env.RawEventName),
			zap.Error(err),
		)
		s.persistRejected(ctx, log, env, in.Body, err, receivedAt)
		return nil, err
	}

	key := deliveryKey(sender, in.Body)
	if s.cfg.DedupeEnabled && s.guard != nil {
		claimed, err := s.guard.Claim(ctx, key, s.cfg.DedupeTTL)
		if err != nil {
			log.Warn("Delivery guard unavailable, accepting delivery", zap.Error(err))
		} else if !claimed {
			s.metrics.EventDuplicate(ctx, sender)
			log.Info("Duplicate webhook delivery ignored",
				zap.String("event_type", string(env.EventType)),
				zap.String("external_id", env.ExternalID),
			)
			return &IngestResult{Message: MsgDuplicate, Duplicate: true}, nil
		}
	}

	event := webhook.NewWebhookEvent(env, in.Body, desc.Priority, receivedAt)
	decision := s.scheduler.Classify(desc)
	now := s.now()
	if decision.Synchronous {
		err = event.StartProcessing(now)
	} else {
		err = event.Queue(s.scheduler.ProcessAt(decision, now), now)
	}
	if err != nil {
		s.release(ctx, log, key)
		return nil, err
	}

	if _, err := s.store.Insert(ctx, event); err != nil {
		log.Error("Failed to store webhook event", zap.Error(err))
		s.release(ctx, log, key)
		if !errors.Is(err, webhook.ErrStore) {
			err = fmt.Errorf("%w: %w", webhook.ErrStore, err)
		}
		return nil, err
	}
	s.metrics.EventAccepted(ctx, sender, env.EventType, desc.Priority)
	s.archivePayload(ctx, log, event)
	log.Info("Webhook accepted",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(env.EventType)),
		zap.String("raw_event_name", env.RawEventName),
		zap.String("external_id", env.ExternalID),
		zap.String("priority", string(desc.Priority)),
		zap.Bool("synchronous", decision.Synchronous),
	)

	if !decision.Synchronous {
		return &IngestResult{EventID: event.ID, Status: event.Status, Message: MsgQueued}, nil
	}

	result := s.dispatcher.Dispatch(ctx, event)
	if result.Err != nil {
		return nil, fmt.Errorf("%w: record outcome of %s: %w", webhook.ErrStore, event.ID, result.Err)
	}
	msg := result.Message
	if result.Status == webhook.StatusFailed {
		msg = "processing failed, will be retried: " + result.Message
	}
	return &IngestResult{EventID: event.ID, Status: result.Status, Message: msg}, nil
}

// persistRejected stores an audit row for a delivery refused by the
// taxonomy when configured to.
func (s *IngestService) persistRejected(ctx context.Context, log *zap.Logger, env webhook.CanonicalEnvelope, body []byte, reason error, at time.Time) {
	if !s.cfg.PersistRejected {
		return
	}
	if _, err := s.store.Insert(ctx, webhook.NewRejectedEvent(env, body, reason.Error(), at)); err != nil {
		log.Warn("Failed to store rejected webhook", zap.Error(err))
	}
}

// archivePayload is best effort: a failed upload never fails the delivery.
func (s *IngestService) archivePayload(ctx context.Context, log *zap.Logger, event *webhook.WebhookEvent) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, event); err != nil {
		log.Warn("Failed to archive webhook payload",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

// release forgets a delivery claim so the sender's retry is accepted.
func (s *IngestService) release(ctx context.Context, log *zap.Logger, key string) {
	if !s.cfg.DedupeEnabled || s.guard == nil {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("Failed to release delivery claim", zap.Error(err))
	}
}

// deliveryKey fingerprints a delivery by sender and exact body.
func deliveryKey(sender webhook.Sender, body []byte) string {
	h := sha256.New()
	h.Write([]byte(sender))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
