package webhook

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/infrastructure/telemetry"
)

// HandlerRequest is what a domain handler sees of an event.
type HandlerRequest struct {
	EventID    uuid.UUID
	Sender     webhook.Sender
	EventType  webhook.EventType
	ExternalID string
	Data       webhook.CanonicalData
}

// HandlerResult is a successful handler outcome. Skipped marks a success
// that intentionally had no side effect.
type HandlerResult struct {
	Message string
	Skipped bool
}

// DomainHandler performs the business action of one handler ID. A returned
// error fails the event; it is retried while the attempt budget lasts.
type DomainHandler interface {
	Handle(ctx context.Context, req HandlerRequest) (HandlerResult, error)
}

// HandlerFunc adapts a function to DomainHandler.
type HandlerFunc func(ctx context.Context, req HandlerRequest) (HandlerResult, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	return f(ctx, req)
}

// EventPublisher receives every completed event.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, e *webhook.WebhookEvent) error
}

// ErrNotProcessing is returned when Dispatch is given an unclaimed event.
var ErrNotProcessing = errors.New("event is not claimed for processing")

// Result is the outcome of one dispatch.
type Result struct {
	EventID uuid.UUID
	Handler webhook.HandlerID
	Status  webhook.Status
	Message string
	// Err is set when the outcome could not be recorded.
	Err error
}

// Dispatcher routes claimed events to their domain handler and records the
// terminal status.
type Dispatcher struct {
	handlers  map[webhook.HandlerID]DomainHandler
	taxonomy  *webhook.Taxonomy
	store     webhook.EventStore
	publisher EventPublisher
	metrics   Metrics
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithPublisher publishes completed events.
func WithPublisher(p EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithDispatchMetrics records handler outcomes.
func WithDispatchMetrics(m Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metricsOrNop(m) }
}

// WithHandlerTimeout bounds each handler call.
func WithHandlerTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatchClock overrides the clock.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// DefaultHandlerTimeout bounds a handler call when no timeout is configured.
const DefaultHandlerTimeout = 30 * time.Second

// NewDispatcher builds the dispatch table. Every handler ID the taxonomy
// references must be present.
func NewDispatcher(
	handlers map[webhook.HandlerID]DomainHandler,
	taxonomy *webhook.Taxonomy,
	store webhook.EventStore,
	log *zap.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if taxonomy == nil || store == nil {
		return nil, errors.New("dispatcher: taxonomy and store are required")
	}
	for _, d := range taxonomy.Descriptors() {
		if handlers[d.HandlerID] == nil {
			return nil, fmt.Errorf("dispatcher: event type %q: %w %q", d.Name, webhook.ErrHandlerNotFound, d.HandlerID)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		handlers: make(map[webhook.HandlerID]DomainHandler, len(handlers)),
		taxonomy: taxonomy,
		store:    store,
		metrics:  nopMetrics{},
		logger:   log,
		timeout:  DefaultHandlerTimeout,
		now:      time.Now,
	}
	for id, h := range handlers {
		d.handlers[id] = h
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch runs the handler of a claimed event and stores the outcome.
// Handler errors and panics fail the event; they never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, e *webhook.WebhookEvent) Result {
	res := Result{EventID: e.ID}
	if e.Status != webhook.StatusProcessing {
		res.Status = e.Status
		res.Err = fmt.Errorf("%w: event %s is %s", ErrNotProcessing, e.ID, e.Status)
		return res
	}

	ctx, log := logger.WithEventID(ctx, d.logger, e.ID.String())
	ctx, span := telemetry.StartSpan(ctx, "webhook.dispatch",
		telemetry.SpanSender.String(string(e.Sender)),
		telemetry.SpanEventType.String(string(e.EventType)),
		telemetry.SpanEventID.String(e.ID.String()),
		telemetry.SpanAttempt.Int(e.AttemptCount),
	)
	defer span.End()

	var (
		outcome HandlerResult
		err     error
	)
	desc, lookupErr := d.taxonomy.Lookup(e.EventType, e.Sender)
	handler := d.handlers[desc.HandlerID]
	switch {
	case lookupErr != nil:
		err = lookupErr
	case handler == nil:
		err = fmt.Errorf("%w: %q", webhook.ErrHandlerNotFound, desc.HandlerID)
	default:
		res.Handler = desc.HandlerID
		span.SetAttributes(telemetry.SpanHandler.String(string(desc.HandlerID)))
		started := d.now()
		telemetry.Labeled(ctx, func(c context.Context) {
			outcome, err = d.invoke(c, handler, e)
		}, telemetry.LabelHandler, string(desc.HandlerID), telemetry.LabelSender, string(e.Sender))
		elapsed := d.now().Sub(started)
		status := webhook.StatusCompleted
		if err != nil {
			status = webhook.StatusFailed
		}
		d.metrics.HandlerFinished(ctx, desc.HandlerID, status, elapsed)
	}

	now := d.now()
	if err != nil {
		res.Status = webhook.StatusFailed
		res.Message = err.Error()
		_ = e.Fail(res.Message, now)
		telemetry.RecordError(span, err)
		log.Warn("Webhook handler failed",
			zap.String("handler", string(desc.HandlerID)),
			zap.String("event_type", string(e.EventType)),
			zap.Int("attempt", e.AttemptCount),
			zap.Error(err),
		)
	} else {
		res.Status = webhook.StatusCompleted
		res.Message = outcome.Message
		_ = e.Complete(res.Message, now)
		telemetry.SetOK(span)
		log.Info("Webhook handled",
			zap.String("handler", string(desc.HandlerID)),
			zap.String("event_type", string(e.EventType)),
			zap.Bool("skipped", outcome.Skipped),
			zap.String("message", outcome.Message),
		)
	}

	if uerr := d.store.UpdateStatus(ctx, e.ID, res.Status, res.Message); uerr != nil {
		log.Error("Failed to record handler outcome",
			zap.String("status", string(res.Status)),
			zap.Error(uerr),
		)
		res.Err = uerr
		return res
	}

	if res.Status == webhook.StatusCompleted && d.publisher != nil {
		if perr := d.publisher.PublishCompleted(ctx, e); perr != nil {
			log.Warn("Failed to publish completed event", zap.Error(perr))
		}
	}
	return res
}

// invoke runs the handler under the per-event timeout and converts a panic
// into an error.
func (d *Dispatcher) invoke(ctx context.Context, h DomainHandler, e *webhook.WebhookEvent) (result HandlerResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Webhook handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = h.Handle(ctx, HandlerRequest{
		EventID:    e.ID,
		Sender:     e.Sender,
		EventType:  e.EventType,
		ExternalID: e.ExternalID,
		Data:       e.CanonicalData,
	})
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("handler timed out after %s: %w", d.timeout, err)
	}
	return result, err
}
