// Package messaging publishes completed webhook events and operator
// notifications to Kafka.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// Writer is the subset of kafka.Writer the publishers use.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a synchronous writer for topic. Messages with the same
// key land on the same partition.
func NewWriter(cfg config.KafkaConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
}

// CompletedEvent is the message value published for every completed event.
type CompletedEvent struct {
	ID              string                `json:"id"`
	Sender          webhook.Sender        `json:"sender"`
	EventType       webhook.EventType     `json:"event_type"`
	RawEventName    string                `json:"raw_event_name"`
	ExternalID      string                `json:"external_id,omitempty"`
	Data            webhook.CanonicalData `json:"data"`
	ResponseMessage string                `json:"response_message"`
	ReceivedAt      time.Time             `json:"received_at"`
	ProcessedAt     *time.Time            `json:"processed_at,omitempty"`
	Attempts        int                   `json:"attempts"`
}

// EventKey is sender:external_id, or sender:id when the sender supplied no
// identifier.
func EventKey(e *webhook.WebhookEvent) string {
	id := e.ExternalID
	if id == "" {
		id = e.ID.String()
	}
	return e.Sender.String() + ":" + id
}

// EventPublisher streams completed events to the events topic.
type EventPublisher struct {
	writer Writer
	logger *zap.Logger
}

// NewEventPublisher wraps w.
func NewEventPublisher(w Writer, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{writer: w, logger: logger}
}

// PublishCompleted writes one completed event.
func (p *EventPublisher) PublishCompleted(ctx context.Context, e *webhook.WebhookEvent) error {
	value, err := json.Marshal(CompletedEvent{
		ID:              e.ID.String(),
		Sender:          e.Sender,
		EventType:       e.EventType,
		RawEventName:    e.RawEventName,
		ExternalID:      e.ExternalID,
		Data:            e.CanonicalData,
		ResponseMessage: e.ResponseMessage,
		ReceivedAt:      e.ReceivedAt,
		ProcessedAt:     e.ProcessedAt,
		Attempts:        e.AttemptCount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal completed event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(EventKey(e)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "sender", Value: []byte(e.Sender)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write completed event: %w", err)
	}
	p.logger.Debug("Published completed event",
		zap.String("event_id", e.ID.String()),
		zap.String("key", string(msg.Key)),
	)
	return nil
}

// Close closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// Notification is the message value written by KafkaNotifier.
type Notification struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// KafkaNotifier implements webhook.NotificationService by writing to the
// notification topic, keyed by notification type.
type KafkaNotifier struct {
	writer Writer
	now    func() time.Time
}

// NewKafkaNotifier wraps w.
func NewKafkaNotifier(w Writer) *KafkaNotifier {
	return &KafkaNotifier{writer: w, now: time.Now}
}

func (n *KafkaNotifier) Notify(ctx context.Context, notificationType string, payload map[string]any) error {
	value, err := json.Marshal(Notification{
		Type:      notificationType,
		Payload:   payload,
		CreatedAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.writer.WriteMessages(ctx, kafka.Message{Key: []byte(notificationType), Value: value}); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

var _ webhook.NotificationService = (*KafkaNotifier)(nil)
