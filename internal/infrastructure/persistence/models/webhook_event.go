package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// WebhookEventModel is the persistence model for the webhook_events table.
type WebhookEventModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Sender          string     `gorm:"type:varchar(32);not null;index:idx_webhook_events_sender_received,priority:1;index:idx_webhook_events_sender_external,priority:1"`
	EventType       string     `gorm:"type:varchar(64);not null;index:idx_webhook_events_event_type"`
	RawEventName    string     `gorm:"type:varchar(128);not null;default:''"`
	ExternalID      string     `gorm:"type:varchar(255);not null;default:'';index:idx_webhook_events_sender_external,priority:2"`
	RawPayload      []byte     `gorm:"type:bytea;not null"`
	CanonicalData   []byte     `gorm:"type:jsonb;not null"`
	Priority        string     `gorm:"type:varchar(16);not null"`
	Status          string     `gorm:"type:varchar(16);not null;index:idx_webhook_events_status_process_at,priority:1"`
	ReceivedAt      time.Time  `gorm:"not null;index:idx_webhook_events_sender_received,priority:2"`
	ProcessAt       *time.Time `gorm:"index:idx_webhook_events_status_process_at,priority:2"`
	ProcessedAt     *time.Time
	ResponseMessage string    `gorm:"type:text;not null;default:''"`
	AttemptCount    int       `gorm:"not null;default:0"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

// ToDomain converts the persistence model to a domain WebhookEvent
func (m *WebhookEventModel) ToDomain() (*webhook.WebhookEvent, error) {
	data := webhook.CanonicalData{}
	if len(m.CanonicalData) > 0 {
		dec := json.NewDecoder(bytes.NewReader(m.CanonicalData))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, fmt.Errorf("decode canonical data of %s: %w", m.ID, err)
		}
	}
	return &webhook.WebhookEvent{
		ID:              m.ID,
		Sender:          webhook.Sender(m.Sender),
		EventType:       webhook.EventType(m.EventType),
		RawEventName:    m.RawEventName,
		ExternalID:      m.ExternalID,
		RawPayload:      m.RawPayload,
		CanonicalData:   data,
		Priority:        webhook.Priority(m.Priority),
		Status:          webhook.Status(m.Status),
		ReceivedAt:      m.ReceivedAt,
		ProcessAt:       m.ProcessAt,
		ProcessedAt:     m.ProcessedAt,
		ResponseMessage: m.ResponseMessage,
		AttemptCount:    m.AttemptCount,
		UpdatedAt:       m.UpdatedAt,
	}, nil
}

// FromDomain populates the persistence model from a domain WebhookEvent
func (m *WebhookEventModel) FromDomain(e *webhook.WebhookEvent) error {
	data := e.CanonicalData
	if data == nil {
		data = webhook.CanonicalData{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode canonical data of %s: %w", e.ID, err)
	}
	raw := e.RawPayload
	if raw == nil {
		raw = []byte{}
	}

	m.ID = e.ID
	m.Sender = string(e.Sender)
	m.EventType = string(e.EventType)
	m.RawEventName = e.RawEventName
	m.ExternalID = e.ExternalID
	m.RawPayload = raw
	m.CanonicalData = encoded
	m.Priority = string(e.Priority)
	m.Status = string(e.Status)
	m.ReceivedAt = e.ReceivedAt.UTC()
	m.ProcessAt = utcPtr(e.ProcessAt)
	m.ProcessedAt = utcPtr(e.ProcessedAt)
	m.ResponseMessage = e.ResponseMessage
	m.AttemptCount = e.AttemptCount
	m.UpdatedAt = e.UpdatedAt.UTC()
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// WebhookEventModelFromDomain creates a new persistence model from a domain WebhookEvent
func WebhookEventModelFromDomain(e *webhook.WebhookEvent) (*WebhookEventModel, error) {
	m := &WebhookEventModel{}
	if err := m.FromDomain(e); err != nil {
		return nil, err
	}
	return m, nil
}

// WebhookEventModelsToDomain converts a result set, stopping at the first
// undecodable row.
func WebhookEventModelsToDomain(rows []WebhookEventModel) ([]*webhook.WebhookEvent, error) {
	out := make([]*webhook.WebhookEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
