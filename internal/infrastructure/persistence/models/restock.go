package models

import (
	"time"

	"github.com/google/uuid"
)

// RestockModel is one row of webhook_restocks: an order line returned to
// stock, keyed by sender, order and SKU.
type RestockModel struct {
	Sender          string    `gorm:"type:varchar(32);primaryKey"`
	ExternalOrderID string    `gorm:"type:varchar(255);primaryKey"`
	SKU             string    `gorm:"column:sku;type:varchar(255);primaryKey"`
	EventID         uuid.UUID `gorm:"type:uuid;not null;index:idx_webhook_restocks_event"`
	Quantity        int       `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RestockModel) TableName() string {
	return "webhook_restocks"
}
