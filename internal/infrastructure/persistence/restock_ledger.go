package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence/models"
)

// GormRestockLedger implements webhook.RestockLedger on webhook_restocks.
// The primary key on sender, order and SKU makes a claim a single insert.
type GormRestockLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRestockLedger creates a ledger over db.
func NewGormRestockLedger(db *gorm.DB) *GormRestockLedger {
	return &GormRestockLedger{db: db, now: time.Now}
}

// ClaimRestock inserts the line and reports whether this call created it.
func (l *GormRestockLedger) ClaimRestock(ctx context.Context, key webhook.RestockKey, eventID uuid.UUID, quantity int) (bool, error) {
	row := models.RestockModel{
		Sender:          string(key.Sender),
		ExternalOrderID: key.ExternalOrderID,
		SKU:             key.SKU,
		EventID:         eventID,
		Quantity:        quantity,
		CreatedAt:       l.now().UTC(),
	}
	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, storeError("claim restock", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ReleaseRestock deletes the line so a later attempt can claim it again.
func (l *GormRestockLedger) ReleaseRestock(ctx context.Context, key webhook.RestockKey) error {
	err := l.db.WithContext(ctx).
		Where("sender = ? AND external_order_id = ? AND sku = ?", string(key.Sender), key.ExternalOrderID, key.SKU).
		Delete(&models.RestockModel{}).Error
	if err != nil {
		return storeError("release restock", err)
	}
	return nil
}

var _ webhook.RestockLedger = (*GormRestockLedger)(nil)
