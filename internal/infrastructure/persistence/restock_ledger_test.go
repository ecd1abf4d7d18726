package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence/models"
)

func newTestRestockLedger(t *testing.T) *GormRestockLedger {
	t.Helper()
	db := setupWebhookEventTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.RestockModel{}))
	return NewGormRestockLedger(db)
}

func TestGormRestockLedger_ClaimOncePerLine(t *testing.T) {
	ledger := newTestRestockLedger(t)
	ctx := context.Background()
	key := webhook.RestockKey{Sender: webhook.SenderTrendyol, ExternalOrderID: "10234567890", SKU: "BC-1"}

	first, err := ledger.ClaimRestock(ctx, key, uuid.New(), 2)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.ClaimRestock(ctx, key, uuid.New(), 2)
	require.NoError(t, err)
	assert.False(t, again, "a second event for the same line is refused")

	for _, other := range []webhook.RestockKey{
		{Sender: webhook.SenderTrendyol, ExternalOrderID: "10234567890", SKU: "BC-2"},
		{Sender: webhook.SenderN11, ExternalOrderID: "10234567890", SKU: "BC-1"},
		{Sender: webhook.SenderTrendyol, ExternalOrderID: "10234567891", SKU: "BC-1"},
	} {
		ok, err := ledger.ClaimRestock(ctx, other, uuid.New(), 1)
		require.NoError(t, err)
		assert.True(t, ok, "%+v", other)
	}
}

func TestGormRestockLedger_ReleaseAllowsReclaim(t *testing.T) {
	ledger := newTestRestockLedger(t)
	ctx := context.Background()
	key := webhook.RestockKey{Sender: webhook.SenderHepsiburada, ExternalOrderID: "HB-7", SKU: "SKU-1"}

	ok, err := ledger.ClaimRestock(ctx, key, uuid.New(), 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ledger.ReleaseRestock(ctx, key))
	require.NoError(t, ledger.ReleaseRestock(ctx, key), "releasing a missing line is a no-op")

	ok, err = ledger.ClaimRestock(ctx, key, uuid.New(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
}
