package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// ============================================================================
// Mocks
// ============================================================================

// MockEventStore is a mock implementation of webhook.EventStore
type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Insert(ctx context.Context, event *webhook.WebhookEvent) (uuid.UUID, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockEventStore) UpdateStatus(ctx context.Context, id uuid.UUID, status webhook.Status, message string) error {
	args := m.Called(ctx, id, status, message)
	return args.Error(0)
}

func (m *MockEventStore) ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventStore) FindByExternalID(ctx context.Context, sender webhook.Sender, externalID string) (*webhook.WebhookEvent, error) {
	args := m.Called(ctx, sender, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.WebhookEvent), args.Error(1)
}

func (m *MockEventStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*webhook.WebhookEvent, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.WebhookEvent), args.Error(1)
}

func (m *MockEventStore) ReclaimStale(ctx context.Context, threshold time.Duration, maxAttempts int) ([]*webhook.WebhookEvent, error) {
	args := m.Called(ctx, threshold, maxAttempts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.WebhookEvent), args.Error(1)
}

func (m *MockEventStore) ListRetryable(ctx context.Context, maxAttempts int, limit int) ([]*webhook.WebhookEvent, error) {
	args := m.Called(ctx, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*webhook.WebhookEvent), args.Error(1)
}

func (m *MockEventStore) Requeue(ctx context.Context, id uuid.UUID, processAt time.Time, resetAttempts bool) error {
	args := m.Called(ctx, id, processAt, resetAttempts)
	return args.Error(0)
}

func (m *MockEventStore) FindByID(ctx context.Context, id uuid.UUID) (*webhook.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.WebhookEvent), args.Error(1)
}

func (m *MockEventStore) History(ctx context.Context, filter webhook.HistoryFilter) ([]*webhook.WebhookEvent, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*webhook.WebhookEvent), args.Get(1).(int64), args.Error(2)
}

func (m *MockEventStore) Stats(ctx context.Context, since time.Time) (*webhook.EventStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.EventStats), args.Error(1)
}

// MockOrderService is a mock implementation of webhook.OrderService
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) FindOrder(ctx context.Context, sender webhook.Sender, externalOrderID string) (*webhook.OrderRef, error) {
	args := m.Called(ctx, sender, externalOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.OrderRef), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.OrderRef), args.Error(1)
}

func (m *MockOrderService) UpdateOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.OrderRef), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.OrderRef), args.Error(1)
}

// MockInventoryService is a mock implementation of webhook.InventoryService
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) UpdateStock(ctx context.Context, update webhook.StockUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockInventoryService) RestoreStock(ctx context.Context, restore webhook.StockRestore) error {
	return m.Called(ctx, restore).Error(0)
}

// MockPricingService is a mock implementation of webhook.PricingService
type MockPricingService struct {
	mock.Mock
}

func (m *MockPricingService) UpdatePrices(ctx context.Context, updates []webhook.PriceUpdate) ([]string, error) {
	args := m.Called(ctx, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockListingService is a mock implementation of webhook.ListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) UpdateApprovalStatus(ctx context.Context, update webhook.ApprovalUpdate) error {
	return m.Called(ctx, update).Error(0)
}

func (m *MockListingService) RecordIssues(ctx context.Context, update webhook.IssuesUpdate) error {
	return m.Called(ctx, update).Error(0)
}

// MockNotificationService is a mock implementation of webhook.NotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, notificationType string, payload map[string]any) error {
	return m.Called(ctx, notificationType, payload).Error(0)
}

type testCollaborators struct {
	orders        *MockOrderService
	inventory     *MockInventoryService
	pricing       *MockPricingService
	listings      *MockListingService
	notifications *MockNotificationService
}

func newTestCollaborators() *testCollaborators {
	return &testCollaborators{
		orders:        new(MockOrderService),
		inventory:     new(MockInventoryService),
		pricing:       new(MockPricingService),
		listings:      new(MockListingService),
		notifications: new(MockNotificationService),
	}
}

func (c *testCollaborators) collaborators() Collaborators {
	return Collaborators{
		Orders:        c.orders,
		Inventory:     c.inventory,
		Pricing:       c.pricing,
		Listings:      c.listings,
		Notifications: c.notifications,
	}
}

// memoryRestocks is an in-process webhook.RestockLedger.
type memoryRestocks struct {
	mu     sync.Mutex
	claims map[webhook.RestockKey]uuid.UUID
}

func newMemoryRestocks() *memoryRestocks {
	return &memoryRestocks{claims: make(map[webhook.RestockKey]uuid.UUID)}
}

func (m *memoryRestocks) ClaimRestock(_ context.Context, key webhook.RestockKey, eventID uuid.UUID, _ int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = eventID
	return true, nil
}

func (m *memoryRestocks) ReleaseRestock(_ context.Context, key webhook.RestockKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

// recordingPublisher collects completed events.
type recordingPublisher struct {
	events []*webhook.WebhookEvent
	err    error
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, e *webhook.WebhookEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
