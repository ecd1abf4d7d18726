package webhook

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testTaxonomy(t *testing.T) *webhook.Taxonomy {
	t.Helper()
	tax, err := webhook.NewTaxonomy([]webhook.EventTypeDescriptor{
		{
			Name:             webhook.EventOrderCreated,
			SupportedSenders: []webhook.Sender{webhook.SenderTrendyol, webhook.SenderN11},
			Priority:         webhook.PriorityHigh,
			HandlerID:        webhook.HandlerOrderCreate,
		},
		{
			Name:             webhook.EventSystemError,
			SupportedSenders: []webhook.Sender{webhook.SenderTrendyol},
			Priority:         webhook.PriorityCritical,
			HandlerID:        webhook.HandlerSystemAlert,
		},
	}, []webhook.HandlerID{webhook.HandlerOrderCreate, webhook.HandlerSystemAlert})
	require.NoError(t, err)
	return tax
}

func processingEvent(t *testing.T, eventType webhook.EventType) *webhook.WebhookEvent {
	t.Helper()
	e := webhook.NewWebhookEvent(webhook.CanonicalEnvelope{
		Sender:     webhook.SenderTrendyol,
		EventType:  eventType,
		ExternalID: "10234567890",
		Data:       webhook.CanonicalData{webhook.KeyOrderNumber: "10234567890"},
	}, []byte(`{}`), webhook.PriorityHigh, testNow)
	require.NoError(t, e.StartProcessing(testNow))
	return e
}

func staticHandlers(h DomainHandler) map[webhook.HandlerID]DomainHandler {
	return map[webhook.HandlerID]DomainHandler{
		webhook.HandlerOrderCreate: h,
		webhook.HandlerSystemAlert: h,
	}
}

func TestNewDispatcher_MissingHandler(t *testing.T) {
	handlers := map[webhook.HandlerID]DomainHandler{
		webhook.HandlerOrderCreate: HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
			return HandlerResult{}, nil
		}),
	}
	_, err := NewDispatcher(handlers, testTaxonomy(t), new(MockEventStore), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, webhook.ErrHandlerNotFound)
	assert.Contains(t, err.Error(), string(webhook.HandlerSystemAlert))
}

func TestDispatcher_Completed(t *testing.T) {
	store := new(MockEventStore)
	pub := &recordingPublisher{}
	var got HandlerRequest
	h := HandlerFunc(func(_ context.Context, req HandlerRequest) (HandlerResult, error) {
		got = req
		return HandlerResult{Message: "order created: 42"}, nil
	})
	d, err := NewDispatcher(staticHandlers(h), testTaxonomy(t), store, nil,
		WithPublisher(pub), WithDispatchClock(func() time.Time { return testNow }))
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventOrderCreated)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusCompleted, "order created: 42").Return(nil)

	res := d.Dispatch(context.Background(), e)
	require.NoError(t, res.Err)
	assert.Equal(t, webhook.StatusCompleted, res.Status)
	assert.Equal(t, webhook.HandlerOrderCreate, res.Handler)
	assert.Equal(t, webhook.StatusCompleted, e.Status)
	assert.Equal(t, "10234567890", got.ExternalID)
	assert.Equal(t, e.ID, got.EventID)
	require.Len(t, pub.events, 1)
	store.AssertExpectations(t)
}

func TestDispatcher_HandlerError(t *testing.T) {
	store := new(MockEventStore)
	pub := &recordingPublisher{}
	core, logs := observer.New(zapcore.InfoLevel)
	h := HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		return HandlerResult{}, errors.New("order service unavailable")
	})
	d, err := NewDispatcher(staticHandlers(h), testTaxonomy(t), store, zap.New(core), WithPublisher(pub))
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventOrderCreated)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusFailed, "order service unavailable").Return(nil)

	res := d.Dispatch(context.Background(), e)
	require.NoError(t, res.Err)
	assert.Equal(t, webhook.StatusFailed, res.Status)
	assert.Equal(t, webhook.StatusFailed, e.Status)
	assert.Empty(t, pub.events)

	entries := logs.FilterMessage("Webhook handler failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID.String(), entries[0].ContextMap()["event_id"])
	store.AssertExpectations(t)
}

func TestDispatcher_PanicBecomesFailure(t *testing.T) {
	store := new(MockEventStore)
	h := HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		panic("nil map")
	})
	d, err := NewDispatcher(staticHandlers(h), testTaxonomy(t), store, nil)
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventSystemError)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusFailed, "handler panic: nil map").Return(nil)

	res := d.Dispatch(context.Background(), e)
	assert.Equal(t, webhook.StatusFailed, res.Status)
	store.AssertExpectations(t)
}

func TestDispatcher_Timeout(t *testing.T) {
	store := new(MockEventStore)
	h := HandlerFunc(func(ctx context.Context, _ HandlerRequest) (HandlerResult, error) {
		<-ctx.Done()
		return HandlerResult{}, ctx.Err()
	})
	d, err := NewDispatcher(staticHandlers(h), testTaxonomy(t), store, nil, WithHandlerTimeout(10*time.Millisecond))
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventOrderCreated)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusFailed, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "timed out after 10ms")
	})).Return(nil)

	res := d.Dispatch(context.Background(), e)
	assert.Equal(t, webhook.StatusFailed, res.Status)
	store.AssertExpectations(t)
}

func TestDispatcher_RejectsUnclaimedEvent(t *testing.T) {
	store := new(MockEventStore)
	d, err := NewDispatcher(staticHandlers(HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		t.Fatal("handler must not run")
		return HandlerResult{}, nil
	})), testTaxonomy(t), store, nil)
	require.NoError(t, err)

	e := webhook.NewWebhookEvent(webhook.CanonicalEnvelope{Sender: webhook.SenderTrendyol, EventType: webhook.EventOrderCreated}, nil, webhook.PriorityHigh, testNow)
	res := d.Dispatch(context.Background(), e)
	assert.ErrorIs(t, res.Err, ErrNotProcessing)
	store.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_UnsupportedSenderFails(t *testing.T) {
	store := new(MockEventStore)
	d, err := NewDispatcher(staticHandlers(HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		return HandlerResult{}, nil
	})), testTaxonomy(t), store, nil)
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventSystemError)
	e.Sender = webhook.SenderN11
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusFailed, mock.Anything).Return(nil)

	res := d.Dispatch(context.Background(), e)
	assert.Equal(t, webhook.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "not supported")
}

func TestDispatcher_StoreFailure(t *testing.T) {
	store := new(MockEventStore)
	pub := &recordingPublisher{}
	d, err := NewDispatcher(staticHandlers(HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		return HandlerResult{Message: "ok"}, nil
	})), testTaxonomy(t), store, nil, WithPublisher(pub))
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventOrderCreated)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusCompleted, "ok").Return(webhook.ErrStore)

	res := d.Dispatch(context.Background(), e)
	assert.ErrorIs(t, res.Err, webhook.ErrStore)
	assert.Empty(t, pub.events, "unrecorded outcomes are not published")
}

func TestDispatcher_PublishFailureDoesNotFailEvent(t *testing.T) {
	store := new(MockEventStore)
	pub := &recordingPublisher{err: errors.New("broker down")}
	d, err := NewDispatcher(staticHandlers(HandlerFunc(func(context.Context, HandlerRequest) (HandlerResult, error) {
		return HandlerResult{Message: "ok"}, nil
	})), testTaxonomy(t), store, nil, WithPublisher(pub))
	require.NoError(t, err)

	e := processingEvent(t, webhook.EventOrderCreated)
	store.On("UpdateStatus", mock.Anything, e.ID, webhook.StatusCompleted, "ok").Return(nil)

	res := d.Dispatch(context.Background(), e)
	require.NoError(t, res.Err)
	assert.Equal(t, webhook.StatusCompleted, res.Status)
}
