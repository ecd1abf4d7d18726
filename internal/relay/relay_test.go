package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/marketplace"
)

func TestGenerator_PayloadLayout(t *testing.T) {
	g := NewGenerator(42)

	tests := []struct {
		sender     webhook.Sender
		eventField string
		dataField  string
	}{
		{webhook.SenderTrendyol, "eventType", "data"},
		{webhook.SenderOzon, "event_type", "data"},
		{webhook.SenderAmazon, "notificationType", "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.sender.String(), func(t *testing.T) {
			raw, err := g.Payload(tt.sender, webhook.EventOrderCreated)
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "order.created", body[tt.eventField])
			data, ok := body[tt.dataField].(map[string]any)
			require.True(t, ok)
			assert.NotEmpty(t, data[webhook.KeyOrderNumber])
			assert.NotEmpty(t, data[webhook.KeyLines])
		})
	}
}

func TestGenerator_FamilyFields(t *testing.T) {
	g := NewGenerator(7)

	raw, err := g.Payload(webhook.SenderN11, webhook.EventInventoryUpdated)
	require.NoError(t, err)
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, strings.HasPrefix(body.Data[webhook.KeySKU].(string), "SKU-"))
	assert.Contains(t, body.Data, webhook.KeyQuantity)
}

func TestGenerator_SeedIsDeterministic(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	a, b := NewGenerator(99), NewGenerator(99)
	a.now, b.now = fixed, fixed

	pa, err := a.Payload(webhook.SenderTrendyol, webhook.EventPriceUpdated)
	require.NoError(t, err)
	pb, err := b.Payload(webhook.SenderTrendyol, webhook.EventPriceUpdated)
	require.NoError(t, err)
	assert.JSONEq(t, string(pa), string(pb))
}

func TestGenerator_UnsupportedSender(t *testing.T) {
	_, err := NewGenerator(1).Payload(webhook.SenderEbay, webhook.EventOrderCreated)
	assert.ErrorIs(t, err, ErrUnsupportedSender)
	assert.NotContains(t, SupportedSenders(), webhook.SenderEbay)
}

type captured struct {
	path   string
	header http.Header
	body   []byte
}

func recordingServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{path: r.URL.Path, header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestClient_SendSignsDelivery(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusOK)
	c, err := NewClient(Config{
		BaseURL: srv.URL + "/",
		Secrets: map[webhook.Sender]string{webhook.SenderTrendyol: "secret-trendyol"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	body := []byte(`{"eventType":"order.created","data":{"order_number":"1"}}`)
	res, err := c.Send(context.Background(), Delivery{Sender: webhook.SenderTrendyol, EventType: webhook.EventOrderCreated, Body: body})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/v1/webhooks/trendyol", reqs[0].path)
	assert.Equal(t, marketplace.Sign(body, "secret-trendyol"), reqs[0].header.Get("X-Trendyol-Signature"))
	assert.Equal(t, "order.created", reqs[0].header.Get("X-Trendyol-Event"))
	_, ok := marketplace.ParseTimestamp(reqs[0].header.Get("X-Trendyol-Timestamp"))
	assert.True(t, ok)
	assert.Equal(t, body, reqs[0].body)
}

func TestClient_UnsignedWithoutSecret(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusUnauthorized)
	c, err := NewClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	res, err := c.Send(context.Background(), Delivery{Sender: webhook.SenderN11, Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, requests()[0].header.Get("X-N11-Signature"))
}

func TestClient_RunTalliesStatuses(t *testing.T) {
	srv, requests := recordingServer(t, http.StatusOK)
	c, err := NewClient(Config{
		BaseURL: srv.URL,
		Secrets: map[webhook.Sender]string{webhook.SenderOzon: "s"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	g := NewGenerator(3)
	sum, err := c.Run(context.Background(), 5, func(int) (Delivery, error) {
		body, err := g.Payload(webhook.SenderOzon, webhook.EventOrderShipped)
		return Delivery{Sender: webhook.SenderOzon, EventType: webhook.EventOrderShipped, Body: body}, err
	})
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Sent)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, 5, sum.ByStatus[http.StatusOK])
	assert.Len(t, requests(), 5)
}

func TestClient_RunCountsTransportErrors(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusOK)
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url, Timeout: time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sum, err := c.Run(context.Background(), 2, func(int) (Delivery, error) {
		return Delivery{Sender: webhook.SenderN11, Body: []byte(`{}`)}, nil
	})
	require.NoError(t, err)
	assert.Zero(t, sum.Sent)
	assert.Equal(t, 2, sum.Failed)
}

func TestClient_RunStopsOnCancel(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusOK)
	c, err := NewClient(Config{BaseURL: srv.URL, QPS: 0.001}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sum, err := c.Run(ctx, 10, func(int) (Delivery, error) {
		return Delivery{Sender: webhook.SenderN11, Body: []byte(`{}`)}, nil
	})
	assert.Error(t, err)
	assert.Equal(t, 1, sum.Sent, "the burst token covers the first delivery")
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}
