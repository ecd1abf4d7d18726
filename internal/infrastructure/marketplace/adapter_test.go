package marketplace

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

func newTestRegistry(t *testing.T, creds Credentials) *Registry {
	return NewDefaultRegistry(creds, defaultAliases(t), RegistryOptions{Clock: func() time.Time { return fixedNow }})
}

func sqsBody(t *testing.T, inner string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"Type":      "Notification",
		"MessageId": "sqs-msg-1",
		"Message":   inner,
	})
	require.NoError(t, err)
	return b
}

func TestRegistry_Default(t *testing.T) {
	r := newTestRegistry(t, testCredentials())
	assert.Len(t, r.Senders(), len(webhook.AllSenders()))

	a, ok := r.Get(webhook.SenderAmazon)
	require.True(t, ok)
	assert.IsType(t, &AmazonAdapter{}, a)

	creds := testCredentials()
	disabled := creds[webhook.SenderOzon]
	disabled.Enabled = false
	creds[webhook.SenderOzon] = disabled
	r = newTestRegistry(t, creds)
	_, ok = r.Get(webhook.SenderOzon)
	assert.False(t, ok)
}

func TestSignedAdapter_ValidateAndProcess(t *testing.T) {
	r := newTestRegistry(t, testCredentials())
	a, ok := r.Get(webhook.SenderEbay)
	require.True(t, ok)

	body := []byte(itemSoldXML)
	req := &Request{
		Sender:     webhook.SenderEbay,
		Body:       body,
		Header:     signedHeaders(webhook.SenderEbay, body, "secret-ebay", fixedNow),
		ReceivedAt: fixedNow,
	}
	require.True(t, a.Validate(req))
	env, err := a.Process(req)
	require.NoError(t, err)
	assert.Equal(t, webhook.EventOrderCreated, env.EventType)

	req.Header.Set("X-eBay-Signature", Sign(body, "wrong"))
	assert.False(t, a.Validate(req))
}

func TestAmazonAdapter_SQSEnvelope(t *testing.T) {
	r := newTestRegistry(t, testCredentials())
	a, _ := r.Get(webhook.SenderAmazon)

	inner := `{"notificationVersion":"1.0","notificationType":"ORDER_STATUS_CHANGE",` +
		`"payload":{"orderChangeDetails":[{"amazonOrderId":"113-1","orderStatus":"Shipped"}]},` +
		`"notificationMetadata":{"publishTime":"2025-06-10T11:59:30Z","notificationId":"n-1"}}`
	body := sqsBody(t, inner)

	req := &Request{
		Sender: webhook.SenderAmazon,
		Body:   body,
		Header: signedHeaders(webhook.SenderAmazon, []byte(inner), "secret-amazon", fixedNow),
	}
	assert.True(t, a.Validate(req), "signature covers the inner message")

	outer := &Request{Sender: webhook.SenderAmazon, Body: body,
		Header: signedHeaders(webhook.SenderAmazon, body, "secret-amazon", fixedNow)}
	assert.False(t, a.Validate(outer))

	env, err := a.Process(req)
	require.NoError(t, err)
	assert.Equal(t, webhook.EventOrderUpdated, env.EventType)
	assert.Equal(t, "ORDER_STATUS_CHANGE", env.RawEventName)
	assert.Equal(t, "113-1", env.ExternalID)
	assert.Equal(t, "Shipped", env.Data.String(webhook.KeyStatus))
	assert.Equal(t, "sqs-msg-1", env.Data.String("sqs_message_id"))
	items := env.Data.Slice(webhook.KeyItems)
	require.Len(t, items, 1)
	assert.Equal(t, "113-1", items[0].String(webhook.KeyOrderNumber))
}

func TestAmazonAdapter_ListingIssues(t *testing.T) {
	r := newTestRegistry(t, testCredentials())
	a, _ := r.Get(webhook.SenderAmazon)

	inner := []byte(`{"notificationType":"LISTINGS_ITEM_ISSUES_CHANGE","payload":{"sellerSku":"AZ-1","marketplaceId":"ATVPDKIKX0DER",` +
		`"issues":[{"code":"90220","message":"missing title","severity":"ERROR"}]}}`)
	req := &Request{Sender: webhook.SenderAmazon, Body: inner,
		Header: signedHeaders(webhook.SenderAmazon, inner, "secret-amazon", fixedNow)}

	require.True(t, a.Validate(req), "unwrapped notifications are accepted as is")
	env, err := a.Process(req)
	require.NoError(t, err)
	assert.Equal(t, webhook.EventProductIssuesChanged, env.EventType)
	assert.Equal(t, "AZ-1", env.ExternalID)
	assert.Equal(t, "ATVPDKIKX0DER", env.Data.String(webhook.KeyMarketplaceID))
	assert.Len(t, env.Data.Slice(webhook.KeyIssues), 1)
}

func TestAmazonAdapter_Malformed(t *testing.T) {
	a := NewAmazonAdapter(NewVerifier(testCredentials()), newTestJSONNormalizer(t))
	req := &Request{Sender: webhook.SenderAmazon, Body: []byte(`{not json`), Header: http.Header{}}

	assert.False(t, a.Validate(req))
	_, err := a.Process(req)
	assert.ErrorIs(t, err, webhook.ErrInvalidPayload)
}
