package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, in appwebhook.InboundRequest) (*appwebhook.IngestResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appwebhook.IngestResult), args.Error(1)
}

func newWebhookRouter(ing Ingester, maxPayload int64) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.POST("/api/v1/webhooks/:sender", NewWebhookHandler(ing, maxPayload).Receive)
	return router
}

func postWebhook(router *gin.Engine, sender, body string) (*httptest.ResponseRecorder, dto.Response) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+sender, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trendyol-Signature", "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestWebhookHandler_Accepted(t *testing.T) {
	ing := new(MockIngester)
	id := uuid.New()
	ing.On("Ingest", mock.Anything, mock.MatchedBy(func(in appwebhook.InboundRequest) bool {
		return in.Sender == "trendyol" &&
			string(in.Body) == `{"eventType":"OrderCreated"}` &&
			in.Header.Get("X-Trendyol-Signature") == "abc" &&
			!in.ReceivedAt.IsZero()
	})).Return(&appwebhook.IngestResult{EventID: id, Status: webhook.StatusQueued, Message: appwebhook.MsgQueued}, nil)

	w, resp := postWebhook(newWebhookRouter(ing, 0), "trendyol", `{"eventType":"OrderCreated"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, appwebhook.MsgQueued, resp.Message)
	data := resp.Data.(map[string]any)
	assert.Equal(t, id.String(), data["event_id"])
	assert.Equal(t, "queued", data["status"])
	ing.AssertExpectations(t)
}

func TestWebhookHandler_Duplicate(t *testing.T) {
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.Anything).
		Return(&appwebhook.IngestResult{Message: appwebhook.MsgDuplicate, Duplicate: true}, nil)

	w, resp := postWebhook(newWebhookRouter(ing, 0), "trendyol", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appwebhook.MsgDuplicate, resp.Message)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["duplicate"])
	assert.NotContains(t, data, "event_id")
}

func TestWebhookHandler_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad signature", fmt.Errorf("%w from trendyol", webhook.ErrInvalidSignature), http.StatusUnauthorized, dto.ErrCodeInvalidSignature},
		{"unknown sender", fmt.Errorf("%w: %q", webhook.ErrUnknownSender, "acme"), http.StatusNotFound, dto.ErrCodeUnknownSender},
		{"disabled sender", webhook.ErrSenderDisabled, http.StatusNotFound, dto.ErrCodeSenderDisabled},
		{"malformed", fmt.Errorf("%w: unexpected EOF", webhook.ErrInvalidPayload), http.StatusBadRequest, dto.ErrCodeInvalidPayload},
		{"unknown event", webhook.ErrUnknownEventType, http.StatusBadRequest, dto.ErrCodeUnknownEvent},
		{"rate limited", fmt.Errorf("%w for trendyol", appwebhook.ErrRateLimited), http.StatusTooManyRequests, dto.ErrCodeRateLimited},
		{"store down", fmt.Errorf("%w: connection refused", webhook.ErrStore), http.StatusInternalServerError, dto.ErrCodeStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := new(MockIngester)
			ing.On("Ingest", mock.Anything, mock.Anything).Return(nil, tt.err)

			w, resp := postWebhook(newWebhookRouter(ing, 0), "trendyol", `{}`)

			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestWebhookHandler_InternalMessageHidden(t *testing.T) {
	ing := new(MockIngester)
	ing.On("Ingest", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: pq: password authentication failed", webhook.ErrStore))

	_, resp := postWebhook(newWebhookRouter(ing, 0), "trendyol", `{}`)

	assert.NotContains(t, resp.Message, "password")
}

func TestWebhookHandler_PayloadTooLarge(t *testing.T) {
	ing := new(MockIngester)
	router := newWebhookRouter(ing, 8)

	w, resp := postWebhook(router, "trendyol", `{"eventType":"OrderCreated"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, resp.Error.Code)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestWebhookHandler_BodyLimitMiddlewareCap(t *testing.T) {
	ing := new(MockIngester)
	router := gin.New()
	router.POST("/api/v1/webhooks/:sender", middleware.BodyLimit(4), NewWebhookHandler(ing, 1024).Receive)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/n11", bytes.NewReader([]byte("0123456789")))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	ing.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWebhookHandler_ReadFailure(t *testing.T) {
	ing := new(MockIngester)
	router := newWebhookRouter(ing, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/n11", errReader{})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
