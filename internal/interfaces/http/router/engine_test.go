package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/auth"
	"github.com/meschain/webhook-gateway/internal/infrastructure/collaborator"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/infrastructure/marketplace"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence/models"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/handler"
)

const (
	testJWTSecret   = "test-secret-at-least-32-bytes-long!"
	trendyolSecret  = "secret-trendyol"
	webhookEndpoint = "/api/v1/webhooks/"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// collaboratorStub records the calls the handlers make to the downstream
// services.
type collaboratorStub struct {
	mu    sync.Mutex
	calls []string
}

func (s *collaboratorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{}`))
}

func (s *collaboratorStub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type gateway struct {
	engine *gin.Engine
	repo   *persistence.GormWebhookEventRepository
	tokens *auth.TokenService
	stub   *collaboratorStub
	health *handler.HealthHandler
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.WebhookEventModel{}, &models.RestockModel{}))
	repo := persistence.NewGormWebhookEventRepository(db)

	tax, aliases, err := config.LoadTaxonomy("", webhook.AllHandlerIDs())
	require.NoError(t, err)
	cred := marketplace.DefaultCredential(webhook.SenderTrendyol)
	cred.Secret = trendyolSecret
	registry := marketplace.NewDefaultRegistry(
		marketplace.Credentials{webhook.SenderTrendyol: cred}, aliases, marketplace.RegistryOptions{})

	stub := &collaboratorStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	services, err := collaborator.NewServices(config.CollaboratorsConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	log := zap.NewNop()
	handlers, err := appwebhook.NewHandlers(appwebhook.Collaborators{
		Orders:        services.Orders,
		Inventory:     services.Inventory,
		Pricing:       services.Pricing,
		Listings:      services.Listings,
		Notifications: services.Notifications,
	}, repo, persistence.NewGormRestockLedger(db), log)
	require.NoError(t, err)
	dispatcher, err := appwebhook.NewDispatcher(handlers, tax, repo, log)
	require.NoError(t, err)
	ingest, err := appwebhook.NewIngestService(appwebhook.IngestServiceConfig{
		Adapters:   registry,
		Taxonomy:   tax,
		Store:      repo,
		Scheduler:  appwebhook.NewScheduler(appwebhook.DefaultSchedulerConfig()),
		Dispatcher: dispatcher,
		Logger:     log,
	})
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: testJWTSecret, Issuer: "meschain"})
	require.NoError(t, err)

	health := handler.NewHealthHandler(pingFunc(sqlDB.PingContext), "test")
	engine, err := NewEngine(EngineConfig{
		ServiceName: "webhook-gateway-test",
		Logger:      log,
		Tokens:      tokens,
	}, Handlers{
		Webhook: handler.NewWebhookHandler(ingest, 0),
		Admin:   handler.NewAdminHandler(appwebhook.NewAdminService(repo, webhook.DefaultMaxAttempts, log)),
		Health:  health,
	})
	require.NoError(t, err)

	return &gateway{engine: engine, repo: repo, tokens: tokens, stub: stub, health: health}
}

func (g *gateway) deliver(t *testing.T, sender, body, secret string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, webhookEndpoint+sender, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	prefix := webhook.Sender(sender).HeaderPrefix()
	req.Header.Set(prefix+"-Signature", marketplace.Sign([]byte(body), secret))
	req.Header.Set(prefix+"-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	return g.do(t, req)
}

func (g *gateway) admin(t *testing.T, method, path string, roles ...string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/admin"+path, nil)
	if len(roles) > 0 {
		token, err := g.tokens.Issue("ops@meschain.local", roles, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return g.do(t, req)
}

func (g *gateway) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	g.engine.ServeHTTP(w, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func (g *gateway) count(t *testing.T) int64 {
	t.Helper()
	_, total, err := g.repo.History(context.Background(), webhook.HistoryFilter{})
	require.NoError(t, err)
	return total
}

func orderCreated() string {
	return `{"eventType":"OrderCreated","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `",` +
		`"data":{"orderNumber":"10234567890","lines":[{"barcode":"BC-1","quantity":1,"salePrice":99.9}]}}`
}

func TestEngine_QueuesSignedDelivery(t *testing.T) {
	g := newGateway(t)

	w, resp := g.deliver(t, "trendyol", orderCreated(), trendyolSecret)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, appwebhook.MsgQueued, resp.Message)
	ack := resp.Data.(map[string]any)
	assert.Equal(t, "queued", ack["status"])
	assert.NotEmpty(t, ack["event_id"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, int64(1), g.count(t))
	assert.Empty(t, g.stub.Calls(), "queued events are not dispatched inline")
}

func TestEngine_CriticalEventReachesNotificationService(t *testing.T) {
	g := newGateway(t)

	body := `{"eventType":"system.error","data":{"message":"settlement service down"}}`
	w, resp := g.deliver(t, "trendyol", body, trendyolSecret)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", resp.Data.(map[string]any)["status"])
	assert.Equal(t, []string{"POST /notification-api/notifications"}, g.stub.Calls())
}

func TestEngine_RejectsTamperedSignature(t *testing.T) {
	g := newGateway(t)

	w, resp := g.deliver(t, "trendyol", orderCreated(), "not-the-secret")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeInvalidSignature, resp.Error.Code)
	assert.Zero(t, g.count(t))
}

func TestEngine_UnknownSender(t *testing.T) {
	g := newGateway(t)

	w, resp := g.deliver(t, "etsy", orderCreated(), "whatever")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeUnknownSender, resp.Error.Code)
}

func TestEngine_RejectsOversizedPayload(t *testing.T) {
	g := newGateway(t)

	body := `{"eventType":"OrderCreated","data":{"note":"` + strings.Repeat("x", handler.DefaultMaxPayloadSize) + `"}}`
	w, _ := g.deliver(t, "trendyol", body, trendyolSecret)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, g.count(t))
}

func TestEngine_AdminRequiresToken(t *testing.T) {
	g := newGateway(t)
	_, resp := g.deliver(t, "trendyol", orderCreated(), trendyolSecret)
	id := resp.Data.(map[string]any)["event_id"].(string)

	w, _ := g.admin(t, http.MethodGet, "/events")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp = g.admin(t, http.MethodGet, "/events", auth.RoleViewer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)

	w, _ = g.admin(t, http.MethodGet, "/events/"+id, auth.RoleViewer)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = g.admin(t, http.MethodGet, "/stats?period=1h", auth.RoleViewer)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = g.admin(t, http.MethodPost, "/events/"+id+"/retry", auth.RoleViewer)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, dto.ErrCodeForbidden, resp.Error.Code)

	w, resp = g.admin(t, http.MethodPost, "/events/"+id+"/retry", auth.RoleOperator)
	assert.Equal(t, http.StatusConflict, w.Code, "only failed events can be retried")
	assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
}

func TestEngine_HealthChecks(t *testing.T) {
	g := newGateway(t)

	w, _ := g.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w, _ = g.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	g.health.SetReady(false)
	w, _ = g.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = g.do(t, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "swagger is off unless enabled")
}

func TestNewEngine_Validation(t *testing.T) {
	ok := handler.NewHealthHandler(nil, "test")
	webhookHandler := handler.NewWebhookHandler(nil, 0)

	_, err := NewEngine(EngineConfig{}, Handlers{Health: ok})
	assert.Error(t, err)

	_, err = NewEngine(EngineConfig{}, Handlers{
		Webhook: webhookHandler,
		Health:  ok,
		Admin:   handler.NewAdminHandler(nil),
	})
	assert.ErrorContains(t, err, "token verifier")

	_, err = NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}}, Handlers{Webhook: webhookHandler, Health: ok})
	assert.Error(t, err)

	engine, err := NewEngine(EngineConfig{SwaggerEnabled: true}, Handlers{Webhook: webhookHandler, Health: ok})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Marketplace Webhook Gateway API")
}
