package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Collaborators are the services the domain handlers act on.
type Collaborators struct {
	Orders        webhook.OrderService
	Inventory     webhook.InventoryService
	Pricing       webhook.PricingService
	Listings      webhook.ListingService
	Notifications webhook.NotificationService
}

func (c Collaborators) validate() error {
	var missing []string
	if c.Orders == nil {
		missing = append(missing, "orders")
	}
	if c.Inventory == nil {
		missing = append(missing, "inventory")
	}
	if c.Pricing == nil {
		missing = append(missing, "pricing")
	}
	if c.Listings == nil {
		missing = append(missing, "listings")
	}
	if c.Notifications == nil {
		missing = append(missing, "notifications")
	}
	if len(missing) > 0 {
		return fmt.Errorf("handlers: missing collaborators %v", missing)
	}
	return nil
}

// Skip messages
const (
	msgOrderExists   = "skipped: order already exists"
	msgOrderNotFound = "skipped: order not found"
	msgNoMapping     = "skipped: no local mapping"
)

// Notification types sent by the handlers that do not simply forward the
// event type.
const (
	NotifyListingCriticalIssue = "listing.critical_issue"
	NotifySystemAlert          = "system.alert"
)

// domainHandlers holds the shared dependencies of every handler.
type domainHandlers struct {
	c        Collaborators
	store    webhook.EventStore
	restocks webhook.RestockLedger
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers builds the complete handler table, one entry per handler ID.
// restocks keeps cancellations and returns from restocking a line twice.
func NewHandlers(c Collaborators, store webhook.EventStore, restocks webhook.RestockLedger, logger *zap.Logger) (map[webhook.HandlerID]DomainHandler, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("handlers: event store is required")
	}
	if restocks == nil {
		return nil, errors.New("handlers: restock ledger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &domainHandlers{
		c:        c,
		store:    store,
		restocks: restocks,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	return map[webhook.HandlerID]DomainHandler{
		webhook.HandlerOrderCreate:     HandlerFunc(h.orderCreate),
		webhook.HandlerOrderUpdate:     HandlerFunc(h.orderUpdate),
		webhook.HandlerOrderCancel:     HandlerFunc(h.orderCancel),
		webhook.HandlerOrderReturn:     HandlerFunc(h.orderReturn),
		webhook.HandlerInventoryUpdate: HandlerFunc(h.inventoryUpdate),
		webhook.HandlerInventoryAlert:  HandlerFunc(h.forward),
		webhook.HandlerPriceUpdate:     HandlerFunc(h.priceUpdate),
		webhook.HandlerPriceCompetitor: HandlerFunc(h.forward),
		webhook.HandlerListingStatus:   HandlerFunc(h.listingStatus),
		webhook.HandlerListingIssues:   HandlerFunc(h.listingIssues),
		webhook.HandlerCustomerNotify:  HandlerFunc(h.forward),
		webhook.HandlerCampaignNotify:  HandlerFunc(h.forward),
		webhook.HandlerSystemAlert:     HandlerFunc(h.systemAlert),
	}, nil
}

// check validates a collaborator command.
func (h *domainHandlers) check(v any) error {
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", webhook.ErrInvalidPayload, err)
	}
	return nil
}

// notificationPayload is the body forwarded to the notification service.
func notificationPayload(req HandlerRequest) map[string]any {
	return map[string]any{
		"event_id":    req.EventID.String(),
		"sender":      string(req.Sender),
		"event_type":  string(req.EventType),
		"external_id": req.ExternalID,
		"data":        map[string]any(req.Data.Clone()),
	}
}

// forward passes customer, campaign, inventory alert and competitor pricing
// events to the notification service under their own event type.
func (h *domainHandlers) forward(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	if err := h.c.Notifications.Notify(ctx, string(req.EventType), notificationPayload(req)); err != nil {
		return HandlerResult{}, fmt.Errorf("notify %s: %w", req.EventType, err)
	}
	return HandlerResult{Message: "notification sent: " + string(req.EventType)}, nil
}

func (h *domainHandlers) systemAlert(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	payload := notificationPayload(req)
	payload["message"] = req.Data.FirstString(webhook.KeyMessage, "description", "error")
	if err := h.c.Notifications.Notify(ctx, NotifySystemAlert, payload); err != nil {
		return HandlerResult{}, fmt.Errorf("notify operators: %w", err)
	}
	h.logger.Warn("Marketplace system alert",
		zap.String("sender", string(req.Sender)),
		zap.String("event_type", string(req.EventType)),
	)
	return HandlerResult{Message: "operators notified"}, nil
}

// isNotFound reports a collaborator miss.
func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
