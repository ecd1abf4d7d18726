package collaborator

import (
	"context"
	"net/http"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderClient implements webhook.OrderService.
type OrderClient struct {
	c *Client
}

// NewOrderClient wraps c.
func NewOrderClient(c *Client) *OrderClient {
	return &OrderClient{c: c}
}

// FindOrder fetches one order or shared.ErrNotFound
func (o *OrderClient) FindOrder(ctx context.Context, sender webhook.Sender, externalOrderID string) (*webhook.OrderRef, error) {
	var ref webhook.OrderRef
	if err := o.c.do(ctx, http.MethodGet, o.c.path("orders", sender.String(), externalOrderID), nil, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// CreateOrder creates a local order. The service answers 409 when the
// order already exists.
func (o *OrderClient) CreateOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	var ref webhook.OrderRef
	if err := o.c.do(ctx, http.MethodPost, o.c.path("orders"), cmd, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (o *OrderClient) UpdateOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	var ref webhook.OrderRef
	target := o.c.path("orders", cmd.Sender.String(), cmd.ExternalOrderID)
	if err := o.c.do(ctx, http.MethodPut, target, cmd, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (o *OrderClient) CancelOrder(ctx context.Context, cmd webhook.OrderCommand) (*webhook.OrderRef, error) {
	var ref webhook.OrderRef
	target := o.c.path("orders", cmd.Sender.String(), cmd.ExternalOrderID, "cancel")
	if err := o.c.do(ctx, http.MethodPost, target, cmd, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

var _ webhook.OrderService = (*OrderClient)(nil)

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// InventoryClient implements webhook.InventoryService.
type InventoryClient struct {
	c *Client
}

// NewInventoryClient wraps c.
func NewInventoryClient(c *Client) *InventoryClient {
	return &InventoryClient{c: c}
}

// UpdateStock sets the available quantity; unknown SKUs yield shared.ErrNotFound
func (i *InventoryClient) UpdateStock(ctx context.Context, update webhook.StockUpdate) error {
	return i.c.do(ctx, http.MethodPut, i.c.path("stock", update.Sender.String(), update.SKU), update, nil)
}

func (i *InventoryClient) RestoreStock(ctx context.Context, restore webhook.StockRestore) error {
	return i.c.do(ctx, http.MethodPost, i.c.path("stock", restore.Sender.String(), restore.SKU, "restore"), restore, nil)
}

var _ webhook.InventoryService = (*InventoryClient)(nil)

// ---------------------------------------------------------------------------
// Pricing
// ---------------------------------------------------------------------------

// PricingClient implements webhook.PricingService.
type PricingClient struct {
	c *Client
}

// NewPricingClient wraps c.
func NewPricingClient(c *Client) *PricingClient {
	return &PricingClient{c: c}
}

type pricesResponse struct {
	Missing []string `json:"missing"`
}

// UpdatePrices applies updates in one batch and returns the unmapped SKUs
func (p *PricingClient) UpdatePrices(ctx context.Context, updates []webhook.PriceUpdate) ([]string, error) {
	var resp pricesResponse
	if err := p.c.do(ctx, http.MethodPost, p.c.path("prices"), map[string]any{"updates": updates}, &resp); err != nil {
		return nil, err
	}
	return resp.Missing, nil
}

var _ webhook.PricingService = (*PricingClient)(nil)

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// ListingClient implements webhook.ListingService.
type ListingClient struct {
	c *Client
}

// NewListingClient wraps c.
func NewListingClient(c *Client) *ListingClient {
	return &ListingClient{c: c}
}

func (l *ListingClient) UpdateApprovalStatus(ctx context.Context, update webhook.ApprovalUpdate) error {
	return l.c.do(ctx, http.MethodPut, l.c.path("listings", update.Sender.String(), update.SKU, "approval"), update, nil)
}

func (l *ListingClient) RecordIssues(ctx context.Context, update webhook.IssuesUpdate) error {
	return l.c.do(ctx, http.MethodPut, l.c.path("listings", update.Sender.String(), update.SKU, "issues"), update, nil)
}

var _ webhook.ListingService = (*ListingClient)(nil)

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

// NotificationClient implements webhook.NotificationService over HTTP.
type NotificationClient struct {
	c *Client
}

// NewNotificationClient wraps c.
func NewNotificationClient(c *Client) *NotificationClient {
	return &NotificationClient{c: c}
}

func (n *NotificationClient) Notify(ctx context.Context, notificationType string, payload map[string]any) error {
	body := map[string]any{
		"type":    notificationType,
		"payload": payload,
	}
	return n.c.do(ctx, http.MethodPost, n.c.path("notifications"), body, nil)
}

var _ webhook.NotificationService = (*NotificationClient)(nil)
