package webhook

import (
	"context"

	"github.com/shopspring/decimal"
)

// Collaborator ports. Domain handlers reach order, inventory, pricing,
// listing and notification state only through these interfaces.
// Implementations report a missing record with shared.ErrNotFound.

// OrderLine is one line of a marketplace order.
type OrderLine struct {
	SKU      string          `json:"sku" validate:"required"`
	Quantity int             `json:"quantity" validate:"gte=0"`
	Price    decimal.Decimal `json:"price"`
}

// OrderCommand carries the identifying and changed fields of an order.
type OrderCommand struct {
	Sender          Sender          `json:"sender" validate:"required"`
	ExternalOrderID string          `json:"external_order_id" validate:"required"`
	Status          string          `json:"status,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CustomerName    string          `json:"customer_name,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	CargoProvider   string          `json:"cargo_provider,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Lines           []OrderLine     `json:"lines,omitempty" validate:"dive"`
}

// OrderRef is the minimal view of a local order.
type OrderRef struct {
	ID         string      `json:"id"`
	ExternalID string      `json:"external_id"`
	Status     string      `json:"status"`
	Lines      []OrderLine `json:"lines,omitempty"`
}

// OrderService creates and mutates local orders. Every call is idempotent
// on the sender and external order id.
type OrderService interface {
	FindOrder(ctx context.Context, sender Sender, externalOrderID string) (*OrderRef, error)
	CreateOrder(ctx context.Context, cmd OrderCommand) (*OrderRef, error)
	UpdateOrder(ctx context.Context, cmd OrderCommand) (*OrderRef, error)
	CancelOrder(ctx context.Context, cmd OrderCommand) (*OrderRef, error)
}

// StockUpdate sets the available quantity of a SKU.
type StockUpdate struct {
	Sender    Sender `json:"sender" validate:"required"`
	SKU       string `json:"sku" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Warehouse string `json:"warehouse,omitempty"`
}

// StockRestore returns reserved quantity to stock.
type StockRestore struct {
	Sender          Sender `json:"sender" validate:"required"`
	SKU             string `json:"sku" validate:"required"`
	Quantity        int    `json:"quantity" validate:"gt=0"`
	ExternalOrderID string `json:"external_order_id,omitempty"`
}

// InventoryService adjusts stock levels.
type InventoryService interface {
	UpdateStock(ctx context.Context, update StockUpdate) error
	RestoreStock(ctx context.Context, restore StockRestore) error
}

// PriceUpdate sets the prices of a SKU.
type PriceUpdate struct {
	Sender    Sender          `json:"sender" validate:"required"`
	SKU       string          `json:"sku" validate:"required"`
	ListPrice decimal.Decimal `json:"list_price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Currency  string          `json:"currency,omitempty"`
}

// PricingService updates product prices. It returns the SKUs that have no
// local mapping; those updates are skipped, not failed.
type PricingService interface {
	UpdatePrices(ctx context.Context, updates []PriceUpdate) (missing []string, err error)
}

// ApprovalUpdate records a marketplace's listing decision.
type ApprovalUpdate struct {
	Sender Sender `json:"sender" validate:"required"`
	SKU    string `json:"sku" validate:"required"`
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// ListingIssue is one problem a marketplace reported on a listing.
type ListingIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// IsCritical reports whether the issue blocks the listing.
func (i ListingIssue) IsCritical() bool {
	return i.Severity == "ERROR"
}

// IssuesUpdate replaces the issue set of a listing.
type IssuesUpdate struct {
	Sender        Sender         `json:"sender" validate:"required"`
	SKU           string         `json:"sku" validate:"required"`
	MarketplaceID string         `json:"marketplace_id,omitempty"`
	Issues        []ListingIssue `json:"issues"`
}

// ListingService records listing approval status and issues.
type ListingService interface {
	UpdateApprovalStatus(ctx context.Context, update ApprovalUpdate) error
	RecordIssues(ctx context.Context, update IssuesUpdate) error
}

// NotificationService fans out operator and customer-service notifications.
type NotificationService interface {
	Notify(ctx context.Context, notificationType string, payload map[string]any) error
}
