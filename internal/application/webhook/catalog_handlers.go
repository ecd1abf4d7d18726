package webhook

import (
	"context"
	"fmt"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// skuItems returns the per-SKU entries of an event: the items list when
// present, otherwise the event body itself.
func skuItems(d webhook.CanonicalData) []webhook.CanonicalData {
	if items := d.Slice(webhook.KeyItems); len(items) > 0 {
		return items
	}
	if items := d.Slice(webhook.KeyLines); len(items) > 0 {
		return items
	}
	return []webhook.CanonicalData{d}
}

func itemSKU(it webhook.CanonicalData) string {
	return it.FirstString(webhook.KeySKU, "barcode")
}

// inventoryUpdate sets stock per SKU. SKUs the inventory service does not
// know are skipped.
func (h *domainHandlers) inventoryUpdate(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	var updated, unmapped int
	for _, it := range skuItems(req.Data) {
		qty, ok := it.Int(webhook.KeyQuantity)
		if !ok {
			return HandlerResult{}, fmt.Errorf("%w: quantity missing for sku %q", webhook.ErrInvalidPayload, itemSKU(it))
		}
		update := webhook.StockUpdate{
			Sender:    req.Sender,
			SKU:       itemSKU(it),
			Quantity:  qty,
			Warehouse: it.FirstString("warehouse", "warehouse_id", "fulfillment_channel"),
		}
		if err := h.check(update); err != nil {
			return HandlerResult{}, err
		}

		err := h.c.Inventory.UpdateStock(ctx, update)
		if isNotFound(err) {
			unmapped++
			continue
		}
		if err != nil {
			return HandlerResult{}, fmt.Errorf("update stock %s: %w", update.SKU, err)
		}
		updated++
	}

	if updated == 0 {
		return HandlerResult{Message: msgNoMapping, Skipped: true}, nil
	}
	return HandlerResult{Message: countMessage("stock updated", updated, unmapped)}, nil
}

// priceUpdate sends all price changes of the event in one call.
func (h *domainHandlers) priceUpdate(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	items := skuItems(req.Data)
	updates := make([]webhook.PriceUpdate, 0, len(items))
	for _, it := range items {
		listPrice, hasList := it.Decimal("list_price")
		salePrice, hasSale := it.Decimal(webhook.KeyPrice)
		if s, ok := it.Decimal("sale_price"); ok {
			salePrice, hasSale = s, true
		}
		if !hasList && !hasSale {
			return HandlerResult{}, fmt.Errorf("%w: price missing for sku %q", webhook.ErrInvalidPayload, itemSKU(it))
		}
		if !hasList {
			listPrice = salePrice
		}
		if !hasSale {
			salePrice = listPrice
		}
		update := webhook.PriceUpdate{
			Sender:    req.Sender,
			SKU:       itemSKU(it),
			ListPrice: listPrice.Round(2),
			SalePrice: salePrice.Round(2),
			Currency:  it.FirstString(webhook.KeyCurrency, "currency_code"),
		}
		if err := h.check(update); err != nil {
			return HandlerResult{}, err
		}
		updates = append(updates, update)
	}

	missing, err := h.c.Pricing.UpdatePrices(ctx, updates)
	if isNotFound(err) {
		return HandlerResult{Message: msgNoMapping, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("update prices: %w", err)
	}
	if len(missing) >= len(updates) {
		return HandlerResult{Message: msgNoMapping, Skipped: true}, nil
	}
	return HandlerResult{Message: countMessage("prices updated", len(updates)-len(missing), len(missing))}, nil
}

// Listing statuses recorded for product events without an explicit status.
var listingStatusByEvent = map[webhook.EventType]string{
	webhook.EventProductCreated:  "created",
	webhook.EventProductUpdated:  "updated",
	webhook.EventProductDeleted:  "deleted",
	webhook.EventProductApproved: "approved",
	webhook.EventProductRejected: "rejected",
}

// listingStatus records approval, rejection and lifecycle changes.
func (h *domainHandlers) listingStatus(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	status := listingStatusByEvent[req.EventType]
	if status == "" || req.EventType == webhook.EventProductUpdated {
		if s := req.Data.String(webhook.KeyStatus); s != "" {
			status = s
		}
	}
	update := webhook.ApprovalUpdate{
		Sender: req.Sender,
		SKU:    req.Data.FirstString(webhook.KeySKU, "barcode"),
		Status: status,
		Reason: req.Data.FirstString(webhook.KeyReason, webhook.KeyMessage),
	}
	if update.SKU == "" {
		update.SKU = req.ExternalID
	}
	if err := h.check(update); err != nil {
		return HandlerResult{}, err
	}

	err := h.c.Listings.UpdateApprovalStatus(ctx, update)
	if isNotFound(err) {
		return HandlerResult{Message: msgNoMapping, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("update listing %s: %w", update.SKU, err)
	}
	return HandlerResult{Message: fmt.Sprintf("listing %s: %s", update.SKU, update.Status)}, nil
}

// listingIssues replaces the issue set of a listing and alerts on blocking
// issues.
func (h *domainHandlers) listingIssues(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	update := webhook.IssuesUpdate{
		Sender:        req.Sender,
		SKU:           req.Data.FirstString(webhook.KeySKU),
		MarketplaceID: req.Data.String(webhook.KeyMarketplaceID),
	}
	if update.SKU == "" {
		update.SKU = req.ExternalID
	}
	var critical []webhook.ListingIssue
	for _, it := range req.Data.Slice(webhook.KeyIssues) {
		issue := webhook.ListingIssue{
			Code:     it.String("code"),
			Message:  it.String("message"),
			Severity: it.String("severity"),
		}
		update.Issues = append(update.Issues, issue)
		if issue.IsCritical() {
			critical = append(critical, issue)
		}
	}
	if err := h.check(update); err != nil {
		return HandlerResult{}, err
	}

	err := h.c.Listings.RecordIssues(ctx, update)
	if isNotFound(err) {
		return HandlerResult{Message: msgNoMapping, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("record listing issues %s: %w", update.SKU, err)
	}

	if len(critical) > 0 {
		payload := notificationPayload(req)
		payload["sku"] = update.SKU
		payload["critical_issues"] = critical
		if err := h.c.Notifications.Notify(ctx, NotifyListingCriticalIssue, payload); err != nil {
			return HandlerResult{}, fmt.Errorf("notify critical listing issues: %w", err)
		}
	}
	return HandlerResult{Message: fmt.Sprintf("%d issue(s) recorded, %d critical", len(update.Issues), len(critical))}, nil
}

func countMessage(action string, done, unmapped int) string {
	if unmapped == 0 {
		return fmt.Sprintf("%s for %d sku(s)", action, done)
	}
	return fmt.Sprintf("%s for %d sku(s), %d without local mapping", action, done, unmapped)
}
