package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Local order statuses set by the handlers when the sender sends none.
var defaultOrderStatus = map[webhook.EventType]string{
	webhook.EventOrderShipped:   "shipped",
	webhook.EventOrderDelivered: "delivered",
	webhook.EventOrderCancelled: "cancelled",
	webhook.EventOrderReturned:  "returned",
}

// orderCommand extracts an order command from canonical data.
func orderCommand(req HandlerRequest) webhook.OrderCommand {
	d := req.Data
	cmd := webhook.OrderCommand{
		Sender:          req.Sender,
		ExternalOrderID: d.FirstString(webhook.KeyOrderNumber),
		Status:          d.String(webhook.KeyStatus),
		Currency:        d.String(webhook.KeyCurrency),
		CustomerName:    d.String(webhook.KeyCustomerName),
		TrackingNumber:  d.String(webhook.KeyTrackingCode),
		CargoProvider:   d.FirstString("cargo_provider", "cargoProviderName"),
		Reason:          d.FirstString(webhook.KeyReason, "returnReason", "cancelReason"),
		Lines:           orderLines(d),
	}
	if cmd.ExternalOrderID == "" {
		cmd.ExternalOrderID = req.ExternalID
	}
	if total, ok := d.Decimal(webhook.KeyTotalAmount); ok {
		cmd.TotalAmount = total
	}
	if cmd.Status == "" {
		cmd.Status = defaultOrderStatus[req.EventType]
	}
	return cmd
}

// orderLines reads the line list, falling back to a single line from the
// top-level SKU.
func orderLines(d webhook.CanonicalData) []webhook.OrderLine {
	items := d.Slice(webhook.KeyLines)
	if len(items) == 0 {
		items = d.Slice(webhook.KeyItems)
	}
	if len(items) == 0 && d.String(webhook.KeySKU) != "" {
		items = []webhook.CanonicalData{d}
	}

	lines := make([]webhook.OrderLine, 0, len(items))
	for _, it := range items {
		sku := it.FirstString(webhook.KeySKU, "barcode")
		if sku == "" {
			continue
		}
		line := webhook.OrderLine{SKU: sku}
		if q, ok := it.Int(webhook.KeyQuantity); ok {
			line.Quantity = q
		}
		if p, ok := it.Decimal(webhook.KeyPrice); ok {
			line.Price = p
		}
		lines = append(lines, line)
	}
	return lines
}

// orderCreate creates the order unless a completed creation for the same
// external id exists or the order service already knows it. In that case
// the order is updated instead and the event reports a skip.
func (h *domainHandlers) orderCreate(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	cmd := orderCommand(req)
	if err := h.check(cmd); err != nil {
		return HandlerResult{}, err
	}

	exists, err := h.orderExists(ctx, req, cmd)
	if err != nil {
		return HandlerResult{}, err
	}
	if !exists {
		ref, err := h.c.Orders.CreateOrder(ctx, cmd)
		switch {
		case err == nil:
			return HandlerResult{Message: "order created: " + refID(ref, cmd)}, nil
		case errors.Is(err, shared.ErrAlreadyExists):
			// Lost a race with a concurrent delivery for the same order.
		default:
			return HandlerResult{}, fmt.Errorf("create order %s: %w", cmd.ExternalOrderID, err)
		}
	}

	if _, err := h.c.Orders.UpdateOrder(ctx, cmd); err != nil && !isNotFound(err) {
		return HandlerResult{}, fmt.Errorf("update existing order %s: %w", cmd.ExternalOrderID, err)
	}
	h.logger.Info("Order already exists, skipping creation",
		zap.String("sender", string(req.Sender)),
		zap.String("order_number", cmd.ExternalOrderID),
	)
	return HandlerResult{Message: msgOrderExists, Skipped: true}, nil
}

func (h *domainHandlers) orderExists(ctx context.Context, req HandlerRequest, cmd webhook.OrderCommand) (bool, error) {
	prior, err := h.store.FindByExternalID(ctx, req.Sender, cmd.ExternalOrderID)
	if err != nil {
		return false, fmt.Errorf("look up prior events: %w", err)
	}
	if prior != nil && prior.ID != req.EventID && prior.EventType == webhook.EventOrderCreated {
		return true, nil
	}

	ref, err := h.c.Orders.FindOrder(ctx, req.Sender, cmd.ExternalOrderID)
	switch {
	case err == nil:
		return ref != nil, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("find order %s: %w", cmd.ExternalOrderID, err)
	}
}

// orderUpdate covers status changes, shipment and delivery.
func (h *domainHandlers) orderUpdate(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	cmd := orderCommand(req)
	if err := h.check(cmd); err != nil {
		return HandlerResult{}, err
	}
	ref, err := h.c.Orders.UpdateOrder(ctx, cmd)
	if isNotFound(err) {
		return HandlerResult{Message: msgOrderNotFound, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("update order %s: %w", cmd.ExternalOrderID, err)
	}
	return HandlerResult{Message: fmt.Sprintf("order updated: %s (%s)", refID(ref, cmd), cmd.Status)}, nil
}

// orderCancel cancels the order and returns its lines to stock.
func (h *domainHandlers) orderCancel(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	cmd := orderCommand(req)
	if err := h.check(cmd); err != nil {
		return HandlerResult{}, err
	}
	ref, err := h.c.Orders.CancelOrder(ctx, cmd)
	if isNotFound(err) {
		return HandlerResult{Message: msgOrderNotFound, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("cancel order %s: %w", cmd.ExternalOrderID, err)
	}

	n, err := h.restoreLines(ctx, req.EventID, cmd.Sender, cmd.ExternalOrderID, linesOf(ref, cmd))
	if err != nil {
		return HandlerResult{}, err
	}
	return HandlerResult{Message: "order cancelled, " + n.String()}, nil
}

// orderReturn marks the order returned and returns its lines to stock.
func (h *domainHandlers) orderReturn(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	cmd := orderCommand(req)
	cmd.Status = "returned"
	if err := h.check(cmd); err != nil {
		return HandlerResult{}, err
	}
	ref, err := h.c.Orders.UpdateOrder(ctx, cmd)
	if isNotFound(err) {
		return HandlerResult{Message: msgOrderNotFound, Skipped: true}, nil
	}
	if err != nil {
		return HandlerResult{}, fmt.Errorf("return order %s: %w", cmd.ExternalOrderID, err)
	}

	n, err := h.restoreLines(ctx, req.EventID, cmd.Sender, cmd.ExternalOrderID, linesOf(ref, cmd))
	if err != nil {
		return HandlerResult{}, err
	}
	return HandlerResult{Message: "order returned, " + n.String()}, nil
}

// refID returns the local order id, or the external id when the order
// service did not return one.
func refID(ref *webhook.OrderRef, cmd webhook.OrderCommand) string {
	if ref == nil || ref.ID == "" {
		return cmd.ExternalOrderID
	}
	return ref.ID
}

// linesOf prefers the lines in the event and falls back to the lines the
// order service returned.
func linesOf(ref *webhook.OrderRef, cmd webhook.OrderCommand) []webhook.OrderLine {
	if len(cmd.Lines) > 0 || ref == nil {
		return cmd.Lines
	}
	return ref.Lines
}

// restockCount tallies one restoreLines pass.
type restockCount struct {
	restored, already int
}

func (n restockCount) String() string {
	if n.already == 0 {
		return fmt.Sprintf("%d line(s) restocked", n.restored)
	}
	return fmt.Sprintf("%d line(s) restocked, %d already restocked", n.restored, n.already)
}

// restoreLines restocks every SKU with a positive quantity once per order.
// Each SKU is claimed in the restock ledger before the inventory call and
// released when the call fails, so a retry after a partial failure and a
// redelivered cancellation only touch lines that never went back to stock.
// SKUs without a local mapping are skipped.
func (h *domainHandlers) restoreLines(ctx context.Context, eventID uuid.UUID, sender webhook.Sender, orderID string, lines []webhook.OrderLine) (restockCount, error) {
	var n restockCount
	for _, line := range mergeLines(lines) {
		restore := webhook.StockRestore{
			Sender:          sender,
			SKU:             line.SKU,
			Quantity:        line.Quantity,
			ExternalOrderID: orderID,
		}
		if err := h.check(restore); err != nil {
			return n, err
		}

		key := webhook.RestockKey{Sender: sender, ExternalOrderID: orderID, SKU: line.SKU}
		claimed, err := h.restocks.ClaimRestock(ctx, key, eventID, line.Quantity)
		if err != nil {
			return n, fmt.Errorf("claim restock %s: %w", line.SKU, err)
		}
		if !claimed {
			h.logger.Debug("Line already restocked",
				zap.String("order_number", orderID),
				zap.String("sku", line.SKU),
			)
			n.already++
			continue
		}

		err = h.c.Inventory.RestoreStock(ctx, restore)
		if err == nil {
			n.restored++
			continue
		}
		if rerr := h.restocks.ReleaseRestock(ctx, key); rerr != nil {
			h.logger.Error("Failed to release restock claim",
				zap.String("order_number", orderID),
				zap.String("sku", line.SKU),
				zap.Error(rerr),
			)
		}
		if isNotFound(err) {
			h.logger.Debug("No local mapping for restocked SKU", zap.String("sku", line.SKU))
			continue
		}
		return n, fmt.Errorf("restore stock %s: %w", line.SKU, err)
	}
	return n, nil
}

// mergeLines sums quantities per SKU in first-seen order and drops lines
// without a positive quantity.
func mergeLines(lines []webhook.OrderLine) []webhook.OrderLine {
	idx := make(map[string]int, len(lines))
	out := make([]webhook.OrderLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i, ok := idx[l.SKU]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.SKU] = len(out)
		out = append(out, l)
	}
	return out
}
