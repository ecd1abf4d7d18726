package webhook

// Canonical data keys produced by the sender layouts and read by handlers.
const (
	KeyOrderNumber   = "order_number"
	KeyStatus        = "status"
	KeyLines         = "lines"
	KeyItems         = "items"
	KeySKU           = "sku"
	KeyQuantity      = "quantity"
	KeyPrice         = "price"
	KeyCurrency      = "currency"
	KeyReason        = "reason"
	KeyIssues        = "issues"
	KeyMarketplaceID = "marketplace_id"
	KeyCustomerName  = "customer_name"
	KeyTotalAmount   = "total_amount"
	KeyMessage       = "message"
	KeyTrigger       = "trigger"
	KeyTrackingCode  = "tracking_number"
)
