package marketplace

import (
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// commonExternalIDs are tried for every sender after field renaming.
var commonExternalIDs = []string{webhook.KeyOrderNumber, webhook.KeySKU, "id"}

// DefaultLayouts returns the payload layouts of all supported senders.
func DefaultLayouts() map[webhook.Sender]PayloadLayout {
	return map[webhook.Sender]PayloadLayout{
		webhook.SenderTrendyol: {
			EventFields:      []string{"eventType", "event_type", "type"},
			DataField:        "data",
			TimestampFields:  []string{"timestamp", "eventTime", "data.lastModifiedDate"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"orderNumber":           "order_number",
				"barcode":               "sku",
				"shipmentPackageStatus": "status",
				"salePrice":             "price",
				"totalPrice":            "total_amount",
				"customerFirstName":     "customer_name",
				"cargoTrackingNumber":   "tracking_number",
				"currencyCode":          "currency",
				"rejectReason":          "reason",
			},
		},
		webhook.SenderN11: {
			EventFields:      []string{"eventType", "event_type", "type"},
			DataField:        "data",
			TimestampFields:  []string{"timestamp", "createDate"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"orderNumber":         "order_number",
				"productSellerCode":   "sku",
				"sellerStockCode":     "sku",
				"orderItemList":       "lines",
				"shipmentStatus":      "status",
				"sellerInvoiceAmount": "total_amount",
				"buyerName":           "customer_name",
			},
		},
		webhook.SenderHepsiburada: {
			EventFields:      []string{"eventType", "event_type", "event"},
			DataField:        "data",
			TimestampFields:  []string{"timestamp", "eventDate", "createdAt"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"orderNumber":     "order_number",
				"orderId":         "order_number",
				"merchantSku":     "sku",
				"hepsiburadaSku":  "hb_sku",
				"availableStock":  "quantity",
				"stock":           "quantity",
				"newStatus":       "status",
				"totalPrice":      "total_amount",
				"customerName":    "customer_name",
				"rejectionReason": "reason",
			},
		},
		webhook.SenderOzon: {
			EventFields:      []string{"event_type", "message_type"},
			DataField:        "data",
			TimestampFields:  []string{"timestamp", "changed_state_date", "data.in_process_at"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"posting_number": "order_number",
				"offer_id":       "sku",
				"products":       "lines",
				"new_state":      "status",
				"stock":          "quantity",
				"present":        "quantity",
				"old_price":      "previous_price",
			},
		},
		webhook.SenderPazarama: {
			EventFields:      []string{"event_type", "eventType"},
			DataField:        "data",
			TimestampFields:  []string{"timestamp", "created_at"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"orderNumber": "order_number",
				"order_id":    "order_number",
				"stockCode":   "sku",
				"stock_code":  "sku",
				"orderItems":  "lines",
				"stockCount":  "quantity",
				"orderStatus": "status",
				"totalAmount": "total_amount",
			},
		},
		webhook.SenderAmazon: {
			EventFields:      []string{"notificationType", "NotificationType"},
			DataField:        "payload",
			TimestampFields:  []string{"eventTime", "notificationMetadata.publishTime"},
			ExternalIDFields: commonExternalIDs,
			FieldAliases: map[string]string{
				"amazonOrderId":             "order_number",
				"fulfillmentOrderId":        "order_number",
				"sellerSku":                 "sku",
				"orderStatus":               "status",
				"fulfillmentShipmentStatus": "status",
				"availableQuantity":         "quantity",
				"marketplaceId":             "marketplace_id",
				"inventoryEventDetails":     "items",
				"orderChangeDetails":        "items",
				"offerChangeTrigger":        "trigger",
			},
			Promote: map[string][]string{
				webhook.KeyOrderNumber: {"payload.orderChangeDetails.0.amazonOrderId"},
				webhook.KeyStatus:      {"payload.orderChangeDetails.0.orderStatus"},
			},
		},
		webhook.SenderEbay: {
			EventFields:      []string{"NotificationEventName"},
			TimestampFields:  []string{"Timestamp", "Transaction.CreatedDate"},
			ExternalIDFields: commonExternalIDs,
			Promote: map[string][]string{
				webhook.KeyOrderNumber:  {"Transaction.TransactionID", "OrderID", "ReturnID"},
				webhook.KeySKU:          {"Item.SKU", "Item.ItemID"},
				webhook.KeyQuantity:     {"Transaction.QuantityPurchased", "Item.Quantity"},
				webhook.KeyPrice:        {"Transaction.TransactionPrice", "Item.StartPrice"},
				webhook.KeyStatus:       {"Item.SellingStatus.ListingStatus", "Transaction.Status.CompleteStatus"},
				webhook.KeyCustomerName: {"Transaction.Buyer.UserID", "SenderID"},
				webhook.KeyMessage:      {"Message.Text", "Feedback.CommentText"},
			},
		},
	}
}
