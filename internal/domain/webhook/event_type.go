package webhook

// EventType is a canonical, sender-agnostic event name.
type EventType string

// Canonical event names. Sender vocabularies are mapped onto these by the
// per-sender alias tables.
const (
	EventOrderCreated   EventType = "order.created"
	EventOrderUpdated   EventType = "order.updated"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderShipped   EventType = "order.shipped"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderReturned  EventType = "order.returned"

	EventProductCreated       EventType = "product.created"
	EventProductUpdated       EventType = "product.updated"
	EventProductDeleted       EventType = "product.deleted"
	EventProductApproved      EventType = "product.approved"
	EventProductRejected      EventType = "product.rejected"
	EventProductIssuesChanged EventType = "product.issues_changed"

	EventInventoryUpdated    EventType = "inventory.updated"
	EventInventoryLowStock   EventType = "inventory.low_stock"
	EventInventoryOutOfStock EventType = "inventory.out_of_stock"

	EventPriceUpdated          EventType = "price.updated"
	EventPriceCompetitorChange EventType = "price.competitor_change"

	EventCustomerQuestion  EventType = "customer.question"
	EventCustomerReview    EventType = "customer.review"
	EventCustomerComplaint EventType = "customer.complaint"

	EventCampaignStarted EventType = "campaign.started"
	EventCampaignEnded   EventType = "campaign.ended"

	EventSystemMaintenance EventType = "system.maintenance"
	EventSystemError       EventType = "system.error"
)

// String returns the canonical name.
func (e EventType) String() string {
	return string(e)
}

// Category returns the part before the first dot ("order" for
// "order.created").
func (e EventType) Category() string {
	for i := 0; i < len(e); i++ {
		if e[i] == '.' {
			return string(e[:i])
		}
	}
	return string(e)
}

// HandlerID names a domain handler in the dispatch table.
type HandlerID string

const (
	HandlerOrderCreate     HandlerID = "order.create"
	HandlerOrderUpdate     HandlerID = "order.update"
	HandlerOrderCancel     HandlerID = "order.cancel"
	HandlerOrderReturn     HandlerID = "order.return"
	HandlerInventoryUpdate HandlerID = "inventory.update"
	HandlerInventoryAlert  HandlerID = "inventory.alert"
	HandlerPriceUpdate     HandlerID = "price.update"
	HandlerPriceCompetitor HandlerID = "price.competitor"
	HandlerListingStatus   HandlerID = "listing.status"
	HandlerListingIssues   HandlerID = "listing.issues"
	HandlerCustomerNotify  HandlerID = "customer.notify"
	HandlerCampaignNotify  HandlerID = "campaign.notify"
	HandlerSystemAlert     HandlerID = "system.alert"
)

// AllHandlerIDs returns every handler the dispatcher must provide.
func AllHandlerIDs() []HandlerID {
	return []HandlerID{
		HandlerOrderCreate,
		HandlerOrderUpdate,
		HandlerOrderCancel,
		HandlerOrderReturn,
		HandlerInventoryUpdate,
		HandlerInventoryAlert,
		HandlerPriceUpdate,
		HandlerPriceCompetitor,
		HandlerListingStatus,
		HandlerListingIssues,
		HandlerCustomerNotify,
		HandlerCampaignNotify,
		HandlerSystemAlert,
	}
}
