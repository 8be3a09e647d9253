package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

const (
	FulfillmentDelivery = "delivery"
	FulfillmentDineIn   = "dine_in"
	FulfillmentTakeaway = "takeaway"
)

// ── Order line provenance (CHECK constrained in DB) ──

const (
	LineKindProduct = "product"
	LineKindOffer   = "offer"
)

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "admin"
	UserRoleCashier = "cashier"
	UserRoleKitchen = "kitchen"
	UserRoleWaiter  = "waiter"
)

// OfferMarker prefixes the display note of legacy offer lines. The kitchen
// ticket strips it back to the bare offer title before printing.
const OfferMarker = "[OFFER] "

// KitchenStatuses is the "active" set the kitchen display polls for, in
// display priority order.
var KitchenStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
}
