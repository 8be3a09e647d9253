package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Tenant is one restaurant instance on the platform. MinimumOrder and
// DeliveryFee are NUMERIC NOT NULL DEFAULT 0 so a missing configuration
// always decodes as zero.
type Tenant struct {
	ID           int64
	Name         string
	Slug         string
	MinimumOrder pgtype.Numeric
	DeliveryFee  pgtype.Numeric
	Active       bool
	CreatedAt    time.Time
}

type User struct {
	ID             int64
	TenantID       int64
	Email          string
	HashedPassword string
	FullName       string
	Role           string
	CreatedAt      time.Time
}

type Customer struct {
	ID        int64
	TenantID  int64
	Name      string
	Phone     string
	Address   pgtype.Text
	CreatedAt time.Time
}

type Product struct {
	ID        int64
	TenantID  int64
	Name      string
	Price     pgtype.Numeric
	Available bool
	CreatedAt time.Time
}

// Offer is a promotional bundle sold at a special price. ProductID is the
// offer's own concrete product reference; it may be null, in which case order
// creation falls back to any product of the tenant.
type Offer struct {
	ID        int64
	TenantID  int64
	Title     string
	Price     pgtype.Numeric
	ProductID pgtype.Int8
	Active    bool
	CreatedAt time.Time
}

// Order is the authoritative order row. Each non-initial status has its own
// nullable timestamp, written exactly once on first arrival at that status.
type Order struct {
	ID              int64
	TenantID        int64
	CustomerID      pgtype.Int8
	StaffID         pgtype.Int8
	OrderNumber     string
	FulfillmentType string
	Status          string
	Subtotal        pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	Total           pgtype.Numeric
	DeliveryAddress pgtype.Text
	Notes           pgtype.Text
	CreatedAt       time.Time
	ConfirmedAt     pgtype.Timestamptz
	PreparingAt     pgtype.Timestamptz
	ReadyAt         pgtype.Timestamptz
	DeliveredAt     pgtype.Timestamptz
}

// OrderLine is exclusively owned by its Order and never mutated after
// creation. LineKind records provenance explicitly; DisplayNote still carries
// the legacy "[OFFER] " marker for downstream ticket consumers.
type OrderLine struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	Quantity        int32
	UnitPrice       pgtype.Numeric
	LineSubtotal    pgtype.Numeric
	LineKind        string
	OriginReference pgtype.Int8
	DisplayNote     pgtype.Text
}

// ActiveOrderRow is an order in the kitchen's active set, joined with the
// customer for display and printing.
type ActiveOrderRow struct {
	Order
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
}

// OrderLineRow is an order line joined with the resolved product name.
type OrderLineRow struct {
	OrderLine
	ProductName string
}

// TodayStats summarizes the tenant's non-cancelled orders for the current
// calendar day.
type TodayStats struct {
	OrderCount int64
	Revenue    pgtype.Numeric
}
