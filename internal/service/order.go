package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidFulfillment = errors.New("invalid fulfillment_type")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidUnitPrice   = errors.New("invalid unit_price")
	ErrProductNotFound    = errors.New("product not found in tenant")
	ErrOfferNotFound      = errors.New("offer not found")
	ErrLineUnresolvable   = errors.New("cart line references neither a product nor an offer")
)

// MinimumOrderError reports a subtotal below the tenant's configured minimum,
// carrying the exact required and actual amounts for the caller.
type MinimumOrderError struct {
	Required decimal.Decimal
	Actual   decimal.Decimal
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("minimum order is %s, cart subtotal is %s",
		e.Required.StringFixed(2), e.Actual.StringFixed(2))
}

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Store; narrow interface for testability.
type OrderStore interface {
	GetTenantByID(ctx context.Context, id int64) (database.Tenant, error)
	FindCustomerByPhone(ctx context.Context, arg database.FindCustomerByPhoneParams) (database.Customer, error)
	CreateCustomer(ctx context.Context, arg database.CreateCustomerParams) (database.Customer, error)
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	GetAnyProduct(ctx context.Context, tenantID int64) (database.Product, error)
	GetOffer(ctx context.Context, arg database.GetOfferParams) (database.Offer, error)
	GetNextOrderNumber(ctx context.Context, tenantID int64) (int64, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx), so order
// creation can run its queries inside one transaction.
type NewOrderStore func(db database.DBTX) OrderStore

// CartLineRequest is one transient cart line: a plain product (optionally a
// variant, whose resolved name and price come with the line) or an offer
// bundle. Exactly one of ProductID / OfferID must be set.
type CartLineRequest struct {
	ProductID int64
	OfferID   int64
	Quantity  int32
	Name      string // resolved display name; differs from the base name for variants
	UnitPrice string // optional explicit price override, decimal string
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	TenantID        int64
	StaffID         int64 // waiter flow; 0 means none
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	FulfillmentType string
	DeliveryAddress string
	Notes           string
	Lines           []CartLineRequest
}

// CreateOrderResult is the persisted order with its lines.
type CreateOrderResult struct {
	Order database.Order
	Lines []database.OrderLine
}

// OrderService compiles carts into persisted orders.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// CreateOrder validates the cart, enforces the tenant's minimum-order policy,
// and persists the order with all lines atomically. Retries up to
// maxOrderNumberRetries times on order_number unique constraint violations
// (race where concurrent transactions observe the same daily count).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := validateFulfillmentType(req.FulfillmentType); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("lines[%d]: %w", i, ErrInvalidQuantity)
		}
		if line.ProductID == 0 && line.OfferID == 0 {
			return nil, fmt.Errorf("lines[%d]: %w", i, ErrLineUnresolvable)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	return isUniqueViolation(err, "orders_tenant_id_order_number_key")
}

// isCustomerPhoneConflict checks if the error is a unique constraint
// violation on (tenant_id, phone) of customers.
func isCustomerPhoneConflict(err error) bool {
	return isUniqueViolation(err, "customers_tenant_id_phone_key")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// compiledLine is a priced line ready for insertion.
type compiledLine struct {
	params database.CreateOrderLineParams
}

// createOrderTx executes the full cart compilation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tenant, err := store.GetTenantByID(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	// --- Price every line ---
	subtotal := decimal.Zero
	var lines []compiledLine
	for i, line := range req.Lines {
		var cl compiledLine
		if line.OfferID != 0 {
			cl, err = s.compileOfferLine(ctx, store, req.TenantID, line)
		} else {
			cl, err = s.compileProductLine(ctx, store, req.TenantID, line)
		}
		if err != nil {
			return nil, fmt.Errorf("lines[%d]: %w", i, err)
		}
		subtotal = subtotal.Add(numericToDecimal(cl.params.LineSubtotal))
		lines = append(lines, cl)
	}

	// --- Minimum-order policy: checked before any write ---
	minimum := numericToDecimal(tenant.MinimumOrder)
	if minimum.IsPositive() && subtotal.LessThan(minimum) {
		return nil, &MinimumOrderError{Required: minimum, Actual: subtotal}
	}

	// --- Delivery fee and total; total is never recomputed after creation ---
	deliveryFee := decimal.Zero
	if req.FulfillmentType == enum.FulfillmentDelivery {
		deliveryFee = numericToDecimal(tenant.DeliveryFee)
	}
	total := subtotal.Add(deliveryFee)

	// --- Find or create the customer ---
	customerID := pgtype.Int8{}
	if req.CustomerPhone != "" {
		customer, err := store.FindCustomerByPhone(ctx, database.FindCustomerByPhoneParams{
			TenantID: req.TenantID,
			Phone:    req.CustomerPhone,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			address := pgtype.Text{}
			if req.CustomerAddress != "" {
				address = pgtype.Text{String: req.CustomerAddress, Valid: true}
			}
			customer, err = store.CreateCustomer(ctx, database.CreateCustomerParams{
				TenantID: req.TenantID,
				Name:     req.CustomerName,
				Phone:    req.CustomerPhone,
				Address:  address,
			})
			if isCustomerPhoneConflict(err) {
				// A concurrent first order from this phone won the insert.
				customer, err = store.FindCustomerByPhone(ctx, database.FindCustomerByPhoneParams{
					TenantID: req.TenantID,
					Phone:    req.CustomerPhone,
				})
			}
		}
		if err != nil {
			return nil, fmt.Errorf("resolve customer: %w", err)
		}
		customerID = pgtype.Int8{Int64: customer.ID, Valid: true}
	}

	staffID := pgtype.Int8{}
	if req.StaffID != 0 {
		staffID = pgtype.Int8{Int64: req.StaffID, Valid: true}
	}

	deliveryAddress := pgtype.Text{}
	if req.DeliveryAddress != "" {
		deliveryAddress = pgtype.Text{String: req.DeliveryAddress, Valid: true}
	}
	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	// --- Generate the daily order number inside this transaction ---
	seq, err := store.GetNextOrderNumber(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	// Past 9999 in one day the number widens to five digits instead of
	// truncating; uniqueness still holds.
	orderNumber := fmt.Sprintf("%s-%04d", time.Now().Format("20060102"), seq)

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		TenantID:        req.TenantID,
		CustomerID:      customerID,
		StaffID:         staffID,
		OrderNumber:     orderNumber,
		FulfillmentType: req.FulfillmentType,
		Subtotal:        decimalToNumeric(subtotal),
		DeliveryFee:     decimalToNumeric(deliveryFee),
		Total:           decimalToNumeric(total),
		DeliveryAddress: deliveryAddress,
		Notes:           notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var created []database.OrderLine
	for _, cl := range lines {
		cl.params.OrderID = order.ID
		line, err := store.CreateOrderLine(ctx, cl.params)
		if err != nil {
			return nil, fmt.Errorf("create order line: %w", err)
		}
		created = append(created, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Lines: created}, nil
}

// compileProductLine prices a plain product or variant line. The product's
// price applies unless the caller supplied an explicit override; the display
// note carries the variant name only when it differs from the base name.
func (s *OrderService) compileProductLine(ctx context.Context, store OrderStore, tenantID int64, line CartLineRequest) (compiledLine, error) {
	product, err := store.GetProduct(ctx, database.GetProductParams{
		ID:       line.ProductID,
		TenantID: tenantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return compiledLine{}, ErrProductNotFound
		}
		return compiledLine{}, fmt.Errorf("get product: %w", err)
	}

	unitPrice := numericToDecimal(product.Price)
	if line.UnitPrice != "" {
		unitPrice, err = decimal.NewFromString(line.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return compiledLine{}, ErrInvalidUnitPrice
		}
	}

	displayNote := pgtype.Text{}
	if line.Name != "" && line.Name != product.Name {
		displayNote = pgtype.Text{String: line.Name, Valid: true}
	}

	lineSubtotal := unitPrice.Mul(decimal.NewFromInt32(line.Quantity))
	return compiledLine{params: database.CreateOrderLineParams{
		ProductID:    product.ID,
		Quantity:     line.Quantity,
		UnitPrice:    decimalToNumeric(unitPrice),
		LineSubtotal: decimalToNumeric(lineSubtotal),
		LineKind:     enum.LineKindProduct,
		DisplayNote:  displayNote,
	}}, nil
}

// compileOfferLine prices an offer bundle line. The schema requires a
// concrete product on every line, so an offer without its own product
// reference falls back to any product of the tenant. The display note carries
// the marker the ticket renderer strips back to the bare offer title.
func (s *OrderService) compileOfferLine(ctx context.Context, store OrderStore, tenantID int64, line CartLineRequest) (compiledLine, error) {
	offer, err := store.GetOffer(ctx, database.GetOfferParams{
		ID:       line.OfferID,
		TenantID: tenantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return compiledLine{}, ErrOfferNotFound
		}
		return compiledLine{}, fmt.Errorf("get offer: %w", err)
	}

	productID := offer.ProductID.Int64
	if !offer.ProductID.Valid {
		fallback, err := store.GetAnyProduct(ctx, tenantID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return compiledLine{}, ErrProductNotFound
			}
			return compiledLine{}, fmt.Errorf("get fallback product: %w", err)
		}
		productID = fallback.ID
	}

	unitPrice := numericToDecimal(offer.Price)
	if line.UnitPrice != "" {
		unitPrice, err = decimal.NewFromString(line.UnitPrice)
		if err != nil || unitPrice.IsNegative() {
			return compiledLine{}, ErrInvalidUnitPrice
		}
	}

	lineSubtotal := unitPrice.Mul(decimal.NewFromInt32(line.Quantity))
	return compiledLine{params: database.CreateOrderLineParams{
		ProductID:       productID,
		Quantity:        line.Quantity,
		UnitPrice:       decimalToNumeric(unitPrice),
		LineSubtotal:    decimalToNumeric(lineSubtotal),
		LineKind:        enum.LineKindOffer,
		OriginReference: pgtype.Int8{Int64: offer.ID, Valid: true},
		DisplayNote:     pgtype.Text{String: enum.OfferMarker + offer.Title, Valid: true},
	}}, nil
}

// --- Helpers ---

func validateFulfillmentType(s string) error {
	switch s {
	case enum.FulfillmentDelivery, enum.FulfillmentDineIn, enum.FulfillmentTakeaway:
		return nil
	}
	return ErrInvalidFulfillment
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
