package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/comanda-pos/api/internal/enum"
)

const orderColumns = `id, tenant_id, customer_id, staff_id, order_number, fulfillment_type,
       status, subtotal, delivery_fee, total, delivery_address, notes, created_at,
       confirmed_at, preparing_at, ready_at, delivered_at`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(
		&o.ID, &o.TenantID, &o.CustomerID, &o.StaffID, &o.OrderNumber, &o.FulfillmentType,
		&o.Status, &o.Subtotal, &o.DeliveryFee, &o.Total, &o.DeliveryAddress, &o.Notes, &o.CreatedAt,
		&o.ConfirmedAt, &o.PreparingAt, &o.ReadyAt, &o.DeliveredAt,
	)
}

// read runs one read query under ReadPolicy so transient connectivity
// failures are retried before they surface to the operation's caller.
// Writes are never retried: they run inside transactions or are not
// idempotent.
func (s *Store) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return Retry(ctx, ReadPolicy, fn)
}

// --- Tenants / users ---

func (s *Store) GetTenantByID(ctx context.Context, id int64) (Tenant, error) {
	var t Tenant
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, name, slug, minimum_order, delivery_fee, active, created_at
			FROM tenants WHERE id = $1
		`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.MinimumOrder, &t.DeliveryFee, &t.Active, &t.CreatedAt)
	})
	return t, err
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	var t Tenant
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, name, slug, minimum_order, delivery_fee, active, created_at
			FROM tenants WHERE slug = $1 AND active
		`, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.MinimumOrder, &t.DeliveryFee, &t.Active, &t.CreatedAt)
	})
	return t, err
}

type GetUserByEmailParams struct {
	TenantID int64
	Email    string
}

func (s *Store) GetUserByEmail(ctx context.Context, arg GetUserByEmailParams) (User, error) {
	var u User
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, email, hashed_password, full_name, role, created_at
			FROM users WHERE tenant_id = $1 AND email = $2
		`, arg.TenantID, arg.Email).Scan(
			&u.ID, &u.TenantID, &u.Email, &u.HashedPassword, &u.FullName, &u.Role, &u.CreatedAt,
		)
	})
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, email, hashed_password, full_name, role, created_at
			FROM users WHERE id = $1
		`, id).Scan(&u.ID, &u.TenantID, &u.Email, &u.HashedPassword, &u.FullName, &u.Role, &u.CreatedAt)
	})
	return u, err
}

// --- Customers ---

type FindCustomerByPhoneParams struct {
	TenantID int64
	Phone    string
}

func (s *Store) FindCustomerByPhone(ctx context.Context, arg FindCustomerByPhoneParams) (Customer, error) {
	var c Customer
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, name, phone, address, created_at
			FROM customers WHERE tenant_id = $1 AND phone = $2
		`, arg.TenantID, arg.Phone).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt)
	})
	return c, err
}

type CreateCustomerParams struct {
	TenantID int64
	Name     string
	Phone    string
	Address  pgtype.Text
}

func (s *Store) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	var c Customer
	err := s.db.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, phone, address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, name, phone, address, created_at
	`, arg.TenantID, arg.Name, arg.Phone, arg.Address).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Address, &c.CreatedAt,
	)
	return c, err
}

// --- Products / offers ---

type GetProductParams struct {
	ID       int64
	TenantID int64
}

func (s *Store) GetProduct(ctx context.Context, arg GetProductParams) (Product, error) {
	var p Product
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, name, price, available, created_at
			FROM products WHERE id = $1 AND tenant_id = $2
		`, arg.ID, arg.TenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Available, &p.CreatedAt)
	})
	return p, err
}

// GetAnyProduct returns an arbitrary product of the tenant. Offer lines whose
// offer carries no product reference fall back to it because the schema
// requires a non-null product reference on every line.
func (s *Store) GetAnyProduct(ctx context.Context, tenantID int64) (Product, error) {
	var p Product
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, name, price, available, created_at
			FROM products WHERE tenant_id = $1 ORDER BY id LIMIT 1
		`, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Available, &p.CreatedAt)
	})
	return p, err
}

type GetOfferParams struct {
	ID       int64
	TenantID int64
}

func (s *Store) GetOffer(ctx context.Context, arg GetOfferParams) (Offer, error) {
	var o Offer
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT id, tenant_id, title, price, product_id, active, created_at
			FROM offers WHERE id = $1 AND tenant_id = $2
		`, arg.ID, arg.TenantID).Scan(&o.ID, &o.TenantID, &o.Title, &o.Price, &o.ProductID, &o.Active, &o.CreatedAt)
	})
	return o, err
}

// --- Orders ---

// GetNextOrderNumber computes the tenant's next daily sequence number. It
// must run inside the same transaction that inserts the order; the unique
// constraint on (tenant_id, order_number) catches concurrent duplicates.
func (s *Store) GetNextOrderNumber(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) + 1 FROM orders
		WHERE tenant_id = $1 AND created_at::date = CURRENT_DATE
	`, tenantID).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	TenantID        int64
	CustomerID      pgtype.Int8
	StaffID         pgtype.Int8
	OrderNumber     string
	FulfillmentType string
	Subtotal        pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	Total           pgtype.Numeric
	DeliveryAddress pgtype.Text
	Notes           pgtype.Text
}

func (s *Store) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	var o Order
	err := scanOrder(s.db.QueryRow(ctx, `
		INSERT INTO orders (tenant_id, customer_id, staff_id, order_number, fulfillment_type,
		                    status, subtotal, delivery_fee, total, delivery_address, notes)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9, $10)
		RETURNING `+orderColumns+`
	`, arg.TenantID, arg.CustomerID, arg.StaffID, arg.OrderNumber, arg.FulfillmentType,
		arg.Subtotal, arg.DeliveryFee, arg.Total, arg.DeliveryAddress, arg.Notes), &o)
	return o, err
}

type CreateOrderLineParams struct {
	OrderID         int64
	ProductID       int64
	Quantity        int32
	UnitPrice       pgtype.Numeric
	LineSubtotal    pgtype.Numeric
	LineKind        string
	OriginReference pgtype.Int8
	DisplayNote     pgtype.Text
}

func (s *Store) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	var l OrderLine
	err := s.db.QueryRow(ctx, `
		INSERT INTO order_lines (order_id, product_id, quantity, unit_price, line_subtotal,
		                         line_kind, origin_reference, display_note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, order_id, product_id, quantity, unit_price, line_subtotal,
		          line_kind, origin_reference, display_note
	`, arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice, arg.LineSubtotal,
		arg.LineKind, arg.OriginReference, arg.DisplayNote).Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.LineSubtotal,
		&l.LineKind, &l.OriginReference, &l.DisplayNote,
	)
	return l, err
}

type GetOrderParams struct {
	ID       int64
	TenantID int64
}

func (s *Store) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	var o Order
	err := s.read(ctx, func(ctx context.Context) error {
		return scanOrder(s.db.QueryRow(ctx, `
			SELECT `+orderColumns+` FROM orders WHERE id = $1 AND tenant_id = $2
		`, arg.ID, arg.TenantID), &o)
	})
	return o, err
}

type GetOrderByNumberParams struct {
	OrderNumber string
	TenantID    int64
}

func (s *Store) GetOrderByNumber(ctx context.Context, arg GetOrderByNumberParams) (Order, error) {
	var o Order
	err := s.read(ctx, func(ctx context.Context) error {
		return scanOrder(s.db.QueryRow(ctx, `
			SELECT `+orderColumns+` FROM orders WHERE order_number = $1 AND tenant_id = $2
		`, arg.OrderNumber, arg.TenantID), &o)
	})
	return o, err
}

type ListOrdersParams struct {
	TenantID int64
	Status   pgtype.Text
	Limit    int32
}

func (s *Store) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	var orders []Order
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT `+orderColumns+` FROM orders
			WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
			ORDER BY created_at DESC
			LIMIT $3
		`, arg.TenantID, arg.Status, arg.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = nil
		for rows.Next() {
			var o Order
			if err := scanOrder(rows, &o); err != nil {
				return err
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListActiveOrders returns the kitchen's active set, by status priority
// (the order of enum.KitchenStatuses) then creation time ascending.
func (s *Store) ListActiveOrders(ctx context.Context, tenantID int64) ([]ActiveOrderRow, error) {
	var orders []ActiveOrderRow
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT o.id, o.tenant_id, o.customer_id, o.staff_id, o.order_number, o.fulfillment_type,
			       o.status, o.subtotal, o.delivery_fee, o.total, o.delivery_address, o.notes, o.created_at,
			       o.confirmed_at, o.preparing_at, o.ready_at, o.delivered_at,
			       c.name, c.phone
			FROM orders o
			LEFT JOIN customers c ON o.customer_id = c.id
			WHERE o.tenant_id = $1 AND o.status = ANY($2)
			ORDER BY array_position($2, o.status), o.created_at ASC
		`, tenantID, enum.KitchenStatuses)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = nil
		for rows.Next() {
			var r ActiveOrderRow
			if err := rows.Scan(
				&r.ID, &r.TenantID, &r.CustomerID, &r.StaffID, &r.OrderNumber, &r.FulfillmentType,
				&r.Status, &r.Subtotal, &r.DeliveryFee, &r.Total, &r.DeliveryAddress, &r.Notes, &r.CreatedAt,
				&r.ConfirmedAt, &r.PreparingAt, &r.ReadyAt, &r.DeliveredAt,
				&r.CustomerName, &r.CustomerPhone,
			); err != nil {
				return err
			}
			orders = append(orders, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID int64) ([]OrderLineRow, error) {
	var lines []OrderLineRow
	err := s.read(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, `
			SELECT l.id, l.order_id, l.product_id, l.quantity, l.unit_price, l.line_subtotal,
			       l.line_kind, l.origin_reference, l.display_note,
			       COALESCE(p.name, 'Deleted product')
			FROM order_lines l
			LEFT JOIN products p ON l.product_id = p.id
			WHERE l.order_id = $1
			ORDER BY l.id
		`, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		lines = nil
		for rows.Next() {
			var r OrderLineRow
			if err := rows.Scan(
				&r.ID, &r.OrderID, &r.ProductID, &r.Quantity, &r.UnitPrice, &r.LineSubtotal,
				&r.LineKind, &r.OriginReference, &r.DisplayNote,
				&r.ProductName,
			); err != nil {
				return err
			}
			lines = append(lines, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

type UpdateOrderStatusParams struct {
	ID             int64
	TenantID       int64
	Status         string
	ExpectedStatus string
}

// UpdateOrderStatus advances the order in a single compare-and-swap write.
// Returns pgx.ErrNoRows when the current status no longer matches
// ExpectedStatus. Each status timestamp is guarded by COALESCE so it is set
// exactly once, the first time that status is reached.
func (s *Store) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	var o Order
	err := scanOrder(s.db.QueryRow(ctx, `
		UPDATE orders SET
			status = $1,
			confirmed_at = CASE WHEN $1 = 'confirmed' THEN COALESCE(confirmed_at, now()) ELSE confirmed_at END,
			preparing_at = CASE WHEN $1 = 'preparing' THEN COALESCE(preparing_at, now()) ELSE preparing_at END,
			ready_at     = CASE WHEN $1 = 'ready'     THEN COALESCE(ready_at, now())     ELSE ready_at END,
			delivered_at = CASE WHEN $1 = 'delivered' THEN COALESCE(delivered_at, now()) ELSE delivered_at END
		WHERE id = $2 AND tenant_id = $3 AND status = $4
		RETURNING `+orderColumns+`
	`, arg.Status, arg.ID, arg.TenantID, arg.ExpectedStatus), &o)
	return o, err
}

// --- Stats ---

func (s *Store) GetTodayStats(ctx context.Context, tenantID int64) (TodayStats, error) {
	var st TodayStats
	err := s.read(ctx, func(ctx context.Context) error {
		return s.db.QueryRow(ctx, `
			SELECT COUNT(*), COALESCE(SUM(total), 0)
			FROM orders
			WHERE tenant_id = $1 AND created_at::date = CURRENT_DATE AND status != 'cancelled'
		`, tenantID).Scan(&st.OrderCount, &st.Revenue)
	})
	return st, err
}
