package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn          func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	getOrderByNumberFn  func(ctx context.Context, arg database.GetOrderByNumberParams) (database.Order, error)
	getTenantBySlugFn   func(ctx context.Context, slug string) (database.Tenant, error)
	listOrdersFn        func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listActiveOrdersFn  func(ctx context.Context, tenantID int64) ([]database.ActiveOrderRow, error)
	listOrderLinesFn    func(ctx context.Context, orderID int64) ([]database.OrderLineRow, error)
	updateOrderStatusFn func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	getTodayStatsFn     func(ctx context.Context, tenantID int64) (database.TodayStats, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetOrderByNumber(ctx context.Context, arg database.GetOrderByNumberParams) (database.Order, error) {
	if m.getOrderByNumberFn != nil {
		return m.getOrderByNumberFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetTenantBySlug(ctx context.Context, slug string) (database.Tenant, error) {
	if m.getTenantBySlugFn != nil {
		return m.getTenantBySlugFn(ctx, slug)
	}
	return database.Tenant{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListActiveOrders(ctx context.Context, tenantID int64) ([]database.ActiveOrderRow, error) {
	if m.listActiveOrdersFn != nil {
		return m.listActiveOrdersFn(ctx, tenantID)
	}
	return []database.ActiveOrderRow{}, nil
}

func (m *mockOrderStore) ListOrderLines(ctx context.Context, orderID int64) ([]database.OrderLineRow, error) {
	if m.listOrderLinesFn != nil {
		return m.listOrderLinesFn(ctx, orderID)
	}
	return []database.OrderLineRow{}, nil
}

func (m *mockOrderStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetTodayStats(ctx context.Context, tenantID int64) (database.TodayStats, error) {
	if m.getTodayStatsFn != nil {
		return m.getTodayStatsFn(ctx, tenantID)
	}
	return database.TodayStats{}, nil
}

// --- Test helpers ---

const testSecret = "test-secret-for-orders"

const (
	testTenantID int64 = 7
	testUserID   int64 = 3
)

func setupOrderRouter(svc *mockOrderService, store *mockOrderStore) *chi.Mux {
	h := handler.NewOrderHandler(svc, store)
	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		h.RegisterRoutes(r)
		h.RegisterAdminRoutes(r)
	})
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	token := auth.Issue(testSecret, testTenantID, testUserID)

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func testNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func testOrder(status string) database.Order {
	return database.Order{
		ID:              42,
		TenantID:        testTenantID,
		OrderNumber:     "20260901-0001",
		FulfillmentType: enum.FulfillmentTakeaway,
		Status:          status,
		Subtotal:        testNumeric("20.00"),
		DeliveryFee:     testNumeric("0.00"),
		Total:           testNumeric("20.00"),
		CreatedAt:       time.Now(),
	}
}

// --- Create ---

func TestOrderCreate_HappyPath(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.TenantID != testTenantID {
				t.Errorf("tenant_id: got %d, want %d", req.TenantID, testTenantID)
			}
			if req.StaffID != testUserID {
				t.Errorf("staff_id: got %d, want %d", req.StaffID, testUserID)
			}
			if len(req.Lines) != 1 {
				t.Errorf("lines count: got %d, want 1", len(req.Lines))
			}
			return &service.CreateOrderResult{Order: testOrder(enum.OrderStatusPending)}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"fulfillment_type": "takeaway",
		"items": []map[string]interface{}{
			{"product_id": 10, "quantity": 2},
		},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["order_id"] != float64(42) {
		t.Errorf("order_id: got %v, want 42", resp["order_id"])
	}
	if resp["order_number"] != "20260901-0001" {
		t.Errorf("order_number: got %v, want 20260901-0001", resp["order_number"])
	}
}

func TestOrderCreate_ValidationError(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, service.ErrEmptyCart
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"fulfillment_type": "takeaway",
		"items":            []map[string]interface{}{},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOrderCreate_BelowMinimum(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, &service.MinimumOrderError{
				Required: mustDecimal(t, "50.00"),
				Actual:   mustDecimal(t, "20.00"),
			}
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"fulfillment_type": "takeaway",
		"items": []map[string]interface{}{
			{"product_id": 10, "quantity": 2},
		},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	resp := decodeResponse(t, rr)
	if resp["minimum_order"] != "50.00" {
		t.Errorf("minimum_order: got %v, want 50.00", resp["minimum_order"])
	}
	if resp["cart_subtotal"] != "20.00" {
		t.Errorf("cart_subtotal: got %v, want 20.00", resp["cart_subtotal"])
	}
}

func TestOrderCreate_Unauthenticated(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})

	req := httptest.NewRequest("POST", "/orders", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

// --- UpdateStatus ---

func TestUpdateStatus_ValidTransition(t *testing.T) {
	var updated *database.UpdateOrderStatusParams
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return testOrder(enum.OrderStatusPending), nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			updated = &arg
			return testOrder(enum.OrderStatusConfirmed), nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "confirmed"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["success"] != true {
		t.Errorf("success: got %v, want true", resp["success"])
	}
	if updated == nil {
		t.Fatal("expected UpdateOrderStatus to be called")
	}
	if updated.ExpectedStatus != enum.OrderStatusPending {
		t.Errorf("expected status guard: got %q, want %q", updated.ExpectedStatus, enum.OrderStatusPending)
	}
	if updated.TenantID != testTenantID {
		t.Errorf("tenant_id: got %d, want %d", updated.TenantID, testTenantID)
	}
}

func TestUpdateStatus_SameStatusNoOp(t *testing.T) {
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return testOrder(enum.OrderStatusPreparing), nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			t.Error("same-status update must not touch the row")
			return database.Order{}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "preparing"})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp["success"] != true {
		t.Errorf("success: got %v, want true", resp["success"])
	}
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return testOrder(enum.OrderStatusPending), nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			t.Error("invalid transition must not touch the row")
			return database.Order{}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)

	// Skipping straight from pending to ready is not allowed.
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "ready"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestUpdateStatus_TerminalStateRejected(t *testing.T) {
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return testOrder(enum.OrderStatusCancelled), nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "confirmed"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestUpdateStatus_ConcurrentChange(t *testing.T) {
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
			return testOrder(enum.OrderStatusPending), nil
		},
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			// Compare-and-swap found a different current status.
			return database.Order{}, pgx.ErrNoRows
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "confirmed"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "vaporized"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "PUT", "/orders/42/status", map[string]string{"status": "confirmed"})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Kitchen ---

func TestKitchen_ReturnsActiveOrdersWithItems(t *testing.T) {
	order := testOrder(enum.OrderStatusPending)
	store := &mockOrderStore{
		listActiveOrdersFn: func(ctx context.Context, tenantID int64) ([]database.ActiveOrderRow, error) {
			if tenantID != testTenantID {
				t.Errorf("tenant_id: got %d, want %d", tenantID, testTenantID)
			}
			return []database.ActiveOrderRow{{
				Order:        order,
				CustomerName: pgtype.Text{String: "Ana", Valid: true},
			}}, nil
		},
		listOrderLinesFn: func(ctx context.Context, orderID int64) ([]database.OrderLineRow, error) {
			if orderID != order.ID {
				t.Errorf("order_id: got %d, want %d", orderID, order.ID)
			}
			return []database.OrderLineRow{
				{
					OrderLine: database.OrderLine{
						Quantity:     2,
						UnitPrice:    testNumeric("10.00"),
						LineSubtotal: testNumeric("20.00"),
						LineKind:     enum.LineKindProduct,
					},
					ProductName: "Hamburguesa",
				},
				{
					OrderLine: database.OrderLine{
						Quantity:        1,
						UnitPrice:       testNumeric("35.00"),
						LineSubtotal:    testNumeric("35.00"),
						LineKind:        enum.LineKindOffer,
						OriginReference: pgtype.Int8{Int64: 20, Valid: true},
						DisplayNote:     pgtype.Text{String: enum.OfferMarker + "Combo Familiar", Valid: true},
					},
					ProductName: "Hamburguesa",
				},
			}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET", "/orders/kitchen", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("orders: got %d, want 1", len(resp))
	}
	if resp[0]["customer_name"] != "Ana" {
		t.Errorf("customer_name: got %v, want Ana", resp[0]["customer_name"])
	}

	items := resp[0]["items"].([]interface{})
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	offer := items[1].(map[string]interface{})
	if offer["line_kind"] != "offer" {
		t.Errorf("line_kind: got %v, want offer", offer["line_kind"])
	}
	if offer["display_note"] != enum.OfferMarker+"Combo Familiar" {
		t.Errorf("display_note: got %v, want marked offer title", offer["display_note"])
	}
}

func TestKitchen_EmptySet(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "GET", "/orders/kitchen", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body: got %q, want empty JSON array", body)
	}
}

// --- Track ---

func TestTrack_Found(t *testing.T) {
	store := &mockOrderStore{
		getTenantBySlugFn: func(ctx context.Context, slug string) (database.Tenant, error) {
			if slug != "la-esquina" {
				t.Errorf("slug: got %q, want la-esquina", slug)
			}
			return database.Tenant{ID: testTenantID, Slug: slug, Active: true}, nil
		},
		getOrderByNumberFn: func(ctx context.Context, arg database.GetOrderByNumberParams) (database.Order, error) {
			if arg.TenantID != testTenantID {
				t.Errorf("tenant_id: got %d, want %d", arg.TenantID, testTenantID)
			}
			o := testOrder(enum.OrderStatusReady)
			o.ReadyAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
			return o, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)

	req := httptest.NewRequest("GET", "/orders/track/20260901-0001?tenant=la-esquina", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["status"] != "ready" {
		t.Errorf("status: got %v, want ready", resp["status"])
	}
	if resp["total"] != "20.00" {
		t.Errorf("total: got %v, want 20.00", resp["total"])
	}
	if resp["ready_at"] == nil {
		t.Error("ready_at: expected a timestamp")
	}
}

func TestTrack_UnknownOrder(t *testing.T) {
	store := &mockOrderStore{
		getTenantBySlugFn: func(ctx context.Context, slug string) (database.Tenant, error) {
			return database.Tenant{ID: testTenantID, Slug: slug, Active: true}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)

	req := httptest.NewRequest("GET", "/orders/track/20260901-9999?tenant=la-esquina", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- List / Stats ---

func TestList_StatusFilter(t *testing.T) {
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if !arg.Status.Valid || arg.Status.String != "delivered" {
				t.Errorf("status filter: got %+v, want delivered", arg.Status)
			}
			if arg.Limit != 50 {
				t.Errorf("limit: got %d, want 50", arg.Limit)
			}
			return []database.Order{testOrder(enum.OrderStatusDelivered)}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET", "/orders?status=delivered", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestTodayStats(t *testing.T) {
	store := &mockOrderStore{
		getTodayStatsFn: func(ctx context.Context, tenantID int64) (database.TodayStats, error) {
			return database.TodayStats{OrderCount: 12, Revenue: testNumeric("340.50")}, nil
		},
	}

	router := setupOrderRouter(&mockOrderService{}, store)
	rr := doAuthRequest(t, router, "GET", "/stats/today", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeResponse(t, rr)
	if resp["orders_today"] != float64(12) {
		t.Errorf("orders_today: got %v, want 12", resp["orders_today"])
	}
	if resp["revenue_today"] != "340.50" {
		t.Errorf("revenue_today: got %v, want 340.50", resp["revenue_today"])
	}
}
