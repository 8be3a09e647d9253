package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderStore defines the database methods needed by order read/update
// handlers. Satisfied by *database.Store; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderByNumber(ctx context.Context, arg database.GetOrderByNumberParams) (database.Order, error)
	GetTenantBySlug(ctx context.Context, slug string) (database.Tenant, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListActiveOrders(ctx context.Context, tenantID int64) ([]database.ActiveOrderRow, error)
	ListOrderLines(ctx context.Context, orderID int64) ([]database.OrderLineRow, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	GetTodayStats(ctx context.Context, tenantID int64) (database.TodayStats, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers authenticated order endpoints.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
	r.Get("/orders/kitchen", h.Kitchen)
	r.Put("/orders/{id}/status", h.UpdateStatus)
	r.Get("/stats/today", h.TodayStats)
}

// RegisterAdminRoutes registers endpoints restricted to admin users.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/orders", h.List)
}

// RegisterPublicRoutes registers unauthenticated endpoints.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/orders/track/{order_number}", h.Track)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerName    string              `json:"customer_name"`
	CustomerPhone   string              `json:"customer_phone"`
	CustomerAddress string              `json:"customer_address"`
	FulfillmentType string              `json:"fulfillment_type"`
	DeliveryAddress string              `json:"delivery_address"`
	Notes           string              `json:"notes"`
	Items           []createItemRequest `json:"items"`
}

type createItemRequest struct {
	ProductID int64  `json:"product_id"`
	OfferID   int64  `json:"offer_id"`
	Quantity  int32  `json:"quantity"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
}

type createOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID              int64      `json:"id"`
	OrderNumber     string     `json:"order_number"`
	Status          string     `json:"status"`
	FulfillmentType string     `json:"fulfillment_type"`
	Subtotal        string     `json:"subtotal"`
	DeliveryFee     string     `json:"delivery_fee"`
	Total           string     `json:"total"`
	DeliveryAddress *string    `json:"delivery_address"`
	Notes           *string    `json:"notes"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at"`
	PreparingAt     *time.Time `json:"preparing_at"`
	ReadyAt         *time.Time `json:"ready_at"`
	DeliveredAt     *time.Time `json:"delivered_at"`
}

type kitchenOrderResponse struct {
	orderResponse
	CustomerName  *string             `json:"customer_name"`
	CustomerPhone *string             `json:"customer_phone"`
	Items         []orderLineResponse `json:"items"`
}

type orderLineResponse struct {
	Quantity    int32   `json:"quantity"`
	ProductName string  `json:"product_name"`
	DisplayNote *string `json:"display_note"`
	LineKind    string  `json:"line_kind"`
	UnitPrice   string  `json:"unit_price"`
	Subtotal    string  `json:"subtotal"`
}

type trackResponse struct {
	OrderNumber string     `json:"order_number"`
	Status      string     `json:"status"`
	Total       string     `json:"total"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	ReadyAt     *time.Time `json:"ready_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

type todayStatsResponse struct {
	OrdersToday  int64  `json:"orders_today"`
	RevenueToday string `json:"revenue_today"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	items := make([]service.CartLineRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.CartLineRequest{
			ProductID: item.ProductID,
			OfferID:   item.OfferID,
			Quantity:  item.Quantity,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TenantID:        identity.TenantID,
		StaffID:         identity.UserID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		FulfillmentType: req.FulfillmentType,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Lines:           items,
	})
	if err != nil {
		var minErr *service.MinimumOrderError
		if errors.As(err, &minErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":         minErr.Error(),
				"minimum_order": minErr.Required.StringFixed(2),
				"cart_subtotal": minErr.Actual.StringFixed(2),
			})
			return
		}
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.OrderNumber,
	})
}

// Kitchen handles GET /orders/kitchen: the active set (pending, confirmed,
// preparing) with lines, in kitchen display order.
func (h *OrderHandler) Kitchen(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orders, err := h.store.ListActiveOrders(r.Context(), identity.TenantID)
	if err != nil {
		log.Printf("ERROR: list active orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]kitchenOrderResponse, 0, len(orders))
	for _, o := range orders {
		lines, err := h.store.ListOrderLines(r.Context(), o.ID)
		if err != nil {
			log.Printf("ERROR: list order lines: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		ko := kitchenOrderResponse{
			orderResponse: dbOrderToResponse(o.Order),
			Items:         make([]orderLineResponse, len(lines)),
		}
		if o.CustomerName.Valid {
			ko.CustomerName = &o.CustomerName.String
		}
		if o.CustomerPhone.Valid {
			ko.CustomerPhone = &o.CustomerPhone.String
		}
		for i, l := range lines {
			ko.Items[i] = orderLineResponse{
				Quantity:    l.Quantity,
				ProductName: l.ProductName,
				LineKind:    l.LineKind,
				UnitPrice:   numericToString(l.UnitPrice),
				Subtotal:    numericToString(l.LineSubtotal),
			}
			if l.DisplayNote.Valid {
				ko.Items[i].DisplayNote = &l.DisplayNote.String
			}
		}
		resp = append(resp, ko)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !isValidOrderStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	current, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:       orderID,
		TenantID: identity.TenantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for status update: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Same-status updates are accepted and change nothing.
	if current.Status == req.Status {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if err := validateStatusTransition(current.Status, req.Status); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	_, err = h.store.UpdateOrderStatus(r.Context(), database.UpdateOrderStatusParams{
		ID:             orderID,
		TenantID:       identity.TenantID,
		Status:         req.Status,
		ExpectedStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Status changed between our read and write.
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry"})
			return
		}
		log.Printf("ERROR: update order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// List handles GET /orders (admin only).
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	params := database.ListOrdersParams{
		TenantID: identity.TenantID,
		Limit:    50,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if !isValidOrderStatus(s) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		params.Status = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Track handles GET /orders/track/{order_number}?tenant={slug}. Public: no
// token, only the order number and tenant slug, and a deliberately small
// response.
func (h *OrderHandler) Track(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("tenant")
	if slug == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant is required"})
		return
	}

	tenant, err := h.store.GetTenantBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get tenant for tracking: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	order, err := h.store.GetOrderByNumber(r.Context(), database.GetOrderByNumberParams{
		OrderNumber: chi.URLParam(r, "order_number"),
		TenantID:    tenant.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order by number: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := trackResponse{
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Total:       numericToString(order.Total),
		CreatedAt:   order.CreatedAt,
	}
	if order.ConfirmedAt.Valid {
		resp.ConfirmedAt = &order.ConfirmedAt.Time
	}
	if order.ReadyAt.Valid {
		resp.ReadyAt = &order.ReadyAt.Time
	}
	if order.DeliveredAt.Valid {
		resp.DeliveredAt = &order.DeliveredAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

// TodayStats handles GET /stats/today.
func (h *OrderHandler) TodayStats(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	stats, err := h.store.GetTodayStats(r.Context(), identity.TenantID)
	if err != nil {
		log.Printf("ERROR: get today stats: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, todayStatsResponse{
		OrdersToday:  stats.OrderCount,
		RevenueToday: numericToString(stats.Revenue),
	})
}

// --- Helpers ---

// isValidationError checks if the error is a known validation error from the
// service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyCart) ||
		errors.Is(err, service.ErrInvalidFulfillment) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidUnitPrice) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrOfferNotFound) ||
		errors.Is(err, service.ErrLineUnresolvable)
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		FulfillmentType: o.FulfillmentType,
		Subtotal:        numericToString(o.Subtotal),
		DeliveryFee:     numericToString(o.DeliveryFee),
		Total:           numericToString(o.Total),
		CreatedAt:       o.CreatedAt,
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.ConfirmedAt.Valid {
		resp.ConfirmedAt = &o.ConfirmedAt.Time
	}
	if o.PreparingAt.Valid {
		resp.PreparingAt = &o.PreparingAt.Time
	}
	if o.ReadyAt.Valid {
		resp.ReadyAt = &o.ReadyAt.Time
	}
	if o.DeliveredAt.Valid {
		resp.DeliveredAt = &o.DeliveredAt.Time
	}
	return resp
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending,
		enum.OrderStatusConfirmed,
		enum.OrderStatusPreparing,
		enum.OrderStatusReady,
		enum.OrderStatusDelivered,
		enum.OrderStatusCancelled:
		return true
	}
	return false
}

// allowedTransitions defines valid status transitions. Key is current status,
// value is the set of statuses it can move to. Terminal statuses are absent.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed: {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
}

// validateStatusTransition checks if the transition from current to next is allowed.
func validateStatusTransition(current, next string) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("cannot transition from %s", current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", current, next)
}
