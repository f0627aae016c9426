package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	SetOrderStatus(ctx context.Context, orderID int64, status, paymentMethod string) (*service.OrderResult, error)
	SetItemStatus(ctx context.Context, orderID, itemID int64, status string) (*service.OrderResult, error)
	GetOrder(ctx context.Context, id int64) (*service.OrderResult, error)
	ListOrders(ctx context.Context, filter service.ListOrdersFilter) ([]service.OrderResult, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterPublicRoutes registers the listing, which is role-sensitive and
// expects middleware.OptionalAuthenticate upstream.
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/orders", h.List)
}

// RegisterCustomerRoutes registers order placement from a table device.
func (h *OrderHandler) RegisterCustomerRoutes(r chi.Router) {
	r.Post("/orders", h.Create)
}

// RegisterStaffRoutes registers the endpoints reserved for admin and waiter.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.Get)
	r.Put("/orders/{id}/status", h.UpdateStatus)
	r.Put("/orders/{id}/items/{itemId}/status", h.UpdateItemStatus)
}

// --- Request / Response types ---

// createOrderRequest ignores any client-supplied total.
type createOrderRequest struct {
	TableID int64                    `json:"tableId"`
	Items   []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID   *int64          `json:"productId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
	Observation string          `json:"observation"`
}

type orderStatusRequest struct {
	Status        string `json:"status"`
	PaymentMethod string `json:"paymentMethod"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	TableID       int64               `json:"tableId"`
	Status        string              `json:"status"`
	Total         string              `json:"total"`
	PaymentMethod *string             `json:"paymentMethod"`
	Timestamp     time.Time           `json:"timestamp"`
	Items         []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"orderId"`
	ProductID   *int64  `json:"productId"`
	Name        string  `json:"name"`
	Quantity    int32   `json:"quantity"`
	Price       string  `json:"price"`
	Status      string  `json:"status"`
	Observation *string `json:"observation"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.TableID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tableId is required"})
		return
	}

	items := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.CreateOrderItemRequest{
			ProductID:   item.ProductID,
			Name:        item.Name,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Observation: item.Observation,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		TableID: req.TableID,
		Items:   items,
	})
	if err != nil {
		writeOrderError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order, result.Items))
}

// List handles GET /orders. Staff see every order; anyone else must pass
// tableId and never sees PAID orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := service.ListOrdersFilter{
		Status: r.URL.Query().Get("status"),
		Staff:  isStaff(r),
	}
	if s := r.URL.Query().Get("tableId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tableId"})
			return
		}
		filter.TableID = &id
	}

	results, err := h.svc.ListOrders(r.Context(), filter)
	if err != nil {
		writeOrderError(w, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(results))
	for i, res := range results {
		resp[i] = toOrderResponse(res.Order, res.Items)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	result, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeOrderError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.Items))
}

// UpdateStatus handles PUT /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.SetOrderStatus(r.Context(), id, req.Status, req.PaymentMethod)
	if err != nil {
		writeOrderError(w, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.Items))
}

// UpdateItemStatus handles PUT /orders/{id}/items/{itemId}/status and returns
// the order with its re-derived status.
func (h *OrderHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r, "id", "order")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemId", "item")
	if !ok {
		return
	}

	var req orderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.SetItemStatus(r.Context(), orderID, itemID, req.Status)
	if err != nil {
		writeOrderError(w, "update item status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.Items))
}

// --- Helpers ---

func writeOrderError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrItemNameRequired),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrInvalidOrderStatus),
		errors.Is(err, service.ErrInvalidItemStatus),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrTableIDRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTableNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		internalError(w, op, err)
	}
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		TableID:   o.TableID,
		Status:    o.Status,
		Total:     numericToString(o.Total),
		Timestamp: o.Timestamp,
		Items:     make([]orderItemResponse, len(items)),
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}

	for i, it := range items {
		ir := orderItemResponse{
			ID:       it.ID,
			OrderID:  it.OrderID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    numericToString(it.Price),
			Status:   it.Status,
		}
		if it.ProductID.Valid {
			pid := it.ProductID.Int64
			ir.ProductID = &pid
		}
		if it.Observation.Valid {
			ir.Observation = &it.Observation.String
		}
		resp.Items[i] = ir
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	return database.DecimalFromNumeric(n).StringFixed(2)
}

// parseID reads a positive integer URL parameter, writing a 400 when it is
// malformed.
func parseID(w http.ResponseWriter, r *http.Request, param, entity string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid %s ID", entity)})
		return 0, false
	}
	return id, true
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
