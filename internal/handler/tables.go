package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
)

// TableServicer defines the service methods needed by table handlers.
// Satisfied by *service.TableService; narrow interface for testability.
type TableServicer interface {
	OpenTable(ctx context.Context, number int32) (database.Table, error)
	CreateTable(ctx context.Context, number int32, status string) (database.Table, error)
	UpdateStatus(ctx context.Context, id int64, status string) (database.Table, error)
	RequestAttention(ctx context.Context, id int64, status string) (database.Table, error)
	CloseTable(ctx context.Context, id int64, paymentMethod string) (*service.CloseResult, error)
	Bill(ctx context.Context, id int64, serviceChargePercent decimal.Decimal) (*service.Bill, error)
}

// TableStore defines the database methods needed by table read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListTables(ctx context.Context) ([]database.Table, error)
	GetTable(ctx context.Context, id int64) (database.Table, error)
}

// TableHandler handles table endpoints.
type TableHandler struct {
	svc   TableServicer
	store TableStore
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(svc TableServicer, store TableStore) *TableHandler {
	return &TableHandler{svc: svc, store: store}
}

// RegisterPublicRoutes registers read endpoints anyone may call. billMW
// wraps the bill route only, normally with middleware.WithEstablishment;
// without it the default service charge applies.
func (h *TableHandler) RegisterPublicRoutes(r chi.Router, billMW ...func(http.Handler) http.Handler) {
	r.Get("/tables", h.List)
	r.Get("/tables/{id}", h.Get)
	r.With(billMW...).Get("/tables/{id}/bill", h.Bill)
}

// RegisterCustomerRoutes registers the self-service writes used from a
// table device. They are expected to sit behind the public rate limiter.
func (h *TableHandler) RegisterCustomerRoutes(r chi.Router) {
	r.Post("/tables/open", h.Open)
	r.Post("/tables/{id}/attention", h.RequestAttention)
}

// RegisterStaffRoutes registers the endpoints reserved for admin and waiter.
func (h *TableHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/tables", h.Create)
	r.Put("/tables/{id}", h.UpdateStatus)
	r.Post("/tables/{id}/close", h.Close)
}

// --- Request / Response types ---

type openTableRequest struct {
	Number int32 `json:"number"`
}

type createTableRequest struct {
	Number int32  `json:"number"`
	Status string `json:"status"`
}

type tableStatusRequest struct {
	Status string `json:"status"`
}

type closeTableRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type tableResponse struct {
	ID        int64     `json:"id"`
	Number    int32     `json:"number"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type closeTableResponse struct {
	Table      tableResponse `json:"table"`
	PaidOrders int           `json:"paidOrders"`
}

type billResponse struct {
	Table                tableResponse   `json:"table"`
	Orders               []orderResponse `json:"orders"`
	Subtotal             string          `json:"subtotal"`
	ServiceChargePercent string          `json:"serviceChargePercent"`
	ServiceCharge        string          `json:"serviceCharge"`
	Total                string          `json:"total"`
}

func toTableResponse(t database.Table) tableResponse {
	return tableResponse{ID: t.ID, Number: t.Number, Status: t.Status, UpdatedAt: t.UpdatedAt}
}

// --- Handlers ---

// List returns every table ordered by number.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context())
	if err != nil {
		internalError(w, "list tables", err)
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single table.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	table, err := h.store.GetTable(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		internalError(w, "get table", err)
		return
	}

	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Open handles POST /tables/open: a customer sits at table {number}.
func (h *TableHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	table, err := h.svc.OpenTable(r.Context(), req.Number)
	if err != nil {
		writeTableError(w, "open table", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Create adds a table. Status defaults to AVAILABLE.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	table, err := h.svc.CreateTable(r.Context(), req.Number, req.Status)
	if err != nil {
		writeTableError(w, "create table", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(table))
}

// UpdateStatus overwrites the table status.
func (h *TableHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	var req tableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	table, err := h.svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeTableError(w, "update table status", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// RequestAttention lets a table call the waiter or ask for the bill.
func (h *TableHandler) RequestAttention(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	var req tableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	table, err := h.svc.RequestAttention(r.Context(), id, req.Status)
	if err != nil {
		writeTableError(w, "request attention", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Close settles the table's open orders and frees it. The body is optional.
func (h *TableHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	var req closeTableRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	result, err := h.svc.CloseTable(r.Context(), id, req.PaymentMethod)
	if err != nil {
		writeTableError(w, "close table", err)
		return
	}

	writeJSON(w, http.StatusOK, closeTableResponse{
		Table:      toTableResponse(result.Table),
		PaidOrders: len(result.Paid),
	})
}

// Bill returns the table's open tab with the establishment's service charge.
func (h *TableHandler) Bill(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "table")
	if !ok {
		return
	}

	pct := middleware.DefaultServiceCharge
	if est, ok := middleware.EstablishmentFromContext(r.Context()); ok && est.ServiceCharge.Valid {
		pct = database.DecimalFromNumeric(est.ServiceCharge)
	}

	bill, err := h.svc.Bill(r.Context(), id, pct)
	if err != nil {
		writeTableError(w, "table bill", err)
		return
	}

	orders := make([]orderResponse, len(bill.Orders))
	for i, o := range bill.Orders {
		orders[i] = toOrderResponse(o.Order, o.Items)
	}
	writeJSON(w, http.StatusOK, billResponse{
		Table:                toTableResponse(bill.Table),
		Orders:               orders,
		Subtotal:             bill.Subtotal.StringFixed(2),
		ServiceChargePercent: bill.ServiceChargePercent.StringFixed(2),
		ServiceCharge:        bill.ServiceCharge.StringFixed(2),
		Total:                bill.Total.StringFixed(2),
	})
}

// --- Helpers ---

func writeTableError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidTableNumber),
		errors.Is(err, service.ErrInvalidTableStatus),
		errors.Is(err, service.ErrInvalidAttention),
		errors.Is(err, service.ErrInvalidPayment):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTableNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrTableNumberTaken),
		errors.Is(err, service.ErrTableNotOpen),
		errors.Is(err, service.ErrUndeliveredItems):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		internalError(w, op, err)
	}
}

// isStaff reports whether the request carries an admin or waiter token.
func isStaff(r *http.Request) bool {
	claims := middleware.ClaimsFromContext(r.Context())
	return claims != nil && enum.IsStaff(claims.Role)
}
