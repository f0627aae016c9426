package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/storage"
)

// maxImageSize bounds product image uploads.
const maxImageSize = 5 << 20

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]database.ProductRow, error)
	GetProduct(ctx context.Context, id int64) (database.ProductRow, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	DeleteProduct(ctx context.Context, id int64) (int64, error)
	ToggleProductHighlight(ctx context.Context, id int64) (database.Product, error)
	SetProductImage(ctx context.Context, arg database.SetProductImageParams) (database.Product, error)
	GetCategory(ctx context.Context, id int64) (database.Category, error)
	EnsureCategory(ctx context.Context, name string) (database.Category, error)
}

// ProductHandler handles product CRUD endpoints.
type ProductHandler struct {
	store    ProductStore
	uploader storage.Uploader
}

// NewProductHandler creates a new ProductHandler. uploader may be nil, in
// which case image uploads answer 503.
func NewProductHandler(store ProductStore, uploader storage.Uploader) *ProductHandler {
	return &ProductHandler{store: store, uploader: uploader}
}

// RegisterPublicRoutes registers the menu reads.
func (h *ProductHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Get)
}

// RegisterAdminRoutes registers the catalog writes.
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/products", h.Create)
	r.Put("/products/{id}", h.Update)
	r.Delete("/products/{id}", h.Delete)
	r.Patch("/products/{id}/highlight", h.ToggleHighlight)
	r.Post("/products/{id}/image", h.UploadImage)
}

// --- Request / Response types ---

type productRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	CategoryID  *int64          `json:"categoryId"`
	IsHighlight bool            `json:"isHighlight"`
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Price       string    `json:"price"`
	Description *string   `json:"description"`
	Image       *string   `json:"image"`
	CategoryID  *int64    `json:"categoryId"`
	Category    string    `json:"category"`
	IsHighlight bool      `json:"isHighlight"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toProductResponse(p database.Product, categoryName pgtype.Text) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       numericToString(p.Price),
		Description: textPtr(p.Description),
		Image:       textPtr(p.Image),
		Category:    enum.DefaultCategory,
		IsHighlight: p.IsHighlight,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.CategoryID.Valid {
		id := p.CategoryID.Int64
		resp.CategoryID = &id
	}
	if categoryName.Valid {
		resp.Category = categoryName.String
	}
	return resp
}

func productRowResponse(row database.ProductRow) productResponse {
	return toProductResponse(database.Product{
		ID:          row.ID,
		Name:        row.Name,
		Price:       row.Price,
		Description: row.Description,
		Image:       row.Image,
		CategoryID:  row.CategoryID,
		IsHighlight: row.IsHighlight,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, row.CategoryName)
}

// --- Handlers ---

// List returns the whole menu.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListProducts(r.Context())
	if err != nil {
		internalError(w, "list products", err)
		return
	}

	resp := make([]productResponse, len(rows))
	for i, row := range rows {
		resp[i] = productRowResponse(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single product.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "product")
	if !ok {
		return
	}

	row, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		internalError(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, productRowResponse(row))
}

// Create adds a product. Without categoryId it lands in the default category.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProductRequest(w, r)
	if !ok {
		return
	}

	category, ok := h.resolveCategory(w, r, req.CategoryID)
	if !ok {
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		Name:        req.Name,
		Price:       database.NumericFromDecimal(req.Price.Round(2)),
		Description: database.Text(req.Description),
		Image:       database.Text(req.Image),
		CategoryID:  database.Int8(&category.ID),
		IsHighlight: req.IsHighlight,
	})
	if err != nil {
		internalError(w, "create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product, pgtype.Text{String: category.Name, Valid: true}))
}

// Update replaces a product's fields.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "product")
	if !ok {
		return
	}

	req, ok := decodeProductRequest(w, r)
	if !ok {
		return
	}

	category, ok := h.resolveCategory(w, r, req.CategoryID)
	if !ok {
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          id,
		Name:        req.Name,
		Price:       database.NumericFromDecimal(req.Price.Round(2)),
		Description: database.Text(req.Description),
		Image:       database.Text(req.Image),
		CategoryID:  database.Int8(&category.ID),
		IsHighlight: req.IsHighlight,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		internalError(w, "update product", err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product, pgtype.Text{String: category.Name, Valid: true}))
}

// Delete removes a product. Past order items keep their name and price.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "product")
	if !ok {
		return
	}

	if _, err := h.store.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		internalError(w, "delete product", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ToggleHighlight flips isHighlight.
func (h *ProductHandler) ToggleHighlight(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "product")
	if !ok {
		return
	}

	if _, err := h.store.ToggleProductHighlight(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		internalError(w, "toggle highlight", err)
		return
	}

	h.Get(w, r)
}

// UploadImage stores a PNG or JPEG sent as the multipart field "image" and
// saves its URL on the product.
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "image uploads are not configured"})
		return
	}

	id, ok := parseID(w, r, "id", "product")
	if !ok {
		return
	}

	if _, err := h.store.GetProduct(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		internalError(w, "get product", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize+1024)
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read image"})
		return
	}
	if len(data) > maxImageSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image is too large"})
		return
	}

	contentType, err := storage.DetectImage(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	url, err := h.uploader.Upload(r.Context(), storage.ProductImageKey(id, contentType), bytes.NewReader(data), contentType)
	if err != nil {
		internalError(w, "upload product image", err)
		return
	}

	if _, err := h.store.SetProductImage(r.Context(), database.SetProductImageParams{
		ID:    id,
		Image: database.Text(url),
	}); err != nil {
		internalError(w, "set product image", err)
		return
	}

	h.Get(w, r)
}

// --- Helpers ---

func decodeProductRequest(w http.ResponseWriter, r *http.Request) (productRequest, bool) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return req, false
	}
	if req.Price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price must be >= 0"})
		return req, false
	}
	return req, true
}

// resolveCategory returns the requested category, or the default one when
// id is nil.
func (h *ProductHandler) resolveCategory(w http.ResponseWriter, r *http.Request, id *int64) (database.Category, bool) {
	if id == nil {
		c, err := h.store.EnsureCategory(r.Context(), enum.DefaultCategory)
		if err != nil {
			internalError(w, "ensure default category", err)
			return c, false
		}
		return c, true
	}

	c, err := h.store.GetCategory(r.Context(), *id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "category not found"})
			return c, false
		}
		internalError(w, "get category", err)
		return c, false
	}
	return c, true
}
