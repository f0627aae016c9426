package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/service"
)

// CategoryStore defines the database methods needed by category handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]database.Category, error)
	GetCategory(ctx context.Context, id int64) (database.Category, error)
	CreateCategory(ctx context.Context, name string) (database.Category, error)
	UpdateCategory(ctx context.Context, arg database.UpdateCategoryParams) (database.Category, error)
}

// CategoryServicer defines the service methods needed by category handlers.
// Satisfied by *service.CategoryService.
type CategoryServicer interface {
	DeleteCategory(ctx context.Context, id int64) (int64, error)
}

// CategoryHandler handles category CRUD endpoints.
type CategoryHandler struct {
	store CategoryStore
	svc   CategoryServicer
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(store CategoryStore, svc CategoryServicer) *CategoryHandler {
	return &CategoryHandler{store: store, svc: svc}
}

// RegisterPublicRoutes registers the category reads.
func (h *CategoryHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/categories", h.List)
	r.Get("/categories/{id}", h.Get)
}

// RegisterAdminRoutes registers the category writes.
func (h *CategoryHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/categories", h.Create)
	r.Put("/categories/{id}", h.Update)
	r.Delete("/categories/{id}", h.Delete)
}

// --- Request / Response types ---

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type deleteCategoryResponse struct {
	MovedProducts int64 `json:"movedProducts"`
}

func toCategoryResponse(c database.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

// --- Handlers ---

// List returns all categories ordered by name.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		internalError(w, "list categories", err)
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = toCategoryResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single category.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "category")
	if !ok {
		return
	}

	c, err := h.store.GetCategory(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "category not found"})
			return
		}
		internalError(w, "get category", err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Create adds a category. Names are unique.
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, ok := decodeCategoryName(w, r)
	if !ok {
		return
	}

	c, err := h.store.CreateCategory(r.Context(), name)
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "category already exists"})
			return
		}
		internalError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// Update renames a category.
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "category")
	if !ok {
		return
	}

	name, ok := decodeCategoryName(w, r)
	if !ok {
		return
	}

	c, err := h.store.UpdateCategory(r.Context(), database.UpdateCategoryParams{ID: id, Name: name})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "category not found"})
		case isUniqueViolation(err):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "category already exists"})
		default:
			internalError(w, "update category", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// Delete removes a category after moving its products to the default one.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "category")
	if !ok {
		return
	}

	moved, err := h.svc.DeleteCategory(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCategoryNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrDefaultCategory):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			internalError(w, "delete category", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, deleteCategoryResponse{MovedProducts: moved})
}

// --- Helpers ---

func decodeCategoryName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return "", false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return "", false
	}
	return name, true
}
