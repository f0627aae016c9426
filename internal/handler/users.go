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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/middleware"
)

// UserStore defines the database methods needed by user handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	ListUsers(ctx context.Context) ([]database.User, error)
	GetUserByID(ctx context.Context, id int64) (database.User, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	UpdateUser(ctx context.Context, arg database.UpdateUserParams) (database.User, error)
	UpdateUserPassword(ctx context.Context, arg database.UpdateUserPasswordParams) error
	DeleteUser(ctx context.Context, id int64) (int64, error)
}

// UserHandler handles user CRUD endpoints.
type UserHandler struct {
	store UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore) *UserHandler {
	return &UserHandler{store: store}
}

// RegisterRoutes registers user CRUD endpoints on the given Chi router.
// Expected to be mounted behind admin authorization.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/users", h.List)
	r.Get("/users/{id}", h.Get)
	r.Post("/users", h.Create)
	r.Put("/users/{id}", h.Update)
	r.Delete("/users/{id}", h.Delete)
}

// --- Request / Response types ---

type createUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Pin      string `json:"pin"`
}

// updateUserRequest changes the password only when Password is non-empty.
type updateUserRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Pin      string `json:"pin"`
}

type userDetailResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Pin       string    `json:"pin,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserDetailResponse(u database.User) userDetailResponse {
	resp := userDetailResponse{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.Pin.Valid {
		resp.Pin = u.Pin.String
	}
	return resp
}

// --- Handlers ---

// List returns all users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		internalError(w, "list users", err)
		return
	}

	resp := make([]userDetailResponse, len(users))
	for i, u := range users {
		resp[i] = toUserDetailResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single user.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		internalError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDetailResponse(user))
}

// Create adds a user with a bcrypt-hashed password.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name, req.Username = strings.TrimSpace(req.Name), strings.TrimSpace(req.Username)
	if req.Name == "" || req.Username == "" || req.Password == "" || req.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name, username, password, and role are required"})
		return
	}
	if msg := validateUserFields(req.Role, req.Pin); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, "create user: hash password", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), database.CreateUserParams{
		Name:     req.Name,
		Username: req.Username,
		Password: hashed,
		Role:     req.Role,
		Pin:      pinText(req.Pin),
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
			return
		}
		internalError(w, "create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDetailResponse(user))
}

// Update modifies a user, and the password when one is given.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Name, req.Username = strings.TrimSpace(req.Name), strings.TrimSpace(req.Username)
	if req.Name == "" || req.Username == "" || req.Role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name, username, and role are required"})
		return
	}
	if msg := validateUserFields(req.Role, req.Pin); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	user, err := h.store.UpdateUser(r.Context(), database.UpdateUserParams{
		ID:       id,
		Name:     req.Name,
		Username: req.Username,
		Role:     req.Role,
		Pin:      pinText(req.Pin),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
			return
		}
		internalError(w, "update user", err)
		return
	}

	if req.Password != "" {
		hashed, err := auth.HashPassword(req.Password)
		if err != nil {
			internalError(w, "update user: hash password", err)
			return
		}
		if err := h.store.UpdateUserPassword(r.Context(), database.UpdateUserPasswordParams{ID: id, Password: hashed}); err != nil {
			internalError(w, "update user password", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toUserDetailResponse(user))
}

// Delete removes a user. Admins cannot delete their own account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "user")
	if !ok {
		return
	}

	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil && claims.UserID == id {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot delete your own account"})
		return
	}

	if _, err := h.store.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		internalError(w, "delete user", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// validateUserFields returns an error message, or "" when role and pin are valid.
func validateUserFields(role, pin string) string {
	if !enum.ValidRole(role) {
		return "invalid role"
	}
	if pin == "" {
		return ""
	}
	if len(pin) < 4 || len(pin) > 6 {
		return "PIN must be 4-6 digits"
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return "PIN must be 4-6 digits"
		}
	}
	return ""
}

func pinText(pin string) pgtype.Text {
	if pin == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: pin, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
