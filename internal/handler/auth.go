package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
)

// AuthServicer defines the session methods needed by auth handlers.
// Satisfied by *service.SessionService; narrow interface for testability.
type AuthServicer interface {
	Login(ctx context.Context, username, password, role string) (*service.Session, error)
	Refresh(ctx context.Context, token string) (*service.Session, error)
	Logout(ctx context.Context, token string) error
	Register(ctx context.Context, name, username, password string) (*service.Session, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	svc          AuthServicer
	cookieSecure bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthServicer, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, cookieSecure: cookieSecure}
}

// RegisterRoutes registers the public auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
}

// RegisterProtectedRoutes registers endpoints that need an access token.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string          `json:"accessToken"`
	User        sessionUserResp `json:"user"`
}

type sessionUserResp struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// --- Handlers ---

// Login handles username + password authentication. The refresh token is
// returned only as an httpOnly cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, err := h.svc.Login(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCredentials):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidCredentials):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		case errors.Is(err, service.ErrRoleMismatch):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid role"})
		default:
			internalError(w, "login", err)
		}
		return
	}

	h.respondWithSession(w, http.StatusOK, session)
}

// Register creates a customer account and signs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, err := h.svc.Register(r.Context(), req.Name, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNameRequired), errors.Is(err, service.ErrMissingCredentials):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, service.ErrUsernameTaken):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			internalError(w, "register", err)
		}
		return
	}

	h.respondWithSession(w, http.StatusCreated, session)
}

// Refresh rotates the refresh cookie and issues a new access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no refresh token"})
		return
	}

	session, err := h.svc.Refresh(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrRefreshTokenExpired):
			auth.ClearRefreshCookie(w, h.cookieSecure)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		default:
			internalError(w, "refresh token", err)
		}
		return
	}

	h.respondWithSession(w, http.StatusOK, session)
}

// Logout deletes the refresh token and clears the cookie. It always succeeds
// from the client's point of view.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.RefreshCookieName); err == nil {
		if err := h.svc.Logout(r.Context(), cookie.Value); err != nil {
			zap.L().Warn("logout", zap.Error(err))
		}
	}

	auth.ClearRefreshCookie(w, h.cookieSecure)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me returns the caller as seen in the access token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	writeJSON(w, http.StatusOK, sessionUserResp{
		ID:   claims.UserID,
		Name: claims.Name,
		Role: claims.Role,
	})
}

// --- Helpers ---

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, status int, s *service.Session) {
	auth.SetRefreshCookie(w, s.RefreshToken, h.cookieSecure)
	writeJSON(w, status, tokenResponse{
		AccessToken: s.AccessToken,
		User:        toSessionUser(s.User),
	})
}

func toSessionUser(u database.User) sessionUserResp {
	return sessionUserResp{ID: u.ID, Name: u.Name, Role: u.Role}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode JSON response", zap.Error(err))
	}
}

// internalError logs err under op and sends a generic 500.
func internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
