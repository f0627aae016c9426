package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/enum"
	"github.com/mesa-digital/api/internal/handler"
	"github.com/mesa-digital/api/internal/middleware"
	"github.com/mesa-digital/api/internal/service"
)

// --- Mock service ---

type mockAuthService struct {
	users      map[string]database.User // keyed by username
	passwords  map[string]string
	tokens     map[string]int64 // refresh token -> user id
	expired    map[string]bool
	loggedOut  []string
	nextToken  int
	nextUserID int64
}

func newMockAuthService() *mockAuthService {
	return &mockAuthService{
		users:      make(map[string]database.User),
		passwords:  make(map[string]string),
		tokens:     make(map[string]int64),
		expired:    make(map[string]bool),
		nextUserID: 100,
	}
}

func (m *mockAuthService) addUser(id int64, name, username, password, role string) {
	m.users[username] = database.User{ID: id, Name: name, Username: username, Role: role}
	m.passwords[username] = password
}

func (m *mockAuthService) issue(u database.User) *service.Session {
	m.nextToken++
	token := "refresh-" + strconv.Itoa(m.nextToken)
	m.tokens[token] = u.ID
	return &service.Session{AccessToken: "access-for-" + u.Username, RefreshToken: token, User: u}
}

func (m *mockAuthService) Login(_ context.Context, username, password, role string) (*service.Session, error) {
	if username == "" || password == "" {
		return nil, service.ErrMissingCredentials
	}
	u, ok := m.users[username]
	if !ok || m.passwords[username] != password {
		return nil, service.ErrInvalidCredentials
	}
	if role != "" && role != u.Role {
		return nil, service.ErrRoleMismatch
	}
	return m.issue(u), nil
}

func (m *mockAuthService) Refresh(_ context.Context, token string) (*service.Session, error) {
	userID, ok := m.tokens[token]
	if !ok {
		return nil, service.ErrInvalidRefreshToken
	}
	delete(m.tokens, token)
	if m.expired[token] {
		return nil, service.ErrRefreshTokenExpired
	}
	for _, u := range m.users {
		if u.ID == userID {
			return m.issue(u), nil
		}
	}
	return nil, service.ErrInvalidRefreshToken
}

func (m *mockAuthService) Logout(_ context.Context, token string) error {
	m.loggedOut = append(m.loggedOut, token)
	delete(m.tokens, token)
	return nil
}

func (m *mockAuthService) Register(_ context.Context, name, username, password string) (*service.Session, error) {
	if name == "" {
		return nil, service.ErrNameRequired
	}
	if username == "" || password == "" {
		return nil, service.ErrMissingCredentials
	}
	if _, ok := m.users[username]; ok {
		return nil, service.ErrUsernameTaken
	}
	m.nextUserID++
	m.addUser(m.nextUserID, name, username, password, enum.UserRoleCustomer)
	return m.issue(m.users[username]), nil
}

// --- Helpers ---

func setupAuthRouter(svc *mockAuthService) *chi.Mux {
	h := handler.NewAuthHandler(svc, false)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterProtectedRoutes(r)
	})
	return r
}

func refreshCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.RefreshCookieName {
			return c
		}
	}
	return nil
}

func postWithCookie(t *testing.T, router http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: token})
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// --- Login tests ---

func TestLogin_ValidCredentials(t *testing.T) {
	svc := newMockAuthService()
	svc.addUser(1, "Admin", "admin", "admin", enum.UserRoleAdmin)
	r := setupAuthRouter(svc)

	rr := doRequest(t, r, "POST", "/auth/login", map[string]string{
		"username": "admin",
		"password": "admin",
	})
	expectStatus(t, rr, http.StatusOK)

	resp := decodeResponse(t, rr)
	if resp["accessToken"] != "access-for-admin" {
		t.Errorf("expected access token, got %v", resp["accessToken"])
	}
	user := resp["user"].(map[string]interface{})
	if user["role"] != "admin" {
		t.Errorf("expected role admin, got %v", user["role"])
	}
	if _, ok := resp["refreshToken"]; ok {
		t.Error("refresh token must not be in the body")
	}

	c := refreshCookie(rr)
	if c == nil || c.Value == "" {
		t.Fatal("expected refresh cookie")
	}
	if !c.HttpOnly {
		t.Error("refresh cookie must be httpOnly")
	}
}

func TestLogin_Errors(t *testing.T) {
	svc := newMockAuthService()
	svc.addUser(2, "Ana", "ana", "pw", enum.UserRoleWaiter)
	r := setupAuthRouter(svc)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing password", map[string]string{"username": "ana"}, http.StatusBadRequest},
		{"wrong password", map[string]string{"username": "ana", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "bob", "password": "pw"}, http.StatusUnauthorized},
		{"role mismatch", map[string]string{"username": "ana", "password": "pw", "role": "admin"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/auth/login", tt.body)
			expectStatus(t, rr, tt.want)
			if refreshCookie(rr) != nil {
				t.Error("no cookie expected on failure")
			}
		})
	}
}

func TestLogin_InvalidBody(t *testing.T) {
	r := setupAuthRouter(newMockAuthService())

	req := httptest.NewRequest("POST", "/auth/login", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusBadRequest)
}

// --- Register tests ---

func TestRegister_CreatesCustomer(t *testing.T) {
	svc := newMockAuthService()
	r := setupAuthRouter(svc)

	rr := doRequest(t, r, "POST", "/auth/register", map[string]string{
		"name":     "Joana",
		"username": "joana",
		"password": "secret",
	})
	expectStatus(t, rr, http.StatusCreated)

	user := decodeResponse(t, rr)["user"].(map[string]interface{})
	if user["role"] != "customer" {
		t.Errorf("expected customer role, got %v", user["role"])
	}
	if refreshCookie(rr) == nil {
		t.Error("expected refresh cookie")
	}

	rr = doRequest(t, r, "POST", "/auth/register", map[string]string{
		"name":     "Joana 2",
		"username": "joana",
		"password": "other",
	})
	expectStatus(t, rr, http.StatusConflict)

	rr = doRequest(t, r, "POST", "/auth/register", map[string]string{"username": "x", "password": "y"})
	expectStatus(t, rr, http.StatusBadRequest)
}

// --- Refresh / logout tests ---

func TestRefresh_RotatesCookie(t *testing.T) {
	svc := newMockAuthService()
	svc.addUser(1, "Admin", "admin", "admin", enum.UserRoleAdmin)
	r := setupAuthRouter(svc)

	login := doRequest(t, r, "POST", "/auth/login", map[string]string{"username": "admin", "password": "admin"})
	first := refreshCookie(login)

	rr := postWithCookie(t, r, "/auth/refresh", first.Value)
	expectStatus(t, rr, http.StatusOK)
	second := refreshCookie(rr)
	if second == nil || second.Value == first.Value {
		t.Fatal("expected a new refresh token")
	}

	// The consumed token cannot be replayed.
	rr = postWithCookie(t, r, "/auth/refresh", first.Value)
	expectStatus(t, rr, http.StatusUnauthorized)
	if c := refreshCookie(rr); c == nil || c.MaxAge >= 0 {
		t.Error("expected cookie to be cleared")
	}
}

func TestRefresh_NoCookie(t *testing.T) {
	r := setupAuthRouter(newMockAuthService())

	rr := postWithCookie(t, r, "/auth/refresh", "")
	expectStatus(t, rr, http.StatusUnauthorized)
	if decodeResponse(t, rr)["error"] != "no refresh token" {
		t.Error("unexpected error message")
	}
}

func TestRefresh_Expired(t *testing.T) {
	svc := newMockAuthService()
	svc.addUser(1, "Admin", "admin", "admin", enum.UserRoleAdmin)
	svc.tokens["old"] = 1
	svc.expired["old"] = true
	r := setupAuthRouter(svc)

	rr := postWithCookie(t, r, "/auth/refresh", "old")
	expectStatus(t, rr, http.StatusUnauthorized)
	if _, ok := svc.tokens["old"]; ok {
		t.Error("expired token should be removed")
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	svc := newMockAuthService()
	svc.tokens["tok"] = 1
	r := setupAuthRouter(svc)

	rr := postWithCookie(t, r, "/auth/logout", "tok")
	expectStatus(t, rr, http.StatusOK)
	if len(svc.loggedOut) != 1 || svc.loggedOut[0] != "tok" {
		t.Errorf("expected token to be revoked, got %v", svc.loggedOut)
	}
	if c := refreshCookie(rr); c == nil || c.MaxAge >= 0 {
		t.Error("expected cookie to be cleared")
	}

	// Without a cookie logout still succeeds.
	rr = postWithCookie(t, r, "/auth/logout", "")
	expectStatus(t, rr, http.StatusOK)
}

// --- Me tests ---

func TestMe(t *testing.T) {
	r := setupAuthRouter(newMockAuthService())

	rr := doAuthRequest(t, r, "GET", "/auth/me", nil, waiterClaims())
	expectStatus(t, rr, http.StatusOK)
	resp := decodeResponse(t, rr)
	if resp["role"] != "waiter" || resp["name"] != "Waiter" {
		t.Errorf("unexpected me response: %v", resp)
	}

	rr = doRequest(t, r, "GET", "/auth/me", nil)
	expectStatus(t, rr, http.StatusUnauthorized)
}
