package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/enum"
)

const testJWTSecret = "test-secret-for-handlers"

func adminClaims() *auth.Claims {
	return &auth.Claims{UserID: 1, Name: "Admin", Role: enum.UserRoleAdmin}
}

func waiterClaims() *auth.Claims {
	return &auth.Claims{UserID: 2, Name: "Waiter", Role: enum.UserRoleWaiter}
}

func customerClaims() *auth.Claims {
	return &auth.Claims{UserID: 3, Name: "Customer", Role: enum.UserRoleCustomer}
}

func newRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, path, nil)
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequest(t, method, path, body))
	return rr
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	// Generate a real JWT token from claims
	token := mustToken(t, claims.UserID, claims.Name, claims.Role)

	req := newRequest(t, method, path, body)
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

func decodeListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func mustToken(t *testing.T, userID int64, name, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, userID, name, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}
