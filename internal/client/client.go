// Package client is the floor device's view of the API: a typed REST client
// with refresh-once session handling, an in-memory store of the restaurant
// state and an outbox that replays mutations made while the API was
// unreachable.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionExpired is returned when the refresh token was rejected. The
// session is cleared and the user has to log in again.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Message string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to the API. The refresh token lives in the cookie jar; the
// access token is sent as a bearer header.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
	user        *User
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport overrides the default round tripper.
	Transport http.RoundTripper
}

// New creates a client with an empty session.
func New(cfg Config) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: cfg.Transport,
		},
	}, nil
}

// User returns the signed-in user, or nil.
func (c *Client) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) setSession(t tokenResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = t.AccessToken
	u := t.User
	c.user = &u
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.user = nil
}

// =============================================================================
// Session
// =============================================================================

// Login signs in. role may be empty; when set the server refuses accounts
// with a different role.
func (c *Client) Login(ctx context.Context, username, password, role string) (*User, error) {
	var resp tokenResponse
	err := c.send(ctx, http.MethodPost, "/api/auth/login", loginRequest{
		Username: username,
		Password: password,
		Role:     role,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.setSession(resp)
	return c.User(), nil
}

// Refresh rotates the refresh cookie and replaces the access token. Only a
// rejected refresh token ends the session; a throttled or failing server
// returns its *APIError and the session is kept.
func (c *Client) Refresh(ctx context.Context) error {
	var resp tokenResponse
	err := c.send(ctx, http.MethodPost, "/api/auth/refresh", nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && isAuthFailure(apiErr.Status) {
		c.clearSession()
		return ErrSessionExpired
	}
	if err != nil {
		return err
	}
	c.setSession(resp)
	return nil
}

// Logout revokes the refresh token. The local session is cleared even when
// the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.clearSession()
	return c.send(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// =============================================================================
// API Methods
// =============================================================================

func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var out []Table
	err := c.do(ctx, http.MethodGet, "/api/tables", nil, &out)
	return out, err
}

// OpenTable occupies the table with this number, creating it if needed.
func (c *Client) OpenTable(ctx context.Context, number int32) (Table, error) {
	var out Table
	err := c.do(ctx, http.MethodPost, "/api/tables/open", map[string]int32{"number": number}, &out)
	return out, err
}

// SetTableStatus overwrites a table's status. Staff only.
func (c *Client) SetTableStatus(ctx context.Context, id int64, status string) (Table, error) {
	var out Table
	err := c.do(ctx, http.MethodPut, "/api/tables/"+itoa(id), statusRequest{Status: status}, &out)
	return out, err
}

// RequestAttention calls the waiter or asks for the bill from the table.
func (c *Client) RequestAttention(ctx context.Context, id int64, status string) (Table, error) {
	var out Table
	err := c.do(ctx, http.MethodPost, "/api/tables/"+itoa(id)+"/attention", statusRequest{Status: status}, &out)
	return out, err
}

// CloseTable settles every open order of the table and frees it.
func (c *Client) CloseTable(ctx context.Context, id int64, paymentMethod string) (CloseResult, error) {
	var out CloseResult
	body := map[string]string{"paymentMethod": paymentMethod}
	err := c.do(ctx, http.MethodPost, "/api/tables/"+itoa(id)+"/close", body, &out)
	return out, err
}

func (c *Client) Bill(ctx context.Context, tableID int64) (Bill, error) {
	var out Bill
	err := c.do(ctx, http.MethodGet, "/api/tables/"+itoa(tableID)+"/bill", nil, &out)
	return out, err
}

func (c *Client) ListOrders(ctx context.Context, opts ListOrdersOptions) ([]Order, error) {
	q := url.Values{}
	if opts.TableID != 0 {
		q.Set("tableId", itoa(opts.TableID))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	path := "/api/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Order
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, tableID int64, items []NewOrderItem) (Order, error) {
	var out Order
	body := struct {
		TableID int64          `json:"tableId"`
		Items   []NewOrderItem `json:"items"`
	}{tableID, items}
	err := c.do(ctx, http.MethodPost, "/api/orders", body, &out)
	return out, err
}

func (c *Client) SetOrderStatus(ctx context.Context, id int64, status, paymentMethod string) (Order, error) {
	var out Order
	body := statusRequest{Status: status, PaymentMethod: paymentMethod}
	err := c.do(ctx, http.MethodPut, "/api/orders/"+itoa(id)+"/status", body, &out)
	return out, err
}

// SetItemStatus toggles one item; the returned order carries the status
// derived by the server.
func (c *Client) SetItemStatus(ctx context.Context, orderID, itemID int64, status string) (Order, error) {
	var out Order
	path := "/api/orders/" + itoa(orderID) + "/items/" + itoa(itemID) + "/status"
	err := c.do(ctx, http.MethodPut, path, statusRequest{Status: status}, &out)
	return out, err
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := c.do(ctx, http.MethodGet, "/api/products", nil, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, &out)
	return out, err
}

func (c *Client) ListFeedbacks(ctx context.Context) ([]Feedback, error) {
	var out []Feedback
	err := c.do(ctx, http.MethodGet, "/api/feedbacks", nil, &out)
	return out, err
}

func (c *Client) SendFeedback(ctx context.Context, tableNumber, rating int32, comment string) (Feedback, error) {
	var out Feedback
	body := map[string]interface{}{"tableNumber": tableNumber, "rating": rating, "comment": comment}
	err := c.do(ctx, http.MethodPost, "/api/feedbacks", body, &out)
	return out, err
}

func (c *Client) GetEstablishment(ctx context.Context) (Establishment, error) {
	var out Establishment
	err := c.do(ctx, http.MethodGet, "/api/establishment", nil, &out)
	return out, err
}

// =============================================================================
// Transport
// =============================================================================

// do sends the request. A 401 or 403 with an active session triggers one
// refresh and one retry.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	err := c.send(ctx, method, path, in, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || c.token() == "" {
		return err
	}
	if !isAuthFailure(apiErr.Status) {
		return err
	}

	if err := c.Refresh(ctx); err != nil {
		return err
	}
	return c.send(ctx, method, path, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
