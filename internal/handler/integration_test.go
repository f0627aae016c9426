//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mesa-digital/api/internal/auth"
	"github.com/mesa-digital/api/internal/config"
	"github.com/mesa-digital/api/internal/database"
	"github.com/mesa-digital/api/internal/router"
	"github.com/mesa-digital/api/internal/ws"
)

// TestIntegrationFloorFlow runs a full service round against a real PostgreSQL:
// a table is opened, ordered at, served item by item, billed and closed.
func TestIntegrationFloorFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr := setupPostgresContainer(t, ctx)
	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	cfg := &config.Config{
		Port:            "8081",
		DatabaseURL:     connStr,
		JWTSecret:       "integration-test-secret",
		FrontendOrigins: []string{"http://localhost:5173"},
	}
	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(cfg, router.Deps{
		Queries: database.New(pool),
		DB:      pool,
		Hub:     hub,
	})
	server := httptest.NewServer(r)
	defer server.Close()

	createAdminUser(t, ctx, pool, "admin", "password123")
	adminToken := login(t, server, "admin", "password123")

	// Staff accounts are created through the API.
	doJSON(t, server, http.MethodPost, "/api/users", map[string]interface{}{
		"name": "Ana", "username": "ana", "password": "password123", "role": "waiter",
	}, adminToken, http.StatusCreated, nil)
	waiterToken := login(t, server, "ana", "password123")

	var product struct {
		ID int64 `json:"id"`
	}
	doJSON(t, server, http.MethodPost, "/api/products", map[string]interface{}{
		"name": "Lager", "price": "14.00",
	}, adminToken, http.StatusCreated, &product)
	require.NotZero(t, product.ID)

	// --- Open table 7 ---
	var table struct {
		ID     int64  `json:"id"`
		Number int32  `json:"number"`
		Status string `json:"status"`
	}
	doJSON(t, server, http.MethodPost, "/api/tables/open", map[string]interface{}{"number": 7}, waiterToken, http.StatusOK, &table)
	assert.Equal(t, int32(7), table.Number)
	assert.Equal(t, "OCCUPIED", table.Status)

	// --- Order two lines ---
	type item struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	var order struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Total  string `json:"total"`
		Items  []item `json:"items"`
	}
	doJSON(t, server, http.MethodPost, "/api/orders", map[string]interface{}{
		"tableId": table.ID,
		"items": []map[string]interface{}{
			{"productId": product.ID, "name": "Lager", "price": "14.00", "quantity": 3},
			{"name": "Fries", "price": "4.50", "quantity": 1, "observation": "no salt"},
		},
	}, waiterToken, http.StatusCreated, &order)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "PENDING", order.Status)
	assert.Equal(t, "46.50", order.Total)

	// Closing with undelivered items is refused.
	doJSON(t, server, http.MethodPost, fmt.Sprintf("/api/tables/%d/close", table.ID), nil, waiterToken, http.StatusConflict, nil)

	// --- Serve item by item ---
	itemPath := func(i int) string {
		return fmt.Sprintf("/api/orders/%d/items/%d/status", order.ID, order.Items[i].ID)
	}
	doJSON(t, server, http.MethodPut, itemPath(0), map[string]string{"status": "DELIVERED"}, waiterToken, http.StatusOK, &order)
	assert.Equal(t, "PARTIAL", order.Status)

	doJSON(t, server, http.MethodPut, itemPath(1), map[string]string{"status": "DELIVERED"}, waiterToken, http.StatusOK, &order)
	assert.Equal(t, "DELIVERED", order.Status)

	// --- Bill ---
	var bill struct {
		Subtotal string `json:"subtotal"`
		Total    string `json:"total"`
		Orders   []json.RawMessage
	}
	doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/tables/%d/bill", table.ID), nil, waiterToken, http.StatusOK, &bill)
	assert.Equal(t, "46.50", bill.Subtotal)
	assert.Len(t, bill.Orders, 1)

	// --- Close ---
	var closed struct {
		Table struct {
			Status string `json:"status"`
		} `json:"table"`
		PaidOrders int `json:"paidOrders"`
	}
	doJSON(t, server, http.MethodPost, fmt.Sprintf("/api/tables/%d/close", table.ID),
		map[string]string{"paymentMethod": "PIX"}, waiterToken, http.StatusOK, &closed)
	assert.Equal(t, "AVAILABLE", closed.Table.Status)
	assert.Equal(t, 1, closed.PaidOrders)

	doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/orders/%d", order.ID), nil, waiterToken, http.StatusOK, &order)
	assert.Equal(t, "PAID", order.Status)

	// PAID is final: item toggles no longer move the order.
	doJSON(t, server, http.MethodPut, itemPath(0), map[string]string{"status": "PENDING"}, waiterToken, http.StatusOK, &order)
	assert.Equal(t, "PAID", order.Status)

	// --- Closed today ---
	var closedToday []struct {
		TableNumber int32  `json:"tableNumber"`
		Total       string `json:"total"`
	}
	doJSON(t, server, http.MethodGet, "/api/orders/closed-today", nil, adminToken, http.StatusOK, &closedToday)
	require.Len(t, closedToday, 1)
	assert.Equal(t, int32(7), closedToday[0].TableNumber)
	assert.Equal(t, "46.50", closedToday[0].Total)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("mesa_test"),
		tcpostgres.WithUsername("mesa"),
		tcpostgres.WithPassword("mesa"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err)

	// go test runs with the package directory as cwd.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	require.NoError(t, err)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createAdminUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, username, password string) {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO users (name, username, password, role) VALUES ($1, $2, $3, 'admin')`,
		"Admin", username, hashed,
	)
	require.NoError(t, err, "create admin user")
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	doJSON(t, server, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "", http.StatusOK, &resp)
	require.NotEmpty(t, resp.AccessToken, "login returned no access token")
	return resp.AccessToken
}

// --- HTTP helpers ---

// doJSON sends body as JSON, requires the given status and decodes the
// response into out when out is non-nil.
func doJSON(t *testing.T, server *httptest.Server, method, path string, body interface{}, token string, wantStatus int, out interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("%s %s: status %d, want %d, body: %v", method, path, resp.StatusCode, wantStatus, errResp)
	}
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "decode %s %s", method, path)
	}
}
