//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/scanorder/api/internal/config"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/router"
	"github.com/scanorder/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestIntegrationFlow exercises the full lifecycle against a real PostgreSQL
// database: register, verify, login, build a menu, take orders through the
// public QR endpoint, finish them, and export the history as CSV.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:          "8081",
		DatabaseURL:   connStr,
		JWTSecret:     "integration-test-secret",
		PublicBaseURL: "http://localhost:8081",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()

	r := router.New(cfg, queries, pool, hub)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Register a restaurant ---
	registerResp := httpPostJSON(t, server, "/auth/register", map[string]interface{}{
		"name":                  "Trattoria Verde",
		"email":                 "owner@trattoria.test",
		"password":              "password123",
		"password_confirmation": "password123",
	}, "")
	if registerResp["verified"].(bool) {
		t.Fatalf("fresh registration must not be verified")
	}

	// --- 2. Verify via the emailed link (mail goes to the log, so read the
	// token straight from the database) ---
	verifyToken := lookupVerifyToken(t, ctx, pool, "owner@trattoria.test")
	httpGetJSON(t, server, "/auth/verify/"+verifyToken, "")

	// --- 3. Login ---
	loginResp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    "owner@trattoria.test",
		"password": "password123",
	}, "")
	token, _ := loginResp["access_token"].(string)
	if token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", loginResp)
	}
	restaurant, _ := loginResp["restaurant"].(map[string]interface{})
	publicToken, _ := restaurant["public_token"].(string)
	if publicToken == "" {
		t.Fatalf("login response missing public_token: %+v", loginResp)
	}

	// --- 4. Build a menu ---
	pizza := httpPostJSON(t, server, "/restaurants/me/menu-items", map[string]interface{}{
		"name":     "Margherita Pizza",
		"price":    "9.50",
		"category": "Mains",
	}, token)
	salad := httpPostJSON(t, server, "/restaurants/me/menu-items", map[string]interface{}{
		"name":     "Caesar Salad",
		"price":    "7.50",
		"category": "Starters",
	}, token)

	// --- 5. Customer scans the QR code and sees the grouped menu ---
	menuResp := httpGetJSON(t, server, fmt.Sprintf("/p/%s/menu", publicToken), "")
	if menuResp["restaurant"].(string) != "Trattoria Verde" {
		t.Fatalf("public menu restaurant: got %v, want Trattoria Verde", menuResp["restaurant"])
	}
	if groups, _ := menuResp["categories"].([]interface{}); len(groups) != 2 {
		t.Fatalf("public menu categories: got %d, want 2", len(groups))
	}

	// --- 6. Two customers order through the QR endpoint ---
	order1 := httpPostJSON(t, server, fmt.Sprintf("/p/%s/orders", publicToken), map[string]interface{}{
		"order_type": "DINE_IN",
		"items": []map[string]interface{}{
			{"menu_item_id": pizza["id"].(string), "quantity": 2},
			{"menu_item_id": salad["id"].(string), "quantity": 1, "remark": "no croutons"},
		},
	}, "")
	if order1["pickup_number"].(float64) != 1 {
		t.Fatalf("first pickup number: got %v, want 1", order1["pickup_number"])
	}

	order2 := httpPostJSON(t, server, fmt.Sprintf("/p/%s/orders", publicToken), map[string]interface{}{
		"order_type": "TAKEOUT",
		"items": []map[string]interface{}{
			{"menu_item_id": salad["id"].(string), "quantity": 1},
		},
	}, "")
	if order2["pickup_number"].(float64) != 2 {
		t.Fatalf("second pickup number: got %v, want 2", order2["pickup_number"])
	}

	// --- 7. Staff dashboard shows both orders with per-order totals ---
	active := httpGetJSON(t, server, "/restaurants/me/orders", token)
	lines, _ := active["lines"].([]interface{})
	if len(lines) != 3 {
		t.Fatalf("active lines: got %d, want 3", len(lines))
	}
	totals, _ := active["totals"].(map[string]interface{})
	// 2 * 9.50 + 7.50
	if totals["1"] != "26.50" {
		t.Fatalf("order 1 total: got %v, want 26.50", totals["1"])
	}
	if totals["2"] != "7.50" {
		t.Fatalf("order 2 total: got %v, want 7.50", totals["2"])
	}

	// --- 8. History cannot be cleared while orders are still active ---
	status, _ := httpDo(t, server, "DELETE", "/restaurants/me/history", nil, token)
	if status != http.StatusConflict {
		t.Fatalf("clear with active orders: got status %d, want %d", status, http.StatusConflict)
	}

	// --- 9. Finish both orders ---
	httpPostJSON(t, server, "/restaurants/me/orders/1/finish", nil, token)
	httpPostJSON(t, server, "/restaurants/me/orders/2/finish", nil, token)

	active = httpGetJSON(t, server, "/restaurants/me/orders", token)
	if lines, _ := active["lines"].([]interface{}); len(lines) != 0 {
		t.Fatalf("active lines after finishing: got %d, want 0", len(lines))
	}

	// --- 10. History report includes the finished lines and today's revenue ---
	history := httpGetJSON(t, server, "/restaurants/me/history", token)
	if finished, _ := history["lines"].([]interface{}); len(finished) != 3 {
		t.Fatalf("finished lines: got %d, want 3", len(finished))
	}
	if history["today_revenue"] != "34.00" {
		t.Fatalf("today_revenue: got %v, want 34.00", history["today_revenue"])
	}

	// --- 11. Export drains the history as CSV ---
	status, body := httpDo(t, server, "GET", "/restaurants/me/history/export", nil, token)
	if status != http.StatusOK {
		t.Fatalf("export: got status %d, want %d", status, http.StatusOK)
	}
	csv := strings.TrimPrefix(string(body), "\uFEFF")
	if !strings.HasPrefix(csv, "Order Number,Item,Quantity,Remark,Unit Price,Dine-in/Takeout,Created Time,Finished Time") {
		t.Fatalf("unexpected CSV header: %q", csv)
	}
	if !strings.Contains(csv, "no croutons") {
		t.Fatalf("CSV missing remark column content: %q", csv)
	}

	history = httpGetJSON(t, server, "/restaurants/me/history", token)
	if finished, _ := history["lines"].([]interface{}); len(finished) != 0 {
		t.Fatalf("finished lines after export: got %d, want 0", len(finished))
	}

	// --- 12. The counter was reset with the history: numbering restarts at 1 ---
	order3 := httpPostJSON(t, server, fmt.Sprintf("/p/%s/orders", publicToken), map[string]interface{}{
		"order_type": "DINE_IN",
		"items": []map[string]interface{}{
			{"menu_item_id": pizza["id"].(string), "quantity": 1},
		},
	}, "")
	if order3["pickup_number"].(float64) != 1 {
		t.Fatalf("pickup number after reset: got %v, want 1", order3["pickup_number"])
	}

	t.Logf("integration flow passed: container=%s, restaurant=%s", pgContainer.GetContainerID(), restaurant["id"])
}

// TestIntegrationConcurrentSubmissions hammers the public order endpoint with
// parallel submissions and asserts every order gets a distinct, gap-free
// pickup number.
func TestIntegrationConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:          "8082",
		DatabaseURL:   connStr,
		JWTSecret:     "integration-test-secret",
		PublicBaseURL: "http://localhost:8082",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run()

	server := httptest.NewServer(router.New(cfg, queries, pool, hub))
	defer server.Close()

	httpPostJSON(t, server, "/auth/register", map[string]interface{}{
		"name":                  "Busy Corner",
		"email":                 "owner@busy.test",
		"password":              "password123",
		"password_confirmation": "password123",
	}, "")
	httpGetJSON(t, server, "/auth/verify/"+lookupVerifyToken(t, ctx, pool, "owner@busy.test"), "")
	loginResp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    "owner@busy.test",
		"password": "password123",
	}, "")
	token := loginResp["access_token"].(string)
	publicToken := loginResp["restaurant"].(map[string]interface{})["public_token"].(string)

	item := httpPostJSON(t, server, "/restaurants/me/menu-items", map[string]interface{}{
		"name":  "Espresso",
		"price": "2.50",
	}, token)
	itemID := item["id"].(string)

	const workers = 20
	numbers := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := httpPostJSON(t, server, fmt.Sprintf("/p/%s/orders", publicToken), map[string]interface{}{
				"order_type": "TAKEOUT",
				"items": []map[string]interface{}{
					{"menu_item_id": itemID, "quantity": 1},
				},
			}, "")
			numbers[i] = int(resp["pickup_number"].(float64))
		}(i)
	}
	wg.Wait()

	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("pickup numbers not contiguous: got %v", numbers)
		}
	}
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("scanorder_test"),
		tcpostgres.WithUsername("scanorder"),
		tcpostgres.WithPassword("scanorder"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// Connect with stdlib for migrate
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory.
	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

// No API endpoint exposes the verification token; mail delivery only logs
// the link. Read it from the database directly.
func lookupVerifyToken(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email string) string {
	t.Helper()
	var token string
	err := pool.QueryRow(ctx,
		`SELECT verify_token FROM restaurants WHERE email = $1`, email,
	).Scan(&token)
	if err != nil {
		t.Fatalf("lookup verify token: %v", err)
	}
	return token
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest("POST", server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("POST %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	req, err := http.NewRequest("GET", server.URL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

// httpDo issues a request and returns the status and raw body without
// asserting success. Used for endpoints that legitimately return conflicts
// or non-JSON bodies.
func httpDo(t *testing.T, server *httptest.Server, method, path string, body io.Reader, token string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}
