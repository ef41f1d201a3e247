package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/marketplace/internal/adapter/storage"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/pkg/metrics"
)

type testServer struct {
	store   *storage.MemoryStore
	metrics *metrics.Metrics
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)
	logger := zaptest.NewLogger(t)
	m := service.New(store, store, store, service.Options{Logger: logger, Metrics: mx})
	return &testServer{
		store:   store,
		metrics: mx,
		router:  NewHTTPHandler(m, logger, mx, reg).Router(),
	}
}

func (s *testServer) do(t *testing.T, method, path, account string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if account != "" {
		req.Header.Set(IdentityHeader, account)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func (s *testServer) account(t *testing.T, id string, role domain.Role) {
	t.Helper()
	if rec, _ := s.do(t, http.MethodPost, "/accounts", id, map[string]string{"name": id}); rec.Code != http.StatusOK {
		t.Fatalf("register %s: status %d", id, rec.Code)
	}
	if role != domain.RoleCustomer {
		s.store.ResolveUpgrade(context.Background(), id, role)
	}
}

func (s *testServer) listItem(t *testing.T, seller string, qty int) string {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/items", seller, map[string]any{
		"name": "Monstera", "category": "Indoor", "price": "10", "quantity": qty,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("list item: status %d body %s", rec.Code, rec.Body.String())
	}
	return resp.Data.(map[string]any)["id"].(string)
}

func TestHTTP_OrderFlow(t *testing.T) {
	s := newTestServer(t)
	s.account(t, "seller-1", domain.RoleSeller)
	s.account(t, "customer-1", domain.RoleCustomer)
	itemID := s.listItem(t, "seller-1", 5)

	rec, resp := s.do(t, http.MethodPost, "/orders", "customer-1", map[string]any{
		"item_id": itemID, "quantity": 3, "address": "1 Garden Way",
	})
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("place: status %d body %s", rec.Code, rec.Body.String())
	}
	order := resp.Data.(map[string]any)
	if order["price"] != "30" || order["status"] != "pending" {
		t.Errorf("unexpected order %v", order)
	}
	orderID := order["id"].(string)

	rec, resp = s.do(t, http.MethodGet, "/items/"+itemID, "", nil)
	if rec.Code != http.StatusOK || resp.Data.(map[string]any)["available_quantity"].(float64) != 2 {
		t.Errorf("expected 2 left, got %s", rec.Body.String())
	}

	rec, _ = s.do(t, http.MethodPatch, "/orders/"+orderID+"/status", "customer-1", map[string]string{"status": "in_progress"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("customer advance: expected 403, got %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodDelete, "/orders/"+orderID, "customer-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}

	_, resp = s.do(t, http.MethodGet, "/items/"+itemID, "", nil)
	if resp.Data.(map[string]any)["available_quantity"].(float64) != 5 {
		t.Errorf("expected stock restored to 5, got %v", resp.Data)
	}
}

func TestHTTP_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.account(t, "seller-1", domain.RoleSeller)
	s.account(t, "customer-1", domain.RoleCustomer)
	s.account(t, "admin-1", domain.RoleAdmin)
	itemID := s.listItem(t, "seller-1", 1)

	tests := []struct {
		name    string
		method  string
		path    string
		account string
		body    any
		want    int
	}{
		{"anonymous place", http.MethodPost, "/orders", "", map[string]any{"item_id": itemID, "quantity": 1, "address": "a"}, http.StatusUnauthorized},
		{"zero quantity", http.MethodPost, "/orders", "customer-1", map[string]any{"item_id": itemID, "quantity": 0, "address": "a"}, http.StatusBadRequest},
		{"sold out", http.MethodPost, "/orders", "customer-1", map[string]any{"item_id": itemID, "quantity": 2, "address": "a"}, http.StatusGone},
		{"missing item", http.MethodPost, "/orders", "customer-1", map[string]any{"item_id": "ghost", "quantity": 1, "address": "a"}, http.StatusNotFound},
		{"bad body", http.MethodPost, "/orders", "customer-1", map[string]any{"unknown": true}, http.StatusBadRequest},
		{"customer lists item", http.MethodPost, "/items", "customer-1", map[string]any{"name": "x", "price": "1", "quantity": 1}, http.StatusForbidden},
		{"resolve missing target", http.MethodPut, "/accounts/ghost/role", "admin-1", map[string]string{"role": "seller"}, http.StatusNotFound},
		{"resolve bad role", http.MethodPut, "/accounts/customer-1/role", "admin-1", map[string]string{"role": "overlord"}, http.StatusBadRequest},
		{"unknown status", http.MethodPatch, "/orders/x/status", "seller-1", map[string]string{"status": "shipped"}, http.StatusBadRequest},
		{"list accounts as customer", http.MethodGet, "/accounts", "customer-1", nil, http.StatusForbidden},
		{"anonymous advance with bad status", http.MethodPatch, "/orders/x/status", "", map[string]string{"status": "shipped"}, http.StatusUnauthorized},
		{"anonymous resolve with bad role", http.MethodPut, "/accounts/customer-1/role", "", map[string]string{"role": "overlord"}, http.StatusUnauthorized},
		{"anonymous place with bad body", http.MethodPost, "/orders", "", map[string]any{"unknown": true}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, tt.method, tt.path, tt.account, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if resp.Success {
				t.Error("expected success=false")
			}
		})
	}
}

func TestHTTP_UpgradeWorkflow(t *testing.T) {
	s := newTestServer(t)
	s.account(t, "customer-1", domain.RoleCustomer)
	s.account(t, "admin-1", domain.RoleAdmin)

	if rec, _ := s.do(t, http.MethodPost, "/accounts/me/upgrade", "customer-1", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("request: status %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPost, "/accounts/me/upgrade", "customer-1", nil); rec.Code != http.StatusConflict {
		t.Errorf("duplicate request: expected 409, got %d", rec.Code)
	}
	if rec, _ := s.do(t, http.MethodPut, "/accounts/customer-1/role", "admin-1", map[string]string{"role": "seller"}); rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d", rec.Code)
	}

	_, resp := s.do(t, http.MethodGet, "/accounts/customer-1/role", "", nil)
	if resp.Data.(map[string]any)["role"] != "seller" {
		t.Errorf("expected seller role, got %v", resp.Data)
	}
}

func TestHTTP_IdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	s.account(t, "seller-1", domain.RoleSeller)
	s.account(t, "customer-1", domain.RoleCustomer)
	itemID := s.listItem(t, "seller-1", 5)

	place := func() int {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(map[string]any{"item_id": itemID, "quantity": 1, "address": "a"})
		req := httptest.NewRequest(http.MethodPost, "/orders", &buf)
		req.Header.Set(IdentityHeader, "customer-1")
		req.Header.Set(IdempotencyHeader, "req-42")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := place(); code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", code)
	}
	if code := place(); code != http.StatusConflict {
		t.Errorf("replay: expected 409, got %d", code)
	}
}

func TestHTTP_ObservabilityMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected request id header")
	}
	if got := testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "GET /health", "200")); got != 1 {
		t.Errorf("expected one recorded request, got %v", got)
	}

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "marketplace_http_requests_total") {
		t.Errorf("expected metrics exposition, got %d", rec.Code)
	}
}
