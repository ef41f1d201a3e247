package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/pkg/logging"
	"github.com/rl1809/marketplace/internal/pkg/metrics"
)

type HTTPHandler struct {
	m        *service.Marketplace
	logger   *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

func NewHTTPHandler(m *service.Marketplace, logger *zap.Logger, mx *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{m: m, logger: logger, metrics: mx, gatherer: gatherer}
}

// Router returns the full HTTP surface wrapped in the observability middleware.
func (h *HTTPHandler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /accounts", h.Register)
	mux.HandleFunc("GET /accounts", h.ListAccounts)
	mux.HandleFunc("GET /accounts/{id}/role", h.AccountRole)
	mux.HandleFunc("POST /accounts/me/upgrade", h.RequestUpgrade)
	mux.HandleFunc("PUT /accounts/{id}/role", h.ResolveUpgrade)

	mux.HandleFunc("POST /items", h.ListItem)
	mux.HandleFunc("GET /items", h.ListItems)
	mux.HandleFunc("GET /items/{id}", h.GetItem)
	mux.HandleFunc("DELETE /items/{id}", h.DeleteItem)
	mux.HandleFunc("GET /seller/items", h.SellerItems)

	mux.HandleFunc("POST /orders", h.PlaceOrder)
	mux.HandleFunc("DELETE /orders/{id}", h.CancelOrder)
	mux.HandleFunc("PATCH /orders/{id}/status", h.AdvanceOrder)
	mux.HandleFunc("GET /customer/orders", h.CustomerOrders)
	mux.HandleFunc("GET /seller/orders", h.SellerOrders)

	mux.HandleFunc("GET /health", h.HealthCheck)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return observabilityMiddleware(h.logger, h.metrics)(mux)
}

type registerRequest struct {
	Name string `json:"name"`
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.m.Accounts.Register(r.Context(), id, req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "account ready", Data: toAccountResponse(*account)})
}

func (h *HTTPHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.m.Accounts.ListAccounts(r.Context(), identityFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: mapSlice(accounts, toAccountResponse)})
}

func (h *HTTPHandler) AccountRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.m.Accounts.Role(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: map[string]domain.Role{"role": role}})
}

func (h *HTTPHandler) RequestUpgrade(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Accounts.RequestUpgrade(r.Context(), identityFromRequest(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, response{Success: true, Message: "upgrade requested"})
}

type resolveUpgradeRequest struct {
	Role string `json:"role"`
}

func (h *HTTPHandler) ResolveUpgrade(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req resolveUpgradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.m.Accounts.ResolveUpgrade(r.Context(), id, r.PathValue("id"), role); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "role updated"})
}

type listItemRequest struct {
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

func (h *HTTPHandler) ListItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req listItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	item, err := h.m.Catalog.ListItem(r.Context(), id, domain.NewItemParams{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Price:       req.Price,
		Quantity:    req.Quantity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Success: true, Message: "item listed", Data: toItemResponse(*item)})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, response{Message: "invalid limit"})
			return
		}
		limit = n
	}

	items, err := h.m.Catalog.ListItems(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: mapSlice(items, toItemResponse)})
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.m.Catalog.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: toItemResponse(*item)})
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Catalog.DeleteItem(r.Context(), identityFromRequest(r), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "item deleted"})
}

func (h *HTTPHandler) SellerItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.m.Catalog.SellerItems(r.Context(), identityFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: mapSlice(items, toItemResponse)})
}

type placeOrderRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Address  string `json:"address"`
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.m.Placement.Place(r.Context(), id, service.PlaceOrderRequest{
		ItemID:         req.ItemID,
		Quantity:       req.Quantity,
		Address:        req.Address,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Success: true, Message: "order placed successfully", Data: toOrderResponse(*order)})
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Cancellation.Cancel(r.Context(), identityFromRequest(r), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "order cancelled"})
}

type advanceOrderRequest struct {
	Status string `json:"status"`
}

func (h *HTTPHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req advanceOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.m.Fulfillment.Advance(r.Context(), id, r.PathValue("id"), to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "order updated", Data: toOrderResponse(*order)})
}

func (h *HTTPHandler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.m.Views.CustomerOrders(r.Context(), identityFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: mapSlice(views, toOrderViewResponse)})
}

func (h *HTTPHandler) SellerOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.m.Views.SellerOrders(r.Context(), identityFromRequest(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: mapSlice(views, toOrderViewResponse)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// identify rejects unauthenticated callers before any request body is read.
func (h *HTTPHandler) identify(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id := identityFromRequest(r)
	if !id.Authenticated {
		h.writeError(w, r, domain.ErrUnauthorized)
		return id, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := errorStatus(err)
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if code >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), h.logger).Error("request_failed", zap.Error(err))
	}
	writeJSON(w, code, response{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

