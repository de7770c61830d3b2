package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/middleware"
	"github.com/scanorder/api/internal/service"
	"github.com/scanorder/api/internal/ws"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Submit(ctx context.Context, req service.SubmitOrderRequest) (*service.SubmitOrderResult, error)
	Finish(ctx context.Context, restaurantID uuid.UUID, number int32) error
	Delete(ctx context.Context, restaurantID uuid.UUID, number int32) error
}

// OrderReadStore defines the database methods needed by the order read
// handlers. Satisfied by *database.Queries.
type OrderReadStore interface {
	ListActiveOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]database.OrderLine, error)
}

// Broadcaster pushes order events to subscribed dashboards.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToRestaurant(restaurantID uuid.UUID, event ws.Event)
}

// OrderHandler handles the staff-facing order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderReadStore
	hub   Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderReadStore, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, hub: hub}
}

// RegisterRoutes registers order endpoints. Expected to be mounted inside
// the authenticated subrouter: /restaurants/me/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListActive)
	r.Post("/", h.Submit)
	r.Post("/{number}/finish", h.Finish)
	r.Delete("/{number}", h.Delete)
}

// --- Request / Response types ---

type submitOrderRequest struct {
	OrderType string                   `json:"order_type"`
	Items     []submitOrderItemRequest `json:"items"`
}

type submitOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Remark     string `json:"remark"`
}

type submitOrderResponse struct {
	PickupNumber int32 `json:"pickup_number"`
}

type orderLineResponse struct {
	ID        uuid.UUID `json:"id"`
	Number    int32     `json:"number"`
	Name      string    `json:"name"`
	Quantity  int32     `json:"quantity"`
	Remark    *string   `json:"remark"`
	OrderType string    `json:"order_type"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

type activeOrdersResponse struct {
	Lines []orderLineResponse `json:"lines"`
	// Totals maps pickup number to the order's total amount.
	Totals map[int32]string `json:"totals"`
}

// --- Handlers ---

// ListActive handles GET /restaurants/me/orders, the polling dashboard
// feed. Lines are newest first; totals are computed per pickup number.
func (h *OrderHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	lines, err := h.store.ListActiveOrderLines(r.Context(), claims.RestaurantID)
	if err != nil {
		log.Printf("ERROR: list active order lines: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := activeOrdersResponse{
		Lines:  make([]orderLineResponse, len(lines)),
		Totals: make(map[int32]string),
	}
	totals := make(map[int32]decimal.Decimal)
	for i, l := range lines {
		resp.Lines[i] = toOrderLineResponse(l)
		lineTotal := numericToDecimal(l.Price).Mul(decimal.NewFromInt32(l.Quantity))
		totals[l.Number] = totals[l.Number].Add(lineTotal)
	}
	for number, total := range totals {
		resp.Totals[number] = total.StringFixed(2)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Submit handles POST /restaurants/me/orders, the waiter flow. The same
// submission semantics as the public QR endpoint, with the restaurant taken
// from the session.
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Submit(r.Context(), toSubmitRequest(claims.RestaurantID, req))
	if err != nil {
		respondSubmitError(w, err)
		return
	}

	h.broadcastOrderEvent(claims.RestaurantID, "order.created", result.PickupNumber)
	writeJSON(w, http.StatusCreated, submitOrderResponse{PickupNumber: result.PickupNumber})
}

// Finish handles POST /restaurants/me/orders/{number}/finish.
func (h *OrderHandler) Finish(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	number, err := parsePickupNumber(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pickup number"})
		return
	}

	if err := h.svc.Finish(r.Context(), claims.RestaurantID, number); err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found, it may already be finished or deleted"})
			return
		}
		log.Printf("ERROR: finish order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.broadcastOrderEvent(claims.RestaurantID, "order.finished", number)
	writeJSON(w, http.StatusOK, map[string]string{"message": "order finished"})
}

// Delete handles DELETE /restaurants/me/orders/{number}. Idempotent:
// deleting an order that is already gone succeeds.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	number, err := parsePickupNumber(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pickup number"})
		return
	}

	if err := h.svc.Delete(r.Context(), claims.RestaurantID, number); err != nil {
		log.Printf("ERROR: delete order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.broadcastOrderEvent(claims.RestaurantID, "order.deleted", number)
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) broadcastOrderEvent(restaurantID uuid.UUID, eventType string, number int32) {
	payload, err := json.Marshal(map[string]int32{"pickup_number": number})
	if err != nil {
		return
	}
	h.hub.BroadcastToRestaurant(restaurantID, ws.Event{Type: eventType, Payload: payload})
}

// --- Helpers ---

func parsePickupNumber(r *http.Request) (int32, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 32)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid pickup number")
	}
	return int32(n), nil
}

func toSubmitRequest(restaurantID uuid.UUID, req submitOrderRequest) service.SubmitOrderRequest {
	items := make([]service.SubmitOrderItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.SubmitOrderItem{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Remark:     item.Remark,
		}
	}
	return service.SubmitOrderRequest{
		RestaurantID: restaurantID,
		OrderType:    req.OrderType,
		Items:        items,
	}
}

func respondSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoItemsSelected):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "please select at least one item"})
	case errors.Is(err, service.ErrInvalidOrderType):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order_type"})
	case errors.Is(err, service.ErrMenuItemNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "menu item not found"})
	default:
		log.Printf("ERROR: submit order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func toOrderLineResponse(l database.OrderLine) orderLineResponse {
	resp := orderLineResponse{
		ID:        l.ID,
		Number:    l.Number,
		Name:      l.Name,
		Quantity:  l.Quantity,
		OrderType: l.OrderType,
		Price:     numericToString(l.Price),
		CreatedAt: l.CreatedAt,
	}
	if l.Remark.Valid {
		resp.Remark = &l.Remark.String
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	return numericToDecimal(n).StringFixed(2)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
