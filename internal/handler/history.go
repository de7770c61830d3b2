package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/middleware"
	"github.com/scanorder/api/internal/service"
)

// HistoryReadStore defines the database methods needed by the history read
// handler. Satisfied by *database.Queries.
type HistoryReadStore interface {
	ListFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]database.FinishedOrderLine, error)
	GetTodayRevenue(ctx context.Context, restaurantID uuid.UUID) (pgtype.Numeric, error)
	GetTodayItemSales(ctx context.Context, restaurantID uuid.UUID) ([]database.GetTodayItemSalesRow, error)
}

// HistoryServicer defines the service methods needed by the clearing
// endpoints. Satisfied by *service.HistoryService.
type HistoryServicer interface {
	Clear(ctx context.Context, restaurantID uuid.UUID) error
	ExportAndClear(ctx context.Context, restaurantID uuid.UUID) ([]byte, error)
}

// HistoryHandler handles reporting and clearing endpoints.
type HistoryHandler struct {
	store HistoryReadStore
	svc   HistoryServicer
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(store HistoryReadStore, svc HistoryServicer) *HistoryHandler {
	return &HistoryHandler{store: store, svc: svc}
}

// RegisterRoutes registers history endpoints. Expected to be mounted inside
// the authenticated subrouter: /restaurants/me/history
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Clear)
	r.Get("/export", h.ExportAndClear)
}

// --- Response types ---

type finishedLineResponse struct {
	Number     int32     `json:"number"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
	Remark     *string   `json:"remark"`
	Price      string    `json:"price"`
	OrderType  string    `json:"order_type"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type itemSalesResponse struct {
	Name      string `json:"name"`
	TotalSold int64  `json:"total_sold"`
}

type historyResponse struct {
	Lines          []finishedLineResponse `json:"lines"`
	TodayRevenue   string                 `json:"today_revenue"`
	TodayItemSales []itemSalesResponse    `json:"today_item_sales"`
}

// --- Handlers ---

// Get handles GET /restaurants/me/history: all finished lines newest first,
// today's revenue, and today's per-item sold quantities.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	restaurantID := claims.RestaurantID

	lines, err := h.store.ListFinishedOrderLines(r.Context(), restaurantID)
	if err != nil {
		log.Printf("ERROR: list finished order lines: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	revenue, err := h.store.GetTodayRevenue(r.Context(), restaurantID)
	if err != nil {
		log.Printf("ERROR: today revenue: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	sales, err := h.store.GetTodayItemSales(r.Context(), restaurantID)
	if err != nil {
		log.Printf("ERROR: today item sales: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := historyResponse{
		Lines:          make([]finishedLineResponse, len(lines)),
		TodayRevenue:   numericToString(revenue),
		TodayItemSales: make([]itemSalesResponse, len(sales)),
	}
	for i, l := range lines {
		resp.Lines[i] = toFinishedLineResponse(l)
	}
	for i, s := range sales {
		resp.TodayItemSales[i] = itemSalesResponse{Name: s.Name, TotalSold: s.TotalSold}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Clear handles DELETE /restaurants/me/history. Refused while active orders
// remain; otherwise wipes the archive and resets the pickup counter.
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	if err := h.svc.Clear(r.Context(), claims.RestaurantID); err != nil {
		if errors.Is(err, service.ErrUnfinishedOrders) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "unfinished orders exist, finish or delete them first"})
			return
		}
		log.Printf("ERROR: clear history: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "history cleared"})
}

// ExportAndClear handles GET /restaurants/me/history/export. Streams the
// CSV that was built inside the clearing transaction; an empty archive
// yields 204 with nothing mutated.
func (h *HistoryHandler) ExportAndClear(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	data, err := h.svc.ExportAndClear(r.Context(), claims.RestaurantID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnfinishedOrders):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "unfinished orders exist, finish or delete them first"})
		case errors.Is(err, service.ErrNoHistory):
			w.WriteHeader(http.StatusNoContent)
		default:
			log.Printf("ERROR: export and clear history: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=history_%s.csv", claims.RestaurantID))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func toFinishedLineResponse(l database.FinishedOrderLine) finishedLineResponse {
	resp := finishedLineResponse{
		Number:     l.Number,
		Name:       l.Name,
		Quantity:   l.Quantity,
		Price:      numericToString(l.Price),
		OrderType:  l.OrderType,
		CreatedAt:  l.CreatedAt,
		FinishedAt: l.FinishedAt,
	}
	if l.Remark.Valid {
		resp.Remark = &l.Remark.String
	}
	return resp
}
