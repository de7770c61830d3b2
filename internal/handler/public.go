package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
	"github.com/scanorder/api/internal/ws"
)

// PublicStore defines the database methods needed by the public (QR)
// endpoints. Satisfied by *database.Queries.
type PublicStore interface {
	GetRestaurantByPublicToken(ctx context.Context, token uuid.UUID) (database.Restaurant, error)
	ListAvailableMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]database.MenuItem, error)
}

// PublicHandler handles the customer-facing endpoints reached by scanning a
// restaurant's QR code. No authentication; the opaque public token is the
// only identifier exposed.
type PublicHandler struct {
	store PublicStore
	svc   OrderServicer
	hub   Broadcaster
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(store PublicStore, svc OrderServicer, hub Broadcaster) *PublicHandler {
	return &PublicHandler{store: store, svc: svc, hub: hub}
}

// RegisterRoutes registers the public endpoints. Expected to be mounted at
// /p/{token}.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.Menu)
	r.Post("/orders", h.SubmitOrder)
}

// --- Response types ---

type publicMenuResponse struct {
	Restaurant string              `json:"restaurant"`
	Categories []menuCategoryGroup `json:"categories"`
}

type menuCategoryGroup struct {
	Category string               `json:"category"`
	Items    []publicMenuItemView `json:"items"`
}

type publicMenuItemView struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price string    `json:"price"`
}

// --- Handlers ---

// Menu handles GET /p/{token}/menu: available items only, grouped by
// category with the null/empty bucket mapped to "Other", ordered by
// category then name.
func (h *PublicHandler) Menu(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.resolveRestaurant(w, r)
	if !ok {
		return
	}

	items, err := h.store.ListAvailableMenuItems(r.Context(), restaurant.ID)
	if err != nil {
		log.Printf("ERROR: list available menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := publicMenuResponse{
		Restaurant: restaurant.Name,
		Categories: groupByCategory(items),
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitOrder handles POST /p/{token}/orders, the customer submission
// after scanning the QR code.
func (h *PublicHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	restaurant, ok := h.resolveRestaurant(w, r)
	if !ok {
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.svc.Submit(r.Context(), toSubmitRequest(restaurant.ID, req))
	if err != nil {
		respondSubmitError(w, err)
		return
	}

	payload, err := json.Marshal(map[string]int32{"pickup_number": result.PickupNumber})
	if err == nil {
		h.hub.BroadcastToRestaurant(restaurant.ID, ws.Event{Type: "order.created", Payload: payload})
	}

	writeJSON(w, http.StatusCreated, submitOrderResponse{PickupNumber: result.PickupNumber})
}

func (h *PublicHandler) resolveRestaurant(w http.ResponseWriter, r *http.Request) (database.Restaurant, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
		return database.Restaurant{}, false
	}

	restaurant, err := h.store.GetRestaurantByPublicToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return database.Restaurant{}, false
		}
		log.Printf("ERROR: get restaurant by public token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Restaurant{}, false
	}
	return restaurant, true
}

// groupByCategory buckets items by display category, preserving the
// store's category-then-name ordering.
func groupByCategory(items []database.MenuItem) []menuCategoryGroup {
	var groups []menuCategoryGroup
	index := make(map[string]int)
	for _, item := range items {
		category := ""
		if item.Category.Valid {
			category = item.Category.String
		}
		category = enum.DisplayCategory(category)

		i, ok := index[category]
		if !ok {
			i = len(groups)
			index[category] = i
			groups = append(groups, menuCategoryGroup{Category: category})
		}
		groups[i].Items = append(groups[i].Items, publicMenuItemView{
			ID:    item.ID,
			Name:  item.Name,
			Price: numericToString(item.Price),
		})
	}
	return groups
}
