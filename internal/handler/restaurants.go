package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/middleware"
	qrcode "github.com/skip2/go-qrcode"
)

// RestaurantStore defines the database methods needed by the restaurant
// profile handlers. Satisfied by *database.Queries.
type RestaurantStore interface {
	GetRestaurantByID(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
}

// RestaurantHandler handles the owner's profile and QR code endpoints.
type RestaurantHandler struct {
	store   RestaurantStore
	baseURL string
}

// NewRestaurantHandler creates a new RestaurantHandler.
func NewRestaurantHandler(store RestaurantStore, baseURL string) *RestaurantHandler {
	return &RestaurantHandler{store: store, baseURL: baseURL}
}

// RegisterRoutes registers profile endpoints. Expected to be mounted inside
// the authenticated subrouter: /restaurants/me
func (h *RestaurantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Me)
	r.Get("/qrcode.png", h.QRCode)
}

// Me handles GET /restaurants/me.
func (h *RestaurantHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	restaurant, err := h.store.GetRestaurantByID(r.Context(), claims.RestaurantID)
	if err != nil {
		log.Printf("ERROR: get restaurant by id: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRestaurantResponse(restaurant))
}

// QRCode handles GET /restaurants/me/qrcode.png. Returns a printable PNG
// encoding the restaurant's public menu URL.
func (h *RestaurantHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	restaurant, err := h.store.GetRestaurantByID(r.Context(), claims.RestaurantID)
	if err != nil {
		log.Printf("ERROR: get restaurant by id: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	url := fmt.Sprintf("%s/p/%s/menu", h.baseURL, restaurant.PublicToken)
	png, err := qrcode.Encode(url, qrcode.Medium, 512)
	if err != nil {
		log.Printf("ERROR: encode qr code: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png) //nolint:errcheck
}
