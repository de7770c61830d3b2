package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scanorder/api/internal/config"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/handler"
	mw "github.com/scanorder/api/internal/middleware"
	"github.com/scanorder/api/internal/service"
	"github.com/scanorder/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret, cfg.PublicBaseURL)
	authHandler.RegisterRoutes(r)

	// Shared services
	orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	})
	historyService := service.NewHistoryService(pool, func(db database.DBTX) service.HistoryStore {
		return database.New(db)
	})

	// Customer-facing routes reached via the QR code (public, token-scoped)
	publicHandler := handler.NewPublicHandler(queries, orderService, hub)
	r.Route("/p/{token}", publicHandler.RegisterRoutes)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/restaurants/me", func(r chi.Router) {
			restaurantHandler := handler.NewRestaurantHandler(queries, cfg.PublicBaseURL)
			restaurantHandler.RegisterRoutes(r)

			menuHandler := handler.NewMenuHandler(queries)
			r.Route("/menu-items", menuHandler.RegisterRoutes)

			orderHandler := handler.NewOrderHandler(orderService, queries, hub)
			r.Route("/orders", orderHandler.RegisterRoutes)

			historyHandler := handler.NewHistoryHandler(queries, historyService)
			r.Route("/history", historyHandler.RegisterRoutes)
		})
	})

	return r
}
