package router

import (
	"net/http"

	"hoardwatch-api/internal/handler"
	"hoardwatch-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ItemHandler    *handler.ItemHandler
	ScanHandler    *handler.ScanHandler
	PlayerHandler  *handler.PlayerHandler
	PriceHandler   *handler.PriceHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Auth endpoints
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
				})
			}

			// Item endpoints
			if cfg.ItemHandler != nil {
				r.Route("/items", func(r chi.Router) {
					r.Get("/", cfg.ItemHandler.ListItems)
					r.Route("/{asset_id}", func(r chi.Router) {
						r.Get("/", cfg.ItemHandler.GetItem)
						r.Get("/owners", cfg.ItemHandler.GetItemOwners)
						r.Patch("/manipulated", cfg.ItemHandler.SetManipulated)
						r.Post("/refresh", cfg.ItemHandler.RefreshItem)

						// Scan lifecycle
						if cfg.ScanHandler != nil {
							r.Post("/scan", cfg.ScanHandler.ManageScan)
							r.Get("/scan", cfg.ScanHandler.GetScanStatus)
						}
					})
				})
			}

			// Player endpoints
			if cfg.PlayerHandler != nil {
				r.Route("/players/{roblox_user_id}", func(r chi.Router) {
					r.Get("/", cfg.PlayerHandler.GetPlayer)
					r.Post("/rescan", cfg.PlayerHandler.RescanPlayer)
				})
			}

			// Price ingest endpoint
			if cfg.PriceHandler != nil {
				r.Post("/prices/ingest", cfg.PriceHandler.IngestPrices)
			}

			// Admin endpoints
			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.GetHealth)
					r.Post("/login", cfg.AdminHandler.Login)
				})
			}
		})
	})

	return r
}
