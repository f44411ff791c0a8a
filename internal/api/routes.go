package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/loopletter/reputation-core/internal/auth"
)

// SetupRoutes configures all routes. authManager may be nil (dev mode,
// tests); every /api route is then reachable but review actions resolve to
// the view-only role unless overridden by headers.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - allow credentials for auth cookies; origins are explicit.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://loopletter.co", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Provider webhooks carry no session; the provider authenticates by
	// endpoint secret in the URL, configured at the provider.
	r.Post("/webhooks/provider", h.ProviderWebhook)

	// Auth routes (no auth required)
	if authManager != nil {
		r.Get("/auth/login", authManager.HandleLogin)
		r.Get("/auth/callback", authManager.HandleCallback)
		r.Get("/auth/logout", authManager.HandleLogout)
		r.Get("/auth/user", authManager.HandleUserInfo)
	}

	devMode := os.Getenv("DEV_MODE") == "true" || os.Getenv("ENVIRONMENT") == "development"

	r.Route("/api", func(r chi.Router) {
		if authManager != nil && !devMode {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if authManager.GetSession(req) == nil {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusUnauthorized)
						w.Write([]byte(`{"error":"unauthorized"}`))
						return
					}
					next.ServeHTTP(w, req)
				})
			})
		}

		r.Get("/reputation", h.GetReputation)
		r.Post("/contacts", h.CreateContact)
		r.Post("/contacts/{id}/consent", h.RecordConsent)

		// Admin surface. Authorization happens in the services from the
		// reviewer's role; these routes only require a session.
		r.Route("/admin", func(r chi.Router) {
			r.Get("/reviews", h.ListReviews)
			r.Post("/reviews/{id}/approve", h.ApproveReview)
			r.Post("/reviews/{id}/reject", h.RejectReview)
			r.Post("/system-tools", h.SystemTools)
		})
	})

	return r
}
