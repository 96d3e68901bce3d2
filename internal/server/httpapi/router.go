package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/assistauth/internal/apperr"
	"github.com/dmitrijs2005/assistauth/internal/server/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting concerns of the router.
type RouterOptions struct {
	// Limiter throttles the public auth routes; nil disables it.
	Limiter        ratelimit.Limiter
	RateLimitRPS   float64
	AllowedOrigins []string
}

// NewRouter builds the API router. Routes live under /api/v1.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(h.recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondError(w, r, apperr.NotFound("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.respondError(w, r, apperr.NotFound("route not found"))
	})

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.Limiter != nil {
					r.Use(h.rateLimit(opts.Limiter, opts.RateLimitRPS))
				}
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.Post("/refresh", h.Refresh)
				r.Post("/forgot-password", h.ForgotPassword)
				r.Post("/reset-password", h.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Post("/logout", h.Logout)
				r.Post("/logout-all", h.LogoutAll)
				r.Post("/change-password", h.ChangePassword)
				r.Get("/me", h.Me)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authenticate)
			r.Use(h.requireAdmin)
			r.Patch("/users/{id}/status", h.SetUserStatus)
		})
	})

	return r
}
