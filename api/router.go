package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amirhf/giftreco/services/api-go/auth"
)

type RouterConfig struct {
	Handler  *Handler
	Verifier auth.Verifier
	Roles    RoleStore

	CORSOrigins []string
	// RateLimitRequests <= 0 disables the per-IP limit on POST /recommendations.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/recommendations", func(r chi.Router) {
		r.With(RequireAuth(cfg.Verifier)).Get("/list", h.ListRecommendations)

		r.Group(func(r chi.Router) {
			r.Use(OptionalAuth(cfg.Verifier))
			if cfg.RateLimitRequests > 0 {
				r.With(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow)).Post("/", h.CreateRecommendation)
			} else {
				r.Post("/", h.CreateRecommendation)
			}
			r.Get("/{id}", h.GetRecommendation)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAuth(cfg.Verifier))
		r.Use(RequireAdmin(cfg.Roles))
		r.Get("/ping", h.AdminPing)
	})

	return r
}
