package handler

import (
	"context"
	"net/http"
	"time"

	"portal-auth/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthFunc reports the status of each dependency by name.
type HealthFunc func(ctx context.Context) map[string]string

type RouterConfig struct {
	AllowedOrigins []string
	RequireTLS     bool
	TrustProxy     bool
	CookieName     string
	SecureCookie   bool
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(
	cfg RouterConfig,
	auth *service.AuthService,
	authHandler *AuthHandler,
	portalHandler *PortalHandler,
	limiter *RateLimiter,
	health HealthFunc,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	if cfg.RequireTLS {
		router.Use(requireHTTPS(cfg.TrustProxy))
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	if cfg.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := health(r.Context())
		code := http.StatusOK
		for _, s := range status {
			if s != "healthy" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		respondWithJSON(logger, w, code, map[string]interface{}{
			"status":       http.StatusText(code),
			"service":      "portal-auth",
			"dependencies": status,
		})
	})
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware(logger))
		r.Use(SessionMiddleware(auth, cfg.CookieName, cfg.SecureCookie, logger))

		authHandler.RegisterRoutes(r)
		portalHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(auth, logger))
			portalHandler.RegisterRoutes(r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"not_found","message":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"success":false,"error":"validation","message":"method not allowed"}`))
	})

	return router
}
