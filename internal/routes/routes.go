package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/handlers"
	"github.com/BradenHooton/deepshield/internal/middleware"
	"github.com/BradenHooton/deepshield/internal/models"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Options configures the middleware chain
type Options struct {
	Env            string
	AllowedOrigins []string
	LoginRateLimit int
	RequestTimeout time.Duration
	// IPConfig resolves client addresses for rate limiting
	IPConfig *pkghttp.IPConfig
}

// NewRouter builds the router with the global middleware chain and all routes
func NewRouter(
	logger *slog.Logger,
	opts Options,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	authenticate func(http.Handler) http.Handler,
	store handlers.HealthChecker,
) chi.Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(opts.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger))
	router.Use(middleware.Recoverer(logger))
	router.Use(chimiddleware.Timeout(opts.RequestTimeout))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	router.Get("/health", handlers.Health(store))

	router.Route("/api/v1", func(r chi.Router) {
		RegisterRoutes(r, authHandler, adminHandler, authenticate, middleware.RateLimitConfig{
			RequestsPerMinute: opts.LoginRateLimit,
			IPConfig:          opts.IPConfig,
		})
	})

	return router
}

// RegisterRoutes registers the auth and admin routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	authenticate func(http.Handler) http.Handler,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Login and register share one per-IP budget
	limit := middleware.RateLimitByIP(rateLimitConfig)

	router.Route("/auth", func(r chi.Router) {
		// Public routes - no authentication required
		r.With(limit).Post("/register", authHandler.Register)
		r.With(limit).Post("/login", authHandler.Login)
		r.Get("/verify-email", authHandler.VerifyEmail)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Put("/password", authHandler.ChangePassword)
			r.Post("/resend-verification", authHandler.ResendVerification)
		})
	})

	// Admin-only routes
	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(auth.RequireRoles(models.NewRoleSet(models.RoleAdmin)))
		r.Use(auth.RequireVerified())

		r.Get("/users", adminHandler.ListUsers)
		r.Patch("/users/{id}", adminHandler.UpdateUser)
		r.Get("/stats", adminHandler.GetStats)
	})
}
