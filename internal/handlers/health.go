package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
)

// HealthChecker pings a dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health reports whether the user store answers within two seconds
func Health(store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			slog.WarnContext(r.Context(), "health check failed", slog.Any("error", err))
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "up"})
	}
}
