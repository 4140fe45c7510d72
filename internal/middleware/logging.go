package middleware

import (
	"log/slog"
	"net/http"
	"time"

	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

// SecureLogger logs one http_request record per request. Sensitive query
// parameters (verification tokens among them) are redacted, and 5xx responses
// are logged at error level.
func SecureLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + pkglogger.SanitizeQueryString(r.URL.RawQuery)
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "http_request",
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Int("bytes", wrapped.BytesWritten()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
