package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/BradenHooton/deepshield/internal/observability"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/go-chi/chi/v5/middleware"
)

// Recoverer turns a panic into the uniform 500 body, logs it and reports it
// to Sentry. In debug mode the body carries the panic value and stack. http.ErrAbortHandler is re-panicked so net/http can abort the
// connection.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := string(debug.Stack())
				observability.CapturePanic(rec, r.Method, r.URL.Path, stack)
				logger.ErrorContext(r.Context(), "panic_recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.Any("panic", rec),
				)

				pkghttp.WriteInternalErrorWithCause(w, "Internal server error", fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
