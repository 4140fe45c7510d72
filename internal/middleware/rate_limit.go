package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides when forwarding headers name the client; nil keys on the peer address
	IPConfig *pkghttp.IPConfig
}

// RateLimitByIP creates a middleware that rate limits requests by client IP,
// resolved through pkghttp.ExtractClientIP. A non-positive limit disables limiting.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
}
