package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/deepshield/internal/models"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing the authenticated user in context
	UserContextKey contextKey = "user"
	// ClaimsContextKey is the key for storing the verified token claims in context
	ClaimsContextKey contextKey = "claims"
)

// TokenVerifier verifies session tokens
type TokenVerifier interface {
	Verify(token string) (*models.TokenClaims, error)
}

// UserFinder resolves a token subject to a live user
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticate verifies the session cookie, resolves its subject and binds the
// user to the request context. Any failure halts the request with 401.
func Authenticate(tv TokenVerifier, users UserFinder, cookies CookieConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetSessionCookie(r, cookies)
			if err != nil || token == "" {
				pkghttp.WriteUnauthorized(w, "Please login to access this resource")
				return
			}

			claims, err := tv.Verify(token)
			if err != nil {
				logger.Debug("session token rejected", slog.Any("error", err))
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			user, err := users.FindByID(r.Context(), claims.UserID())
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					logger.Info("session for unknown user", slog.String("user_id", claims.UserID()))
					pkghttp.WriteUnauthorized(w, "Invalid or expired session")
					return
				}
				logger.Error("failed to resolve session user", slog.String("user_id", claims.UserID()), slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Internal server error")
				return
			}

			if !user.CanAuthenticate() {
				logger.Info("session for disabled account",
					slog.String("user_id", user.ID),
					slog.String("status", string(user.Status)),
					slog.Bool("blocked", user.IsBlocked))
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles admits only users whose role is in allowed.
// Must run after Authenticate.
func RequireRoles(allowed models.RoleSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				pkghttp.WriteUnauthorized(w, "Please login to access this resource")
				return
			}

			if !allowed.Contains(user.Role) {
				pkghttp.WriteForbidden(w, "Role "+string(user.Role)+" is not authorized to access this resource")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireVerified admits only users who confirmed their email address.
// Must run after Authenticate.
func RequireVerified() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				pkghttp.WriteUnauthorized(w, "Please login to access this resource")
				return
			}

			if !user.IsVerified {
				pkghttp.WriteForbidden(w, "Email address must be verified to access this resource")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ClaimsFromContext returns the verified session claims, or nil
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithUser binds user to ctx the way Authenticate does
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}
