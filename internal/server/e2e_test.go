package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/deepshield/internal/config"
	"github.com/BradenHooton/deepshield/internal/handlers"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/server"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "admin@x.com"
	adminPassword = "admin-pass-1"
)

type outbox struct {
	mu    sync.Mutex
	links map[string]string
}

func (o *outbox) SendVerificationEmail(_ context.Context, to, link string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links[to] = link
	return nil
}

func (o *outbox) token(t *testing.T, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.links[to]
	require.True(t, ok, "no verification email for %s", to)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testServer struct {
	app    *server.App
	outbox *outbox
}

func newTestServer(t *testing.T, overrides ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:         "sqlite://" + filepath.Join(t.TempDir(), "deepshield.db"),
			AutoMigrate: true,
		},
		Server: config.ServerConfig{
			Env:            "development",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: config.AuthConfig{
			JWTSecret:              "e2e-secret-at-least-32-characters",
			TokenTTL:               time.Hour,
			BcryptCost:             bcrypt.MinCost,
			LoginRateLimit:         1000,
			MaxFailedLoginAttempts: 3,
			LockoutDuration:        15 * time.Minute,
		},
		Cookie: config.CookieConfig{Name: "token", SameSite: "lax"},
		Email: config.EmailConfig{
			Provider:            "log",
			VerificationURLBase: "http://localhost:5000/api/v1/auth/verify-email",
			VerificationTTL:     24 * time.Hour,
		},
		Admin: config.AdminConfig{Email: adminEmail, Password: adminPassword, Name: "Admin"},
	}

	for _, override := range overrides {
		override(cfg)
	}

	box := &outbox{links: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := server.New(context.Background(), cfg, logger, server.WithEmailSender(box))
	require.NoError(t, err)
	t.Cleanup(app.Store.Close)

	return &testServer{app: app, outbox: box}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return s.doFrom(t, "192.0.2.10:40000", nil, method, path, body, cookie)
}

// doFrom sends a request from remoteAddr with extra headers
func (s *testServer) doFrom(t *testing.T, remoteAddr string, headers map[string]string, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.app.Handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "token" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func registerA(t *testing.T, s *testServer) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": "a@x.com", "password": "secret123", "name": "A"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// ============================================================================
// Register / Login / Logout
// ============================================================================

func TestE2E_RegisterStoresHash(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": "a@x.com", "password": "secret123", "name": "A"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Empty(t, w.Result().Cookies())

	var resp handlers.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.Equal(t, models.RoleUser, resp.User.Role)
	assert.NotContains(t, w.Body.String(), "secret123")

	stored, err := s.app.Users.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))

	// duplicate in another case
	w = s.do(t, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": "A@X.com", "password": "secret123", "name": "A"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Error)
}

func TestE2E_WrongPasswordSetsNoCookie(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())

	resp := decodeError(t, w)
	assert.Equal(t, "unauthorized", resp.Error)
	assert.Equal(t, "Invalid email or password", resp.Message)

	// unknown email is indistinguishable
	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "nobody@x.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, resp.Message, decodeError(t, w).Message)
}

func TestE2E_LoginThenLogout(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "secret123"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var login handlers.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, 1, login.User.LoginCount)

	cookie := sessionCookie(t, w)
	assert.Equal(t, login.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	w = s.do(t, http.MethodGet, "/api/v1/auth/logout", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Error)
}

func TestE2E_LockoutAfterRepeatedFailures(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", decodeError(t, w).Message)
	assert.Empty(t, w.Result().Cookies())
}

func TestE2E_LockedAccountIndistinguishableFromUnknownEmail(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	hammer := func(email string) *httptest.ResponseRecorder {
		var w *httptest.ResponseRecorder
		for i := 0; i < 5; i++ {
			w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": email, "password": "wrongwrong"}, nil)
		}
		return w
	}

	known := hammer("a@x.com")
	unknown := hammer("nobody@x.com")

	assert.Equal(t, http.StatusUnauthorized, known.Code)
	assert.Equal(t, unknown.Code, known.Code)
	assert.Equal(t, decodeError(t, unknown), decodeError(t, known))
}

func TestE2E_LoginRateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.LoginRateLimit = 3
	})

	body := map[string]string{"email": "nobody@x.com", "password": "wrongwrong"}
	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		headers := map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1),
			"X-Real-IP":       fmt.Sprintf("198.51.100.%d", i+1),
		}
		last = s.doFrom(t, "192.0.2.77:5000", headers, http.MethodPost, "/api/v1/auth/login", body, nil)
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, last).Error)

	// another peer keeps its own budget
	w := s.doFrom(t, "192.0.2.78:5000", nil, http.MethodPost, "/api/v1/auth/login", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestE2E_LoginRateLimitHonoursTrustedProxy(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.LoginRateLimit = 1
		cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	})

	body := map[string]string{"email": "nobody@x.com", "password": "wrongwrong"}
	for i := 0; i < 3; i++ {
		headers := map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i+1)}
		w := s.doFrom(t, "10.1.2.3:443", headers, http.MethodPost, "/api/v1/auth/login", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "client %d", i+1)
	}
}

// ============================================================================
// Verification and password change
// ============================================================================

func TestE2E_VerifyEmailAndChangePassword(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/auth/verify-email?token=garbage", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/verify-email?token="+s.outbox.token(t, "a@x.com"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var verified handlers.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.True(t, verified.User.IsVerified)

	cookie := s.login(t, "a@x.com", "secret123")

	w = s.do(t, http.MethodPut, "/api/v1/auth/password",
		map[string]string{"currentPassword": "nope-nope", "newPassword": "fresh-pass-9"}, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/auth/password",
		map[string]string{"currentPassword": "secret123", "newPassword": "fresh-pass-9"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	s.login(t, "a@x.com", "fresh-pass-9")
}

// ============================================================================
// Admin
// ============================================================================

func TestE2E_AdminManagesUsers(t *testing.T) {
	s := newTestServer(t)
	registerA(t, s)

	userCookie := s.login(t, "a@x.com", "secret123")
	w := s.do(t, http.MethodGet, "/api/v1/admin/users", nil, userCookie)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	adminCookie := s.login(t, adminEmail, adminPassword)

	w = s.do(t, http.MethodGet, "/api/v1/admin/users?role=user", nil, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list handlers.ListUsersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	target := list.Users[0]
	assert.Equal(t, "a@x.com", target.Email)

	w = s.do(t, http.MethodPatch, "/api/v1/admin/users/"+target.ID, map[string]any{"isBlocked": true}, adminCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the blocked user's existing session stops working
	w = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, userCookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "a@x.com", "password": "secret123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats", nil, adminCookie)
	require.Equal(t, http.StatusOK, w.Code)
	var stats handlers.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.Stats.Total)
	assert.EqualValues(t, 1, stats.Stats.Blocked)
	assert.EqualValues(t, 1, stats.Stats.ByRole[models.RoleAdmin])

	// admins cannot lock themselves out
	me := s.do(t, http.MethodGet, "/api/v1/auth/me", nil, adminCookie)
	var self handlers.UserResponse
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &self))
	w = s.do(t, http.MethodPatch, "/api/v1/admin/users/"+self.User.ID, map[string]any{"role": "user"}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestE2E_HealthAndUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))

	w = s.do(t, http.MethodGet, "/api/v1/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.AdminConfig{Email: adminEmail, Password: adminPassword, Name: "Admin"}
	require.NoError(t, server.EnsureAdmin(ctx, s.app.Users, cfg, logger))
	require.NoError(t, server.EnsureAdmin(ctx, s.app.Users, config.AdminConfig{}, logger))

	stats, err := s.app.Users.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)

	admin, err := s.app.Users.FindByEmail(ctx, adminEmail)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, admin.IsVerified)
}

func TestOpenStore_Memory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := server.OpenStore(context.Background(), &config.DatabaseConfig{URL: "memory://"}, logger)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, config.DriverMemory, store.Driver)
	assert.NoError(t, store.Users.HealthCheck(context.Background()))

	_, err = server.OpenStore(context.Background(), &config.DatabaseConfig{URL: "mysql://x"}, logger)
	assert.Error(t, err)
}
