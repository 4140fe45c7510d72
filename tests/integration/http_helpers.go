//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/BradenHooton/deepshield/internal/config"
	"github.com/BradenHooton/deepshield/internal/server"
)

// SentEmail is a captured verification email
type SentEmail struct {
	To        string
	Link      string
	ExpiresAt time.Time
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *MockEmailService) SendVerificationEmail(_ context.Context, to, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{To: to, Link: link, ExpiresAt: expiresAt})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// Token extracts the verification token from the link
func (e *SentEmail) Token() string {
	u, err := url.Parse(e.Link)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// TestServer runs the assembled application over real HTTP
type TestServer struct {
	Server       *httptest.Server
	App          *server.App
	EmailService *MockEmailService
	Config       *config.Config
}

// NewTestServer builds the application against the container database
func NewTestServer(ctx context.Context, db *TestDB) (*TestServer, error) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:               db.ConnString,
			AutoMigrate:       true,
			MaxConns:          5,
			MinConns:          1,
			MaxConnLifetime:   5 * time.Minute,
			MaxConnIdleTime:   time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		Server: config.ServerConfig{Env: "test"},
		Auth: config.AuthConfig{
			JWTSecret:              "test-secret-32-characters-long-for-testing",
			TokenTTL:               time.Hour,
			BcryptCost:             4,
			LoginRateLimit:         1000,
			MaxFailedLoginAttempts: 5,
			LockoutDuration:        15 * time.Minute,
		},
		Cookie: config.CookieConfig{Name: "token", SameSite: "lax"},
		Email: config.EmailConfig{
			Provider:            "log",
			VerificationURLBase: "http://localhost:5000/api/v1/auth/verify-email",
			VerificationTTL:     24 * time.Hour,
		},
	}

	mockEmail := &MockEmailService{}
	app, err := server.New(ctx, cfg, quietLogger(), server.WithEmailSender(mockEmail))
	if err != nil {
		return nil, err
	}

	return &TestServer{
		Server:       httptest.NewServer(app.Handler),
		App:          app,
		EmailService: mockEmail,
		Config:       cfg,
	}, nil
}

// Close shuts down the test server and its store
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.App != nil {
		ts.App.Store.Close()
	}
}

// NewClient returns a client that keeps cookies between requests
func (ts *TestServer) NewClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// Request sends a JSON request through client
func (ts *TestServer) Request(client *http.Client, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
