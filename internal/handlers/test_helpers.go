package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithUser puts an authenticated user on the request context
func WithUser(req *http.Request, user *models.User) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

// NewTestUser returns an active, verified account with the given role
func NewTestUser(id, email string, role models.Role) *models.User {
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	return &models.User{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		Role:         role,
		Status:       models.StatusActive,
		AuthProvider: models.ProviderLocal,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc           func(ctx context.Context, in services.NewUser, meta services.RequestMeta) (*models.User, error)
	LoginFunc              func(ctx context.Context, email, password string, meta services.RequestMeta) (*services.LoginResult, error)
	LogoutFunc             func(ctx context.Context, user *models.User, meta services.RequestMeta)
	ChangePasswordFunc     func(ctx context.Context, user *models.User, current, next string, meta services.RequestMeta) error
	ResendVerificationFunc func(ctx context.Context, user *models.User) error
	VerifyEmailFunc        func(ctx context.Context, token string) (*models.User, error)
	TTL                    time.Duration
}

func (m *MockAuthService) Register(ctx context.Context, in services.NewUser, meta services.RequestMeta) (*models.User, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrDuplicateEmail
	}
	return m.RegisterFunc(ctx, in, meta)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, meta services.RequestMeta) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, meta)
}

func (m *MockAuthService) Logout(ctx context.Context, user *models.User, meta services.RequestMeta) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, user, meta)
	}
}

func (m *MockAuthService) ChangePassword(ctx context.Context, user *models.User, current, next string, meta services.RequestMeta) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, user, current, next, meta)
}

func (m *MockAuthService) ResendVerification(ctx context.Context, user *models.User) error {
	if m.ResendVerificationFunc == nil {
		return nil
	}
	return m.ResendVerificationFunc(ctx, user)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if m.VerifyEmailFunc == nil {
		return nil, models.NewValidationError("token", "verification link is invalid or has expired")
	}
	return m.VerifyEmailFunc(ctx, token)
}

func (m *MockAuthService) TokenTTL() time.Duration {
	if m.TTL == 0 {
		return time.Hour
	}
	return m.TTL
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	ListUsersFunc  func(ctx context.Context, filter models.UserFilter) (*services.UserListResponse, error)
	UpdateUserFunc func(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta services.RequestMeta) (*models.User, error)
	GetStatsFunc   func(ctx context.Context) (*models.UserStats, error)
}

func (m *MockAdminService) ListUsers(ctx context.Context, filter models.UserFilter) (*services.UserListResponse, error) {
	if m.ListUsersFunc == nil {
		return &services.UserListResponse{Users: []*models.User{}, Limit: filter.Limit, Offset: filter.Offset}, nil
	}
	return m.ListUsersFunc(ctx, filter)
}

func (m *MockAdminService) UpdateUser(ctx context.Context, actor *models.User, targetID string, update models.AccountUpdate, meta services.RequestMeta) (*models.User, error) {
	if m.UpdateUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateUserFunc(ctx, actor, targetID, update, meta)
}

func (m *MockAdminService) GetStats(ctx context.Context) (*models.UserStats, error) {
	if m.GetStatsFunc == nil {
		return &models.UserStats{}, nil
	}
	return m.GetStatsFunc(ctx)
}
