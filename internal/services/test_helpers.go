package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
)

// MockUserRepository implements UserRepository for testing.
// Unset funcs fall back to not-found or zero results.
type MockUserRepository struct {
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	RecordLoginFunc        func(ctx context.Context, id string, at time.Time) error
	RecordFailedLoginFunc  func(ctx context.Context, id string, at, windowStart time.Time) (int, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, hash string, at time.Time) error
	MarkVerifiedFunc       func(ctx context.Context, id string, at time.Time) error
	UpdateAccountFunc      func(ctx context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error)
	ListFunc               func(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	StatsFunc              func(ctx context.Context) (*models.UserStats, error)
	HealthCheckFunc        func(ctx context.Context) error
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) RecordFailedLogin(ctx context.Context, id string, at, windowStart time.Time) (int, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, id, at, windowStart)
	}
	return 1, nil
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, hash, at)
	}
	return nil
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockUserRepository) UpdateAccount(ctx context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error) {
	if m.UpdateAccountFunc != nil {
		return m.UpdateAccountFunc(ctx, id, update, at)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.UserStats{}, nil
}

func (m *MockUserRepository) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}
	return nil
}

// sentEmail is one message captured by MockEmailSender
type sentEmail struct {
	To        string
	Link      string
	ExpiresAt time.Time
}

// MockEmailSender records verification emails instead of sending them
type MockEmailSender struct {
	mu   sync.Mutex
	Sent []sentEmail
	Err  error
}

func (m *MockEmailSender) SendVerificationEmail(_ context.Context, to, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, sentEmail{To: to, Link: link, ExpiresAt: expiresAt})
	return nil
}

// Last returns the most recent message, or false when none was sent
func (m *MockEmailSender) Last() (sentEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return sentEmail{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
