package services

import (
	"testing"
	"time"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/repositories"
	pkgauth "github.com/BradenHooton/deepshield/pkg/auth"
	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "services-test-secret-32-chars-ok"

// testStack wires the services over an in-memory store
type testStack struct {
	repo     *repositories.MemoryUserRepository
	users    *UserService
	auth     *AuthService
	admin    *AdminService
	verifier *EmailVerificationService
	sender   *MockEmailSender
	sessions *auth.TokenManager
	links    *auth.TokenManager
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	return newTestStackWithRepo(t, repositories.NewMemoryUserRepository())
}

func newTestStackWithRepo(t *testing.T, repo UserRepository) *testStack {
	t.Helper()
	logger := newTestLogger()
	audit := pkglogger.NewAuditLogger(logger)

	users := NewUserService(repo, pkgauth.NewPasswordHasher(bcrypt.MinCost), logger)
	sessions := auth.NewTokenManager(testJWTSecret, time.Hour)
	links := auth.NewTokenManager(auth.DeriveSecret(testJWTSecret, models.AudienceEmailVerification), 24*time.Hour,
		auth.WithAudience(models.AudienceEmailVerification))
	sender := &MockEmailSender{}
	verifier := NewEmailVerificationService(users, links, sender, "http://localhost:5000/api/v1/auth/verify-email", audit, logger)

	authService, err := NewAuthService(users, sessions, auth.NewTimingDelay(auth.TimingConfig{}), verifier,
		LockoutPolicy{MaxAttempts: 3, Window: 15 * time.Minute}, audit, logger)
	require.NoError(t, err)

	stack := &testStack{
		users:    users,
		auth:     authService,
		admin:    NewAdminService(users, audit, logger),
		verifier: verifier,
		sender:   sender,
		sessions: sessions,
		links:    links,
	}
	if mem, ok := repo.(*repositories.MemoryUserRepository); ok {
		stack.repo = mem
	}
	return stack
}
