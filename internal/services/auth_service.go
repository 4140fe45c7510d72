package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
)

// RequestMeta carries request details recorded in audit events
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// LockoutPolicy bounds failed logins per account
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// LoginResult is a successful login
type LoginResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// Failure reasons recorded in audit events
const (
	reasonUnknownEmail    = "unknown_email"
	reasonInvalidPassword = "invalid_password"
	reasonAccountLocked   = "account_locked"
	reasonAccountBlocked  = "account_blocked"
	reasonAccountInactive = "account_inactive"
	reasonNoLocalPassword = "no_local_password"
)

// AuthService handles registration, login, logout and password changes
type AuthService struct {
	users    *UserService
	tokens   *auth.TokenManager
	timing   *auth.TimingDelay
	verifier *EmailVerificationService
	lockout  LockoutPolicy
	audit    *pkglogger.AuditLogger
	logger   *slog.Logger
	now      func() time.Time

	// dummyHash is verified against when the email is unknown so both
	// failure paths spend one bcrypt comparison
	dummyHash string
}

// NewAuthService creates a new AuthService. verifier may be nil.
func NewAuthService(
	users *UserService,
	tokens *auth.TokenManager,
	timing *auth.TimingDelay,
	verifier *EmailVerificationService,
	lockout LockoutPolicy,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) (*AuthService, error) {
	dummyHash, err := users.Hasher().Hash("deepshield-placeholder-password")
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:     users,
		tokens:    tokens,
		timing:    timing,
		verifier:  verifier,
		lockout:   lockout,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		dummyHash: dummyHash,
	}, nil
}

// TokenTTL is the lifetime of issued session tokens
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Register creates an account. No session is issued. A verification email
// is sent best effort; delivery failures are logged only.
func (s *AuthService) Register(ctx context.Context, in NewUser, meta RequestMeta) (*models.User, error) {
	in.Role = models.RoleUser
	in.IsVerified = false

	user, err := s.users.Create(ctx, in)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			s.audit.Log(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventUserRegistered,
				Email:         in.Email,
				IPAddress:     meta.IPAddress,
				UserAgent:     meta.UserAgent,
				FailureReason: "duplicate_email",
			})
		}
		return nil, err
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventUserRegistered,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	if s.verifier != nil {
		if err := s.verifier.SendVerificationEmail(ctx, user); err != nil {
			s.logger.Warn("verification email not sent", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	return user, nil
}

// Login checks credentials and issues a session token. Unknown email, wrong
// password and disabled accounts all return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	start := time.Now()

	if NormalizeEmail(email) == "" {
		return nil, models.NewValidationError("email", "email is required")
	}
	if password == "" {
		return nil, models.NewValidationError("password", "password is required")
	}

	fail := func(userID, reason string, err error) (*LoginResult, error) {
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginFailed,
			UserID:        userID,
			Email:         email,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reason,
		})
		s.timing.PadFrom(ctx, start)
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_, _ = s.users.Hasher().Verify(password, s.dummyHash)
			return fail("", reasonUnknownEmail, models.ErrInvalidCredentials)
		}
		return nil, err
	}

	now := s.now()
	// A locked account answers exactly like an unknown email
	if user.IsLockedOut(now, s.lockout.MaxAttempts, s.lockout.Window) {
		_, _ = s.users.Hasher().Verify(password, s.dummyHash)
		return fail(user.ID, reasonAccountLocked, models.ErrInvalidCredentials)
	}

	if user.AuthProvider != models.ProviderLocal || user.PasswordHash == "" {
		_, _ = s.users.Hasher().Verify(password, s.dummyHash)
		return fail(user.ID, reasonNoLocalPassword, models.ErrInvalidCredentials)
	}

	ok, err := s.users.Hasher().Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok {
		attempts, err := s.users.RecordFailedLogin(ctx, user.ID, now, s.lockout.Window)
		if err != nil {
			s.logger.Warn("failed login not recorded", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginFailed,
			UserID:        user.ID,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reasonInvalidPassword,
			Metadata:      map[string]string{"failed_attempts": strconv.Itoa(attempts)},
		})
		s.timing.PadFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	if user.IsBlocked {
		return fail(user.ID, reasonAccountBlocked, models.ErrInvalidCredentials)
	}
	if user.Status != models.StatusActive {
		return fail(user.ID, reasonAccountInactive, models.ErrInvalidCredentials)
	}

	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LoginCount++
	user.LastLogin = &now
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAttempt = nil

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginSuccess,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	return &LoginResult{
		User:      user,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout records the event. Tokens are stateless, so the cookie is all there
// is to clear and a copied token stays valid until it expires.
func (s *AuthService) Logout(ctx context.Context, user *models.User, meta RequestMeta) {
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   true,
	})
}

// ChangePassword replaces the password of user after checking current
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, current, next string, meta RequestMeta) error {
	err := s.users.ChangePassword(ctx, user.ID, current, next)

	event := pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordChanged,
		UserID:    user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Success:   err == nil,
	}
	if errors.Is(err, models.ErrInvalidCredentials) {
		event.FailureReason = reasonInvalidPassword
	}
	if err == nil || event.FailureReason != "" {
		s.audit.Log(ctx, event)
	}
	return err
}

// ResendVerification mails a new link to an unverified user
func (s *AuthService) ResendVerification(ctx context.Context, user *models.User) error {
	if s.verifier == nil {
		return nil
	}
	return s.verifier.SendVerificationEmail(ctx, user)
}

// VerifyEmail consumes a verification link token
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if s.verifier == nil {
		return nil, models.NewValidationError("token", "email verification is not enabled")
	}
	return s.verifier.VerifyEmail(ctx, token)
}
