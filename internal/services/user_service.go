package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/pkg/auth"
	"github.com/BradenHooton/deepshield/pkg/logger"
	"github.com/go-playground/validator/v10"
)

// UserRepository defines the interface for user data access.
// Implementations enforce case-insensitive email uniqueness themselves.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
	RecordFailedLogin(ctx context.Context, id string, at, windowStart time.Time) (int, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	UpdateAccount(ctx context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
	Stats(ctx context.Context) (*models.UserStats, error)
	HealthCheck(ctx context.Context) error
}

// NewUser is the input of a registration
type NewUser struct {
	Email    string
	Name     string
	Password string
	Avatar   string

	// Set only by trusted callers such as the admin bootstrap
	Role       models.Role
	IsVerified bool
}

const maxNameLength = 100

// UserService is the credential store: the only component that writes
// users and the only one that turns plaintext passwords into hashes.
type UserService struct {
	repo     UserRepository
	hasher   *auth.PasswordHasher
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, hasher *auth.PasswordHasher, logger *slog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		hasher:   hasher,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Hasher exposes the hasher so login can verify against the same cost and format
func (s *UserService) Hasher() *auth.PasswordHasher {
	return s.hasher
}

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create validates the input, hashes the password and stores the user.
// A duplicate email in any letter case fails with ErrDuplicateEmail.
func (s *UserService) Create(ctx context.Context, in NewUser) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	switch {
	case email == "":
		return nil, models.NewValidationError("email", "email is required")
	case in.Password == "":
		return nil, models.NewValidationError("password", "password is required")
	case name == "":
		return nil, models.NewValidationError("name", "name is required")
	}

	if err := s.validate.Var(email, "email,max=255"); err != nil {
		return nil, models.NewValidationError("email", "must be a valid email address")
	}
	if len(name) > maxNameLength {
		return nil, models.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if in.Avatar != "" {
		if err := s.validate.Var(in.Avatar, "url,max=2048"); err != nil {
			return nil, models.NewValidationError("avatar", "must be a valid URL")
		}
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return nil, passwordPolicyError("password", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, models.NewValidationError("role", "must be user or admin")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyHashed) {
			return nil, models.NewValidationError("password", "must not be a password hash")
		}
		return nil, s.internal("failed to hash password", err)
	}

	created, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		Avatar:       strings.TrimSpace(in.Avatar),
		PasswordHash: hash,
		Role:         role,
		Status:       models.StatusActive,
		AuthProvider: models.ProviderLocal,
		IsVerified:   in.IsVerified,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			s.logger.Info("registration for existing email", slog.String("email", logger.SanitizedEmail(email)))
			return nil, models.ErrDuplicateEmail
		}
		return nil, s.internal("failed to create user", err)
	}

	s.logger.Info("user created", slog.String("user_id", created.ID), slog.String("role", string(created.Role)))
	return created, nil
}

// FindByEmail returns the user including the stored hash, for credential checks
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal("failed to get user by email", err)
	}
	return user, nil
}

// FindByID resolves a token subject
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal("failed to get user", err, slog.String("user_id", id))
	}
	return user, nil
}

// RecordLogin bumps the login counter and clears failed attempts
func (s *UserService) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if err := s.repo.RecordLogin(ctx, id, at); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return s.internal("failed to record login", err, slog.String("user_id", id))
	}
	return nil
}

// RecordFailedLogin counts a failure. Failures older than window start a new count.
func (s *UserService) RecordFailedLogin(ctx context.Context, id string, at time.Time, window time.Duration) (int, error) {
	attempts, err := s.repo.RecordFailedLogin(ctx, id, at, at.Add(-window))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		return 0, s.internal("failed to record failed login", err, slog.String("user_id", id))
	}
	return attempts, nil
}

// ChangePassword verifies current and stores a hash of next
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	if current == "" {
		return models.NewValidationError("currentPassword", "current password is required")
	}
	if next == "" {
		return models.NewValidationError("newPassword", "new password is required")
	}

	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(current, user.PasswordHash)
	if err != nil {
		return s.internal("stored password hash unreadable", err, slog.String("user_id", id))
	}
	if !ok {
		return models.ErrInvalidCredentials
	}

	if err := auth.ValidatePassword(next); err != nil {
		return passwordPolicyError("newPassword", err)
	}
	if current == next {
		return models.NewValidationError("newPassword", "must differ from the current password")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyHashed) {
			return models.NewValidationError("newPassword", "must not be a password hash")
		}
		return s.internal("failed to hash password", err)
	}

	if err := s.repo.UpdatePasswordHash(ctx, id, hash, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return s.internal("failed to update password", err, slog.String("user_id", id))
	}

	s.logger.Info("password changed", slog.String("user_id", id))
	return nil
}

// MarkVerified sets isVerified for the user
func (s *UserService) MarkVerified(ctx context.Context, id string) error {
	if err := s.repo.MarkVerified(ctx, id, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		return s.internal("failed to mark user verified", err, slog.String("user_id", id))
	}
	return nil
}

// UpdateAccount applies an admin change to role, status or the blocked flag
func (s *UserService) UpdateAccount(ctx context.Context, id string, update models.AccountUpdate) (*models.User, error) {
	if update.Role != nil && !update.Role.Valid() {
		return nil, models.NewValidationError("role", "must be user or admin")
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, models.NewValidationError("status", "must be active, inactive or deleted")
	}
	if update.Role == nil && update.Status == nil && update.IsBlocked == nil {
		return nil, models.NewValidationError("body", "at least one of role, status or isBlocked is required")
	}

	user, err := s.repo.UpdateAccount(ctx, id, update, s.now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, s.internal("failed to update account", err, slog.String("user_id", id))
	}
	return user, nil
}

// List returns users matching filter, newest first
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	users, err := s.repo.List(ctx, filter.Normalize())
	if err != nil {
		return nil, s.internal("failed to list users", err)
	}
	return users, nil
}

// Stats counts users by role and status
func (s *UserService) Stats(ctx context.Context) (*models.UserStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, s.internal("failed to compute user stats", err)
	}
	return stats, nil
}

// HealthCheck pings the backing store
func (s *UserService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

// internal logs err and returns it wrapped in ErrInternalServer
func (s *UserService) internal(msg string, err error, attrs ...any) error {
	s.logger.Error(msg, append(attrs, slog.Any("error", err))...)
	return fmt.Errorf("%w: %s: %v", models.ErrInternalServer, msg, err)
}

// passwordPolicyError turns a policy failure into a field error
func passwordPolicyError(field string, err error) error {
	var policyErr *auth.PasswordValidationError
	if errors.As(err, &policyErr) && len(policyErr.Errors) > 0 {
		return models.NewValidationError(field, strings.Join(policyErr.Errors, ", "))
	}
	return models.NewValidationError(field, err.Error())
}
