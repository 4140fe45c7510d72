package services

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/pkg/logger"
)

// EmailVerificationService issues signed verification links and consumes them.
// Links are stateless tokens for the email-verification audience.
type EmailVerificationService struct {
	users    *UserService
	tokens   *auth.TokenManager
	sender   EmailSender
	linkBase string
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(
	users *UserService,
	tokens *auth.TokenManager,
	sender EmailSender,
	linkBase string,
	audit *logger.AuditLogger,
	logger *slog.Logger,
) *EmailVerificationService {
	return &EmailVerificationService{
		users:    users,
		tokens:   tokens,
		sender:   sender,
		linkBase: linkBase,
		audit:    audit,
		logger:   logger,
	}
}

// SendVerificationEmail mails a fresh link to user. Verified users are skipped.
func (s *EmailVerificationService) SendVerificationEmail(ctx context.Context, user *models.User) error {
	if user.IsVerified {
		return nil
	}

	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("failed to issue verification token", slog.String("user_id", user.ID), slog.Any("error", err))
		return err
	}

	link, err := s.buildLink(token)
	if err != nil {
		s.logger.Error("invalid verification link base", slog.String("base", s.linkBase), slog.Any("error", err))
		return err
	}

	return s.sender.SendVerificationEmail(ctx, user.Email, link, claims.ExpiresAt.Time)
}

func (s *EmailVerificationService) buildLink(token string) (string, error) {
	u, err := url.Parse(s.linkBase)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// VerifyEmail consumes a link token and marks its subject verified.
// Re-using a valid link is harmless.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	invalid := models.NewValidationError("token", "verification link is invalid or has expired")

	if token == "" {
		return nil, models.NewValidationError("token", "token is required")
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Info("verification token rejected", slog.Any("error", err))
		return nil, invalid
	}

	user, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, invalid
	}
	if user.IsVerified {
		return user, nil
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true

	s.audit.Log(ctx, logger.AuditEvent{
		EventType: logger.EventEmailVerified,
		UserID:    user.ID,
		Success:   true,
	})
	return user, nil
}
