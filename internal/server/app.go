package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/deepshield/internal/auth"
	"github.com/BradenHooton/deepshield/internal/config"
	"github.com/BradenHooton/deepshield/internal/handlers"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/routes"
	"github.com/BradenHooton/deepshield/internal/services"
	pkgauth "github.com/BradenHooton/deepshield/pkg/auth"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
)

// App is the assembled server: store, services and router
type App struct {
	Handler http.Handler
	Store   *Store
	Users   *services.UserService
	Auth    *services.AuthService
}

// Option customises New
type Option func(*options)

type options struct {
	sender services.EmailSender
}

// WithEmailSender replaces the sender chosen by EMAIL_PROVIDER
func WithEmailSender(sender services.EmailSender) Option {
	return func(o *options) {
		o.sender = sender
	}
}

// New opens the store, wires the services and builds the router.
// The caller owns App.Store and must close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	sender := o.sender
	if sender == nil {
		sender, err = newEmailSender(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	store, err := OpenStore(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	hasher := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	userService := services.NewUserService(store.Users, hasher, logger)
	auditLogger := pkglogger.NewAuditLogger(logger)

	sessions := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verificationTokens := auth.NewTokenManager(
		auth.DeriveSecret(cfg.Auth.JWTSecret, models.AudienceEmailVerification),
		cfg.Email.VerificationTTL,
		auth.WithAudience(models.AudienceEmailVerification),
	)

	verifier := services.NewEmailVerificationService(
		userService,
		verificationTokens,
		sender,
		cfg.Email.VerificationURLBase,
		auditLogger,
		logger,
	)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	authService, err := services.NewAuthService(
		userService,
		sessions,
		timingDelay,
		verifier,
		services.LockoutPolicy{
			MaxAttempts: cfg.Auth.MaxFailedLoginAttempts,
			Window:      cfg.Auth.LockoutDuration,
		},
		auditLogger,
		logger,
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}
	adminService := services.NewAdminService(userService, auditLogger, logger)

	if err := EnsureAdmin(ctx, userService, cfg.Admin, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}

	cookies := auth.CookieConfig{
		Name:     cfg.Cookie.Name,
		Domain:   cfg.Cookie.Domain,
		Secure:   cfg.Cookie.Secure,
		SameSite: cfg.Cookie.SameSite,
	}

	router := routes.NewRouter(
		logger,
		routes.Options{
			Env:            cfg.Server.Env,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			LoginRateLimit: cfg.Auth.LoginRateLimit,
			IPConfig:       ipConfig,
		},
		handlers.NewAuthHandler(authService, cookies, ipConfig),
		handlers.NewAdminHandler(adminService, ipConfig),
		auth.Authenticate(sessions, userService, cookies, logger),
		userService,
	)

	return &App{
		Handler: router,
		Store:   store,
		Users:   userService,
		Auth:    authService,
	}, nil
}

func newEmailSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.EmailSender, error) {
	if cfg.Email.Provider == "ses" {
		sender, err := services.NewSESEmailSender(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			return nil, fmt.Errorf("init SES email sender: %w", err)
		}
		return sender, nil
	}
	return services.NewLogEmailSender(logger, cfg.Server.Env), nil
}

// EnsureAdmin creates the configured administrator once. An existing account
// with that email is left untouched.
func EnsureAdmin(ctx context.Context, users *services.UserService, cfg config.AdminConfig, logger *slog.Logger) error {
	if cfg.Email == "" || cfg.Password == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := users.FindByEmail(ctx, cfg.Email)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	admin, err := users.Create(ctx, services.NewUser{
		Email:      cfg.Email,
		Name:       cfg.Name,
		Password:   cfg.Password,
		Role:       models.RoleAdmin,
		IsVerified: true,
	})
	if errors.Is(err, models.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created", slog.String("user_id", admin.ID))
	return nil
}
