package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers selected by DATABASE_URL
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Cookie   CookieConfig
	Email    EmailConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	URL               string
	AutoMigrate       bool
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	TrustedProxies  []string
	SentryDSN       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret              string
	TokenTTL               time.Duration
	BcryptCost             int
	LoginRateLimit         int
	MaxFailedLoginAttempts int
	LockoutDuration        time.Duration
	TimingDelayBaseMs      int
	TimingDelayRandomMs    int
}

type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite string
}

type EmailConfig struct {
	Provider            string // "ses" or "log"
	AWSRegion           string
	FromAddress         string
	VerificationURLBase string
	VerificationTTL     time.Duration
}

// AdminConfig seeds the first administrator. Empty email disables it.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	env := getEnv("ENV", "development")

	tokenTTL, err := ParseTTL(getEnv("JWT_EXPIRES_IN", "7d"))
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:               databaseURL,
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("PORT", "5000"),
			Env:             env,
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:  parseAllowedOrigins(env),
			TrustedProxies:  splitList(getEnv("TRUSTED_PROXIES", "")),
			SentryDSN:       getEnv("SENTRY_DSN", ""),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:              jwtSecret,
			TokenTTL:               tokenTTL,
			BcryptCost:             getEnvAsInt("BCRYPT_COST", 10),
			LoginRateLimit:         getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			MaxFailedLoginAttempts: getEnvAsInt("MAX_FAILED_LOGIN_ATTEMPTS", 5),
			LockoutDuration:        getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			TimingDelayBaseMs:      getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:    getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		Cookie: CookieConfig{
			Name:     getEnv("COOKIE_NAME", "token"),
			Domain:   getEnv("COOKIE_DOMAIN", ""),
			Secure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			SameSite: strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		},
		Email: EmailConfig{
			Provider:            strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
			FromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
			VerificationURLBase: getEnv("EMAIL_VERIFICATION_URL_BASE", "http://localhost:5000/api/v1/auth/verify-email"),
			VerificationTTL:     getEnvAsDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrator"),
		},
	}

	if _, err := cfg.Database.Driver(); err != nil {
		return nil, err
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	switch cfg.Cookie.SameSite {
	case "strict", "lax", "none":
	default:
		return nil, fmt.Errorf("COOKIE_SAMESITE must be strict, lax or none (got %q)", cfg.Cookie.SameSite)
	}
	if cfg.Cookie.SameSite == "none" && !cfg.Cookie.Secure {
		return nil, fmt.Errorf("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}

	switch cfg.Email.Provider {
	case "log":
	case "ses":
		if cfg.Email.FromAddress == "" {
			return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_PROVIDER=ses")
		}
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be ses or log (got %q)", cfg.Email.Provider)
	}

	if cfg.Admin.Email != "" && cfg.Admin.Password == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	return cfg, nil
}

// IsProduction reports whether the server runs with production settings
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// Driver returns the store backend named by the URL scheme
func (c *DatabaseConfig) Driver() (string, error) {
	switch {
	case strings.HasPrefix(c.URL, "postgres://"), strings.HasPrefix(c.URL, "postgresql://"):
		return DriverPostgres, nil
	case strings.HasPrefix(c.URL, "sqlite://"), strings.HasPrefix(c.URL, "file:"):
		return DriverSQLite, nil
	case strings.HasPrefix(c.URL, "memory://"):
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("DATABASE_URL scheme not supported (want postgres://, sqlite://, file: or memory://)")
	}
}

// SQLitePath strips the sqlite:// prefix; file: URIs are passed through
func (c *DatabaseConfig) SQLitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite://")
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example", "your_jwt_secret",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// ParseTTL accepts Go durations and a whole-day suffix such as "7d"
func ParseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive (got %s)", value)
	}
	return d, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if origins := splitList(getEnv("ALLOWED_ORIGINS", "")); len(origins) > 0 {
		return origins
	}
	if env == "production" {
		return []string{} // Default to no origins in production
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://localhost:5000",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:5000",
	}
}
