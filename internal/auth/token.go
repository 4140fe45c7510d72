package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and verifies HS256 tokens for one audience.
// Verification is a pure function of the token, the secret and the clock.
type TokenManager struct {
	secret   []byte
	ttl      time.Duration
	audience string
	now      func() time.Time
}

// TokenOption customises a TokenManager
type TokenOption func(*TokenManager)

// WithAudience binds tokens to an audience other than the session audience.
func WithAudience(audience string) TokenOption {
	return func(tm *TokenManager) {
		tm.audience = audience
	}
}

// WithClock replaces time.Now, used by tests to move across expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{
		secret:   []byte(secret),
		ttl:      ttl,
		audience: models.AudienceSession,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// TTL returns the lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a token for userID.
func (tm *TokenManager) Issue(userID string) (string, *models.TokenClaims, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("cannot issue token without subject")
	}

	now := tm.now()
	claims := &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{tm.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, claims, nil
}

// Verify checks signature, audience and expiry and returns the claims.
// Errors are models.ErrTokenExpired, models.ErrTokenInvalidSignature or
// models.ErrTokenMalformed.
func (tm *TokenManager) Verify(tokenString string) (*models.TokenClaims, error) {
	if tokenString == "" {
		return nil, models.ErrTokenMalformed
	}

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return tm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tm.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, models.ErrTokenMalformed
	}

	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return models.ErrTokenInvalidSignature
	default:
		return fmt.Errorf("%w: %v", models.ErrTokenMalformed, err)
	}
}

// DeriveSecret derives a purpose-specific signing key from the root secret
func DeriveSecret(root, purpose string) string {
	mac := hmac.New(sha256.New, []byte(root))
	mac.Write([]byte(purpose))
	return hex.EncodeToString(mac.Sum(nil))
}
