package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceSession           = "session"
	AudienceEmailVerification = "email-verification"
)

// TokenClaims is the claim set of a signed token: sub, iat, exp, jti and aud.
// Nothing confidential is ever placed here.
type TokenClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the subject the token was issued to.
func (c *TokenClaims) UserID() string {
	return c.Subject
}
