package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

// fakeClock is a settable clock for expiry tests
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	for _, userID := range []string{"user-1", "4b0c5a4e-1c55-4f1e-9a55-0d1c1f6b9f1e", "x"} {
		t.Run(userID, func(t *testing.T) {
			token, issued, err := tm.Issue(userID)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			claims, err := tm.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID())
			assert.Equal(t, issued.ID, claims.ID)
			assert.NotNil(t, claims.IssuedAt)
			assert.NotNil(t, claims.ExpiresAt)
		})
	}
}

func TestTokenManager_IssueRequiresSubject(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	_, _, err := tm.Issue("")
	assert.Error(t, err)
}

func TestTokenManager_Expiry(t *testing.T) {
	clock := newFakeClock()
	ttl := 7 * 24 * time.Hour
	tm := NewTokenManager(testSecret, ttl, WithClock(clock.Now))

	issuedAt := clock.t
	token, _, err := tm.Issue("user-1")
	require.NoError(t, err)

	clock.t = issuedAt.Add(ttl - time.Second)
	claims, err := tm.Verify(token)
	require.NoError(t, err, "token should still verify just before expiry")
	assert.Equal(t, "user-1", claims.UserID())

	clock.t = issuedAt.Add(ttl + time.Second)
	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestTokenManager_ClaimsMatchTTL(t *testing.T) {
	clock := newFakeClock()
	tm := NewTokenManager(testSecret, 15*time.Minute, WithClock(clock.Now))

	_, claims, err := tm.Issue("user-1")
	require.NoError(t, err)

	assert.Equal(t, clock.t, claims.IssuedAt.Time)
	assert.Equal(t, clock.t.Add(15*time.Minute), claims.ExpiresAt.Time)
	assert.Equal(t, 15*time.Minute, tm.TTL())
}

func TestTokenManager_InvalidSignature(t *testing.T) {
	issuer := NewTokenManager(testSecret, time.Hour)
	verifier := NewTokenManager("another-secret-32-characters-long", time.Hour)

	token, _, err := issuer.Issue("user-1")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, models.ErrTokenInvalidSignature)
}

func TestTokenManager_TamperedPayload(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, _, err := tm.Issue("user-1")
	require.NoError(t, err)

	forged, _, err := NewTokenManager(testSecret, time.Hour).Issue("admin-1")
	require.NoError(t, err)

	// Splice the admin payload onto the original signature
	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	spliced := parts[0] + "." + forgedParts[1] + "." + parts[2]

	_, err = tm.Verify(spliced)
	assert.ErrorIs(t, err, models.ErrTokenInvalidSignature)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{models.AudienceSession},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.Verify(none)
	assert.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.Verify(hs512)
	assert.ErrorIs(t, err, models.ErrTokenInvalidSignature)
}

func TestTokenManager_Malformed(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"bad base64", "!!!.???.***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Verify(tt.token)
			assert.True(t, errors.Is(err, models.ErrTokenMalformed), "got %v", err)
		})
	}
}

func TestTokenManager_AudienceSeparation(t *testing.T) {
	session := NewTokenManager(testSecret, time.Hour)
	verification := NewTokenManager(testSecret, time.Hour, WithAudience(models.AudienceEmailVerification))

	token, _, err := verification.Issue("user-1")
	require.NoError(t, err)

	_, err = session.Verify(token)
	assert.ErrorIs(t, err, models.ErrTokenMalformed)

	claims, err := verification.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
}

func TestTokenManager_MissingExpiry(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:  "user-1",
		Audience: jwt.ClaimStrings{models.AudienceSession},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestDeriveSecret(t *testing.T) {
	a := DeriveSecret(testSecret, "email-verification")
	b := DeriveSecret(testSecret, "email-verification")
	c := DeriveSecret(testSecret, "other")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, testSecret, a)
	assert.Len(t, a, 64)
}
