package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 10 // ~50-100ms on commodity hardware
	MinPasswordLen    = 8
	MaxPasswordLen    = 72 // bcrypt ignores everything past 72 bytes
)

var (
	// ErrMalformedHash is returned by Verify when the stored hash is not a bcrypt hash.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrAlreadyHashed is returned by Hash when handed a bcrypt hash instead of a password.
	ErrAlreadyHashed = errors.New("value is already a password hash")
)

// PasswordValidationError holds the failed policy rules
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password " + strings.Join(e.Errors, ", ")
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":    true,
	"12345678":    true,
	"123456789":   true,
	"qwerty123":   true,
	"password1":   true,
	"password123": true,
	"iloveyou":    true,
	"letmein1":    true,
	"welcome1":    true,
	"admin123":    true,
	"passw0rd":    true,
	"sunshine":    true,
	"princess":    true,
	"starwars":    true,
	"football":    true,
	"trustno1":    true,
	"baseball":    true,
	"superman":    true,
}

// PasswordHasher turns plaintext passwords into salted bcrypt hashes.
// The salt is embedded in the output.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher with the given bcrypt cost.
// Out of range costs fall back to DefaultBcryptCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost returns the configured bcrypt cost.
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a new salted hash of password. Two calls on the same input
// return different hashes.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if IsHashed(password) {
		return "", ErrAlreadyHashed
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify reports whether password matches hashedPassword. A mismatch is
// (false, nil); only a malformed hash is an error.
func (h *PasswordHasher) Verify(password, hashedPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

// IsHashed reports whether s already is a bcrypt hash.
func IsHashed(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// ValidatePassword enforces the password policy
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	if len(password) < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}
	if strings.TrimSpace(password) == "" && password != "" {
		errors = append(errors, "cannot be blank")
	}

	// Check against common passwords (case-insensitive)
	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, "is too common, please choose a more unique password")
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}
