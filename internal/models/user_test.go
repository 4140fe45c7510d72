package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleSet(t *testing.T) {
	set := NewRoleSet(RoleUser, RoleAdmin)
	assert.True(t, set.Contains(RoleAdmin))
	assert.True(t, set.Contains(RoleUser))
	assert.False(t, set.Contains(Role("guest")))
	assert.Equal(t, "admin,user", set.String())

	adminOnly := NewRoleSet(RoleAdmin)
	assert.False(t, adminOnly.Contains(RoleUser))
	assert.Equal(t, "admin", adminOnly.String())

	assert.False(t, NewRoleSet().Contains(RoleUser))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("root").Valid())
	assert.True(t, StatusDeleted.Valid())
	assert.False(t, UserStatus("banned").Valid())
	assert.True(t, ProviderGithub.Valid())
	assert.False(t, AuthProvider("saml").Valid())
}

func TestUser_CanAuthenticate(t *testing.T) {
	tests := []struct {
		name string
		user User
		want bool
	}{
		{"active", User{Status: StatusActive}, true},
		{"blocked", User{Status: StatusActive, IsBlocked: true}, false},
		{"inactive", User{Status: StatusInactive}, false},
		{"deleted", User{Status: StatusDeleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.CanAuthenticate())
		})
	}
}

func TestUser_IsLockedOut(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	stale := now.Add(-time.Hour)

	tests := []struct {
		name     string
		attempts int
		last     *time.Time
		max      int
		want     bool
	}{
		{"no failures", 0, nil, 5, false},
		{"below threshold", 4, &recent, 5, false},
		{"at threshold", 5, &recent, 5, true},
		{"over threshold", 7, &recent, 5, true},
		{"outside window", 9, &stale, 5, false},
		{"lockout disabled", 9, &recent, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{FailedLoginAttempts: tt.attempts, LastFailedLoginAttempt: tt.last}
			assert.Equal(t, tt.want, u.IsLockedOut(now, tt.max, 15*time.Minute))
		})
	}
}

func TestUserFilter_Normalize(t *testing.T) {
	assert.Equal(t, DefaultListLimit, UserFilter{}.Normalize().Limit)
	assert.Equal(t, MaxListLimit, UserFilter{Limit: 10_000}.Normalize().Limit)
	assert.Equal(t, 25, UserFilter{Limit: 25}.Normalize().Limit)
	assert.Equal(t, 0, UserFilter{Offset: -3}.Normalize().Offset)
}

func TestUserFilter_Matches(t *testing.T) {
	admin := &User{Role: RoleAdmin, Status: StatusActive}
	inactive := &User{Role: RoleUser, Status: StatusInactive}

	assert.True(t, UserFilter{}.Matches(admin))

	byRole := UserFilter{Roles: []Role{RoleAdmin}}
	assert.True(t, byRole.Matches(admin))
	assert.False(t, byRole.Matches(inactive))

	both := UserFilter{Roles: []Role{RoleUser}, Statuses: []UserStatus{StatusActive}}
	assert.False(t, both.Matches(inactive))
	assert.False(t, both.Matches(admin))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("email", "email is required")

	assert.EqualError(t, err, "email: email is required")
	assert.True(t, errors.Is(err, ErrValidation))

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "email", vErr.Field)
}
