package models

import (
	"slices"
	"strings"
	"time"
)

// Role determines what an authenticated user is allowed to reach.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserStatus is the lifecycle state of an account. Deleted is a soft delete.
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
	StatusDeleted  UserStatus = "deleted"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// AuthProvider records how the account authenticates. Only local accounts can
// log in with a password.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
	ProviderGithub AuthProvider = "github"
)

func (p AuthProvider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderGithub:
		return true
	}
	return false
}

// RoleSet is the set of roles admitted by a route.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether role is admitted.
func (s RoleSet) Contains(role Role) bool {
	_, ok := s[role]
	return ok
}

// String renders the set in a stable order for logs.
func (s RoleSet) String() string {
	names := make([]string, 0, len(s))
	for _, r := range []Role{RoleAdmin, RoleUser} {
		if s.Contains(r) {
			names = append(names, string(r))
		}
	}
	return strings.Join(names, ",")
}

type User struct {
	ID                     string       `json:"id"`
	Email                  string       `json:"email"`
	PasswordHash           string       `json:"-"`
	Name                   string       `json:"name"`
	Avatar                 string       `json:"avatar,omitempty"`
	Role                   Role         `json:"role"`
	Status                 UserStatus   `json:"status"`
	AuthProvider           AuthProvider `json:"authProvider"`
	LoginCount             int          `json:"loginCount"`
	LastLogin              *time.Time   `json:"lastLogin,omitempty"`
	IsVerified             bool         `json:"isVerified"`
	IsBlocked              bool         `json:"isBlocked"`
	FailedLoginAttempts    int          `json:"failedLoginAttempts"`
	LastFailedLoginAttempt *time.Time   `json:"lastFailedLoginAttempt,omitempty"`
	CreatedAt              time.Time    `json:"createdAt"`
	UpdatedAt              time.Time    `json:"updatedAt"`
}

// CanAuthenticate reports whether the account may hold a session.
func (u *User) CanAuthenticate() bool {
	return !u.IsBlocked && u.Status == StatusActive
}

// IsLockedOut reports whether recent failed logins keep the account locked at now.
// A counter whose last failure is older than window no longer counts.
func (u *User) IsLockedOut(now time.Time, maxAttempts int, window time.Duration) bool {
	if maxAttempts <= 0 || u.LastFailedLoginAttempt == nil {
		return false
	}
	if now.Sub(*u.LastFailedLoginAttempt) >= window {
		return false
	}
	return u.FailedLoginAttempts >= maxAttempts
}

// UserFilter narrows admin listings. Empty sets match everything.
type UserFilter struct {
	Roles    []Role
	Statuses []UserStatus
	Limit    int
	Offset   int
}

// DefaultListLimit and MaxListLimit bound admin listings.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps Limit and Offset into their allowed ranges.
func (f UserFilter) Normalize() UserFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether u passes the role and status sets.
func (f UserFilter) Matches(u *User) bool {
	if len(f.Roles) > 0 && !slices.Contains(f.Roles, u.Role) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, u.Status) {
		return false
	}
	return true
}

// AccountUpdate carries admin changes; nil fields are left untouched.
type AccountUpdate struct {
	Role      *Role
	Status    *UserStatus
	IsBlocked *bool
}

// UserStats aggregates account counts for the admin dashboard.
type UserStats struct {
	Total    int64                `json:"total"`
	ByRole   map[Role]int64       `json:"byRole"`
	ByStatus map[UserStatus]int64 `json:"byStatus"`
	Blocked  int64                `json:"blocked"`
	Verified int64                `json:"verified"`
}
