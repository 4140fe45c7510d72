package repositories

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
)

// MemoryUserRepository keeps users in process memory. The email index is
// keyed by the lower-cased address so uniqueness ignores case.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// clone returns a copy so callers never share the stored record
func clone(u *models.User) *models.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.LastFailedLoginAttempt != nil {
		t := *u.LastFailedLoginAttempt
		c.LastFailedLoginAttempt = &t
	}
	return &c
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(user.Email)
	if _, exists := r.byEmail[key]; exists {
		return nil, models.ErrDuplicateEmail
	}

	prepareNewUser(user, time.Now().UTC())
	if _, exists := r.byID[user.ID]; exists {
		return nil, models.ErrDuplicateEmail
	}

	stored := clone(user)
	r.byID[stored.ID] = stored
	r.byEmail[key] = stored.ID
	return clone(stored), nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(user), nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

// update applies fn to the stored record under the write lock
func (r *MemoryUserRepository) update(id string, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	fn(user)
	return clone(user), nil
}

func (r *MemoryUserRepository) RecordLogin(_ context.Context, id string, at time.Time) error {
	_, err := r.update(id, func(u *models.User) {
		u.LoginCount++
		u.LastLogin = &at
		u.FailedLoginAttempts = 0
		u.LastFailedLoginAttempt = nil
		u.UpdatedAt = at
	})
	return err
}

func (r *MemoryUserRepository) RecordFailedLogin(_ context.Context, id string, at, windowStart time.Time) (int, error) {
	user, err := r.update(id, func(u *models.User) {
		if u.LastFailedLoginAttempt == nil || u.LastFailedLoginAttempt.Before(windowStart) {
			u.FailedLoginAttempts = 0
		}
		u.FailedLoginAttempts++
		u.LastFailedLoginAttempt = &at
		u.UpdatedAt = at
	})
	if err != nil {
		return 0, err
	}
	return user.FailedLoginAttempts, nil
}

func (r *MemoryUserRepository) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	_, err := r.update(id, func(u *models.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
	return err
}

func (r *MemoryUserRepository) MarkVerified(_ context.Context, id string, at time.Time) error {
	_, err := r.update(id, func(u *models.User) {
		u.IsVerified = true
		u.UpdatedAt = at
	})
	return err
}

func (r *MemoryUserRepository) UpdateAccount(_ context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error) {
	return r.update(id, func(u *models.User) {
		if update.Role != nil {
			u.Role = *update.Role
		}
		if update.Status != nil {
			u.Status = *update.Status
		}
		if update.IsBlocked != nil {
			u.IsBlocked = *update.IsBlocked
		}
		u.UpdatedAt = at
	})
}

func (r *MemoryUserRepository) List(_ context.Context, filter models.UserFilter) ([]*models.User, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		if filter.Matches(u) {
			matched = append(matched, clone(u))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if filter.Offset >= len(matched) {
		return []*models.User{}, nil
	}
	end := min(filter.Offset+filter.Limit, len(matched))
	return matched[filter.Offset:end], nil
}

func (r *MemoryUserRepository) Stats(_ context.Context) (*models.UserStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := newUserStats()
	for _, u := range r.byID {
		stats.Total++
		stats.ByRole[u.Role]++
		stats.ByStatus[u.Status]++
		if u.IsBlocked {
			stats.Blocked++
		}
		if u.IsVerified {
			stats.Verified++
		}
	}
	return stats, nil
}

func (r *MemoryUserRepository) HealthCheck(context.Context) error {
	return nil
}
