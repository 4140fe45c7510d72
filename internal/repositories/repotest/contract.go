// Package repotest holds the behaviour every user store must share.
package repotest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest
type Factory func(t *testing.T) services.UserRepository

// RunUserRepositoryContract runs the shared store tests against newRepo
func RunUserRepositoryContract(t *testing.T, newRepo Factory) {
	t.Run("CreateAssignsDefaults", func(t *testing.T) { testCreateAssignsDefaults(t, newRepo(t)) })
	t.Run("EmailUniqueIgnoresCase", func(t *testing.T) { testEmailUniqueIgnoresCase(t, newRepo(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newRepo(t)) })
	t.Run("RecordLogin", func(t *testing.T) { testRecordLogin(t, newRepo(t)) })
	t.Run("RecordFailedLoginWindow", func(t *testing.T) { testRecordFailedLoginWindow(t, newRepo(t)) })
	t.Run("PasswordAndVerification", func(t *testing.T) { testPasswordAndVerification(t, newRepo(t)) })
	t.Run("UpdateAccountPartial", func(t *testing.T) { testUpdateAccountPartial(t, newRepo(t)) })
	t.Run("ListFiltersAndPages", func(t *testing.T) { testListFiltersAndPages(t, newRepo(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newRepo(t)) })
}

// NewUser builds an unsaved local user
func NewUser(email string) *models.User {
	return &models.User{
		Email:        email,
		PasswordHash: "$2a$04$not.a.real.hash.but.long.enough.for.the.column.xx",
		Name:         "Test User",
	}
}

func create(t *testing.T, repo services.UserRepository, email string) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), NewUser(email))
	require.NoError(t, err)
	return user
}

func testCreateAssignsDefaults(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()

	user, err := repo.Create(ctx, NewUser("  Alice@Example.com "))
	require.NoError(t, err)

	_, err = uuid.Parse(user.ID)
	assert.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, models.StatusActive, user.Status)
	assert.Equal(t, models.ProviderLocal, user.AuthProvider)
	assert.False(t, user.IsVerified)
	assert.False(t, user.IsBlocked)
	assert.Zero(t, user.LoginCount)
	assert.Nil(t, user.LastLogin)
	assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Minute)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)
	assert.Equal(t, user.PasswordHash, byID.PasswordHash)

	byEmail, err := repo.GetByEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	admin := NewUser("root@example.com")
	admin.Role = models.RoleAdmin
	admin.IsVerified = true
	created, err := repo.Create(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, created.Role)
	assert.True(t, created.IsVerified)
}

func testEmailUniqueIgnoresCase(t *testing.T, repo services.UserRepository) {
	create(t, repo, "bob@example.com")

	_, err := repo.Create(context.Background(), NewUser("BOB@example.com"))
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
}

func testNotFound(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	missing := uuid.NewString()
	now := time.Now().UTC()

	_, err := repo.GetByID(ctx, missing)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, repo.RecordLogin(ctx, missing, now), models.ErrNotFound)
	assert.ErrorIs(t, repo.UpdatePasswordHash(ctx, missing, "hash", now), models.ErrNotFound)
	assert.ErrorIs(t, repo.MarkVerified(ctx, missing, now), models.ErrNotFound)

	_, err = repo.RecordFailedLogin(ctx, missing, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)

	blocked := true
	_, err = repo.UpdateAccount(ctx, missing, models.AccountUpdate{IsBlocked: &blocked}, now)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testRecordLogin(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	user := create(t, repo, "carol@example.com")
	now := time.Now().UTC()

	_, err := repo.RecordFailedLogin(ctx, user.ID, now, now.Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.RecordLogin(ctx, user.ID, now))
	require.NoError(t, repo.RecordLogin(ctx, user.ID, now.Add(time.Second)))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LoginCount)
	require.NotNil(t, got.LastLogin)
	assert.WithinDuration(t, now.Add(time.Second), *got.LastLogin, time.Second)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LastFailedLoginAttempt)
}

func testRecordFailedLoginWindow(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	user := create(t, repo, "dave@example.com")
	window := 15 * time.Minute
	start := time.Now().UTC().Truncate(time.Second)

	for i := 1; i <= 3; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		n, err := repo.RecordFailedLogin(ctx, user.ID, at, at.Add(-window))
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	// the previous failure falls outside the window, so counting restarts
	later := start.Add(time.Hour)
	n, err := repo.RecordFailedLogin(ctx, user.ID, later, later.Add(-window))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedLoginAttempts)
	require.NotNil(t, got.LastFailedLoginAttempt)
	assert.WithinDuration(t, later, *got.LastFailedLoginAttempt, time.Second)
}

func testPasswordAndVerification(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	user := create(t, repo, "erin@example.com")
	now := time.Now().UTC()

	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "$2a$04$replacement", now))
	require.NoError(t, repo.MarkVerified(ctx, user.ID, now))
	require.NoError(t, repo.MarkVerified(ctx, user.ID, now))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$replacement", got.PasswordHash)
	assert.True(t, got.IsVerified)
}

func testUpdateAccountPartial(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	user := create(t, repo, "frank@example.com")
	now := time.Now().UTC()

	blocked := true
	got, err := repo.UpdateAccount(ctx, user.ID, models.AccountUpdate{IsBlocked: &blocked}, now)
	require.NoError(t, err)
	assert.True(t, got.IsBlocked)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.Equal(t, models.StatusActive, got.Status)

	role := models.RoleAdmin
	status := models.StatusInactive
	got, err = repo.UpdateAccount(ctx, user.ID, models.AccountUpdate{Role: &role, Status: &status}, now)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, models.StatusInactive, got.Status)
	assert.True(t, got.IsBlocked)
}

func testListFiltersAndPages(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		create(t, repo, fmt.Sprintf("user%d@example.com", i))
	}
	admin := create(t, repo, "admin@example.com")
	role := models.RoleAdmin
	_, err := repo.UpdateAccount(ctx, admin.ID, models.AccountUpdate{Role: &role}, now)
	require.NoError(t, err)

	all, err := repo.List(ctx, models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	admins, err := repo.List(ctx, models.UserFilter{Roles: []models.Role{models.RoleAdmin}})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, admin.ID, admins[0].ID)

	inactive, err := repo.List(ctx, models.UserFilter{Statuses: []models.UserStatus{models.StatusInactive}})
	require.NoError(t, err)
	assert.Empty(t, inactive)
	assert.NotNil(t, inactive)

	first, err := repo.List(ctx, models.UserFilter{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, first, 4)

	rest, err := repo.List(ctx, models.UserFilter{Limit: 4, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	seen := map[string]bool{}
	for _, u := range append(first, rest...) {
		seen[u.ID] = true
	}
	assert.Len(t, seen, 6)

	beyond, err := repo.List(ctx, models.UserFilter{Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func testStats(t *testing.T, repo services.UserRepository) {
	ctx := context.Background()
	now := time.Now().UTC()

	empty, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)

	a := create(t, repo, "a@example.com")
	b := create(t, repo, "b@example.com")
	create(t, repo, "c@example.com")

	role := models.RoleAdmin
	_, err = repo.UpdateAccount(ctx, a.ID, models.AccountUpdate{Role: &role}, now)
	require.NoError(t, err)
	require.NoError(t, repo.MarkVerified(ctx, a.ID, now))

	blocked := true
	status := models.StatusInactive
	_, err = repo.UpdateAccount(ctx, b.ID, models.AccountUpdate{IsBlocked: &blocked, Status: &status}, now)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.ByRole[models.RoleAdmin])
	assert.EqualValues(t, 2, stats.ByRole[models.RoleUser])
	assert.EqualValues(t, 2, stats.ByStatus[models.StatusActive])
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusInactive])
	assert.EqualValues(t, 1, stats.Blocked)
	assert.EqualValues(t, 1, stats.Verified)

	assert.NoError(t, repo.HealthCheck(ctx))
}
