package repositories_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BradenHooton/deepshield/internal/database"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/BradenHooton/deepshield/internal/repositories"
	"github.com/BradenHooton/deepshield/internal/repositories/repotest"
	"github.com/BradenHooton/deepshield/internal/services"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) services.UserRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, database.Migrate(ctx, db, goose.DialectSQLite3, logger))

	return repositories.NewSQLiteUserRepository(db)
}

func TestMemoryUserRepository(t *testing.T) {
	repotest.RunUserRepositoryContract(t, func(*testing.T) services.UserRepository {
		return repositories.NewMemoryUserRepository()
	})
}

func TestSQLiteUserRepository(t *testing.T) {
	repotest.RunUserRepositoryContract(t, newSQLiteRepo)
}

func TestMemoryUserRepository_ReturnsCopies(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Create(ctx, repotest.NewUser("copy@example.com"))
	require.NoError(t, err)

	user.Role = models.RoleAdmin
	user.IsBlocked = true

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, stored.Role)
	assert.False(t, stored.IsBlocked)
}

func TestMemoryUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(context.Background(), repotest.NewUser("race@example.com"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, models.ErrDuplicateEmail)
	}
	assert.Equal(t, 1, created)
}

func TestSQLiteUserRepository_HealthCheckAfterClose(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)

	repo := repositories.NewSQLiteUserRepository(db)
	require.NoError(t, repo.HealthCheck(ctx))

	require.NoError(t, db.Close())
	assert.Error(t, repo.HealthCheck(ctx))
}
