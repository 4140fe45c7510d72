package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/deepshield/internal/database"
	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, name, avatar, role, status, auth_provider,
	login_count, last_login, is_verified, is_blocked, failed_login_attempts,
	last_failed_login_attempt, created_at, updated_at`

// UserRepository stores users in PostgreSQL
type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser populates a User from a row selected with userColumns
func scanUser(scanner rowScanner) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Avatar,
		&user.Role, &user.Status, &user.AuthProvider,
		&user.LoginCount, &user.LastLogin, &user.IsVerified, &user.IsBlocked,
		&user.FailedLoginAttempts, &user.LastFailedLoginAttempt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUserRow(row pgx.Row) (*models.User, error) {
	user, err := scanUser(row)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	prepareNewUser(user, time.Now().UTC())

	query := `
		INSERT INTO users (id, email, password_hash, name, avatar, role, status, auth_provider,
			is_verified, is_blocked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + userColumns

	created, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Avatar,
		user.Role, user.Status, user.AuthProvider,
		user.IsVerified, user.IsBlocked, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET login_count = login_count + 1, last_login = $2,
			failed_login_attempts = 0, last_failed_login_attempt = NULL, updated_at = $2
		WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, at, windowStart time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = CASE
				WHEN last_failed_login_attempt IS NULL OR last_failed_login_attempt < $3 THEN 1
				ELSE failed_login_attempts + 1
			END,
			last_failed_login_attempt = $2, updated_at = $2
		WHERE id = $1
		RETURNING failed_login_attempts`

	if _, err := uuid.Parse(id); err != nil {
		return 0, models.ErrNotFound
	}
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id, at, windowStart).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, hash, at)
}

func (r *UserRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *UserRepository) UpdateAccount(ctx context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `
		UPDATE users
		SET role = COALESCE($2, role), status = COALESCE($3, status),
			is_blocked = COALESCE($4, is_blocked), updated_at = $5
		WHERE id = $1
		RETURNING ` + userColumns

	role, status := accountUpdateStrings(update)
	return scanUserRow(r.pool.QueryRow(ctx, query, id, role, status, update.IsBlocked, at))
}

func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	filter = filter.Normalize()
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE ($1::text[] IS NULL OR role = ANY($1::text[]))
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	roles, statuses := filterStrings(filter)
	rows, err := r.pool.Query(ctx, query, pq.Array(roles), pq.Array(statuses), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	return scanUserRows(rows)
}

func (r *UserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	stats := newUserStats()

	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_blocked),
			COUNT(*) FILTER (WHERE is_verified)
		FROM users`).Scan(&stats.Total, &stats.Blocked, &stats.Verified)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	if err := r.groupCount(ctx, "role", func(key string, n int64) { stats.ByRole[models.Role(key)] = n }); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, "status", func(key string, n int64) { stats.ByStatus[models.UserStatus(key)] = n }); err != nil {
		return nil, err
	}
	return stats, nil
}

// groupCount runs a GROUP BY over a fixed column name
func (r *UserRepository) groupCount(ctx context.Context, column string, add func(string, int64)) error {
	rows, err := r.pool.Query(ctx, `SELECT `+column+`, COUNT(*) FROM users GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to count users by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		add(key, n)
	}
	return rows.Err()
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// execOne runs an update keyed by id ($1) and reports ErrNotFound when no row matched
func (r *UserRepository) execOne(ctx context.Context, query, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
