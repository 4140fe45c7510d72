package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/deepshield/internal/database"
	"github.com/BradenHooton/deepshield/internal/models"
)

// SQLiteUserRepository stores users in a SQLite database
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}
	return user, nil
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	prepareNewUser(user, time.Now().UTC())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, avatar, role, status, auth_provider,
			is_verified, is_blocked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, user.Avatar,
		string(user.Role), string(user.Status), string(user.AuthProvider),
		user.IsVerified, user.IsBlocked, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapSQLiteError(err)
	}

	return r.GetByID(ctx, user.ID)
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail relies on the NOCASE collation of the email column
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email))
}

func (r *SQLiteUserRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `
		UPDATE users
		SET login_count = login_count + 1, last_login = ?,
			failed_login_attempts = 0, last_failed_login_attempt = NULL, updated_at = ?
		WHERE id = ?`, at, at, id)
}

func (r *SQLiteUserRepository) RecordFailedLogin(ctx context.Context, id string, at, windowStart time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var attempts int
	var last sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT failed_login_attempts, last_failed_login_attempt FROM users WHERE id = ?`, id,
	).Scan(&attempts, &last)
	if err != nil {
		return 0, database.MapSQLiteError(err)
	}

	if !last.Valid || last.Time.Before(windowStart) {
		attempts = 0
	}
	attempts++

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = ?, last_failed_login_attempt = ?, updated_at = ? WHERE id = ?`,
		attempts, at, at, id,
	); err != nil {
		return 0, database.MapSQLiteError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return attempts, nil
}

func (r *SQLiteUserRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, at, id)
}

func (r *SQLiteUserRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE users SET is_verified = 1, updated_at = ? WHERE id = ?`, at, id)
}

func (r *SQLiteUserRepository) UpdateAccount(ctx context.Context, id string, update models.AccountUpdate, at time.Time) (*models.User, error) {
	role, status := accountUpdateStrings(update)
	err := r.execOne(ctx, `
		UPDATE users
		SET role = COALESCE(?, role), status = COALESCE(?, status),
			is_blocked = COALESCE(?, is_blocked), updated_at = ?
		WHERE id = ?`, role, status, update.IsBlocked, at, id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteUserRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	filter = filter.Normalize()
	roles, statuses := filterStrings(filter)

	var where []string
	var args []any
	if len(roles) > 0 {
		where = append(where, "role IN ("+placeholders(len(roles))+")")
		for _, r := range roles {
			args = append(args, r)
		}
	}
	if len(statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(statuses))+")")
		for _, s := range statuses {
			args = append(args, s)
		}
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *SQLiteUserRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	stats := newUserStats()

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_blocked THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_verified THEN 1 ELSE 0 END), 0)
		FROM users`).Scan(&stats.Total, &stats.Blocked, &stats.Verified)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	for _, column := range []string{"role", "status"} {
		rows, err := r.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM users GROUP BY `+column)
		if err != nil {
			return nil, fmt.Errorf("count users by %s: %w", column, err)
		}
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s count: %w", column, err)
			}
			if column == "role" {
				stats.ByRole[models.Role(key)] = n
			} else {
				stats.ByStatus[models.UserStatus(key)] = n
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (r *SQLiteUserRepository) HealthCheck(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// execOne runs an update and reports ErrNotFound when no row matched
func (r *SQLiteUserRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return database.MapSQLiteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
