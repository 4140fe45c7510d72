package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/BradenHooton/deepshield/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MapPostgresError translates driver errors into model errors
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrDuplicateEmail
		case "23502", "23514": // not_null_violation, check_violation
			return errors.Join(models.ErrValidation, err)
		}
	}

	return err
}

// MapSQLiteError translates driver errors into model errors
func MapSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		// primary code is constraint; the extended code or message names which one
		switch {
		case sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed"):
			return models.ErrDuplicateEmail
		default:
			return errors.Join(models.ErrValidation, err)
		}
	}

	return err
}
