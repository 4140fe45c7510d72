package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations for the given dialect
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, logger *slog.Logger) error {
	dir, err := migrationsDir(dialect)
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("migration applied",
			slog.String("dialect", string(dialect)),
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}

	return nil
}

func migrationsDir(dialect goose.Dialect) (string, error) {
	switch dialect {
	case goose.DialectPostgres:
		return "migrations/postgres", nil
	case goose.DialectSQLite3:
		return "migrations/sqlite", nil
	default:
		return "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
