package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/deepshield/internal/config"
	"github.com/BradenHooton/deepshield/internal/database"
	"github.com/BradenHooton/deepshield/internal/repositories"
	"github.com/BradenHooton/deepshield/internal/services"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Store is the user store selected by DATABASE_URL
type Store struct {
	Users  services.UserRepository
	Driver string
	closer func()
}

// Close releases the store's connections
func (s *Store) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// OpenStore connects to the backend named by the URL scheme and, when
// enabled, applies migrations before returning.
func OpenStore(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	driver, err := cfg.Driver()
	if err != nil {
		return nil, err
	}

	switch driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	default:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		return &Store{
			Users:  repositories.NewMemoryUserRepository(),
			Driver: config.DriverMemory,
		}, nil
	}
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	db, err := database.NewConnection(cfg, logger)
	if err != nil {
		return nil, err
	}

	// goose needs database/sql; this handle borrows connections from the pgx pool
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	closer := func() {
		sqlDB.Close()
		db.Close()
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, sqlDB, goose.DialectPostgres, logger); err != nil {
			closer()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	return &Store{
		Users:  repositories.NewUserRepository(db),
		Driver: config.DriverPostgres,
		closer: closer,
	}, nil
}

func openSQLite(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	db, err := database.OpenSQLite(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, goose.DialectSQLite3, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	logger.Info("database connection established",
		slog.String("driver", config.DriverSQLite),
		slog.String("path", cfg.SQLitePath()),
	)

	return &Store{
		Users:  repositories.NewSQLiteUserRepository(db),
		Driver: config.DriverSQLite,
		closer: func() { closeQuietly(db, logger) },
	}, nil
}

func closeQuietly(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", slog.Any("error", err))
	}
}
