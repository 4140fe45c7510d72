package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/deepshield/internal/config"
	"github.com/BradenHooton/deepshield/internal/observability"
	"github.com/BradenHooton/deepshield/internal/server"
	pkghttp "github.com/BradenHooton/deepshield/pkg/http"
	pkglogger "github.com/BradenHooton/deepshield/pkg/logger"
)

func main() {
	logger := pkglogger.New(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Internal error detail is only ever sent to clients in development
	pkghttp.SetDebug(!cfg.Server.IsProduction())

	if err := observability.InitSentry(cfg.Server.SentryDSN, cfg.Server.Env); err != nil {
		logger.Error("failed to initialize sentry", slog.Any("error", err))
	}
	defer observability.FlushSentry()

	// Open the store, run migrations and wire the services
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize server", slog.Any("error", err))
		observability.FlushSentry()
		os.Exit(1)
	}
	defer app.Store.Close()

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", srv.Addr),
			slog.String("store", app.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}
