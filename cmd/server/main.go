package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvwdc/internal/cache"
	"github.com/JonMunkholm/csvwdc/internal/config"
	"github.com/JonMunkholm/csvwdc/internal/core"
	"github.com/JonMunkholm/csvwdc/internal/export"
	"github.com/JonMunkholm/csvwdc/internal/fetch"
	"github.com/JonMunkholm/csvwdc/internal/logging"
	"github.com/JonMunkholm/csvwdc/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"load_max_concurrent", cfg.Load.MaxConcurrent,
		"export_enabled", cfg.Database.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	results, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer results.Close()

	limiter := core.NewLoadLimiter(cfg.Load.MaxConcurrent, cfg.Load.MaxWaitTime)
	opts := []core.Option{
		core.WithLimiter(limiter),
		core.WithBatchSize(cfg.Load.RowBatchSize),
		core.WithTablePrefix(cfg.Export.TablePrefix),
		core.WithExportTimeout(cfg.Export.Timeout),
	}

	// Export is optional; without a database the service only infers.
	if cfg.Database.Enabled() {
		pool, err := export.Connect(context.Background(), cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		slog.Info("connected to database", "name", export.DatabaseName(cfg.Database.URL))
		opts = append(opts, core.WithSink(export.NewWriter(pool, cfg.Export)))
	}

	fetcher := fetch.NewClient(cfg.Fetch, slog.Default())
	service := core.NewService(fetcher, results, opts...)
	server := web.NewServer(service, fetcher, cfg)

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active loads to complete (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for loads to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("loads did not complete in time", "error", err)
			} else {
				slog.Info("all loads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-idle
	return nil
}
