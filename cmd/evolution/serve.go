package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aicompanion/companion-hub/config"
	httpserver "github.com/aicompanion/companion-hub/internal/interface/http"
	"github.com/aicompanion/companion-hub/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Run the REST API over the evolution system.

Configuration is read from the environment (STORAGE_DRIVER, DATABASE_URL,
REDIS_URL, HTTP_ADDR, ...).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runServe(cmd.Context(), cfg)
	},
}

// newLogger создаёт логгер по конфигурации.
func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger(cfg).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", cfg.App.Environment),
	)
	log.Info("starting evolution service",
		logger.String("version", version),
		logger.String("storage", cfg.Storage.Driver),
		logger.Bool("redis", !cfg.Redis.Disabled),
	)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := httpserver.NewServer(httpserver.ConfigFrom(cfg.HTTP), a.httpDependencies())
	if err != nil {
		return err
	}
	errCh := srv.StartAsync()

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	log.Info("evolution service stopped")
	return nil
}
