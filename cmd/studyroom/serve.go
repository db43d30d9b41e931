package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"studyroom/internal/config"
	"studyroom/internal/constants"
	"studyroom/internal/database"
	"studyroom/internal/hub"
	"studyroom/internal/metrics"
	"studyroom/internal/middleware"
	"studyroom/internal/models"
	"studyroom/internal/retry"
	"studyroom/internal/service"
	"studyroom/internal/tracing"
	"studyroom/internal/versioning"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room backend (rooms, message log, uploads, live streams)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(os.Stderr, true, cfg.LogLevel, opts.verbose)
			return runServe(service.WithVerbose(cmd.Context(), opts.verbose), cfg, opts.configPath, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, cfg *models.Config, configPath string, logger *logrus.Logger) error {
	if err := config.ValidateServer(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	info := versioning.CurrentBuildInfo()
	logger.WithFields(logrus.Fields{
		"version": info.Version,
		"api":     info.API,
		"commit":  info.Commit,
	}).Info("Starting studyroom server")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path,
			database.WithEncryptionSecret(os.Getenv(database.EncryptionSecretEnv)))
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()
	if !db.EncryptionEnabled() {
		logger.Warn("Message text is stored unencrypted; set " + database.EncryptionSecretEnv + " to enable encryption")
	}

	if err := os.MkdirAll(cfg.Media.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create media directory: %w", err)
	}

	registry := metrics.NewRegistry()
	roomHub := hub.New(logger)
	tokens := middleware.NewTokenSet(cfg.Server.Tokens)

	limiter := middleware.NewRateLimiter(cfg.Server.RatePerSecond, cfg.Server.RateBurst)
	go limiter.Run(ctx)

	sweeper, err := service.NewSweeper(db, cfg.Media, logger, service.WithSweeperMetrics(registry))
	if err != nil {
		return fmt.Errorf("failed to create upload sweeper: %w", err)
	}
	go sweeper.Start(ctx)

	if configPath != "" {
		watcher := config.NewConfigWatcher(configPath, constants.DefaultConfigPollInterval, logger)
		watcher.OnConfigChange(func(updated *models.Config) {
			if err := config.ValidateServer(updated); err != nil {
				logger.WithError(err).Warn("Ignoring reloaded configuration")
				return
			}
			tokens.Replace(updated.Server.Tokens)
			if !service.IsVerboseLogging(ctx) {
				applyLogLevel(logger, updated.LogLevel, false)
			}
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	server := NewServer(*cfg, db, roomHub, registry, tokens, limiter, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
