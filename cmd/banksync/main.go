package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"banksync/internal/config"
	"banksync/internal/crypto"
	"banksync/internal/database"
	"banksync/internal/imapclient"
	"banksync/internal/parser"
	"banksync/internal/processor"
	"banksync/internal/queue"
	"banksync/internal/syncer"
	"banksync/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting bank alert sync service")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Credential cipher
	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize cipher", "error", err)
		os.Exit(1)
	}

	// Create components
	registry := parser.DefaultRegistry()
	jobQueue := queue.New(db, logger, cfg.MaxAttempts, cfg.RetryBackoff)
	proc := processor.New(db, registry, logger)
	consumer := queue.NewConsumer(jobQueue, proc, logger, cfg.WorkerConcurrency, cfg.RateLimitPerMinute)

	clientFactory := func(src *models.SyncSource, password string) syncer.MailFetcher {
		host, port := src.IMAPHost, src.IMAPPort
		if host == "" {
			// Source registered without an explicit server; autodiscover it
			resolved, resolvedPort, err := imapclient.ResolveServer(src.EmailAddress)
			if err != nil {
				logger.Warn("failed to resolve IMAP server", "email", src.EmailAddress, "error", err)
			} else {
				host, port = resolved, resolvedPort
			}
		}
		return imapclient.New(imapclient.Config{
			Host:        host,
			Port:        port,
			Email:       src.EmailAddress,
			Password:    password,
			DialTimeout: cfg.IMAPDialTimeout,
			InsecureTLS: src.InsecureTLS,
		}, logger)
	}
	orch := syncer.NewOrchestrator(db, jobQueue, cipher, clientFactory, cfg.FetchLimit, logger)
	scheduler := syncer.NewScheduler(db, orch, cfg.SyncInterval, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	if cfg.SyncEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	} else {
		logger.Warn("sync scheduler disabled, only processing already-queued jobs")
	}

	// Consumer blocks until shutdown
	logger.Info("service is running, press Ctrl+C to stop")
	if err := consumer.Run(ctx); err != nil {
		logger.Error("consumer stopped with error", "error", err)
	}

	wg.Wait()
	logger.Info("service stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
