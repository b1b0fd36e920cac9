package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/api"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger, requestLogger, closeLogs, err := setupLogging(cfg)
	if err != nil {
		slog.Error("Failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closeLogs()
	slog.SetDefault(logger)

	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	router := api.NewRouter(svc, api.Config{
		APIKey:         cfg.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         requestLogger,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	if cfg.PurgeInterval > 0 {
		go purgeLoop(purgeCtx, svc, logger, cfg.PurgeInterval)
	}

	// Start server in a goroutine
	go func() {
		logger.Info("tikgrab server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"storage", cfg.StorageURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	stopPurge()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

// setupLogging builds the application logger and the HTTP request logger.
// When LOG_DIR is set, both tee to stdout and <dir>/server.log.
func setupLogging(cfg *config.Config) (*slog.Logger, *httplog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closeLogs := func() {}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, "server.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeLogs = func() { f.Close() }
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			// ANSI colors would end up in the log file otherwise.
			NoColor: cfg.LogDir != "",
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}

	requestLogger := httplog.NewLogger("tikgrab", httplog.Options{
		JSON:     !cfg.IsDevelopment(),
		LogLevel: slog.LevelInfo,
		Concise:  true,
		Writer:   w,
		Tags: map[string]string{
			"env": cfg.Environment,
		},
	})

	return slog.New(handler), requestLogger, closeLogs, nil
}

// purgeLoop deletes expired cached videos on a fixed interval until ctx is
// cancelled.
func purgeLoop(ctx context.Context, svc tikgrab.Service, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := svc.PurgeExpired(ctx, time.Now())
			if err != nil {
				logger.Error("Cache purge failed", "err", err)
				continue
			}
			if purged > 0 {
				logger.Info("Purged expired videos", "count", purged)
			}
		}
	}
}
