package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"romm-downloader/internal/cleanup"
	"romm-downloader/internal/config"
	"romm-downloader/internal/database"
	"romm-downloader/internal/downloader"
	"romm-downloader/internal/extractor"
	"romm-downloader/internal/romm"
	"romm-downloader/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting RomM Downloader", "version", "1.0.0")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	// Persist environment-provided connection settings
	if err := seedSettings(db, cfg); err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	// Initialize catalog client from the stored settings
	client, err := newCatalogClient(db, cfg)
	if err != nil {
		return fmt.Errorf("failed to build catalog client: %w", err)
	}

	// Check catalog connectivity (warn but don't exit; the catalog may come up later)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Heartbeat(ctx); err != nil {
		slog.Warn("Catalog server unreachable - continuing anyway", "error", err)
	} else {
		slog.Info("Catalog server reachable")
	}
	cancel()

	// Initialize the transfer engine and the staging sweeper
	engine := downloader.NewEngine(db, client, extractor.NewService(), downloader.NewRegistry())
	sweeper := cleanup.NewService(db)

	// Initialize web server with the transfer engine
	server := web.NewServer(db, client, cfg, engine)

	return runServer(server, engine, sweeper)
}

func runServer(server *web.Server, engine *downloader.Engine, sweeper *cleanup.Service) error {
	// Create main context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start staging sweeper in goroutine
	go sweeper.Run(ctx)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	// Cancel context to stop the sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	// Cancel in-flight transfers and wait for their goroutines to finish
	engine.Shutdown()

	slog.Info("Server shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// seedSettings writes environment-provided connection settings into the
// settings table, so a deployment configured entirely from the environment
// keeps working on later runs without the variables set
func seedSettings(db *database.DB, cfg *config.Config) error {
	seeds := map[string]string{
		database.SettingRommBaseURL:  strings.TrimRight(cfg.RommBaseURL, "/"),
		database.SettingRommUsername: cfg.RommUsername,
		database.SettingRommPassword: cfg.RommPassword,
		database.SettingStagingPath:  cfg.StagingPath,
	}

	for key, value := range seeds {
		if value == "" {
			continue
		}
		if err := db.SetSetting(key, value); err != nil {
			return fmt.Errorf("failed to store setting %s: %w", key, err)
		}
	}

	return nil
}

// newCatalogClient builds the RomM client from the stored connection settings
func newCatalogClient(db *database.DB, cfg *config.Config) (*romm.Client, error) {
	baseURL, err := db.GetSetting(database.SettingRommBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog settings: %w", err)
	}

	username, err := db.GetSetting(database.SettingRommUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog settings: %w", err)
	}

	password, err := db.GetSetting(database.SettingRommPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog settings: %w", err)
	}

	if baseURL == "" {
		slog.Warn("No catalog server configured, set ROMM_BASE_URL to enable browsing and downloads")
	}

	return romm.New(baseURL, username, password, cfg.DownloadRateLimit), nil
}
