// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration. The ROMM_* and
// DOWNLOAD_STAGING_PATH values are optional seeds: when set they are written
// into the settings table at startup, so deployments can be configured
// entirely from the environment.
type Config struct {
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	DatabasePath      string `env:"DATABASE_PATH" envDefault:"romm-downloader.db"`
	BrowseRootPath    string `env:"BROWSE_ROOT_PATH" envDefault:"/"`
	DownloadRateLimit int64  `env:"DOWNLOAD_RATE_LIMIT" envDefault:"0"`
	RommBaseURL       string `env:"ROMM_BASE_URL"`
	RommUsername      string `env:"ROMM_USERNAME"`
	RommPassword      string `env:"ROMM_PASSWORD"`
	StagingPath       string `env:"DOWNLOAD_STAGING_PATH"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty")
	}

	if c.DownloadRateLimit < 0 {
		return fmt.Errorf("DOWNLOAD_RATE_LIMIT cannot be negative, got: %d", c.DownloadRateLimit)
	}

	// Validate browse root path
	if c.BrowseRootPath == "" {
		return fmt.Errorf("BROWSE_ROOT_PATH cannot be empty")
	}

	cleanPath := filepath.Clean(c.BrowseRootPath)
	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("BROWSE_ROOT_PATH must be an absolute path, got: %s", c.BrowseRootPath)
	}

	// Check if path exists and is a directory (only if it exists)
	if info, err := os.Stat(cleanPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("BROWSE_ROOT_PATH must be a directory, got file: %s", cleanPath)
		}
	}

	c.BrowseRootPath = cleanPath

	if c.RommBaseURL != "" {
		u, err := url.Parse(c.RommBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ROMM_BASE_URL must be an http(s) URL, got: %s", c.RommBaseURL)
		}
	}

	return nil
}
