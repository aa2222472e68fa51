// Package cleanup removes orphaned temp files left behind by interrupted
// downloads
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"romm-downloader/internal/database"
)

const (
	sweepInterval = time.Hour
	maxTempAge    = 24 * time.Hour
)

// Service sweeps the staging directory for stale *.tmp files. Completed
// downloads are renamed away from their temp name, so anything still
// carrying the suffix after the age cutoff was abandoned by a crash.
type Service struct {
	db     *database.DB
	logger *slog.Logger

	interval time.Duration
	maxAge   time.Duration
}

// NewService creates a new staging sweeper
func NewService(db *database.DB) *Service {
	return &Service{
		db:       db,
		logger:   slog.Default(),
		interval: sweepInterval,
		maxAge:   maxTempAge,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. The staging path
// is re-read from settings on every pass so changes take effect without a
// restart.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Staging sweeper shutting down")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	removed, err := s.SweepOnce()
	if err != nil {
		s.logger.Error("Staging sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Removed orphaned temp files", "count", removed)
	}
}

// SweepOnce removes *.tmp files older than the age cutoff from the staging
// directory and returns how many were deleted. A missing or unset staging
// directory is not an error.
func (s *Service) SweepOnce() (int, error) {
	stagingPath, err := s.db.GetSetting(database.SettingStagingPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging path: %w", err)
	}
	if stagingPath == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(stagingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tmp" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		// an active download keeps its temp file's mtime fresh, so age
		// alone distinguishes orphans from in-flight transfers
		if info.ModTime().After(cutoff) {
			continue
		}

		fullPath := filepath.Join(stagingPath, entry.Name())
		if err := os.Remove(fullPath); err != nil {
			s.logger.Warn("Failed to remove orphaned temp file", "file", fullPath, "error", err)
			continue
		}

		s.logger.Info("Removed orphaned temp file", "file", fullPath, "age", time.Since(info.ModTime()).Round(time.Minute))
		removed++
	}

	return removed, nil
}
