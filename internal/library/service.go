// Package library reconciles download records against the real filesystem
package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"romm-downloader/internal/database"
	"romm-downloader/pkg/models"
)

// Service compares a platform's download records with what is actually on
// disk and repairs drift in both directions.
type Service struct {
	db     *database.DB
	logger *slog.Logger
}

// NewService creates a new reconciliation service
func NewService(db *database.DB) *Service {
	return &Service{
		db:     db,
		logger: slog.Default(),
	}
}

// Sync reconciles one platform. Untracked rom-folder entries and untracked
// install-path directories that match a known rom gain records; records
// whose path no longer exists are removed. Passes are independent and
// non-transactional; running Sync again with no filesystem change reports
// zero work.
func (s *Service) Sync(config *models.PlatformConfig, roms []models.Rom) (*models.SyncResult, error) {
	tracked, err := s.db.ListDownloadsByPlatform(config.PlatformID)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}

	trackedByRomID := make(map[int64]struct{}, len(tracked))
	for _, download := range tracked {
		trackedByRomID[download.RomID] = struct{}{}
	}

	byFilename := make(map[string]*models.Rom)
	byName := make(map[string]*models.Rom)
	for i := range roms {
		rom := &roms[i]
		if rom.FSName != "" {
			base := strings.TrimSuffix(rom.FSName, filepath.Ext(rom.FSName))
			byFilename[rom.FSName] = rom
			byFilename[strings.ToLower(rom.FSName)] = rom
			byFilename[base] = rom
			byFilename[strings.ToLower(base)] = rom
			byName[sanitizeForMatch(base)] = rom
		}
		if rom.Name != "" {
			byName[sanitizeForMatch(rom.Name)] = rom
		}
	}

	result := &models.SyncResult{}

	// pass 1: untracked entries in the platform rom folder
	if config.FolderPath != "" {
		if entries, err := os.ReadDir(config.FolderPath); err == nil {
			for _, entry := range entries {
				rom := lookupFilename(byFilename, entry.Name())
				if rom == nil {
					continue
				}
				if _, ok := trackedByRomID[rom.ID]; ok {
					continue
				}

				var size int64
				if info, err := entry.Info(); err == nil && !entry.IsDir() {
					size = info.Size()
				}

				if s.recordExisting(rom, config.PlatformID, entry.Name(), filepath.Join(config.FolderPath, entry.Name()), size) {
					trackedByRomID[rom.ID] = struct{}{}
					result.Added++
				}
			}
		}
	}

	// pass 2: untracked extracted directories in the install paths
	for _, installPath := range config.InstallPaths {
		entries, err := os.ReadDir(installPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			rom, ok := byName[sanitizeForMatch(entry.Name())]
			if !ok {
				continue
			}
			if _, tracked := trackedByRomID[rom.ID]; tracked {
				continue
			}

			if s.recordExisting(rom, config.PlatformID, entry.Name(), filepath.Join(installPath, entry.Name()), 0) {
				trackedByRomID[rom.ID] = struct{}{}
				result.Added++
			}
		}
	}

	// pass 3: drop records whose recorded path is gone
	for _, download := range tracked {
		if download.FilePath == "" {
			continue
		}
		if _, err := os.Stat(download.FilePath); !os.IsNotExist(err) {
			continue
		}
		if err := s.db.DeleteDownloadByRomID(download.RomID); err != nil {
			s.logger.Warn("Failed to remove stale download record", "rom_id", download.RomID, "error", err)
			continue
		}
		result.Removed++
		s.logger.Info("Removed missing file from tracking", "path", download.FilePath)
	}

	return result, nil
}

// recordExisting writes a record for a file discovered on disk
func (s *Service) recordExisting(rom *models.Rom, platformID int64, name, path string, size int64) bool {
	romName := rom.Name
	if romName == "" {
		romName = name
	}

	err := s.db.RecordDownload(&models.Download{
		RomID:      rom.ID,
		RomName:    romName,
		Filename:   name,
		FilePath:   path,
		PlatformID: platformID,
		FileSize:   size,
	})
	if err != nil {
		s.logger.Warn("Failed to record existing file", "file", name, "error", err)
		return false
	}

	s.logger.Info("Added existing file to tracking", "file", name, "path", path)
	return true
}

// lookupFilename probes the filename index with progressively looser keys
func lookupFilename(index map[string]*models.Rom, name string) *models.Rom {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, key := range []string{name, base, strings.ToLower(name), strings.ToLower(base)} {
		if rom, ok := index[key]; ok {
			return rom
		}
	}
	return nil
}

// sanitizeForMatch normalizes a name for loose comparison: lowercased,
// alphanumerics and spaces only, trimmed
func sanitizeForMatch(name string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			builder.WriteRune(r)
		}
	}
	return strings.TrimSpace(builder.String())
}
