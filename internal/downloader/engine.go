// Package downloader implements the transfer engine that orchestrates
// concurrent rom downloads, optional extraction and bookkeeping
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"

	"romm-downloader/internal/database"
	"romm-downloader/internal/extractor"
	"romm-downloader/internal/romm"
	"romm-downloader/pkg/models"
)

// progressInterval throttles transfer state updates for smooth progress
// viewing without hammering the registry lock
const progressInterval = 500 * time.Millisecond

// Engine runs one goroutine per active transfer. Control operations return
// synchronously; transfer outcomes land in the state registry.
type Engine struct {
	db        DatabaseInterface
	client    romm.RommClient
	extractor ExtractorInterface
	registry  *Registry
	logger    *slog.Logger
	wg        sync.WaitGroup

	// counters for the status endpoint, updated from the progress path
	activeTransfers atomic.Int64
	bytesDownloaded atomic.Int64
}

// NewEngine creates a transfer engine with injected collaborators
func NewEngine(db DatabaseInterface, client romm.RommClient, extractorSvc ExtractorInterface, registry *Registry) *Engine {
	return &Engine{
		db:        db,
		client:    client,
		extractor: extractorSvc,
		registry:  registry,
		logger:    slog.Default(),
	}
}

// Start validates the transfer's preconditions, registers its state and
// cancel signal, and launches the transfer goroutine. Returns immediately;
// progress is observed through Progress. Starting a rom already in flight
// overwrites its state; callers de-duplicate.
func (e *Engine) Start(rom *models.Rom, config *models.PlatformConfig, installPath string) error {
	if config.AutoExtract {
		if len(config.InstallPaths) == 0 {
			return &ConfigurationError{Reason: "auto-extract requires at least one install path"}
		}
	} else {
		if config.FolderPath == "" {
			return &ConfigurationError{Reason: "platform has no rom folder configured"}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.registry.register(rom.ID, models.TransferState{
		Status:   models.StatusStarting,
		Filename: rom.FSName,
		RomName:  rom.Name,
		Total:    rom.FSSizeBytes,
	}, cancel)

	e.logger.Info("Starting transfer", "rom_id", rom.ID, "name", rom.Name, "auto_extract", config.AutoExtract)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer e.registry.releaseCancel(rom.ID)

		e.activeTransfers.Inc()
		defer e.activeTransfers.Dec()

		if config.AutoExtract {
			e.runStaged(ctx, rom, config, installPath)
		} else {
			e.runDirect(ctx, rom, config)
		}
	}()

	return nil
}

// Cancel fires the rom's cancel signal. False when no transfer is in flight.
func (e *Engine) Cancel(romID int64) bool {
	return e.registry.Cancel(romID)
}

// Progress returns a snapshot of the rom's transfer state
func (e *Engine) Progress(romID int64) (models.TransferState, bool) {
	return e.registry.State(romID)
}

// ClearFinished drops the rom's state entry once it is terminal. Called by
// the progress stream after delivering a terminal state.
func (e *Engine) ClearFinished(romID int64) {
	e.registry.ClearFinished(romID)
}

// Delete removes a download from disk and its record from the database.
// Per-path filesystem errors are collected into the result; the record is
// removed regardless.
func (e *Engine) Delete(romID int64) (*models.DeleteResult, error) {
	download, err := e.db.GetDownloadByRomID(romID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &NotFoundError{Resource: fmt.Sprintf("download record for rom %d", romID)}
		}
		return nil, fmt.Errorf("failed to look up download: %w", err)
	}

	result := &models.DeleteResult{RomID: romID}

	info, err := os.Stat(download.FilePath)
	switch {
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", download.FilePath, err))
	case info.IsDir():
		if err := os.RemoveAll(download.FilePath); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", download.FilePath, err))
		} else {
			result.DeletedPaths = append(result.DeletedPaths, download.FilePath)
		}
	default:
		if err := os.Remove(download.FilePath); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", download.FilePath, err))
		} else {
			result.DeletedPaths = append(result.DeletedPaths, download.FilePath)
		}
	}

	if err := e.db.DeleteDownloadByRomID(romID); err != nil {
		return nil, fmt.Errorf("failed to delete download record: %w", err)
	}

	e.logger.Info("Download deleted", "rom_id", romID, "deleted_paths", len(result.DeletedPaths), "errors", len(result.Errors))

	return result, nil
}

// Stats reports the engine counters for the status endpoint
func (e *Engine) Stats() (activeTransfers, bytesDownloaded int64) {
	return e.activeTransfers.Load(), e.bytesDownloaded.Load()
}

// Shutdown cancels every in-flight transfer and waits for their goroutines
// to finish
func (e *Engine) Shutdown() {
	e.registry.cancelAll()
	e.wg.Wait()
}

// Wait blocks until every launched transfer goroutine has finished
func (e *Engine) Wait() {
	e.wg.Wait()
}

// runDirect streams the rom into the platform's rom folder and records it
func (e *Engine) runDirect(ctx context.Context, rom *models.Rom, config *models.PlatformConfig) {
	path, skipped, err := e.client.DownloadRom(ctx, rom, config.FolderPath, e.downloadProgress(rom.ID))
	if err != nil {
		e.fail(rom.ID, &TransferError{Op: "download", Err: err})
		return
	}

	if err := e.record(rom, path); err != nil {
		e.fail(rom.ID, &TransferError{Op: "recording download", Err: err})
		return
	}

	message := fmt.Sprintf("Downloaded %s (%s)", filepath.Base(path), humanize.Bytes(uint64(rom.FSSizeBytes)))
	if skipped {
		message = fmt.Sprintf("Already downloaded: %s", filepath.Base(path))
	}

	e.finish(rom.ID, models.StatusComplete, path, message)
}

// runStaged streams the rom into the staging directory, extracts it into the
// chosen install path, and records the resolved output. Extraction failure
// degrades to a completed transfer with the archive kept.
func (e *Engine) runStaged(ctx context.Context, rom *models.Rom, config *models.PlatformConfig, installPath string) {
	if installPath == "" {
		installPath = config.InstallPaths[0]
	}

	stagingDir, err := e.db.GetSetting(database.SettingStagingPath)
	if err != nil {
		e.logger.Warn("Failed to read staging path, downloading into the install path", "rom_id", rom.ID, "error", err)
	}
	if stagingDir == "" {
		stagingDir = installPath
	}

	archivePath, _, err := e.client.DownloadRom(ctx, rom, stagingDir, e.downloadProgress(rom.ID))
	if err != nil {
		e.fail(rom.ID, &TransferError{Op: "download", Err: err})
		return
	}

	e.registry.update(rom.ID, func(state *models.TransferState) {
		state.Status = models.StatusExtracting
		state.Progress = 0
		state.Message = fmt.Sprintf("Extracting %s", filepath.Base(archivePath))
	})

	result, err := e.extractor.Extract(archivePath, installPath, e.extractionProgress(rom.ID))
	if err != nil {
		result = &extractor.Result{Success: false, Message: err.Error()}
	}

	if !result.Success {
		extractionErr := &ExtractionError{Reason: result.Message}
		e.logger.Warn("Extraction failed, keeping archive", "rom_id", rom.ID, "archive", archivePath, "error", extractionErr)

		if err := e.record(rom, archivePath); err != nil {
			e.fail(rom.ID, &TransferError{Op: "recording download", Err: err})
			return
		}

		e.finish(rom.ID, models.StatusComplete, archivePath, fmt.Sprintf("Saved without extraction: %s", result.Message))
		return
	}

	if err := e.record(rom, result.Path); err != nil {
		e.fail(rom.ID, &TransferError{Op: "recording download", Err: err})
		return
	}

	verb := "Extracted"
	if !e.extractor.IsArchive(filepath.Base(archivePath)) {
		verb = "Installed"
	}

	e.finish(rom.ID, models.StatusExtracted, result.Path, fmt.Sprintf("%s %s (%s)", verb, filepath.Base(archivePath), humanize.Bytes(uint64(rom.FSSizeBytes))))
}

// record writes the download record for a finished transfer. The stored size
// prefers the real on-disk size of files over the catalog's declared one.
func (e *Engine) record(rom *models.Rom, path string) error {
	size := rom.FSSizeBytes
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		size = info.Size()
	}

	return e.db.RecordDownload(&models.Download{
		RomID:      rom.ID,
		RomName:    rom.Name,
		Filename:   filepath.Base(path),
		FilePath:   path,
		PlatformID: rom.PlatformID,
		FileSize:   size,
	})
}

// finish writes a terminal success state
func (e *Engine) finish(romID int64, status models.TransferStatus, path, message string) {
	e.registry.update(romID, func(state *models.TransferState) {
		state.Status = status
		state.Progress = 100
		state.Path = path
		state.Message = message
	})
	e.logger.Info("Transfer finished", "rom_id", romID, "status", status, "path", path)
}

// fail writes a terminal cancelled or error state
func (e *Engine) fail(romID int64, err error) {
	if errors.Is(err, context.Canceled) {
		e.logger.Info("Transfer cancelled", "rom_id", romID)
		e.registry.update(romID, func(state *models.TransferState) {
			state.Status = models.StatusCancelled
			state.Message = "Cancelled"
		})
		return
	}

	e.logger.Error("Transfer failed", "rom_id", romID, "error", err)
	e.registry.update(romID, func(state *models.TransferState) {
		state.Status = models.StatusError
		state.Error = err.Error()
	})
}

// downloadProgress returns the byte-progress callback for one transfer. It
// throttles state updates and feeds the engine counters.
func (e *Engine) downloadProgress(romID int64) romm.ProgressFunc {
	var lastUpdate time.Time
	var lastBytes int64

	return func(downloaded, total int64) {
		e.bytesDownloaded.Add(downloaded - lastBytes)
		lastBytes = downloaded

		now := time.Now()
		if now.Sub(lastUpdate) < progressInterval && downloaded != total {
			return
		}
		lastUpdate = now

		e.registry.update(romID, func(state *models.TransferState) {
			state.Status = models.StatusDownloading
			state.Downloaded = downloaded
			state.Total = total
			if total > 0 {
				state.Progress = float64(downloaded) / float64(total) * 100
			}
		})
	}
}

// extractionProgress returns the entry-progress callback for one transfer.
// A zero entry total leaves the numeric progress alone.
func (e *Engine) extractionProgress(romID int64) extractor.ProgressFunc {
	return func(done, total int) {
		e.registry.update(romID, func(state *models.TransferState) {
			if total > 0 {
				state.Progress = float64(done) / float64(total) * 100
				state.Message = fmt.Sprintf("Extracting %d/%d entries", done, total)
			} else {
				state.Message = fmt.Sprintf("Extracting, %d entries so far", done)
			}
		})
	}
}
