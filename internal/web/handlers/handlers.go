// Package handlers provides the JSON API handlers for catalog browsing,
// transfers and library management
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"romm-downloader/internal/database"
	"romm-downloader/internal/downloader"
	"romm-downloader/internal/folder"
	"romm-downloader/internal/library"
	"romm-downloader/internal/romm"
	"romm-downloader/pkg/fuzzy"
	"romm-downloader/pkg/models"
)

// progressPollInterval is the cadence of progress stream snapshots
const progressPollInterval = 300 * time.Millisecond

// heartbeatTimeout bounds the catalog check on the status endpoint
const heartbeatTimeout = 5 * time.Second

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	db      *database.DB
	client  romm.RommClient
	engine  *downloader.Engine
	library *library.Service
	folders *folder.Service
	matcher *fuzzy.Matcher
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance. browseRoot bounds every path
// accepted through the API.
func NewHandlers(db *database.DB, client romm.RommClient, engine *downloader.Engine, browseRoot string) *Handlers {
	return &Handlers{
		db:      db,
		client:  client,
		engine:  engine,
		library: library.NewService(db),
		folders: folder.NewService(browseRoot),
		matcher: fuzzy.NewMatcher(),
		logger:  slog.Default(),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// pathID parses the {id} path segment
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

type statusResponse struct {
	Connected       bool  `json:"connected"`
	ActiveTransfers int64 `json:"active_transfers"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
}

// Status reports catalog connectivity and the engine counters
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), heartbeatTimeout)
	defer cancel()

	connected := true
	if err := h.client.Heartbeat(ctx); err != nil {
		h.logger.Warn("Catalog heartbeat failed", "error", err)
		connected = false
	}

	active, bytes := h.engine.Stats()
	h.writeJSON(w, http.StatusOK, statusResponse{
		Connected:       connected,
		ActiveTransfers: active,
		BytesDownloaded: bytes,
	})
}

// platformResponse merges a catalog platform with its local configuration
type platformResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	FSSlug       string   `json:"fs_slug"`
	RomCount     int      `json:"rom_count"`
	FolderPath   string   `json:"folder_path"`
	AutoExtract  bool     `json:"auto_extract"`
	InstallPaths []string `json:"install_paths"`
}

// ListPlatforms refreshes the stored platform rows from the catalog and
// returns them merged with their local configuration
func (h *Handlers) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.client.ListPlatforms(r.Context())
	if err != nil {
		h.logger.Error("Failed to list platforms", "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unreachable")
		return
	}

	for i := range platforms {
		if err := h.db.UpsertPlatform(&platforms[i]); err != nil {
			h.logger.Error("Failed to store platform", "platform_id", platforms[i].ID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to store platforms")
			return
		}
	}

	configs, err := h.db.ListPlatformConfigs()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load platform configs")
		return
	}
	byID := make(map[int64]*models.PlatformConfig, len(configs))
	for _, config := range configs {
		byID[config.PlatformID] = config
	}

	response := make([]platformResponse, 0, len(platforms))
	for _, platform := range platforms {
		item := platformResponse{
			ID:           platform.ID,
			Name:         platform.Name,
			FSSlug:       platform.FSSlug,
			RomCount:     platform.RomCount,
			InstallPaths: []string{},
		}
		if config, ok := byID[platform.ID]; ok {
			item.FolderPath = config.FolderPath
			item.AutoExtract = config.AutoExtract
			if len(config.InstallPaths) > 0 {
				item.InstallPaths = config.InstallPaths
			}
		}
		response = append(response, item)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// ListPlatformRoms returns the catalog's roms for one platform, optionally
// filtered by a fuzzy search query
func (h *Handlers) ListPlatformRoms(w http.ResponseWriter, r *http.Request) {
	platformID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid platform id")
		return
	}

	roms, err := h.client.ListRoms(r.Context(), platformID)
	if err != nil {
		h.logger.Error("Failed to list roms", "platform_id", platformID, "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unreachable")
		return
	}

	if search := r.URL.Query().Get("search"); search != "" {
		roms = h.matcher.FilterRoms(roms, search)
	}
	if roms == nil {
		roms = []models.Rom{}
	}

	h.writeJSON(w, http.StatusOK, roms)
}

// GetRom returns one catalog rom's detail
func (h *Handlers) GetRom(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	rom, err := h.client.GetRom(r.Context(), romID)
	if errors.Is(err, romm.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "rom not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch rom", "rom_id", romID, "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unreachable")
		return
	}

	h.writeJSON(w, http.StatusOK, rom)
}

// GetPlatformConfig returns the stored configuration for one platform
func (h *Handlers) GetPlatformConfig(w http.ResponseWriter, r *http.Request) {
	platformID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid platform id")
		return
	}

	config, err := h.db.GetPlatformConfig(platformID)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "platform not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load platform config")
		return
	}

	h.writeJSON(w, http.StatusOK, config)
}

// UpdatePlatformConfig updates only the fields present in the request body.
// Submitted paths must resolve inside the browse root; empty install-path
// entries are dropped.
func (h *Handlers) UpdatePlatformConfig(w http.ResponseWriter, r *http.Request) {
	platformID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid platform id")
		return
	}

	var req struct {
		FolderPath   *string  `json:"folder_path"`
		AutoExtract  *bool    `json:"auto_extract"`
		InstallPaths []string `json:"install_paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FolderPath != nil && *req.FolderPath != "" {
		resolved, err := h.folders.Resolve(*req.FolderPath)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.FolderPath = &resolved
	}

	if req.InstallPaths != nil {
		resolved := make([]string, 0, len(req.InstallPaths))
		for _, path := range req.InstallPaths {
			if path == "" {
				continue
			}
			full, err := h.folders.Resolve(path)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			resolved = append(resolved, full)
		}
		req.InstallPaths = resolved
	}

	err = h.db.UpdatePlatformConfig(platformID, req.FolderPath, req.AutoExtract, req.InstallPaths)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "platform not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to update platform config", "platform_id", platformID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update platform config")
		return
	}

	config, err := h.db.GetPlatformConfig(platformID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load platform config")
		return
	}

	h.writeJSON(w, http.StatusOK, config)
}

type acceptedResponse struct {
	Status string `json:"status"`
	RomID  int64  `json:"rom_id"`
}

// StartDownload begins a transfer for one rom. The optional body selects one
// of the platform's install paths for extraction output.
func (h *Handlers) StartDownload(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	var req struct {
		InstallPath string `json:"install_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// best-effort de-duplication; the engine itself allows restarts
	if state, ok := h.engine.Progress(romID); ok && !state.Status.IsTerminal() {
		h.writeError(w, http.StatusConflict, "transfer already in progress")
		return
	}

	rom, err := h.client.GetRom(r.Context(), romID)
	if errors.Is(err, romm.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "rom not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch rom", "rom_id", romID, "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unreachable")
		return
	}

	config, err := h.db.GetPlatformConfig(rom.PlatformID)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("platform %d is not configured", rom.PlatformID))
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load platform config")
		return
	}

	if req.InstallPath != "" {
		resolved, err := h.folders.Resolve(req.InstallPath)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.InstallPath = resolved
	}

	if err := h.engine.Start(rom, config, req.InstallPath); err != nil {
		var configErr *downloader.ConfigurationError
		if errors.As(err, &configErr) {
			h.writeError(w, http.StatusBadRequest, configErr.Reason)
			return
		}
		h.logger.Error("Failed to start transfer", "rom_id", romID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to start transfer")
		return
	}

	h.writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted", RomID: romID})
}

// CancelDownload fires the cancel signal for an in-flight transfer
func (h *Handlers) CancelDownload(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	if !h.engine.Cancel(romID) {
		h.writeError(w, http.StatusNotFound, "no active transfer")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// StreamProgress streams transfer state snapshots for one rom as server-sent
// events. The stream ends after delivering one terminal state, which also
// clears the state entry.
func (h *Handlers) StreamProgress(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	state, ok := h.engine.Progress(romID)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no transfer state")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	for {
		payload, err := json.Marshal(state)
		if err != nil {
			h.logger.Error("Failed to marshal transfer state", "rom_id", romID, "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()

		if state.Status.IsTerminal() {
			h.engine.ClearFinished(romID)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		state, ok = h.engine.Progress(romID)
		if !ok {
			// cleared by a concurrent stream
			return
		}
	}
}

// ListDownloads returns download records, optionally filtered by platform
func (h *Handlers) ListDownloads(w http.ResponseWriter, r *http.Request) {
	var (
		downloads []*models.Download
		err       error
	)

	if raw := r.URL.Query().Get("platform_id"); raw != "" {
		platformID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid platform_id")
			return
		}
		downloads, err = h.db.ListDownloadsByPlatform(platformID)
	} else {
		downloads, err = h.db.ListDownloads()
	}
	if err != nil {
		h.logger.Error("Failed to list downloads", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}

	if downloads == nil {
		downloads = []*models.Download{}
	}
	h.writeJSON(w, http.StatusOK, downloads)
}

// DownloadedRomIDs returns the id of every downloaded rom, used to mark
// catalog listings
func (h *Handlers) DownloadedRomIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.db.DownloadedRomIDs()
	if err != nil {
		h.logger.Error("Failed to list downloaded ids", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list downloaded ids")
		return
	}

	if ids == nil {
		ids = []int64{}
	}
	h.writeJSON(w, http.StatusOK, ids)
}

// GetDownload returns the download record for one rom
func (h *Handlers) GetDownload(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	download, err := h.db.GetDownloadByRomID(romID)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not downloaded")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load download")
		return
	}

	h.writeJSON(w, http.StatusOK, download)
}

type deleteResponse struct {
	Success bool `json:"success"`
	*models.DeleteResult
}

// DeleteDownload removes a rom's files from disk and its record. Filesystem
// failures are reported in the response; the record is removed regardless.
func (h *Handlers) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	romID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rom id")
		return
	}

	result, err := h.engine.Delete(romID)
	if err != nil {
		var notFound *downloader.NotFoundError
		if errors.As(err, &notFound) {
			h.writeError(w, http.StatusNotFound, notFound.Error())
			return
		}
		h.logger.Error("Failed to delete download", "rom_id", romID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete download")
		return
	}

	h.writeJSON(w, http.StatusOK, deleteResponse{Success: true, DeleteResult: result})
}

// SyncPlatform reconciles the platform's download records against the
// catalog listing and the rom folder on disk
func (h *Handlers) SyncPlatform(w http.ResponseWriter, r *http.Request) {
	platformID, err := pathID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid platform id")
		return
	}

	config, err := h.db.GetPlatformConfig(platformID)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "platform not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load platform config")
		return
	}

	roms, err := h.client.ListRoms(r.Context(), platformID)
	if err != nil {
		h.logger.Error("Failed to list roms for sync", "platform_id", platformID, "error", err)
		h.writeError(w, http.StatusBadGateway, "catalog unreachable")
		return
	}

	result, err := h.library.Sync(config, roms)
	if err != nil {
		h.logger.Error("Library sync failed", "platform_id", platformID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// BrowseFolders lists the directories under the requested path
func (h *Handlers) BrowseFolders(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if _, err := h.folders.Resolve(path); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.folders.List(path)
	if err != nil {
		h.logger.Error("Failed to list folders", "path", path, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list folders")
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

type createdFolderResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// CreateFolder creates a directory inside the browse root
func (h *Handlers) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.folders.CreateDirectory(req.Path, req.Name)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, createdFolderResponse{Success: true, Path: created})
}
