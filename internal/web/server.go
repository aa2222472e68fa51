// Package web provides the HTTP server and routing
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"romm-downloader/internal/config"
	"romm-downloader/internal/database"
	"romm-downloader/internal/downloader"
	"romm-downloader/internal/romm"
	"romm-downloader/internal/web/handlers"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	handlers *handlers.Handlers
	logger   *slog.Logger
}

// NewServer creates the HTTP server and wires the API routes
func NewServer(db *database.DB, client romm.RommClient, cfg *config.Config, engine *downloader.Engine) *Server {
	handlers := handlers.NewHandlers(db, client, engine, cfg.BrowseRootPath)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", handlers.Status)

	// Catalog endpoints
	mux.HandleFunc("GET /api/platforms", handlers.ListPlatforms)
	mux.HandleFunc("GET /api/platforms/{id}/roms", handlers.ListPlatformRoms)
	mux.HandleFunc("GET /api/platforms/{id}/config", handlers.GetPlatformConfig)
	mux.HandleFunc("PUT /api/platforms/{id}/config", handlers.UpdatePlatformConfig)
	mux.HandleFunc("POST /api/platforms/{id}/sync", handlers.SyncPlatform)
	mux.HandleFunc("GET /api/roms/{id}", handlers.GetRom)

	// Transfer endpoints
	mux.HandleFunc("POST /api/roms/{id}/download", handlers.StartDownload)
	mux.HandleFunc("POST /api/roms/{id}/cancel", handlers.CancelDownload)
	mux.HandleFunc("GET /api/roms/{id}/progress", handlers.StreamProgress)

	// Library endpoints
	mux.HandleFunc("GET /api/downloads", handlers.ListDownloads)
	mux.HandleFunc("GET /api/downloads/ids", handlers.DownloadedRomIDs)
	mux.HandleFunc("GET /api/downloads/{id}", handlers.GetDownload)
	mux.HandleFunc("DELETE /api/downloads/{id}", handlers.DeleteDownload)

	// Folder browsing endpoints
	mux.HandleFunc("GET /api/folders", handlers.BrowseFolders)
	mux.HandleFunc("POST /api/folders", handlers.CreateFolder)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// progress streams stay open for the life of a transfer, so the
		// server sets no write timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server:   server,
		handlers: handlers,
		logger:   slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	localIP := getLocalIP()
	port := strings.TrimPrefix(s.server.Addr, ":")

	s.logger.Info("Starting HTTP server",
		"addr", s.server.Addr,
		"local_ip", localIP,
		"port", port,
		"url", fmt.Sprintf("http://%s:%s", localIP, port))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// getLocalIP returns a private LAN address for the startup log
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip := ipNet.IP.To4(); ip != nil && ip.IsPrivate() {
			return ip.String()
		}
	}

	return "localhost"
}
