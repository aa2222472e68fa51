package downloader

import (
	"romm-downloader/internal/extractor"
	"romm-downloader/pkg/models"
)

// DatabaseInterface defines the database operations used by the transfer engine
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type DatabaseInterface interface {
	// Settings
	GetSetting(key string) (string, error)

	// Download records
	RecordDownload(download *models.Download) error
	GetDownloadByRomID(romID int64) (*models.Download, error)
	DeleteDownloadByRomID(romID int64) error
}

// ExtractorInterface defines the archive extraction operations
type ExtractorInterface interface {
	Extract(archivePath, destDir string, progress extractor.ProgressFunc) (*extractor.Result, error)
	IsArchive(filename string) bool
}
