// Package models defines the data structures used throughout the application
package models

import (
	"time"
)

// TransferStatus represents the current status of an in-flight transfer
type TransferStatus string

const (
	StatusStarting    TransferStatus = "starting"
	StatusDownloading TransferStatus = "downloading"
	StatusExtracting  TransferStatus = "extracting"
	StatusExtracted   TransferStatus = "extracted"
	StatusComplete    TransferStatus = "complete"
	StatusError       TransferStatus = "error"
	StatusCancelled   TransferStatus = "cancelled"
)

// IsTerminal reports whether the status ends a transfer. Extracting is not
// terminal: a further extracted or complete state always follows it.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusExtracted || s == StatusComplete || s == StatusError || s == StatusCancelled
}

// Download represents a completed download record, one row per rom
type Download struct {
	ID           int64     `json:"id" db:"id"`
	RomID        int64     `json:"rom_id" db:"rom_id"`
	RomName      string    `json:"rom_name" db:"rom_name"`
	Filename     string    `json:"filename" db:"filename"`
	FilePath     string    `json:"file_path" db:"file_path"`
	PlatformID   int64     `json:"platform_id" db:"platform_id"`
	FileSize     int64     `json:"file_size" db:"file_size"`
	DownloadedAt time.Time `json:"downloaded_at" db:"downloaded_at"`
}

// TransferState is the in-memory progress snapshot for one rom transfer.
// Progress runs 0-100; Downloaded/Total are byte counts. Path is set once a
// final on-disk location is known.
type TransferState struct {
	Status     TransferStatus `json:"status"`
	Progress   float64        `json:"progress"`
	Downloaded int64          `json:"downloaded"`
	Total      int64          `json:"total"`
	Filename   string         `json:"filename"`
	RomName    string         `json:"rom_name"`
	Message    string         `json:"message,omitempty"`
	Path       string         `json:"path,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// DeleteResult reports the outcome of removing a download from disk. Errors
// collects per-path failures; the record itself is removed regardless.
type DeleteResult struct {
	RomID        int64    `json:"rom_id"`
	DeletedPaths []string `json:"deleted_paths"`
	Errors       []string `json:"errors"`
}

// SyncResult reports how many records a reconciliation pass added and removed.
type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}
