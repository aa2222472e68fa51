// Package database provides SQLite database operations for the application
package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"romm-downloader/pkg/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Settings keys used by the core. Values are free-form strings; consumers
// parse them.
const (
	SettingRommBaseURL  = "romm_base_url"
	SettingRommUsername = "romm_username"
	SettingRommPassword = "romm_password"
	SettingStagingPath  = "download_staging_path"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	// Add connection parameters to help with concurrent access
	connString := dbPath
	if dbPath != ":memory:" {
		connString = dbPath + "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	conn, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	conn.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS platforms (
		platform_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		fs_slug TEXT NOT NULL DEFAULT '',
		folder_path TEXT NOT NULL DEFAULT '',
		auto_extract INTEGER NOT NULL DEFAULT 0,
		install_paths TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rom_id INTEGER NOT NULL UNIQUE,
		rom_name TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL DEFAULT '',
		file_path TEXT NOT NULL,
		platform_id INTEGER NOT NULL,
		file_size INTEGER DEFAULT 0,
		downloaded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_rom_id ON downloads(rom_id);
	CREATE INDEX IF NOT EXISTS idx_downloads_platform_id ON downloads(platform_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// GetSetting retrieves a settings value. A missing key returns an empty
// string, not an error, so optional settings read cleanly.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a settings value, replacing any existing one
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// UpsertPlatform refreshes a platform row from the catalog while preserving
// the locally configured fields (folder path, auto-extract, install paths)
func (db *DB) UpsertPlatform(platform *models.Platform) error {
	query := `
	INSERT OR REPLACE INTO platforms (platform_id, name, fs_slug, folder_path, auto_extract, install_paths)
	VALUES (?, ?, ?,
		COALESCE((SELECT folder_path FROM platforms WHERE platform_id = ?), ''),
		COALESCE((SELECT auto_extract FROM platforms WHERE platform_id = ?), 0),
		COALESCE((SELECT install_paths FROM platforms WHERE platform_id = ?), '[]'))
	`

	_, err := db.conn.Exec(query,
		platform.ID, platform.Name, platform.FSSlug,
		platform.ID, platform.ID, platform.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert platform %d: %w", platform.ID, err)
	}

	return nil
}

// GetPlatformConfig retrieves the local configuration for a platform
func (db *DB) GetPlatformConfig(platformID int64) (*models.PlatformConfig, error) {
	query := `
	SELECT platform_id, name, fs_slug, folder_path, auto_extract, install_paths
	FROM platforms WHERE platform_id = ?
	`

	var cfg models.PlatformConfig
	var installPaths string
	err := db.conn.QueryRow(query, platformID).Scan(
		&cfg.PlatformID, &cfg.Name, &cfg.FSSlug,
		&cfg.FolderPath, &cfg.AutoExtract, &installPaths,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("platform %d: %w", platformID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get platform config: %w", err)
	}

	if err := json.Unmarshal([]byte(installPaths), &cfg.InstallPaths); err != nil {
		return nil, fmt.Errorf("failed to decode install paths for platform %d: %w", platformID, err)
	}

	return &cfg, nil
}

// ListPlatformConfigs retrieves all platform rows ordered by name
func (db *DB) ListPlatformConfigs() ([]*models.PlatformConfig, error) {
	query := `
	SELECT platform_id, name, fs_slug, folder_path, auto_extract, install_paths
	FROM platforms ORDER BY name ASC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	defer rows.Close()

	var configs []*models.PlatformConfig
	for rows.Next() {
		var cfg models.PlatformConfig
		var installPaths string
		err := rows.Scan(
			&cfg.PlatformID, &cfg.Name, &cfg.FSSlug,
			&cfg.FolderPath, &cfg.AutoExtract, &installPaths,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		if err := json.Unmarshal([]byte(installPaths), &cfg.InstallPaths); err != nil {
			return nil, fmt.Errorf("failed to decode install paths for platform %d: %w", cfg.PlatformID, err)
		}
		configs = append(configs, &cfg)
	}

	return configs, nil
}

// UpdatePlatformConfig updates only the provided local fields. Nil pointers
// leave the stored value untouched.
func (db *DB) UpdatePlatformConfig(platformID int64, folderPath *string, autoExtract *bool, installPaths []string) error {
	var sets []string
	var args []interface{}

	if folderPath != nil {
		sets = append(sets, "folder_path = ?")
		args = append(args, *folderPath)
	}
	if autoExtract != nil {
		sets = append(sets, "auto_extract = ?")
		args = append(args, *autoExtract)
	}
	if installPaths != nil {
		encoded, err := json.Marshal(installPaths)
		if err != nil {
			return fmt.Errorf("failed to encode install paths: %w", err)
		}
		sets = append(sets, "install_paths = ?")
		args = append(args, string(encoded))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, platformID)
	query := "UPDATE platforms SET " + strings.Join(sets, ", ") + " WHERE platform_id = ?"

	result, err := db.conn.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update platform config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("platform %d: %w", platformID, ErrNotFound)
	}

	return nil
}

// RecordDownload creates or replaces the download record for a rom. A
// re-download always supersedes the previous record (last-write-wins).
func (db *DB) RecordDownload(download *models.Download) error {
	if download.DownloadedAt.IsZero() {
		download.DownloadedAt = time.Now()
	}

	query := `
	INSERT OR REPLACE INTO downloads (
		rom_id, rom_name, filename, file_path, platform_id, file_size, downloaded_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		download.RomID, download.RomName, download.Filename,
		download.FilePath, download.PlatformID, download.FileSize,
		download.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	download.ID = id
	return nil
}

// GetDownloadByRomID retrieves the download record for a rom
func (db *DB) GetDownloadByRomID(romID int64) (*models.Download, error) {
	query := `
	SELECT id, rom_id, rom_name, filename, file_path, platform_id, file_size, downloaded_at
	FROM downloads WHERE rom_id = ?
	`

	var download models.Download
	err := db.conn.QueryRow(query, romID).Scan(
		&download.ID, &download.RomID, &download.RomName,
		&download.Filename, &download.FilePath, &download.PlatformID,
		&download.FileSize, &download.DownloadedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("download for rom %d: %w", romID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get download: %w", err)
	}

	return &download, nil
}

// ListDownloads retrieves all download records, newest first
func (db *DB) ListDownloads() ([]*models.Download, error) {
	query := `
	SELECT id, rom_id, rom_name, filename, file_path, platform_id, file_size, downloaded_at
	FROM downloads
	ORDER BY downloaded_at DESC, id ASC
	`

	return db.queryDownloads(query)
}

// ListDownloadsByPlatform retrieves the download records for one platform
func (db *DB) ListDownloadsByPlatform(platformID int64) ([]*models.Download, error) {
	query := `
	SELECT id, rom_id, rom_name, filename, file_path, platform_id, file_size, downloaded_at
	FROM downloads
	WHERE platform_id = ?
	ORDER BY downloaded_at DESC, id ASC
	`

	return db.queryDownloads(query, platformID)
}

func (db *DB) queryDownloads(query string, args ...interface{}) ([]*models.Download, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*models.Download
	for rows.Next() {
		var download models.Download
		err := rows.Scan(
			&download.ID, &download.RomID, &download.RomName,
			&download.Filename, &download.FilePath, &download.PlatformID,
			&download.FileSize, &download.DownloadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		downloads = append(downloads, &download)
	}

	return downloads, nil
}

// DownloadedRomIDs retrieves the set of rom ids with a download record
func (db *DB) DownloadedRomIDs() ([]int64, error) {
	rows, err := db.conn.Query("SELECT rom_id FROM downloads ORDER BY rom_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get downloaded rom ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rom id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// DeleteDownloadByRomID removes the download record for a rom
func (db *DB) DeleteDownloadByRomID(romID int64) error {
	_, err := db.conn.Exec("DELETE FROM downloads WHERE rom_id = ?", romID)
	if err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}

	return nil
}
