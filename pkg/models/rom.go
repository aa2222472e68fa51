package models

// Platform is a remote catalog platform as reported by the server.
type Platform struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FSSlug   string `json:"fs_slug"`
	RomCount int    `json:"rom_count"`
}

// Rom is a single downloadable catalog item. Fetched on demand, never cached.
type Rom struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FSName      string `json:"fs_name"`
	FSSizeBytes int64  `json:"fs_size_bytes"`
	PlatformID  int64  `json:"platform_id"`
}

// PlatformConfig maps a remote platform onto local storage. Name and FSSlug
// mirror the catalog; FolderPath, AutoExtract and InstallPaths are local-only
// and survive catalog refreshes.
type PlatformConfig struct {
	PlatformID   int64    `json:"platform_id" db:"platform_id"`
	Name         string   `json:"name" db:"name"`
	FSSlug       string   `json:"fs_slug" db:"fs_slug"`
	FolderPath   string   `json:"folder_path" db:"folder_path"`
	AutoExtract  bool     `json:"auto_extract" db:"auto_extract"`
	InstallPaths []string `json:"install_paths" db:"install_paths"`
}
