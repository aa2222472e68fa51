package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"romm-downloader/internal/cleanup"
	"romm-downloader/internal/config"
	"romm-downloader/internal/database"
	"romm-downloader/internal/downloader"
	"romm-downloader/internal/extractor"
	"romm-downloader/internal/romm"
	"romm-downloader/internal/web"
)

func TestSetupLogging(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"debug level", "debug"},
		{"info level", "info"},
		{"warn level", "warn"},
		{"error level", "error"},
		{"invalid level defaults to info", "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotPanics(t, func() {
				setupLogging(tt.level)
			})
		})
	}
}

func TestRun_ConfigError(t *testing.T) {
	t.Setenv("LOG_LEVEL", "bogus")

	err := run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_DatabaseError(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/invalid/path/test.db")

	err := run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to initialize database")
}

func TestSeedSettings(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{
		RommBaseURL:  "http://romm.local:8008/",
		RommUsername: "admin",
		StagingPath:  "/tmp/staging",
	}
	require.NoError(t, seedSettings(db, cfg))

	baseURL, err := db.GetSetting(database.SettingRommBaseURL)
	require.NoError(t, err)
	// trailing slash is trimmed before storing
	require.Equal(t, "http://romm.local:8008", baseURL)

	username, err := db.GetSetting(database.SettingRommUsername)
	require.NoError(t, err)
	require.Equal(t, "admin", username)

	password, err := db.GetSetting(database.SettingRommPassword)
	require.NoError(t, err)
	require.Empty(t, password)

	staging, err := db.GetSetting(database.SettingStagingPath)
	require.NoError(t, err)
	require.Equal(t, "/tmp/staging", staging)
}

func TestSeedSettings_KeepsStoredValuesWhenUnset(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SetSetting(database.SettingRommBaseURL, "http://old.local"))

	require.NoError(t, seedSettings(db, &config.Config{}))

	baseURL, err := db.GetSetting(database.SettingRommBaseURL)
	require.NoError(t, err)
	require.Equal(t, "http://old.local", baseURL)
}

func TestNewCatalogClient(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SetSetting(database.SettingRommBaseURL, "http://romm.local:8008"))
	require.NoError(t, db.SetSetting(database.SettingRommUsername, "admin"))

	client, err := newCatalogClient(db, &config.Config{DownloadRateLimit: 1 << 20})
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestNewCatalogClient_DatabaseError(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	db.Close()

	_, err = newCatalogClient(db, &config.Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read catalog settings")
}

func TestRunServerStartError(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	client := romm.New("http://localhost:8008", "user", "secret", 0)
	engine := downloader.NewEngine(db, client, extractor.NewService(), downloader.NewRegistry())
	cfg := &config.Config{
		ServerPort:     "999999", // Invalid port
		LogLevel:       "info",
		BrowseRootPath: t.TempDir(),
	}

	server := web.NewServer(db, client, cfg, engine)

	err = runServer(server, engine, cleanup.NewService(db))
	require.Error(t, err)
	require.Contains(t, err.Error(), "server failed to start")
}
