package romm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"romm-downloader/pkg/models"
)

func TestNew(t *testing.T) {
	client := New("http://romm.local", "admin", "secret", 0)
	require.NotNil(t, client)
	require.Equal(t, "http://romm.local", client.baseURL)
	require.Equal(t, "admin", client.username)
	require.Equal(t, "secret", client.password)
	require.Nil(t, client.limiter)

	limited := New("http://romm.local", "admin", "secret", 1048576)
	require.NotNil(t, limited.limiter)
}

func TestClient_Heartbeat(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{
			name:       "server up",
			statusCode: 200,
			wantErr:    false,
		},
		{
			name:       "bad credentials",
			statusCode: 401,
			wantErr:    true,
		},
		{
			name:       "server error",
			statusCode: 500,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := New(server.URL, "admin", "secret", 0)

			ctx := context.Background()
			err := client.Heartbeat(ctx)

			wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
			require.Equal(t, wantAuth, gotAuth)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClient_ListPlatforms(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		statusCode     int
		wantErr        bool
		wantCount      int
	}{
		{
			name: "successful listing",
			serverResponse: `[
				{"id": 1, "name": "Nintendo 64", "fs_slug": "n64", "rom_count": 12},
				{"id": 2, "name": "PlayStation", "fs_slug": "psx", "rom_count": 40}
			]`,
			statusCode: 200,
			wantErr:    false,
			wantCount:  2,
		},
		{
			name:           "empty catalog",
			serverResponse: `[]`,
			statusCode:     200,
			wantErr:        false,
			wantCount:      0,
		},
		{
			name:           "HTTP error",
			serverResponse: "Internal Server Error",
			statusCode:     500,
			wantErr:        true,
		},
		{
			name:           "malformed JSON",
			serverResponse: `[{"id": 1,]`,
			statusCode:     200,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.serverResponse)); err != nil {
					t.Errorf("Failed to write test response: %v", err)
				}
			}))
			defer server.Close()

			client := New(server.URL, "admin", "secret", 0)

			ctx := context.Background()
			platforms, err := client.ListPlatforms(ctx)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, platforms, tt.wantCount)
			if tt.wantCount > 0 {
				require.Equal(t, "Nintendo 64", platforms[0].Name)
				require.Equal(t, "n64", platforms[0].FSSlug)
			}
		})
	}
}

func TestClient_ListRoms(t *testing.T) {
	t.Run("paginated envelope", func(t *testing.T) {
		pages := map[string]string{
			"0": `{"items": [
				{"id": 10, "name": "Game A", "fs_name": "game-a.zip", "fs_size_bytes": 100, "platform_id": 1},
				{"id": 11, "name": "Game B", "fs_name": "game-b.zip", "fs_size_bytes": 200, "platform_id": 1}
			], "total": 3}`,
			"2": `{"items": [
				{"id": 12, "name": "Game C", "fs_name": "game-c.zip", "fs_size_bytes": 300, "platform_id": 1}
			], "total": 3}`,
		}

		var queries []url.Values
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			queries = append(queries, query)

			page, ok := pages[query.Get("offset")]
			if !ok {
				t.Errorf("unexpected offset %q", query.Get("offset"))
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if _, err := w.Write([]byte(page)); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		client := New(server.URL, "admin", "secret", 0)

		roms, err := client.ListRoms(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, queries, 2)
		require.Equal(t, "1", queries[0].Get("platform_ids"))
		require.Empty(t, queries[0].Get("platform_id"))
		require.Equal(t, "name", queries[0].Get("order_by"))
		require.Equal(t, "asc", queries[0].Get("order_dir"))
		require.Equal(t, "500", queries[0].Get("limit"))
		require.Len(t, roms, 3)
		require.Equal(t, "game-a.zip", roms[0].FSName)
		require.Equal(t, int64(12), roms[2].ID)
	})

	t.Run("bare array fallback", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			response := `[{"id": 10, "name": "Game A", "fs_name": "game-a.zip", "fs_size_bytes": 100, "platform_id": 1}]`
			if _, err := w.Write([]byte(response)); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		client := New(server.URL, "admin", "secret", 0)

		roms, err := client.ListRoms(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, roms, 1)
		require.Equal(t, "Game A", roms[0].Name)
	})

	t.Run("empty page ends listing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(`{"items": [], "total": 100}`)); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		client := New(server.URL, "admin", "secret", 0)

		roms, err := client.ListRoms(context.Background(), 1)
		require.NoError(t, err)
		require.Empty(t, roms)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := New(server.URL, "admin", "secret", 0)

		_, err := client.ListRoms(context.Background(), 1)
		require.Error(t, err)
	})
}

func TestClient_GetRom(t *testing.T) {
	tests := []struct {
		name           string
		romID          int64
		serverResponse string
		statusCode     int
		wantErr        bool
		notFound       bool
	}{
		{
			name:           "successful fetch",
			romID:          42,
			serverResponse: `{"id": 42, "name": "Adventure Game", "fs_name": "game.zip", "fs_size_bytes": 2048, "platform_id": 7}`,
			statusCode:     200,
			wantErr:        false,
		},
		{
			name:           "rom not found",
			romID:          999,
			serverResponse: `{"detail": "Rom not found"}`,
			statusCode:     404,
			wantErr:        true,
			notFound:       true,
		},
		{
			name:           "server error",
			romID:          42,
			serverResponse: "Internal Server Error",
			statusCode:     500,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.serverResponse)); err != nil {
					t.Errorf("Failed to write test response: %v", err)
				}
			}))
			defer server.Close()

			client := New(server.URL, "admin", "secret", 0)

			ctx := context.Background()
			rom, err := client.GetRom(ctx, tt.romID)

			require.Equal(t, fmt.Sprintf("/api/roms/%d", tt.romID), gotPath)

			if tt.wantErr {
				require.Error(t, err)
				if tt.notFound {
					require.ErrorIs(t, err, ErrNotFound)
				}
				return
			}

			require.NoError(t, err)
			require.NotNil(t, rom)
			require.Equal(t, int64(42), rom.ID)
			require.Equal(t, "game.zip", rom.FSName)
			require.Equal(t, int64(2048), rom.FSSizeBytes)
		})
	}
}

func TestClient_DownloadRom(t *testing.T) {
	rom := &models.Rom{ID: 42, Name: "Adventure Game", FSName: "game.zip", FSSizeBytes: 11, PlatformID: 7}

	t.Run("successful download", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			if _, err := w.Write([]byte("file-bytes!")); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		destDir := t.TempDir()
		client := New(server.URL, "admin", "secret", 0)

		var lastDownloaded, lastTotal int64
		path, skipped, err := client.DownloadRom(context.Background(), rom, destDir, func(downloaded, total int64) {
			lastDownloaded = downloaded
			lastTotal = total
		})
		require.NoError(t, err)
		require.Equal(t, "/api/roms/42/content/game.zip", gotPath)
		require.False(t, skipped)
		require.Equal(t, filepath.Join(destDir, "game.zip"), path)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "file-bytes!", string(content))
		require.Equal(t, int64(11), lastDownloaded)
		require.Equal(t, int64(11), lastTotal)

		// the temp file must be gone after the rename
		entries, err := os.ReadDir(destDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("content disposition overrides fs_name", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", `attachment; filename="Adventure%20Game.zip"`)
			if _, err := w.Write([]byte("file-bytes!")); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		destDir := t.TempDir()
		client := New(server.URL, "admin", "secret", 0)

		path, skipped, err := client.DownloadRom(context.Background(), rom, destDir, nil)
		require.NoError(t, err)
		require.False(t, skipped)
		require.Equal(t, filepath.Join(destDir, "Adventure Game.zip"), path)
	})

	t.Run("existing file is skipped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte("new-bytes")); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		destDir := t.TempDir()
		existing := filepath.Join(destDir, "game.zip")
		require.NoError(t, os.WriteFile(existing, []byte("old-bytes"), 0644))

		client := New(server.URL, "admin", "secret", 0)

		path, skipped, err := client.DownloadRom(context.Background(), rom, destDir, nil)
		require.NoError(t, err)
		require.True(t, skipped)
		require.Equal(t, existing, path)

		content, err := os.ReadFile(existing)
		require.NoError(t, err)
		require.Equal(t, "old-bytes", string(content))
	})

	t.Run("content not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		destDir := t.TempDir()
		client := New(server.URL, "admin", "secret", 0)

		_, _, err := client.DownloadRom(context.Background(), rom, destDir, nil)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cancellation removes temp file", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte("partial-bytes")); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
			// hold the stream open so the client sees the cancellation
			<-r.Context().Done()
		}))
		defer server.Close()

		destDir := t.TempDir()
		client := New(server.URL, "admin", "secret", 0)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, _, err := client.DownloadRom(ctx, rom, destDir, func(downloaded, total int64) {
			cancel()
		})
		require.ErrorIs(t, err, context.Canceled)

		entries, err := os.ReadDir(destDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("rate limited download completes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte("file-bytes!")); err != nil {
				t.Errorf("Failed to write test response: %v", err)
			}
		}))
		defer server.Close()

		destDir := t.TempDir()
		client := New(server.URL, "admin", "secret", 10*1024*1024)

		path, skipped, err := client.DownloadRom(context.Background(), rom, destDir, nil)
		require.NoError(t, err)
		require.False(t, skipped)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "file-bytes!", string(content))
	})
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "plain attachment",
			header: `attachment; filename="game.zip"`,
			want:   "game.zip",
		},
		{
			name:   "URL escaped filename",
			header: `attachment; filename="Adventure%20Game.zip"`,
			want:   "Adventure Game.zip",
		},
		{
			name:   "path components stripped",
			header: `attachment; filename="../../etc/passwd"`,
			want:   "passwd",
		},
		{
			name:   "empty header",
			header: "",
			want:   "",
		},
		{
			name:   "no filename parameter",
			header: "attachment",
			want:   "",
		},
		{
			name:   "malformed header",
			header: `attachment; filename=`,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filenameFromDisposition(tt.header)
			require.Equal(t, tt.want, got)
		})
	}
}
