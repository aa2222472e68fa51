package extractor

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	service := NewService()
	require.NotNil(t, service)
	require.NotNil(t, service.logger)
}

func TestService_IsArchive(t *testing.T) {
	service := NewService()

	tests := []struct {
		name     string
		filename string
		expected bool
	}{
		{
			name:     "zip file",
			filename: "game.zip",
			expected: true,
		},
		{
			name:     "uppercase zip",
			filename: "GAME.ZIP",
			expected: true,
		},
		{
			name:     "7z file",
			filename: "game.7z",
			expected: true,
		},
		{
			name:     "rar file",
			filename: "game.rar",
			expected: true,
		},
		{
			name:     "uppercase rar",
			filename: "GAME.RAR",
			expected: true,
		},
		{
			name:     "disc image",
			filename: "game.iso",
			expected: false,
		},
		{
			name:     "rom file",
			filename: "game.n64",
			expected: false,
		},
		{
			name:     "no extension",
			filename: "game",
			expected: false,
		},
		{
			name:     "empty filename",
			filename: "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.IsArchive(tt.filename)
			require.Equal(t, tt.expected, result)
		})
	}
}

func TestService_Extract_Zip(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	zipPath := filepath.Join(tempDir, "game.zip")
	err := createTestZip(zipPath, []zipEntry{
		{name: "Adventure Game/", content: ""},
		{name: "Adventure Game/game.bin", content: "binary data"},
		{name: "Adventure Game/docs/readme.txt", content: "read me"},
	})
	require.NoError(t, err)

	destDir := filepath.Join(tempDir, "installed")
	var calls [][2]int
	result, err := service.Extract(zipPath, destDir, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, filepath.Join(destDir, "Adventure Game"), result.Path)

	content, err := os.ReadFile(filepath.Join(destDir, "Adventure Game", "game.bin"))
	require.NoError(t, err)
	require.Equal(t, "binary data", string(content))
	require.FileExists(t, filepath.Join(destDir, "Adventure Game", "docs", "readme.txt"))

	// archive is gone, progress covered every entry
	require.NoFileExists(t, zipPath)
	require.Len(t, calls, 3)
	require.Equal(t, [2]int{3, 3}, calls[2])
}

func TestService_Extract_ZipInsideDestDir(t *testing.T) {
	service := NewService()
	destDir := t.TempDir()

	zipPath := filepath.Join(destDir, "game.zip")
	err := createTestZip(zipPath, []zipEntry{
		{name: "Adventure Game/", content: ""},
		{name: "Adventure Game/game.bin", content: "binary data"},
	})
	require.NoError(t, err)

	result, err := service.Extract(zipPath, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, filepath.Join(destDir, "Adventure Game"), result.Path)
	require.NoFileExists(t, zipPath)
}

func TestService_Extract_ZipLooseFiles(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	zipPath := filepath.Join(tempDir, "game.zip")
	err := createTestZip(zipPath, []zipEntry{
		{name: "b-side.bin", content: "b"},
		{name: "a-side.bin", content: "a"},
	})
	require.NoError(t, err)

	destDir := filepath.Join(tempDir, "installed")
	result, err := service.Extract(zipPath, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	// several new entries resolve to the first in sorted order
	require.Equal(t, filepath.Join(destDir, "a-side.bin"), result.Path)
	require.FileExists(t, filepath.Join(destDir, "b-side.bin"))
}

func TestService_Extract_ZipTraversalEntry(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	zipPath := filepath.Join(tempDir, "evil.zip")
	err := createTestZip(zipPath, []zipEntry{
		{name: "safe.txt", content: "safe"},
		{name: "../escaped.txt", content: "evil"},
	})
	require.NoError(t, err)

	destDir := filepath.Join(tempDir, "installed")
	result, err := service.Extract(zipPath, destDir, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Message, "escapes destination")

	// entries written before the bad one stay, nothing lands outside
	require.FileExists(t, filepath.Join(destDir, "safe.txt"))
	require.NoFileExists(t, filepath.Join(tempDir, "escaped.txt"))
	require.FileExists(t, zipPath)
}

func TestService_Extract_InvalidZip(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	zipPath := filepath.Join(tempDir, "broken.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip file"), 0o644))

	destDir := filepath.Join(tempDir, "installed")
	result, err := service.Extract(zipPath, destDir, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Message)
	require.FileExists(t, zipPath)
}

func TestService_Extract_InvalidSevenZip(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	archivePath := filepath.Join(tempDir, "broken.7z")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a 7z file"), 0o644))

	destDir := filepath.Join(tempDir, "installed")
	result, err := service.Extract(archivePath, destDir, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Message, "7z extraction failed")
}

func TestService_Extract_InvalidRar(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()

	archivePath := filepath.Join(tempDir, "broken.rar")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a rar file"), 0o644))

	destDir := filepath.Join(tempDir, "installed")
	result, err := service.Extract(archivePath, destDir, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Message)
}

func TestService_Extract_NonExistentArchive(t *testing.T) {
	service := NewService()

	result, err := service.Extract(filepath.Join(t.TempDir(), "missing.zip"), t.TempDir(), nil)
	require.Error(t, err)
	require.Nil(t, result)
}

func TestService_Extract_UnrecognizedStaged(t *testing.T) {
	service := NewService()
	stagingDir := t.TempDir()
	destDir := t.TempDir()

	isoPath := filepath.Join(stagingDir, "game.iso")
	require.NoError(t, os.WriteFile(isoPath, []byte("disc image"), 0o644))

	result, err := service.Extract(isoPath, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, filepath.Join(destDir, "game.iso"), result.Path)

	// moved, not copied
	require.NoFileExists(t, isoPath)
	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	require.Equal(t, "disc image", string(content))
}

func TestService_Extract_UnrecognizedInPlace(t *testing.T) {
	service := NewService()
	destDir := t.TempDir()

	isoPath := filepath.Join(destDir, "game.iso")
	require.NoError(t, os.WriteFile(isoPath, []byte("disc image"), 0o644))

	result, err := service.Extract(isoPath, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, isoPath, result.Path)
	require.FileExists(t, isoPath)
}

func TestService_Extract_OverwriteOnlyArchive(t *testing.T) {
	service := NewService()
	tempDir := t.TempDir()
	destDir := filepath.Join(tempDir, "installed")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "save.dat"), []byte("old"), 0o644))

	zipPath := filepath.Join(tempDir, "patch.zip")
	err := createTestZip(zipPath, []zipEntry{
		{name: "save.dat", content: "new"},
	})
	require.NoError(t, err)

	// no new top-level entry appears, so the resolved path falls back to
	// the destination directory itself
	result, err := service.Extract(zipPath, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, destDir, result.Path)

	content, err := os.ReadFile(filepath.Join(destDir, "save.dat"))
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestNewTopLevelEntry(t *testing.T) {
	tests := []struct {
		name    string
		before  []string
		after   []string
		want    string
		wantDir bool
	}{
		{
			name:   "single new entry",
			before: []string{"old.txt"},
			after:  []string{"old.txt", "Game Dir"},
			want:   "Game Dir",
		},
		{
			name:   "several new entries pick first sorted",
			before: []string{},
			after:  []string{"zz.bin", "aa.bin"},
			want:   "aa.bin",
		},
		{
			name:    "no new entries",
			before:  []string{"old.txt"},
			after:   []string{"old.txt"},
			wantDir: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destDir := t.TempDir()

			before := make(map[string]struct{})
			for _, name := range tt.before {
				before[name] = struct{}{}
			}
			for _, name := range tt.after {
				require.NoError(t, os.WriteFile(filepath.Join(destDir, name), []byte("x"), 0o644))
			}

			got, err := newTopLevelEntry(destDir, before)
			require.NoError(t, err)

			if tt.wantDir {
				require.Equal(t, destDir, got)
			} else {
				require.Equal(t, filepath.Join(destDir, tt.want), got)
			}
		})
	}
}

func TestSecurePath(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{
			name:  "plain file",
			entry: "game.bin",
		},
		{
			name:  "nested file",
			entry: "dir/sub/game.bin",
		},
		{
			name:    "parent traversal",
			entry:   "../escaped.txt",
			wantErr: true,
		},
		{
			name:    "nested traversal",
			entry:   "dir/../../escaped.txt",
			wantErr: true,
		},
		{
			name:    "absolute path",
			entry:   "/etc/passwd",
			wantErr: false,
		},
	}

	destDir := filepath.Join(t.TempDir(), "dest")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := securePath(destDir, tt.entry)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(got, destDir+string(os.PathSeparator)))
		})
	}
}

// zipEntry describes one archive member for createTestZip. A name ending in
// a slash creates a directory entry.
type zipEntry struct {
	name    string
	content string
}

func createTestZip(zipPath string, entries []zipEntry) error {
	zipFile, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, entry := range entries {
		writer, err := zipWriter.Create(entry.name)
		if err != nil {
			return err
		}
		if entry.content != "" {
			if _, err := writer.Write([]byte(entry.content)); err != nil {
				return err
			}
		}
	}

	return nil
}
