// Package extractor provides archive extraction for downloaded rom files
package extractor

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode"
)

// ProgressFunc receives entry-level extraction progress. total is 0 when the
// archive format does not report an entry count up front.
type ProgressFunc func(done, total int)

// Result describes the outcome of processing one downloaded file. Path is
// where the payload ended up: the extracted output for archives, the file
// itself otherwise.
type Result struct {
	Success bool
	Path    string
	Message string
}

// Extractor interface defines methods for extracting archive files
type Extractor interface {
	Extract(archivePath, destDir string, progress ProgressFunc) (*Result, error)
	IsArchive(filename string) bool
}

// sevenZipTools are the external extractors tried in order before falling
// back to in-process extraction
var sevenZipTools = []struct {
	name string
	args func(archivePath, destDir string) []string
}{
	{"7z", func(a, d string) []string { return []string{"x", a, "-o" + d, "-y"} }},
	{"7zz", func(a, d string) []string { return []string{"x", a, "-o" + d, "-y"} }},
	{"unar", func(a, d string) []string { return []string{"-o", d, "-f", a} }},
}

// Service provides archive extraction services
type Service struct {
	logger *slog.Logger
}

// NewService creates a new extractor service
func NewService() *Service {
	return &Service{
		logger: slog.Default(),
	}
}

// Extract processes a downloaded file. Recognized archives are expanded into
// destDir and deleted on success; the resolved output path is whatever new
// top-level entry the extraction produced. Unrecognized files are moved into
// destDir (or left alone when already there) and reported as the payload.
// The returned error covers faults that prevented any attempt; extraction
// failures come back as Success=false with a message.
func (s *Service) Extract(archivePath, destDir string, progress ProgressFunc) (*Result, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, fmt.Errorf("archive not accessible: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	filename := filepath.Base(archivePath)
	if !s.IsArchive(filename) {
		return s.placeUnrecognized(archivePath, destDir)
	}

	before, err := snapshotEntries(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination directory: %w", err)
	}

	s.logger.Info("Extracting archive", "archive", archivePath, "dest", destDir)

	var extractErr error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip":
		extractErr = s.extractZip(archivePath, destDir, progress)
	case ".7z":
		extractErr = s.extractSevenZip(archivePath, destDir, progress)
	case ".rar":
		extractErr = s.extractRar(archivePath, destDir, progress)
	}
	if extractErr != nil {
		s.logger.Warn("Extraction failed", "archive", archivePath, "error", extractErr)
		return &Result{Success: false, Message: extractErr.Error()}, nil
	}

	resolved, err := newTopLevelEntry(destDir, before)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve extracted path: %w", err)
	}

	if err := os.Remove(archivePath); err != nil {
		s.logger.Warn("Failed to remove archive after extraction", "archive", archivePath, "error", err)
	}

	s.logger.Info("Extraction completed", "archive", archivePath, "resolved", resolved)

	return &Result{Success: true, Path: resolved}, nil
}

// IsArchive checks if a filename has a recognized archive extension
func (s *Service) IsArchive(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip", ".7z", ".rar":
		return true
	}
	return false
}

// placeUnrecognized handles non-archive downloads: a file staged outside
// destDir is moved in, a file already there stays put
func (s *Service) placeUnrecognized(archivePath, destDir string) (*Result, error) {
	target := filepath.Join(destDir, filepath.Base(archivePath))
	if filepath.Clean(archivePath) == filepath.Clean(target) {
		return &Result{Success: true, Path: target}, nil
	}

	if err := moveFile(archivePath, target); err != nil {
		s.logger.Warn("Failed to move file into place", "file", archivePath, "error", err)
		return &Result{Success: false, Message: err.Error()}, nil
	}

	s.logger.Info("Moved non-archive download into place", "file", target)

	return &Result{Success: true, Path: target}, nil
}

// extractZip extracts a ZIP archive using Go's built-in archive/zip package
func (s *Service) extractZip(archivePath, destDir string, progress ProgressFunc) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer reader.Close()

	total := len(reader.File)
	for i, file := range reader.File {
		if err := s.extractZipEntry(file, destDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	return nil
}

// extractZipEntry extracts a single entry from a ZIP archive
func (s *Service) extractZipEntry(file *zip.File, destDir string) error {
	target, err := securePath(destDir, file.Name)
	if err != nil {
		return err
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry: %w", err)
	}
	defer reader.Close()

	return writeEntry(target, file.FileInfo().Mode(), reader)
}

// extractSevenZip tries the external 7z tools in order, then falls back to
// in-process extraction
func (s *Service) extractSevenZip(archivePath, destDir string, progress ProgressFunc) error {
	for _, tool := range sevenZipTools {
		binary, err := exec.LookPath(tool.name)
		if err != nil {
			continue
		}

		cmd := exec.Command(binary, tool.args(archivePath, destDir)...)
		if err := cmd.Run(); err != nil {
			s.logger.Warn("External extraction tool failed", "tool", tool.name, "archive", archivePath, "error", err)
			continue
		}

		s.logger.Info("Extracted with external tool", "tool", tool.name, "archive", archivePath)
		return nil
	}

	if err := s.extractSevenZipInProcess(archivePath, destDir, progress); err != nil {
		return fmt.Errorf("7z extraction failed, install 7z, 7zz or unar for broader format support: %w", err)
	}

	return nil
}

// extractSevenZipInProcess extracts a 7z archive using the sevenzip library
func (s *Service) extractSevenZipInProcess(archivePath, destDir string, progress ProgressFunc) error {
	reader, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer reader.Close()

	total := len(reader.File)
	for i, file := range reader.File {
		if err := s.extractSevenZipEntry(file, destDir); err != nil {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	return nil
}

// extractSevenZipEntry extracts a single entry from a 7z archive
func (s *Service) extractSevenZipEntry(file *sevenzip.File, destDir string) error {
	target, err := securePath(destDir, file.Name)
	if err != nil {
		return err
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry: %w", err)
	}
	defer reader.Close()

	return writeEntry(target, file.Mode(), reader)
}

// extractRar extracts a RAR archive using the rardecode library. The entry
// count is unknown up front, so progress reports a zero total.
func (s *Service) extractRar(archivePath, destDir string, progress ProgressFunc) error {
	reader, err := rardecode.OpenReader(archivePath, "")
	if err != nil {
		return fmt.Errorf("failed to open rar archive: %w", err)
	}
	defer reader.Close()

	done := 0
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rar header: %w", err)
		}

		target, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}

		if header.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := writeEntry(target, header.Mode(), reader); err != nil {
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}

		done++
		if progress != nil {
			progress(done, 0)
		}
	}
}

// securePath joins an archive entry name onto destDir, rejecting entries
// that would escape it
func securePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination directory", name)
	}
	return target, nil
}

// writeEntry writes one extracted file, creating parent directories as needed
func writeEntry(target string, mode os.FileMode, reader io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	writer, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer writer.Close()

	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("failed to copy contents: %w", err)
	}

	return nil
}

// moveFile renames src to dst, copying across filesystems when rename fails
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to close destination: %w", err)
	}

	return os.Remove(src)
}

// snapshotEntries records destDir's current top-level names
func snapshotEntries(destDir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		snapshot[entry.Name()] = struct{}{}
	}

	return snapshot, nil
}

// newTopLevelEntry resolves what an extraction produced: the first top-level
// name (in directory order, which ReadDir keeps sorted) not present in the
// before snapshot. An extraction that only overwrote existing entries
// resolves to destDir itself.
func newTopLevelEntry(destDir string, before map[string]struct{}) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		if _, ok := before[entry.Name()]; !ok {
			return filepath.Join(destDir, entry.Name()), nil
		}
	}

	return destDir, nil
}
