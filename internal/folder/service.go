// Package folder provides directory browsing restricted to a configured root
package folder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Service resolves and lists directories inside a base root. Platform
// configs store absolute paths, so every path crossing the API is absolute
// and validated against the root.
type Service struct {
	Root string
}

// Entry is a single directory inside a listing
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is the contents of one directory. Parent is empty at the root.
type Listing struct {
	Path    string  `json:"path"`
	Parent  string  `json:"parent,omitempty"`
	Entries []Entry `json:"entries"`
}

// NewService creates a folder service rooted at root
func NewService(root string) *Service {
	return &Service{
		Root: filepath.Clean(root),
	}
}

// Resolve cleans path and ensures it stays inside the root. An empty path
// resolves to the root itself; relative paths are taken relative to it.
func (s *Service) Resolve(path string) (string, error) {
	if path == "" {
		return s.Root, nil
	}

	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(s.Root, cleaned)
	}

	if cleaned == s.Root {
		return cleaned, nil
	}

	prefix := s.Root + string(filepath.Separator)
	if s.Root == string(filepath.Separator) {
		prefix = s.Root
	}
	if !strings.HasPrefix(cleaned, prefix) {
		return "", fmt.Errorf("path outside of browse root: %s", path)
	}

	return cleaned, nil
}

// List returns the directories directly under path, sorted the way the
// filesystem reports them
func (s *Service) List(path string) (*Listing, error) {
	fullPath, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	listing := &Listing{
		Path:    fullPath,
		Entries: []Entry{},
	}
	if fullPath != s.Root {
		listing.Parent = filepath.Dir(fullPath)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		listing.Entries = append(listing.Entries, Entry{
			Name: entry.Name(),
			Path: filepath.Join(fullPath, entry.Name()),
		})
	}

	return listing, nil
}

// CreateDirectory creates name under parent and returns the new path.
// Parent must resolve inside the root and name must be a single path
// element.
func (s *Service) CreateDirectory(parent, name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid directory name: %q", name)
	}

	fullParent, err := s.Resolve(parent)
	if err != nil {
		return "", err
	}

	target := filepath.Join(fullParent, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("directory already exists: %s", target)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	return target, nil
}
