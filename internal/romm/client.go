// Package romm provides client functionality for the RomM catalog API
package romm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"romm-downloader/pkg/models"

	"github.com/sonh/qs"
	"golang.org/x/time/rate"
)

const (
	// romsPageSize is the page size used when walking the paginated rom listing
	romsPageSize = 500

	// downloadChunkSize bounds how much is copied between cancellation checks
	downloadChunkSize = 1024 * 1024
)

// ErrNotFound is returned when the catalog has no such rom or platform.
var ErrNotFound = errors.New("not found in catalog")

// ProgressFunc receives byte-level download progress. total is 0 when the
// server did not declare a length.
type ProgressFunc func(downloaded, total int64)

// RommClient defines the interface for catalog operations
//
//go:generate mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks
type RommClient interface {
	Heartbeat(ctx context.Context) error
	ListPlatforms(ctx context.Context) ([]models.Platform, error)
	ListRoms(ctx context.Context, platformID int64) ([]models.Rom, error)
	GetRom(ctx context.Context, romID int64) (*models.Rom, error)
	DownloadRom(ctx context.Context, rom *models.Rom, destDir string, progress ProgressFunc) (path string, skipped bool, err error)
}

// Client represents a RomM API client using basic authentication
type Client struct {
	baseURL  string
	username string
	password string

	// apiClient serves the JSON endpoints; downloadClient streams content and
	// must not carry an overall timeout.
	apiClient      *http.Client
	downloadClient *http.Client

	// limiter caps download throughput across all transfers; nil is unlimited
	limiter *rate.Limiter
}

// New creates a new RomM client. rateLimit is bytes per second across all
// concurrent downloads; 0 disables limiting.
func New(baseURL, username, password string, rateLimit int64) *Client {
	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit))
	}

	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		apiClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		downloadClient: &http.Client{},
		limiter:        limiter,
	}
}

// romsQuery is the query string for the paginated rom listing. The server
// filters on platform_ids (plural), not platform_id.
type romsQuery struct {
	PlatformID int64  `qs:"platform_ids"`
	OrderBy    string `qs:"order_by"`
	OrderDir   string `qs:"order_dir"`
	Limit      int    `qs:"limit"`
	Offset     int    `qs:"offset"`
}

// romsEnvelope is the paginated listing response. Older servers return a bare
// array instead, handled in ListRoms.
type romsEnvelope struct {
	Items []models.Rom `json:"items"`
	Total int          `json:"total"`
}

func (c *Client) newRequest(ctx context.Context, path, rawQuery string) (*http.Request, error) {
	endpoint := c.baseURL + path
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path, rawQuery string, out any) error {
	req, err := c.newRequest(ctx, path, rawQuery)
	if err != nil {
		return err
	}

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Heartbeat checks that the server is reachable and the credentials work
func (c *Client) Heartbeat(ctx context.Context) error {
	req, err := c.newRequest(ctx, "/api/heartbeat", "")
	if err != nil {
		return err
	}

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat failed with status %d", resp.StatusCode)
	}

	return nil
}

// ListPlatforms retrieves all platforms from the catalog
func (c *Client) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	var platforms []models.Platform
	if err := c.getJSON(ctx, "/api/platforms", "", &platforms); err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}

	return platforms, nil
}

// ListRoms retrieves every rom for a platform, walking the paginated listing
// until the reported total is reached
func (c *Client) ListRoms(ctx context.Context, platformID int64) ([]models.Rom, error) {
	encoder := qs.NewEncoder()

	var all []models.Rom
	offset := 0
	for {
		query := romsQuery{
			PlatformID: platformID,
			OrderBy:    "name",
			OrderDir:   "asc",
			Limit:      romsPageSize,
			Offset:     offset,
		}
		values, err := encoder.Values(query)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rom query: %w", err)
		}

		var raw json.RawMessage
		if err := c.getJSON(ctx, "/api/roms", values.Encode(), &raw); err != nil {
			return nil, fmt.Errorf("failed to list roms: %w", err)
		}

		var envelope romsEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			// Older servers return a bare array without a total
			var items []models.Rom
			if arrErr := json.Unmarshal(raw, &items); arrErr != nil {
				return nil, fmt.Errorf("failed to parse rom listing: %w", err)
			}
			return append(all, items...), nil
		}

		all = append(all, envelope.Items...)
		offset += len(envelope.Items)
		if len(envelope.Items) == 0 || len(all) >= envelope.Total {
			return all, nil
		}
	}
}

// GetRom retrieves one rom's detail
func (c *Client) GetRom(ctx context.Context, romID int64) (*models.Rom, error) {
	var rom models.Rom
	if err := c.getJSON(ctx, fmt.Sprintf("/api/roms/%d", romID), "", &rom); err != nil {
		return nil, err
	}

	return &rom, nil
}

// DownloadRom streams a rom's content into destDir. The filename comes from
// the content-disposition header when present, else the catalog's declared
// fs_name. An already-present file is returned as-is with skipped=true.
// Bytes land in a temp file that is renamed on success and removed on error
// or cancellation.
func (c *Client) DownloadRom(ctx context.Context, rom *models.Rom, destDir string, progress ProgressFunc) (string, bool, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create destination directory: %w", err)
	}

	path := fmt.Sprintf("/api/roms/%d/content/%s", rom.ID, url.PathEscape(rom.FSName))
	req, err := c.newRequest(ctx, path, "")
	if err != nil {
		return "", false, err
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to start download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, fmt.Errorf("rom %d content: %w", rom.ID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = rom.FSName
	}

	finalPath := filepath.Join(destDir, filename)
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, true, nil
	}

	total := resp.ContentLength
	if total <= 0 {
		total = rom.FSSizeBytes
	}

	tmpPath := filepath.Join(destDir, fmt.Sprintf("%s.%d.tmp", filename, rom.ID))
	file, err := os.Create(tmpPath)
	if err != nil {
		return "", false, fmt.Errorf("failed to create temp file: %w", err)
	}

	var reader io.Reader = resp.Body
	if c.limiter != nil {
		reader = &rateLimitedReader{reader: resp.Body, limiter: c.limiter, ctx: ctx}
	}

	if err := c.copyWithProgress(ctx, file, reader, total, progress); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return "", false, err
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to move download into place: %w", err)
	}

	return finalPath, false, nil
}

// copyWithProgress copies in fixed-size chunks, checking for cancellation and
// reporting progress between chunks
func (c *Client) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) error {
	chunkSize := downloadChunkSize
	if c.limiter != nil && c.limiter.Burst() < chunkSize {
		chunkSize = c.limiter.Burst()
	}

	buffer := make([]byte, chunkSize)
	var downloaded int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("failed to write chunk: %w", writeErr)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// The limiter surfaces context cancellation from inside Read
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("failed to read response: %w", err)
		}
	}
}

// filenameFromDisposition pulls the filename parameter out of a
// content-disposition header, tolerating URL-escaped values
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}

	filename := params["filename"]
	if filename == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(filename); err == nil {
		filename = unescaped
	}

	// A path in the header must never escape the destination directory
	return filepath.Base(filename)
}

// rateLimitedReader throttles reads through a shared token bucket
type rateLimitedReader struct {
	reader  io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
