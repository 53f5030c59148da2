// Package images persists post images to a local static-asset directory so
// the dashboard can serve them without hitting Reddit.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// placeholders are URL values Reddit uses instead of a real thumbnail.
var placeholders = map[string]bool{
	"self": true, "default": true, "nsfw": true, "spoiler": true,
}

// Downloader fetches post images into a directory, named by post id.
type Downloader struct {
	dir       string
	userAgent string
	client    *http.Client
}

// New creates a Downloader and ensures the target directory exists.
func New(dir, userAgent string) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir %s: %w", dir, err)
	}
	return &Downloader{
		dir:       dir,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Download fetches the image at rawURL and stores it as <postID>.<ext>.
// It returns a web-relative path ("images/<file>") for the post row, or an
// empty string when the URL is not an image. Only genuinely failed downloads
// return an error.
func (d *Downloader) Download(ctx context.Context, rawURL, postID string) (string, error) {
	if !looksLikeImage(rawURL) {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", rawURL, err)
	}

	ext := extFor(resp.Header.Get("Content-Type"), rawURL)
	filename := postID + ext
	if err := os.WriteFile(filepath.Join(d.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", filename, err)
	}

	return "images/" + filename, nil
}

func looksLikeImage(rawURL string) bool {
	if rawURL == "" || placeholders[rawURL] {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range imageExts {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return strings.Contains(lower, "i.redd.it") || strings.Contains(lower, "i.imgur")
}

func extFor(contentType, rawURL string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range imageExts {
		if strings.Contains(lower, ext) {
			if ext == ".jpeg" {
				return ".jpg"
			}
			return ext
		}
	}
	return ".jpg"
}
