// Package storage persists raw scrape artifacts (HTML and its markdown
// rendition) in object storage, keyed by the page URL path.
package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
)

// Object name prefixes inside the data bucket.
const (
	ScrapedDataPrefix = "scraped-data/"
	MarkdownPrefix    = "markdown/"
)

// StorageService abstracts the blob store so tests can run against an
// in-memory implementation.
type StorageService interface {
	Upload(ctx context.Context, bucket, objectName string, content []byte, contentType string) (string, error)
	StreamUpload(ctx context.Context, bucket, objectName string, reader io.Reader, contentType string) (string, error)
	Download(ctx context.Context, bucket, objectName string) ([]byte, error)
	Delete(ctx context.Context, bucket, objectName string) error
}

// ObjectNameForURL derives a flat, bucket-safe object name from a page URL.
// Returns "" for URLs with an empty path (nothing worth storing).
func ObjectNameForURL(prefix, rawURL, ext string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	trimmed := strings.Trim(parsed.Path, "/")
	if trimmed == "" {
		return ""
	}
	name := strings.ReplaceAll(trimmed, "/", "_") + ext
	return path.Join(prefix, name)
}
