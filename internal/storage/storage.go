// Package storage persists rendered preview documents and hands back the URL
// they can be fetched from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("preview not found")

// Store persists one document under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key string, content []byte) (string, error)
}

// UploadError is returned when a backend rejects a document. Code carries the
// backend's error code when it reported one.
type UploadError struct {
	Key  string
	Code string
	Err  error
}

func (e *UploadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upload %s failed (%s): %v", e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("upload %s failed: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

const (
	ContentType  = "text/html; charset=utf-8"
	CacheControl = "public, max-age=3600"
)

// PreviewKey is the storage key of one rendered variant.
func PreviewKey(previewID, variant string) string {
	return fmt.Sprintf("previews/%s/%s.html", previewID, variant)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
