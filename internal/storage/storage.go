// Package storage abstracts durable artifact persistence so backends
// (local disk, S3-compatible object storage) are interchangeable.
// Storage is the single source of truth for artifact bytes; archiver
// output only becomes visible to clients once moved in here.
package storage

import (
	"context"
	"crypto/md5"  //nolint:gosec // legacy checksum support, not security-relevant
	"crypto/sha1" //nolint:gosec // Composer dist blocks require sha1
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"net/http"
)

// ErrNotFound is returned by Checksum and Send for files that do not
// exist in storage.
var ErrNotFound = errors.New("file not found in storage")

// Storage persists and serves release artifacts addressed by relative
// slash-separated paths such as "acme-widget/acme-widget-1.2.0.zip".
type Storage interface {
	// Checksum computes the content hash of a stored file. Supported
	// algorithm names are "sha1", "sha256" and "md5".
	Checksum(ctx context.Context, algorithm, file string) (string, error)
	// Exists reports whether a file is present.
	Exists(ctx context.Context, file string) bool
	// ListFiles returns the relative paths of all files under the given
	// prefix, recursively, in lexicographic order.
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	// Move relocates a local file (typically archiver scratch output)
	// into storage, creating parent structure as needed. The move is
	// atomic with respect to readers: they observe either the old state
	// or the complete new content, never a partial file.
	Move(ctx context.Context, sourceAbsPath, destRelPath string) bool
	// Delete removes a file.
	Delete(ctx context.Context, file string) bool
	// Send streams a file's bytes to the client as a zip download.
	Send(ctx context.Context, w http.ResponseWriter, file string) error
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha1":
		return sha1.New(), nil //nolint:gosec
	case "sha256":
		return sha256.New(), nil
	case "md5":
		return md5.New(), nil //nolint:gosec
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

func setDownloadHeaders(w http.ResponseWriter, fileName string, size int64) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	}
}
