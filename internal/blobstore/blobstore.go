// Package blobstore implements the BlobStore component: a uniform
// upload/download/exists/list/delete surface over either a local
// filesystem directory or an S3-compatible bucket.
package blobstore

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// StorageError wraps a transport, not-found, or permission failure from
// the underlying backend.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("blobstore %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ObjectInfo describes one entry returned by List.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobStore is the contract shared by the local and S3-compatible
// adapters. Keys are POSIX-like forward-slash paths; a leading slash is
// stripped by every implementation.
type BlobStore interface {
	// Upload reads source fully and stores it under key, returning a
	// locator url/path for it.
	Upload(key string, source io.Reader) (string, error)
	// Download writes the blob at key to dest.
	Download(key string, dest io.Writer) error
	// Exists reports whether key is present.
	Exists(key string) (bool, error)
	// List returns every object whose key has the given prefix.
	List(prefix string) ([]ObjectInfo, error)
	// Delete removes key; returns false if it was not present.
	Delete(key string) (bool, error)
	// PublicURL returns a URL usable to fetch key directly, valid for ttl
	// where the backend supports expiry (local URLs never expire).
	PublicURL(key string, ttl time.Duration) (string, error)
}

// CleanKey strips a leading slash, matching LocalStorageAdapter's
// _get_file_path behavior in the original implementation.
func CleanKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// GenerateKey builds the canonical storage key for an uploaded file from
// its original basename, mirroring ObjectStorage.generate_key.
func GenerateKey(originalPath string) string {
	parts := strings.Split(strings.ReplaceAll(originalPath, "\\", "/"), "/")
	base := parts[len(parts)-1]
	return "podcasts/original/" + base
}
