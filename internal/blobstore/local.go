package blobstore

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalStorageAdapter stores blobs under a root directory on the local
// filesystem. Uploads are written to a temp file in the same directory
// and renamed into place, so a reader never observes a partial write.
type LocalStorageAdapter struct {
	root string
}

// NewLocalStorageAdapter creates the root directory if needed and returns
// an adapter rooted there.
func NewLocalStorageAdapter(root string) (*LocalStorageAdapter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Key: root, Err: err}
	}
	return &LocalStorageAdapter{root: root}, nil
}

func (l *LocalStorageAdapter) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(CleanKey(key)))
}

func (l *LocalStorageAdapter) Upload(key string, source io.Reader) (string, error) {
	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", &StorageError{Op: "upload", Key: key, Err: err}
	}

	return dest, nil
}

func (l *LocalStorageAdapter) Download(key string, dest io.Writer) error {
	f, err := os.Open(l.path(key))
	if err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(dest, f); err != nil {
		return &StorageError{Op: "download", Key: key, Err: err}
	}
	return nil
}

func (l *LocalStorageAdapter) Exists(key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &StorageError{Op: "exists", Key: key, Err: err}
}

func (l *LocalStorageAdapter) List(prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.Walk(l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, CleanKey(prefix)) {
			out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "list", Key: prefix, Err: err}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (l *LocalStorageAdapter) Delete(key string) (bool, error) {
	err := os.Remove(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &StorageError{Op: "delete", Key: key, Err: err}
}

// PublicURL returns a file:// URL to the blob's absolute path; local
// blobs never expire so ttl is ignored.
func (l *LocalStorageAdapter) PublicURL(key string, _ time.Duration) (string, error) {
	abs, err := filepath.Abs(l.path(key))
	if err != nil {
		return "", &StorageError{Op: "public_url", Key: key, Err: err}
	}
	return "file://" + filepath.ToSlash(abs), nil
}
