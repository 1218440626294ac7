package blobstore

import (
	"bytes"
	"testing"
)

func TestLocalStorageAdapterUploadDownloadRoundTrip(t *testing.T) {
	store, err := NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}

	if _, err := store.Upload("podcasts/ep1.mp3", bytes.NewReader([]byte("audio-bytes"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	var buf bytes.Buffer
	if err := store.Download("podcasts/ep1.mp3", &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if buf.String() != "audio-bytes" {
		t.Fatalf("downloaded content mismatch: got %q", buf.String())
	}
}

func TestLocalStorageAdapterExists(t *testing.T) {
	store, err := NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}

	exists, err := store.Exists("podcasts/missing.mp3")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatalf("expected missing key to not exist")
	}

	store.Upload("podcasts/present.mp3", bytes.NewReader([]byte("x")))
	exists, err = store.Exists("podcasts/present.mp3")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected uploaded key to exist")
	}
}

func TestLocalStorageAdapterDelete(t *testing.T) {
	store, err := NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	store.Upload("podcasts/ep1.mp3", bytes.NewReader([]byte("x")))

	deleted, err := store.Delete("podcasts/ep1.mp3")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}

	deleted, err = store.Delete("podcasts/ep1.mp3")
	if err != nil {
		t.Fatalf("Delete of an already-missing key should not error: %v", err)
	}
	if deleted {
		t.Fatalf("expected deleted=false for an already-missing key")
	}
}

func TestLocalStorageAdapterListFiltersByPrefix(t *testing.T) {
	store, err := NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	store.Upload("podcasts/a.mp3", bytes.NewReader([]byte("x")))
	store.Upload("podcasts/b.mp3", bytes.NewReader([]byte("x")))
	store.Upload("other/c.mp3", bytes.NewReader([]byte("x")))

	objs, err := store.List("podcasts/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects under podcasts/, got %+v", objs)
	}
}

func TestLocalStorageAdapterPublicURLIsFileScheme(t *testing.T) {
	store, err := NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	store.Upload("podcasts/a.mp3", bytes.NewReader([]byte("x")))

	url, err := store.PublicURL("podcasts/a.mp3", 0)
	if err != nil {
		t.Fatalf("PublicURL: %v", err)
	}
	if len(url) < 7 || url[:7] != "file://" {
		t.Fatalf("expected a file:// URL, got %q", url)
	}
}
