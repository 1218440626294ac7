package downloader

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/models"
)

func TestStorageKeyIsStableMD5(t *testing.T) {
	a := StorageKey("https://example.com/ep1.mp3")
	b := StorageKey("https://example.com/ep1.mp3")
	c := StorageKey("https://example.com/ep2.mp3")

	if a != b {
		t.Fatalf("StorageKey must be deterministic for the same URL")
	}
	if a == c {
		t.Fatalf("StorageKey must differ across distinct URLs")
	}
	if len(a) <= len("podcasts/") {
		t.Fatalf("expected a podcasts/ prefixed key, got %q", a)
	}
}

func TestRewriteEnclosuresSetsAudioURLAndRetainsOriginal(t *testing.T) {
	info := &models.PodcastInfo{
		Episodes: []models.Episode{
			{Title: "Episode 1", AudioURL: "https://source.example.com/ep1.mp3"},
		},
	}

	RewriteEnclosures(info, "http://localhost:8080")

	ep := info.Episodes[0]
	if ep.OriginalURL != "https://source.example.com/ep1.mp3" {
		t.Fatalf("OriginalURL should retain the source URL, got %q", ep.OriginalURL)
	}
	want := "http://localhost:8080/process?url=https://source.example.com/ep1.mp3"
	if ep.AudioURL != want {
		t.Fatalf("AudioURL = %q, want %q", ep.AudioURL, want)
	}
}

func TestHandleDownloadRequestShortCircuitsOnRepeatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-audio-bytes"))
	}))
	defer srv.Close()

	store, err := blobstore.NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	broker := bus.NewInMemoryBus()
	broker.Start()

	d, err := New(store, broker, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()

	complete := make(chan bus.Message, 2)
	broker.Subscribe(bus.Topics.DownloadComplete, func(m bus.Message) { complete <- m })

	broker.Publish(bus.NewMessage(bus.Topics.DownloadRequest, map[string]interface{}{"url": srv.URL}, "corr-1"))
	first := mustReceive(t, complete)
	if already, _ := first.Data["already_processed"].(bool); already {
		t.Fatalf("the first download should not be marked already_processed")
	}

	broker.Publish(bus.NewMessage(bus.Topics.DownloadRequest, map[string]interface{}{"url": srv.URL}, "corr-2"))
	second := mustReceive(t, complete)
	if already, _ := second.Data["already_processed"].(bool); !already {
		t.Fatalf("a repeat download of the same URL should short-circuit as already_processed")
	}
}

func TestHandleDownloadRequestFailsOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := blobstore.NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	broker := bus.NewInMemoryBus()
	broker.Start()

	d, err := New(store, broker, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.Start()

	failed := make(chan bus.Message, 1)
	broker.Subscribe(bus.Topics.DownloadFailed, func(m bus.Message) { failed <- m })

	broker.Publish(bus.NewMessage(bus.Topics.DownloadRequest, map[string]interface{}{"url": srv.URL}, "corr-1"))

	msg := mustReceive(t, failed)
	errMsg, _ := msg.Data["error"].(string)
	if errMsg == "" {
		t.Fatalf("expected a non-empty error message on a 404")
	}
}

func mustReceive(t *testing.T, ch chan bus.Message) bus.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a message")
		return bus.Message{}
	}
}
