package transcriber

import (
	"bytes"
	"testing"
	"time"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/models"
)

type fakeRecognizer struct {
	calls int
}

func (f *fakeRecognizer) Recognize(audio []byte, filename string) ([]models.Segment, error) {
	f.calls++
	return []models.Segment{{ID: 0, Text: "hello world", Start: 0, End: 1}}, nil
}

func TestTranscribeCachesResultNextToAudio(t *testing.T) {
	store, err := blobstore.NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	store.Upload("podcasts/ep1.mp3", bytes.NewReader([]byte("audio")))

	recognizer := &fakeRecognizer{}
	tr, err := New(store, bus.NewInMemoryBus(), recognizer, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := tr.Transcribe("podcasts/ep1.mp3"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if recognizer.calls != 1 {
		t.Fatalf("expected the recognizer to be called once, got %d", recognizer.calls)
	}

	// A second call should hit the cached transcript, not the recognizer again.
	if _, err := tr.Transcribe("podcasts/ep1.mp3"); err != nil {
		t.Fatalf("Transcribe (cached): %v", err)
	}
	if recognizer.calls != 1 {
		t.Fatalf("expected the cached transcript to short-circuit the recognizer, got %d calls", recognizer.calls)
	}

	exists, err := store.Exists("podcasts/ep1.mp3.transcript.json")
	if err != nil || !exists {
		t.Fatalf("expected a cached transcript blob to exist: exists=%v err=%v", exists, err)
	}
}

func TestHandleTranscribeRequestFailsWhenAlreadyInFlight(t *testing.T) {
	store, err := blobstore.NewLocalStorageAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorageAdapter: %v", err)
	}
	store.Upload("podcasts/ep1.mp3", bytes.NewReader([]byte("audio")))

	broker := bus.NewInMemoryBus()
	broker.Start()

	recognizer := &fakeRecognizer{}
	tr, err := New(store, broker, recognizer, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr.Start()

	tr.files.TryBegin("podcasts/ep1.mp3")

	failed := make(chan bus.Message, 1)
	broker.Subscribe(bus.Topics.TranscribeFailed, func(m bus.Message) { failed <- m })

	broker.Publish(bus.NewMessage(bus.Topics.TranscribeRequest, map[string]interface{}{"file_path": "podcasts/ep1.mp3"}, "corr-1"))

	select {
	case msg := <-failed:
		errMsg, _ := msg.Data["error"].(string)
		if errMsg == "" {
			t.Fatalf("expected a non-empty error for an in-flight file")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a TranscribeFailed message")
	}
}
