// Package transcriber implements the Recognizer worker: given an audio
// blob it produces a timed Transcript via an opaque Recognizer, caching
// the result next to the audio as "<key>.transcript.json".
package transcriber

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/dedup"
	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

// TranscriptionError wraps a failure from the Recognizer.
type TranscriptionError struct {
	File string
	Err  error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("failed to transcribe audio %s: %v", e.File, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Recognizer is the opaque speech-to-text engine contract. Implementations
// receive raw audio bytes and must return segments with monotonically
// increasing, 0-based, dense ids.
type Recognizer interface {
	Recognize(audio []byte, filename string) ([]models.Segment, error)
}

// Transcriber is the Recognizer worker. It subscribes to
// podcast.transcribe.request.
type Transcriber struct {
	store      blobstore.BlobStore
	broker     bus.MessageBus
	recognizer Recognizer
	files      *dedup.Set
	running    bool
}

// New constructs a Transcriber backed by recognizer and store, persisting
// its dedup state under debugDir/transcriber_processed_files.json.
func New(store blobstore.BlobStore, broker bus.MessageBus, recognizer Recognizer, debugDir string) (*Transcriber, error) {
	files, err := dedup.NewSet(filepath.Join(debugDir, "transcriber_processed_files.json"))
	if err != nil {
		return nil, err
	}

	t := &Transcriber{store: store, broker: broker, recognizer: recognizer, files: files}
	broker.Subscribe(bus.Topics.TranscribeRequest, t.handleTranscribeRequest)
	return t, nil
}

// Start marks the transcriber ready to handle requests.
func (t *Transcriber) Start() {
	t.running = true
	logger.Info("transcriber_started")
}

// Stop marks the transcriber idle and flushes dedup state to disk.
func (t *Transcriber) Stop() {
	t.running = false
	t.files.Persist()
	logger.Info("transcriber_stopped")
}

func transcriptKey(audioKey string) string {
	return audioKey + ".transcript.json"
}

// Transcribe returns the cached transcript for audioKey if one exists;
// otherwise it fetches the audio blob, invokes the Recognizer, and caches
// the result.
func (t *Transcriber) Transcribe(audioKey string) (*models.Transcript, error) {
	tKey := transcriptKey(audioKey)

	if exists, _ := t.store.Exists(tKey); exists {
		logger.Info("loading_cached_transcript", "key", tKey)
		var buf bytes.Buffer
		if err := t.store.Download(tKey, &buf); err == nil {
			var transcript models.Transcript
			if err := json.Unmarshal(buf.Bytes(), &transcript); err == nil {
				return &transcript, nil
			}
			logger.Warn("cache_load_failed", "key", tKey)
		}
	}

	logger.Info("transcribing_audio", "key", audioKey)
	var audio bytes.Buffer
	if err := t.store.Download(audioKey, &audio); err != nil {
		return nil, &TranscriptionError{File: audioKey, Err: err}
	}

	segments, err := t.recognizer.Recognize(audio.Bytes(), filepath.Base(audioKey))
	if err != nil {
		return nil, &TranscriptionError{File: audioKey, Err: err}
	}

	transcript := &models.Transcript{Segments: segments, ProcessedAt: time.Now().UTC()}

	logger.Info("caching_transcript", "key", tKey)
	data, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return nil, &TranscriptionError{File: audioKey, Err: err}
	}
	if _, err := t.store.Upload(tKey, bytes.NewReader(data)); err != nil {
		return nil, &TranscriptionError{File: audioKey, Err: err}
	}

	return transcript, nil
}

func (t *Transcriber) handleTranscribeRequest(msg bus.Message) {
	if !t.running {
		logger.Warn("transcriber_not_running")
		return
	}

	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)
	if filePath == "" {
		logger.Warn("invalid_transcription_request", "message_id", msg.MessageID)
		t.broker.Publish(bus.NewMessage(bus.Topics.TranscribeFailed, map[string]interface{}{"error": "No file path provided"}, corr))
		return
	}

	alreadyProcessed, alreadyInFlight := t.files.TryBegin(filePath)
	if alreadyProcessed {
		logger.Info("file_already_processed", "file_path", filePath)
		t.broker.Publish(bus.NewMessage(bus.Topics.TranscribeComplete, map[string]interface{}{
			"file_path": filePath, "transcript_path": transcriptKey(filePath), "already_processed": true,
		}, corr))
		return
	}
	if alreadyInFlight {
		logger.Info("file_already_in_process", "file_path", filePath)
		t.broker.Publish(bus.NewMessage(bus.Topics.TranscribeFailed, map[string]interface{}{
			"file_path": filePath, "error": "File is already being processed",
		}, corr))
		return
	}

	_, err := t.Transcribe(filePath)
	if err != nil {
		t.files.Release(filePath)
		logger.Error("transcription_request_failed", "file", filePath, "error", err)
		t.broker.Publish(bus.NewMessage(bus.Topics.TranscribeFailed, map[string]interface{}{
			"file_path": filePath, "error": err.Error(),
		}, corr))
		return
	}

	if err := t.files.Complete(filePath); err != nil {
		logger.Error("dedup_persist_failed", "file_path", filePath, "error", err)
	}

	t.broker.Publish(bus.NewMessage(bus.Topics.TranscribeComplete, map[string]interface{}{
		"file_path": filePath, "transcript_path": transcriptKey(filePath),
	}, corr))
}
