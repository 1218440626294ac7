// Package addetector implements the Classifier worker, the most complex
// component in the pipeline: chunked LLM classification merged with
// heuristic transition/promotional-phrase coalescing into an ad-marked
// transcript.
package addetector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/dedup"
	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

// adGapSeconds is the time-gap tolerance used by both the coalescing
// walk and ad-block extraction. It is not exposed as configuration: the
// original hard-codes 5.0s for this purpose, distinct from the
// AudioEditor's configurable audio.max_gap.
const adGapSeconds = 5.0

const retryBackoff = 2 * time.Second

// Config configures a Classifier's chunking, retry, and heuristic
// behavior. TransitionPhrases/PromotionalIndicators default to the
// German reference set but are treated as configuration per spec's
// design notes.
type Config struct {
	ChunkSize             int
	MaxAttempts           int
	Temperature           float32
	TransitionPhrases     []string
	PromotionalIndicators []string
	DebugOutputDir        string // empty disables debug artifact dumps
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:             600,
		MaxAttempts:           3,
		Temperature:           0.1,
		TransitionPhrases:     DefaultTransitionPhrases,
		PromotionalIndicators: DefaultPromotionalIndicators,
	}
}

// Classifier is the Classifier worker. It subscribes to
// podcast.ad_detection.request.
type Classifier struct {
	store      blobstore.BlobStore
	broker     bus.MessageBus
	classifier ChunkClassifier
	cfg        Config
	files      *dedup.Set
	running    bool
}

// New constructs a Classifier, persisting its dedup state under
// debugDir/ad_detector_processed_files.json.
func New(store blobstore.BlobStore, broker bus.MessageBus, classifier ChunkClassifier, cfg Config, debugDir string) (*Classifier, error) {
	files, err := dedup.NewSet(filepath.Join(debugDir, "ad_detector_processed_files.json"))
	if err != nil {
		return nil, err
	}

	c := &Classifier{store: store, broker: broker, classifier: classifier, cfg: cfg, files: files}
	broker.Subscribe(bus.Topics.AdDetectionRequest, c.handleAdDetectionRequest)
	return c, nil
}

// Start marks the classifier ready to handle requests.
func (c *Classifier) Start() {
	c.running = true
	logger.Info("ad_detector_started")
}

// Stop marks the classifier idle and flushes dedup state to disk.
func (c *Classifier) Stop() {
	c.running = false
	c.files.Persist()
	logger.Info("ad_detector_stopped")
}

func chunks(segments []models.Segment, size int) []models.TranscriptChunk {
	if size <= 0 {
		size = len(segments)
	}
	var out []models.TranscriptChunk
	for start := 0; start < len(segments); start += size {
		end := start + size
		if end > len(segments) {
			end = len(segments)
		}
		out = append(out, models.TranscriptChunk{ChunkID: start / size, Segments: segments[start:end]})
	}
	return out
}

// processChunk classifies one chunk, retrying up to cfg.MaxAttempts with
// a fixed backoff. On exhaustion it returns the chunk's segments
// unmodified along with the last error, so the overall request can still
// complete with partial results.
func (c *Classifier) processChunk(ctx context.Context, chunk models.TranscriptChunk) models.ProcessingResult {
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		decisions, err := c.classifier.Classify(ctx, chunk.Segments, c.cfg.Temperature)
		if err == nil {
			segments := make([]models.Segment, len(chunk.Segments))
			copy(segments, chunk.Segments)
			for i := range segments {
				if ad, ok := decisions[segments[i].ID]; ok {
					segments[i].IsAd = ad
				}
			}
			c.writeDebugChunk(chunk.ChunkID, chunk.Segments, decisions, segments)
			return models.ProcessingResult{ChunkID: chunk.ChunkID, Segments: segments}
		}

		lastErr = err
		logger.Warn("classify_chunk_attempt_failed", "chunk_id", chunk.ChunkID, "attempt", attempt, "error", err)
		if attempt < maxAttempts {
			time.Sleep(retryBackoff)
		}
	}

	logger.Error("classify_chunk_exhausted", "chunk_id", chunk.ChunkID, "error", lastErr)
	return models.ProcessingResult{ChunkID: chunk.ChunkID, Segments: chunk.Segments, Error: lastErr.Error()}
}

// DetectAds classifies transcript in chunks, merges the per-chunk
// results by segment id, applies heuristic coalescing over the full
// sequence, mutating transcript in place, and returns any per-chunk
// errors encountered along the way.
func (c *Classifier) DetectAds(ctx context.Context, transcript *models.Transcript) []string {
	c.writeDebugFull("initial_transcript.json", transcript)

	byID := make(map[int]models.Segment, len(transcript.Segments))
	var chunkErrors []string

	for _, chunk := range chunks(transcript.Segments, c.cfg.ChunkSize) {
		result := c.processChunk(ctx, chunk)
		if result.Error != "" {
			chunkErrors = append(chunkErrors, fmt.Sprintf("chunk %d: %s", result.ChunkID, result.Error))
		}
		for _, seg := range result.Segments {
			byID[seg.ID] = seg
		}
	}

	merged := make([]models.Segment, 0, len(byID))
	for _, seg := range transcript.Segments {
		if s, ok := byID[seg.ID]; ok {
			merged = append(merged, s)
		} else {
			merged = append(merged, seg)
		}
	}
	transcript.Segments = merged

	MergeAdjacentAds(transcript.Segments, c.cfg.TransitionPhrases, c.cfg.PromotionalIndicators, adGapSeconds)

	blocks := GetAdBlocks(transcript.Segments, adGapSeconds)
	logger.Info("ad_detection_complete", "segments", len(transcript.Segments), "ad_blocks", len(blocks), "errors", len(chunkErrors))

	c.writeDebugFull("final_results.json", transcript)
	return chunkErrors
}

func (c *Classifier) handleAdDetectionRequest(msg bus.Message) {
	if !c.running {
		logger.Warn("ad_detector_not_running")
		return
	}

	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)
	transcriptPath, _ := msg.Data["transcript_path"].(string)
	if filePath == "" || transcriptPath == "" {
		logger.Warn("invalid_ad_detection_request", "message_id", msg.MessageID)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionFailed, map[string]interface{}{"error": "No file path or transcript path provided"}, corr))
		return
	}

	alreadyProcessed, alreadyInFlight := c.files.TryBegin(filePath)
	if alreadyProcessed {
		logger.Info("file_already_processed", "file_path", filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionComplete, map[string]interface{}{
			"file_path": filePath, "transcript_path": transcriptPath, "already_processed": true,
		}, corr))
		return
	}
	if alreadyInFlight {
		logger.Info("file_already_in_process", "file_path", filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionInProgress, map[string]interface{}{
			"file_path": filePath,
		}, corr))
		return
	}

	var buf bytes.Buffer
	if err := c.store.Download(transcriptPath, &buf); err != nil {
		c.files.Release(filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionFailed, map[string]interface{}{
			"file_path": filePath, "error": err.Error(),
		}, corr))
		return
	}

	var transcript models.Transcript
	if err := json.Unmarshal(buf.Bytes(), &transcript); err != nil {
		c.files.Release(filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionFailed, map[string]interface{}{
			"file_path": filePath, "error": fmt.Sprintf("failed to parse transcript: %v", err),
		}, corr))
		return
	}

	chunkErrors := c.DetectAds(context.Background(), &transcript)

	data, err := json.MarshalIndent(&transcript, "", "  ")
	if err != nil {
		c.files.Release(filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionFailed, map[string]interface{}{
			"file_path": filePath, "error": err.Error(),
		}, corr))
		return
	}
	if _, err := c.store.Upload(transcriptPath, bytes.NewReader(data)); err != nil {
		c.files.Release(filePath)
		c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionFailed, map[string]interface{}{
			"file_path": filePath, "error": err.Error(),
		}, corr))
		return
	}

	if err := c.files.Complete(filePath); err != nil {
		logger.Error("dedup_persist_failed", "file_path", filePath, "error", err)
	}

	payload := map[string]interface{}{"file_path": filePath, "transcript_path": transcriptPath}
	if len(chunkErrors) > 0 {
		payload["chunk_errors"] = chunkErrors
	}
	c.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionComplete, payload, corr))
}

func (c *Classifier) writeDebugChunk(chunkID int, input []models.Segment, raw map[int]bool, processed []models.Segment) {
	if c.cfg.DebugOutputDir == "" {
		return
	}
	c.writeDebugJSON(fmt.Sprintf("chunk_%d_input.json", chunkID), input)
	c.writeDebugJSON(fmt.Sprintf("chunk_%d_llm_response.json", chunkID), raw)
	c.writeDebugJSON(fmt.Sprintf("chunk_%d_processed.json", chunkID), processed)
}

func (c *Classifier) writeDebugFull(name string, v interface{}) {
	if c.cfg.DebugOutputDir == "" {
		return
	}
	c.writeDebugJSON(name, v)
}

func (c *Classifier) writeDebugJSON(name string, v interface{}) {
	if err := os.MkdirAll(c.cfg.DebugOutputDir, 0o755); err != nil {
		logger.Error("debug_dir_create_failed", "error", err)
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("debug_marshal_failed", "name", name, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(c.cfg.DebugOutputDir, name), data, 0o644); err != nil {
		logger.Error("debug_write_failed", "name", name, "error", err)
	}
}
