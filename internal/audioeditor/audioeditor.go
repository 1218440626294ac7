// Package audioeditor implements the AudioEditor worker: it merges the
// ad-marked segments of a transcript into a cut set and re-renders the
// source audio with those spans removed.
package audioeditor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

// Interval is a half-open [Start, End) span of source audio to remove.
type Interval struct {
	Start float64
	End   float64
}

// Editor is the opaque AudioEditor contract: load the source at
// inputPath, remove every interval in cuts, and write the result to
// outputPath preserving the source's container format. totalDuration is
// the transcript's audio length, letting the implementation tell a cut
// set that empties the whole file apart from "runs to end of input".
type Editor interface {
	RemoveSegments(inputPath string, cuts []Interval, totalDuration float64, outputPath string) error
}

// Config configures the interval-merge thresholds.
type Config struct {
	MinDuration float64
	MaxGap      float64
}

// MergeCutIntervals gathers the (start, end) spans of every ad-marked
// segment, sorts by start, and sweeps: extending the current interval
// while the next one starts within maxGap, closing it (if it meets
// minDuration) otherwise. The result is disjoint, sorted by start, and
// every interval is at least minDuration long.
func MergeCutIntervals(segments []models.Segment, minDuration, maxGap float64) []Interval {
	var raw []Interval
	for _, s := range segments {
		if s.IsAd {
			raw = append(raw, Interval{Start: s.Start, End: s.End})
		}
	}
	if len(raw) == 0 {
		return nil
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Start < raw[j].Start })

	var merged []Interval
	current := raw[0]
	for _, next := range raw[1:] {
		if next.Start <= current.End+maxGap {
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		if current.End-current.Start >= minDuration {
			merged = append(merged, current)
		}
		current = next
	}
	if current.End-current.Start >= minDuration {
		merged = append(merged, current)
	}
	return merged
}

// AudioEditor is the AudioEditor worker. It subscribes to
// podcast.audio_processing.request.
type AudioEditor struct {
	store   blobstore.BlobStore
	broker  bus.MessageBus
	editor  Editor
	cfg     Config
	workDir string
	running bool
}

// New constructs an AudioEditor backed by editor and store, using workDir
// as scratch space for temp files during re-rendering.
func New(store blobstore.BlobStore, broker bus.MessageBus, editor Editor, cfg Config, workDir string) (*AudioEditor, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	a := &AudioEditor{store: store, broker: broker, editor: editor, cfg: cfg, workDir: workDir}
	broker.Subscribe(bus.Topics.AudioProcessingRequest, a.handleAudioProcessingRequest)
	return a, nil
}

// Start marks the editor ready to handle requests.
func (a *AudioEditor) Start() {
	a.running = true
	logger.Info("audio_processor_started")
}

// Stop marks the editor idle.
func (a *AudioEditor) Stop() {
	a.running = false
	logger.Info("audio_processor_stopped")
}

func cleanOutputKey(inputKey string) string {
	ext := filepath.Ext(inputKey)
	base := strings.TrimSuffix(inputKey, ext)
	if ext == "" {
		ext = ".mp3"
	}
	return base + "_clean" + ext
}

// RemoveAds downloads inputKey and its transcript, merges the ad cut set,
// and — if non-empty — re-renders the audio with those spans removed,
// uploading the result to the "_clean" sibling key. If the cut set is
// empty the output equals the input, matching spec §4.6.
func (a *AudioEditor) RemoveAds(inputKey, transcriptKey string) (string, error) {
	var tbuf bytes.Buffer
	if err := a.store.Download(transcriptKey, &tbuf); err != nil {
		return "", fmt.Errorf("failed to load transcript: %w", err)
	}
	var transcript models.Transcript
	if err := json.Unmarshal(tbuf.Bytes(), &transcript); err != nil {
		return "", fmt.Errorf("failed to parse transcript: %w", err)
	}

	cuts := MergeCutIntervals(transcript.Segments, a.cfg.MinDuration, a.cfg.MaxGap)
	outputKey := cleanOutputKey(inputKey)

	var totalDuration float64
	for _, s := range transcript.Segments {
		if s.End > totalDuration {
			totalDuration = s.End
		}
	}

	if len(cuts) == 0 {
		if err := a.copyBlob(inputKey, outputKey); err != nil {
			return "", err
		}
		return outputKey, nil
	}

	ext := filepath.Ext(inputKey)
	if ext == "" {
		ext = ".mp3"
	}
	inputFile, err := os.CreateTemp(a.workDir, "edit-in-*"+ext)
	if err != nil {
		return "", err
	}
	defer os.Remove(inputFile.Name())

	if err := a.store.Download(inputKey, inputFile); err != nil {
		inputFile.Close()
		return "", fmt.Errorf("failed to load source audio: %w", err)
	}
	inputFile.Close()

	title, artist, album, _, tagErr := ReadSourceTags(inputFile.Name())
	if tagErr != nil {
		logger.Warn("source_tag_read_failed", "input", inputKey, "error", tagErr)
	}

	outputFile := inputFile.Name() + ".clean" + ext
	defer os.Remove(outputFile)

	if err := a.editor.RemoveSegments(inputFile.Name(), cuts, totalDuration, outputFile); err != nil {
		return "", fmt.Errorf("failed to render clean audio: %w", err)
	}

	if tagErr == nil {
		if err := CarryOverID3Tags(outputFile, title, artist, album); err != nil {
			logger.Warn("id3_carry_over_failed", "output", outputKey, "error", err)
		}
	}

	f, err := os.Open(outputFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := a.store.Upload(outputKey, f); err != nil {
		return "", fmt.Errorf("failed to upload clean audio: %w", err)
	}

	logger.Info("audio_processing_complete", "input", inputKey, "output", outputKey, "cuts", len(cuts))
	return outputKey, nil
}

func (a *AudioEditor) copyBlob(srcKey, dstKey string) error {
	var buf bytes.Buffer
	if err := a.store.Download(srcKey, &buf); err != nil {
		return err
	}
	_, err := a.store.Upload(dstKey, bytes.NewReader(buf.Bytes()))
	return err
}

func (a *AudioEditor) handleAudioProcessingRequest(msg bus.Message) {
	if !a.running {
		logger.Warn("audio_processor_not_running")
		return
	}

	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)
	transcriptPath, _ := msg.Data["transcript_path"].(string)
	if filePath == "" || transcriptPath == "" {
		logger.Warn("invalid_audio_processing_request", "message_id", msg.MessageID)
		a.broker.Publish(bus.NewMessage(bus.Topics.AudioProcessingFailed, map[string]interface{}{"error": "No file path or transcript path provided"}, corr))
		return
	}

	outputKey, err := a.RemoveAds(filePath, transcriptPath)
	if err != nil {
		logger.Error("audio_processing_request_failed", "file", filePath, "error", err)
		a.broker.Publish(bus.NewMessage(bus.Topics.AudioProcessingFailed, map[string]interface{}{
			"input_path": filePath, "error": err.Error(),
		}, corr))
		return
	}

	a.broker.Publish(bus.NewMessage(bus.Topics.AudioProcessingComplete, map[string]interface{}{
		"input_path": filePath, "output_path": outputKey,
	}, corr))
}
