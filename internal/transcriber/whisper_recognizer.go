package transcriber

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

// WhisperRecognizer is a concrete Recognizer backed by an ASR HTTP
// service exposing a whisper.cpp/openai-whisper style "/asr" multipart
// endpoint, grounded on the teacher's WhisperService client.
type WhisperRecognizer struct {
	baseURL string
	client  *http.Client
}

// NewWhisperRecognizer builds a client against baseURL with a generous
// timeout, matching the teacher's 1-hour transcription timeout.
func NewWhisperRecognizer(baseURL string) *WhisperRecognizer {
	return &WhisperRecognizer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Hour},
	}
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperResponse struct {
	Segments []whisperSegment `json:"segments"`
}

// Recognize uploads audio as multipart form data and converts the
// service's segments into dense-id, trimmed-text, non-ad Segments.
func (w *WhisperRecognizer) Recognize(audio []byte, filename string) ([]models.Segment, error) {
	logger.Info("transcribing_audio_file", "file", filename)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	_ = writer.WriteField("task", "transcribe")
	_ = writer.WriteField("output", "json")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	url := w.baseURL + "/asr"
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("asr service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode asr response: %w", err)
	}

	segments := make([]models.Segment, 0, len(parsed.Segments))
	for i, seg := range parsed.Segments {
		segments = append(segments, models.Segment{
			ID:    i,
			Text:  strings.TrimSpace(seg.Text),
			Start: seg.Start,
			End:   seg.End,
			IsAd:  false,
		})
	}
	return segments, nil
}
