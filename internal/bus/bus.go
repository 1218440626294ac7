// Package bus implements the MessageBus component: topic-based pub/sub
// with correlation-ID preservation, with an in-process backend and an
// external MQTT backend sharing one contract.
package bus

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Message is the unit of communication between pipeline stages. Data is
// intentionally loosely typed (map[string]any) so handlers can tolerate
// unknown keys; each handler checks for the keys it requires.
type Message struct {
	Topic         string                 `json:"topic"`
	Data          map[string]interface{} `json:"data"`
	MessageID     string                 `json:"message_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// NewMessage builds a Message with a fresh message ID.
func NewMessage(topic string, data map[string]interface{}, correlationID string) Message {
	return Message{
		Topic:         topic,
		Data:          data,
		MessageID:     uuid.NewString(),
		CorrelationID: correlationID,
	}
}

// ToJSON serializes the message, used by the MQTT backend's publish path.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON decodes a message previously produced by ToJSON.
func FromJSON(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// Topics is the closed set of topic strings the pipeline exchanges.
// Every stage follows a *_REQUEST / *_COMPLETE / *_FAILED triple, except
// the Classifier which adds an *_IN_PROGRESS topic for its dedup
// short-circuit.
var Topics = struct {
	DownloadRequest  string
	DownloadComplete string
	DownloadFailed   string

	TranscribeRequest  string
	TranscribeComplete string
	TranscribeFailed   string

	AdDetectionRequest    string
	AdDetectionComplete   string
	AdDetectionFailed     string
	AdDetectionInProgress string

	AudioProcessingRequest  string
	AudioProcessingComplete string
	AudioProcessingFailed   string

	RSSDownloadRequest  string
	RSSDownloadComplete string
	RSSDownloadFailed   string

	APIDownloadRequest string
	APIRSSRequest      string
	APIStatusUpdate    string
}{
	DownloadRequest:  "podcast.download.request",
	DownloadComplete: "podcast.download.complete",
	DownloadFailed:   "podcast.download.failed",

	TranscribeRequest:  "podcast.transcribe.request",
	TranscribeComplete: "podcast.transcribe.complete",
	TranscribeFailed:   "podcast.transcribe.failed",

	AdDetectionRequest:    "podcast.ad_detection.request",
	AdDetectionComplete:   "podcast.ad_detection.complete",
	AdDetectionFailed:     "podcast.ad_detection.failed",
	AdDetectionInProgress: "podcast.ad_detection.in_progress",

	AudioProcessingRequest:  "podcast.audio_processing.request",
	AudioProcessingComplete: "podcast.audio_processing.complete",
	AudioProcessingFailed:   "podcast.audio_processing.failed",

	RSSDownloadRequest:  "podcast.rss.download.request",
	RSSDownloadComplete: "podcast.rss.download.complete",
	RSSDownloadFailed:   "podcast.rss.download.failed",

	APIDownloadRequest: "api.download.request",
	APIRSSRequest:      "api.rss.request",
	APIStatusUpdate:    "api.status.update",
}

// AllTopics lists every known topic, used by the MQTT backend to
// resubscribe after a reconnect.
func AllTopics() []string {
	return []string{
		Topics.DownloadRequest, Topics.DownloadComplete, Topics.DownloadFailed,
		Topics.TranscribeRequest, Topics.TranscribeComplete, Topics.TranscribeFailed,
		Topics.AdDetectionRequest, Topics.AdDetectionComplete, Topics.AdDetectionFailed, Topics.AdDetectionInProgress,
		Topics.AudioProcessingRequest, Topics.AudioProcessingComplete, Topics.AudioProcessingFailed,
		Topics.RSSDownloadRequest, Topics.RSSDownloadComplete, Topics.RSSDownloadFailed,
		Topics.APIDownloadRequest, Topics.APIRSSRequest, Topics.APIStatusUpdate,
	}
}

// Handler processes one delivered Message.
type Handler func(Message)

// MessageBus is the contract both the in-process and MQTT backends
// satisfy: publish delivers msg to every handler subscribed to its
// topic; subscribe registers a handler; start/stop govern delivery.
type MessageBus interface {
	Publish(msg Message)
	Subscribe(topic string, handler Handler)
	Start() error
	Stop() error
}
