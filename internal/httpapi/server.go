// Package httpapi implements the HTTP Front-End: it accepts /process,
// /rss, /status, /download requests and owns the per-request RequestState
// state machine, driven entirely by MessageBus subscriptions.
package httpapi

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/logger"
	"podcleaner/internal/models"
	"podcleaner/internal/rendezvous"
)

// RSSFetcher is the narrow contract the HTTP front-end needs from the
// Downloader for the synchronous /rss path — routed through one
// Downloader implementation rather than duplicating feed-parsing logic
// in the HTTP layer, unlike the original's web_server.py.
type RSSFetcher interface {
	DownloadRSS(rssURL string) (*models.PodcastInfo, error)
}

// Server owns every piece of in-memory state the HTTP front-end is
// responsible for: RequestState per correlation ID, the file_id→blob-key
// FileMapping, the source-URL→file_id shortcut, and the cached,
// already-rewritten PodcastInfo per feed URL.
type Server struct {
	broker     bus.MessageBus
	store      blobstore.BlobStore
	rss        RSSFetcher
	baseURL    string
	rendezvous *rendezvous.Table

	mu                sync.Mutex
	requests          map[string]*models.RequestState
	fileMappings      map[string]models.FileMapping
	urlToFile         map[string]string
	cachedPodcastInfo map[string]*models.PodcastInfo
}

// New constructs the HTTP front-end and wires its broker subscriptions.
// baseURL is prefixed onto rewritten RSS enclosure URLs (e.g.
// "http://localhost:8080").
func New(broker bus.MessageBus, store blobstore.BlobStore, rss RSSFetcher, baseURL string) *Server {
	s := &Server{
		broker:            broker,
		store:             store,
		rss:               rss,
		baseURL:           baseURL,
		rendezvous:        rendezvous.NewTable(),
		requests:          make(map[string]*models.RequestState),
		fileMappings:      make(map[string]models.FileMapping),
		urlToFile:         make(map[string]string),
		cachedPodcastInfo: make(map[string]*models.PodcastInfo),
	}
	s.setupSubscriptions()
	return s
}

// Rendezvous exposes the front-end's rendezvous table so the CLI's
// single-shot "process" mode can await a correlation ID's completion
// through the same FSM the web server drives.
func (s *Server) Rendezvous() *rendezvous.Table { return s.rendezvous }

func (s *Server) setupSubscriptions() {
	s.broker.Subscribe(bus.Topics.DownloadComplete, s.onDownloadComplete)
	s.broker.Subscribe(bus.Topics.DownloadFailed, s.onDownloadFailed)
	s.broker.Subscribe(bus.Topics.TranscribeComplete, s.onTranscribeComplete)
	s.broker.Subscribe(bus.Topics.TranscribeFailed, s.onTranscribeFailed)
	s.broker.Subscribe(bus.Topics.AdDetectionComplete, s.onAdDetectionComplete)
	s.broker.Subscribe(bus.Topics.AdDetectionFailed, s.onAdDetectionFailed)
	s.broker.Subscribe(bus.Topics.AdDetectionInProgress, s.onAdDetectionInProgress)
	s.broker.Subscribe(bus.Topics.AudioProcessingComplete, s.onAudioProcessingComplete)
	s.broker.Subscribe(bus.Topics.AudioProcessingFailed, s.onAudioProcessingFailed)
}

func (s *Server) requestFor(corr string) *models.RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[corr]
}

func (s *Server) appendStep(corr string, step models.RequestStep) *models.RequestState {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.requests[corr]
	if !ok {
		logger.Warn("unknown_correlation_id", "correlation_id", corr)
		return nil
	}
	rs.Steps = append(rs.Steps, step)
	rs.UpdatedAt = time.Now().UTC()
	if step.Status == models.StepFailed {
		rs.Status = models.StatusFailed
	}
	return rs
}

func (s *Server) newRequest(reqType models.RequestType, url string) *models.RequestState {
	now := time.Now().UTC()
	rs := &models.RequestState{
		RequestID: uuid.NewString(),
		Type:      reqType,
		URL:       url,
		Status:    models.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
		Steps: []models.RequestStep{
			{Name: "submitted", Status: models.StepCompleted, Timestamp: now},
		},
	}
	s.mu.Lock()
	s.requests[rs.RequestID] = rs
	s.mu.Unlock()
	return rs
}

func (s *Server) onDownloadComplete(msg bus.Message) {
	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)

	rs := s.appendStep(corr, models.RequestStep{Name: "download", Status: models.StepCompleted, Timestamp: time.Now().UTC()})
	if rs == nil {
		return
	}

	s.broker.Publish(bus.NewMessage(bus.Topics.TranscribeRequest, map[string]interface{}{
		"file_path": filePath,
	}, corr))
}

func (s *Server) onDownloadFailed(msg bus.Message) {
	s.failStep(msg, "download")
}

func (s *Server) onTranscribeComplete(msg bus.Message) {
	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)
	transcriptPath, _ := msg.Data["transcript_path"].(string)

	rs := s.appendStep(corr, models.RequestStep{Name: "transcription", Status: models.StepCompleted, Timestamp: time.Now().UTC()})
	if rs == nil {
		return
	}

	s.broker.Publish(bus.NewMessage(bus.Topics.AdDetectionRequest, map[string]interface{}{
		"file_path": filePath, "transcript_path": transcriptPath,
	}, corr))
}

func (s *Server) onTranscribeFailed(msg bus.Message) {
	s.failStep(msg, "transcription")
}

func (s *Server) onAdDetectionComplete(msg bus.Message) {
	corr := msg.CorrelationID
	filePath, _ := msg.Data["file_path"].(string)
	transcriptPath, _ := msg.Data["transcript_path"].(string)

	rs := s.appendStep(corr, models.RequestStep{Name: "ad_detection", Status: models.StepCompleted, Timestamp: time.Now().UTC()})
	if rs == nil {
		return
	}

	s.broker.Publish(bus.NewMessage(bus.Topics.AudioProcessingRequest, map[string]interface{}{
		"file_path": filePath, "transcript_path": transcriptPath,
	}, corr))
}

func (s *Server) onAdDetectionFailed(msg bus.Message) {
	s.failStep(msg, "ad_detection")
}

func (s *Server) onAdDetectionInProgress(msg bus.Message) {
	// A concurrent request is already classifying this file. The current
	// flow cannot make progress; fail it rather than hang indefinitely —
	// a later retry of /process for the same URL will short-circuit via
	// the Classifier's own already_processed check once that flow lands.
	s.failStepWithMessage(msg, "ad_detection", "ad detection already in progress for this file")
}

func (s *Server) onAudioProcessingComplete(msg bus.Message) {
	corr := msg.CorrelationID
	outputPath, _ := msg.Data["output_path"].(string)

	fileID := uuid.NewString()
	s.mu.Lock()
	s.fileMappings[fileID] = models.FileMapping{FileID: fileID, Key: outputPath}
	if rs, ok := s.requests[corr]; ok {
		s.urlToFile[rs.URL] = fileID
	}
	s.mu.Unlock()

	downloadURL := fmt.Sprintf("/download/%s", fileID)
	rs := s.appendStep(corr, models.RequestStep{
		Name: "audio_processing", Status: models.StepCompleted, Timestamp: time.Now().UTC(), DownloadURL: downloadURL,
	})
	if rs == nil {
		return
	}

	s.mu.Lock()
	rs.Status = models.StatusCompleted
	s.mu.Unlock()

	s.rendezvous.Resolve(corr, rendezvous.Result{OutputPath: outputPath})
}

func (s *Server) onAudioProcessingFailed(msg bus.Message) {
	s.failStep(msg, "audio_processing")
}

func (s *Server) failStep(msg bus.Message, name string) {
	errMsg, _ := msg.Data["error"].(string)
	s.failStepWithMessage(msg, name, errMsg)
}

func (s *Server) failStepWithMessage(msg bus.Message, name, errMsg string) {
	corr := msg.CorrelationID
	rs := s.appendStep(corr, models.RequestStep{
		Name: name, Status: models.StepFailed, Timestamp: time.Now().UTC(), Error: errMsg,
	})
	if rs == nil {
		return
	}
	s.rendezvous.Resolve(corr, rendezvous.Result{Err: fmt.Errorf("%s failed: %s", name, errMsg)})
}
