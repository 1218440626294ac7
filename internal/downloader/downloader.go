// Package downloader implements the Downloader component: given a source
// URL it streams the bytes into the BlobStore; given an RSS URL it parses
// the feed and (optionally) rewrites each episode's enclosure to point
// back at this server.
package downloader

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/dedup"
	"podcleaner/internal/logger"
)

// DownloadError wraps a failure to fetch a source URL.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download podcast %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

const chunkSize = 8192

// Downloader is the Downloader worker. It subscribes to
// podcast.download.request and podcast.rss.download.request.
type Downloader struct {
	store       blobstore.BlobStore
	broker      bus.MessageBus
	urls        *dedup.Set
	rssFeeds    *dedup.Set
	httpClient  *http.Client
	workDir     string
	running     bool
}

// New constructs a Downloader. debugDir is where the two dedup JSON
// files (downloader_processed_files.json, downloader_processed_rss.json)
// live; workDir is scratch space for temp files during streaming.
func New(store blobstore.BlobStore, broker bus.MessageBus, debugDir, workDir string) (*Downloader, error) {
	urls, err := dedup.NewSet(filepath.Join(debugDir, "downloader_processed_files.json"))
	if err != nil {
		return nil, err
	}
	rssFeeds, err := dedup.NewSet(filepath.Join(debugDir, "downloader_processed_rss.json"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}

	d := &Downloader{
		store:      store,
		broker:     broker,
		urls:       urls,
		rssFeeds:   rssFeeds,
		httpClient: &http.Client{},
		workDir:    workDir,
	}

	broker.Subscribe(bus.Topics.DownloadRequest, d.handleDownloadRequest)
	broker.Subscribe(bus.Topics.RSSDownloadRequest, d.handleRSSDownloadRequest)

	return d, nil
}

// Start marks the downloader ready to handle requests.
func (d *Downloader) Start() {
	d.running = true
	logger.Info("downloader_started")
}

// Stop marks the downloader idle and flushes dedup state to disk.
func (d *Downloader) Stop() {
	d.running = false
	d.urls.Persist()
	d.rssFeeds.Persist()
	logger.Info("downloader_stopped")
}

// StorageKey computes the canonical blob key for a source URL: an md5
// hash of the URL under the "podcasts/" prefix.
func StorageKey(url string) string {
	sum := md5.Sum([]byte(url))
	return "podcasts/" + hex.EncodeToString(sum[:])
}

// Download streams url to the BlobStore, short-circuiting if the blob
// already exists, and returns the storage key.
func (d *Downloader) Download(url string) (string, error) {
	key := StorageKey(url)

	exists, err := d.store.Exists(key)
	if err != nil {
		return "", err
	}
	if exists {
		logger.Info("podcast_exists", "key", key)
		return key, nil
	}

	logger.Info("downloading_podcast", "url", url)
	resp, err := d.httpClient.Get(url)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &DownloadError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	tmp, err := os.CreateTemp(d.workDir, "download-*")
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(tmp, resp.Body, buf); err != nil {
		tmp.Close()
		return "", &DownloadError{URL: url, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}
	defer f.Close()

	if _, err := d.store.Upload(key, f); err != nil {
		return "", &DownloadError{URL: url, Err: err}
	}

	logger.Info("download_complete", "key", key)
	return key, nil
}

func (d *Downloader) handleDownloadRequest(msg bus.Message) {
	if !d.running {
		logger.Warn("downloader_not_running")
		return
	}

	corr := msg.CorrelationID
	url, _ := msg.Data["url"].(string)
	if url == "" {
		logger.Warn("invalid_download_request", "message_id", msg.MessageID)
		d.broker.Publish(bus.NewMessage(bus.Topics.DownloadFailed, map[string]interface{}{"error": "No URL provided"}, corr))
		return
	}

	key := StorageKey(url)
	alreadyProcessed, alreadyInFlight := d.urls.TryBegin(url)

	if alreadyProcessed {
		exists, _ := d.store.Exists(key)
		if exists {
			logger.Info("url_already_processed", "url", url)
			d.broker.Publish(bus.NewMessage(bus.Topics.DownloadComplete, map[string]interface{}{
				"url": url, "file_path": key, "already_processed": true,
			}, corr))
			return
		}
	}
	if alreadyInFlight {
		logger.Info("url_already_in_flight", "url", url)
		d.broker.Publish(bus.NewMessage(bus.Topics.DownloadFailed, map[string]interface{}{
			"url": url, "error": "already being downloaded",
		}, corr))
		return
	}
	storageKey, err := d.Download(url)
	if err != nil {
		d.urls.Release(url)
		logger.Error("download_request_failed", "url", url, "error", err)
		d.broker.Publish(bus.NewMessage(bus.Topics.DownloadFailed, map[string]interface{}{
			"url": url, "error": err.Error(),
		}, corr))
		return
	}

	if err := d.urls.Complete(url); err != nil {
		logger.Error("dedup_persist_failed", "url", url, "error", err)
	}

	d.broker.Publish(bus.NewMessage(bus.Topics.DownloadComplete, map[string]interface{}{
		"url": url, "file_path": storageKey,
	}, corr))
}

func (d *Downloader) handleRSSDownloadRequest(msg bus.Message) {
	if !d.running {
		logger.Warn("downloader_not_running")
		return
	}

	corr := msg.CorrelationID
	rssURL, _ := msg.Data["rss_url"].(string)
	if rssURL == "" {
		logger.Warn("invalid_rss_download_request", "message_id", msg.MessageID)
		d.broker.Publish(bus.NewMessage(bus.Topics.RSSDownloadFailed, map[string]interface{}{"error": "No RSS URL provided"}, corr))
		return
	}

	info, err := d.DownloadRSS(rssURL)
	if err != nil {
		logger.Error("rss_download_request_failed", "rss_url", rssURL, "error", err)
		d.broker.Publish(bus.NewMessage(bus.Topics.RSSDownloadFailed, map[string]interface{}{
			"rss_url": rssURL, "error": err.Error(),
		}, corr))
		return
	}

	if baseURL, ok := msg.Data["base_url"].(string); ok && baseURL != "" {
		RewriteEnclosures(info, baseURL)
	}

	d.rssFeeds.Complete(rssURL)

	d.broker.Publish(bus.NewMessage(bus.Topics.RSSDownloadComplete, map[string]interface{}{
		"rss_url": rssURL, "podcast_info": info,
	}, corr))
}
