package httpapi

import (
	"bytes"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"podcleaner/internal/bus"
	"podcleaner/internal/downloader"
	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

// Router builds the gin engine with every route the HTTP front-end
// exposes, in the teacher's style: gin.Default(), a request-logging
// middleware on top of it, a thin wrapper per route, JSON or streamed
// responses. Callers set gin.SetMode before calling Router, exactly as
// the teacher's cmd/api/main.go does.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Printf("%s %s - %d (%v)", method, path, c.Writer.Status(), time.Since(start))
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "podcleaner"})
	})

	router.GET("/process", s.handleProcess)
	router.GET("/rss", s.handleRSS)
	router.GET("/status", s.handleStatus)
	router.GET("/download/:file_id", s.handleDownload)

	return router
}

// handleProcess implements GET /process?url=<U>.
func (s *Server) handleProcess(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}

	s.mu.Lock()
	fileID, cached := s.urlToFile[url]
	s.mu.Unlock()

	if cached {
		s.mu.Lock()
		mapping, ok := s.fileMappings[fileID]
		s.mu.Unlock()
		if ok {
			if exists, _ := s.store.Exists(mapping.Key); exists {
				s.streamBlob(c, mapping.Key, "")
				return
			}
		}
	}

	rs := s.newRequest(models.RequestProcess, url)

	s.broker.Publish(bus.NewMessage(bus.Topics.DownloadRequest, map[string]interface{}{
		"url": url,
	}, rs.RequestID))

	c.String(http.StatusAccepted, "Processing started for %s. Poll /status?id=%s for progress.", url, rs.RequestID)
}

// handleRSS implements GET /rss?url=<FEED>.
func (s *Server) handleRSS(c *gin.Context) {
	feedURL := c.Query("url")
	if feedURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}

	s.mu.Lock()
	info, cached := s.cachedPodcastInfo[feedURL]
	s.mu.Unlock()

	if !cached {
		fetched, err := s.rss.DownloadRSS(feedURL)
		if err != nil {
			logger.Error("rss_fetch_failed", "url", feedURL, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		downloader.RewriteEnclosures(fetched, s.baseURL)

		s.mu.Lock()
		s.cachedPodcastInfo[feedURL] = fetched
		s.mu.Unlock()
		info = fetched
	}

	xml := RenderRSS(info)
	c.Data(http.StatusOK, "application/rss+xml", []byte(xml))
}

// handleStatus implements GET /status?id=<R>.
func (s *Server) handleStatus(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id parameter"})
		return
	}

	rs := s.requestFor(id)
	if rs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown request id"})
		return
	}
	c.JSON(http.StatusOK, rs)
}

// handleDownload implements GET /download/<file_id>.
func (s *Server) handleDownload(c *gin.Context) {
	fileID := c.Param("file_id")

	s.mu.Lock()
	mapping, ok := s.fileMappings[fileID]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown file id"})
		return
	}

	s.streamBlob(c, mapping.Key, fileID)
}

func contentTypeFor(key string) string {
	switch filepath.Ext(key) {
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

// streamBlob writes the blob at key to the response, tolerating a client
// that disconnects mid-stream (broken pipe / reset by peer) the same way
// the original's RequestHandler.do_GET does: log and move on rather than
// letting the write error propagate as a server failure. A non-empty
// fileID adds a Content-Disposition attachment header named
// "podcast_<fileID>.mp3", matching the original's
// `file_name = f"podcast_{file_id}.mp3"` exactly — the name is built
// from the file id, never from the underlying storage key.
func (s *Server) streamBlob(c *gin.Context, key string, fileID string) {
	var buf bytes.Buffer
	if err := s.store.Download(key, &buf); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}

	c.Header("Content-Type", contentTypeFor(key))
	if fileID != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": "podcast_" + fileID + ".mp3",
		}))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("client_disconnected_during_stream", "key", key, "recover", r)
		}
	}()

	if _, err := c.Writer.Write(buf.Bytes()); err != nil {
		logger.Warn("client_write_failed", "key", key, "error", err)
	}
}
