package downloader

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"podcleaner/internal/logger"
	"podcleaner/internal/models"
)

var feedParser = gofeed.NewParser()

// DownloadRSS parses rssURL and extracts, for each entry, the first
// enclosure whose MIME type begins with "audio/". Entries without an
// audio enclosure are omitted, matching the original's download_rss.
func (d *Downloader) DownloadRSS(rssURL string) (*models.PodcastInfo, error) {
	logger.Info("downloading_rss", "url", rssURL)

	feed, err := feedParser.ParseURL(rssURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download RSS feed: %w", err)
	}

	info := &models.PodcastInfo{
		Title:       feed.Title,
		Description: feed.Description,
		Link:        feed.Link,
	}

	for _, item := range feed.Items {
		audioURL := firstAudioEnclosure(item)
		if audioURL == "" {
			continue
		}
		published := ""
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format("Mon, 02 Jan 2006 15:04:05 -0700")
		}
		info.Episodes = append(info.Episodes, models.Episode{
			Title:       item.Title,
			Description: item.Description,
			Published:   published,
			AudioURL:    audioURL,
		})
	}

	logger.Info("rss_download_complete", "url", rssURL, "episodes", len(info.Episodes))
	return info, nil
}

func firstAudioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
	}
	return ""
}

// RewriteEnclosures rewrites every episode's AudioURL to point back at
// this server's /process endpoint, retaining the source URL as
// OriginalURL, matching the original's base_url rewriting in
// _handle_rss_download_request.
func RewriteEnclosures(info *models.PodcastInfo, baseURL string) {
	for i := range info.Episodes {
		original := info.Episodes[i].AudioURL
		if original == "" {
			continue
		}
		info.Episodes[i].OriginalURL = original
		info.Episodes[i].AudioURL = fmt.Sprintf("%s/process?url=%s", baseURL, original)
	}
}
