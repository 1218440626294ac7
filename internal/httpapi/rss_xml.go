package httpapi

import (
	"encoding/xml"
	"strings"

	"podcleaner/internal/models"
)

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       string       `xml:"title"`
	Description string       `xml:"description"`
	PubDate     string       `xml:"pubDate,omitempty"`
	Enclosure   rssEnclosure `xml:"enclosure"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	Items       []rssItem `xml:"item"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// RenderRSS synthesizes an RSS 2.0 document from info, whose episode
// AudioURLs are assumed already rewritten by downloader.RewriteEnclosures.
func RenderRSS(info *models.PodcastInfo) string {
	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       info.Title,
			Description: info.Description,
			Link:        info.Link,
		},
	}

	for _, ep := range info.Episodes {
		feed.Channel.Items = append(feed.Channel.Items, rssItem{
			Title:       ep.Title,
			Description: ep.Description,
			PubDate:     ep.Published,
			Enclosure:   rssEnclosure{URL: ep.AudioURL, Type: "audio/mpeg"},
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return ""
	}
	return xml.Header + strings.TrimSpace(string(out))
}
