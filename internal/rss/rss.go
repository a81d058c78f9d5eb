// Package rss generates the RSS 2.0 + iTunes Podcast Namespace XML document
// for one feed (spec §6.4). No RSS-writer library exists anywhere in the
// dependency pack (gofeed, the one feed library in reach, is parse-only),
// so this is built directly on encoding/xml.
package rss

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
)

const generator = "AnyPod: https://github.com/thurstonsan/anypod"

const itunesNS = "http://www.itunes.com/dtds/podcast-1.0.dtd"

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	ItunesNS string  `xml:"xmlns:itunes,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string        `xml:"title"`
	Link          string        `xml:"link"`
	AtomLink      *atomLink     `xml:"atom:link,omitempty"`
	Description   string        `xml:"description"`
	ItunesSummary string        `xml:"itunes:summary,omitempty"`
	Language      string        `xml:"language"`
	Category      *xmlCategory  `xml:"category,omitempty"`
	ItunesCategory *itunesCategory `xml:"itunes:category,omitempty"`
	ItunesType    string        `xml:"itunes:type,omitempty"`
	ItunesExplicit string       `xml:"itunes:explicit"`
	ItunesImage   *itunesImage  `xml:"itunes:image,omitempty"`
	ItunesAuthor  string        `xml:"itunes:author,omitempty"`
	ItunesOwner   *itunesOwner  `xml:"itunes:owner,omitempty"`
	LastBuildDate string        `xml:"lastBuildDate"`
	Generator     string        `xml:"generator"`
	TTL           int           `xml:"ttl"`
	Items         []item        `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type xmlCategory struct {
	Text string `xml:",chardata"`
}

type itunesCategory struct {
	Text string          `xml:"text,attr"`
	Sub  *itunesSubcategory `xml:"itunes:category,omitempty"`
}

type itunesSubcategory struct {
	Text string `xml:"text,attr"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name,omitempty"`
	Email string `xml:"itunes:email,omitempty"`
}

type item struct {
	GUID          guid         `xml:"guid"`
	Title         string       `xml:"title"`
	ItunesTitle   string       `xml:"itunes:title,omitempty"`
	Description   string       `xml:"description"`
	ItunesSummary string       `xml:"itunes:summary,omitempty"`
	ItunesImage   *itunesImage `xml:"itunes:image,omitempty"`
	Enclosure     enclosure    `xml:"enclosure"`
	Link          string       `xml:"link"`
	PubDate       string       `xml:"pubDate"`
	Source        *source      `xml:"source,omitempty"`
	ItunesDuration string      `xml:"itunes:duration,omitempty"`
	ItunesEpisodeType string   `xml:"itunes:episodeType"`
}

type guid struct {
	Text        string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

type enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type source struct {
	Text string `xml:",chardata"`
	URL  string `xml:"url,attr"`
}

// Generator builds the RSS XML for one feed from its durable record and
// DOWNLOADED items.
type Generator struct {
	paths *pathmanager.PathManager
}

func New(paths *pathmanager.PathManager) *Generator {
	return &Generator{paths: paths}
}

// Render builds the pretty-printed XML document for feed, with downloads
// already filtered to DOWNLOADED and ordered published DESC.
func (g *Generator) Render(baseURL string, feed *model.Feed, downloads []*model.Download) ([]byte, error) {
	doc := rssDocument{
		Version:  "2.0",
		ItunesNS: itunesNS,
		Channel: channel{
			Title:       feed.Title,
			Link:        feed.SourceURL,
			AtomLink:    &atomLink{Href: pathmanager.FeedXMLURL(baseURL, feed.ID), Rel: "self", Type: "application/rss+xml"},
			Description: feed.Description,
			ItunesSummary: feed.Description,
			Language:    defaultString(feed.Language, "en"),
			ItunesType:  string(feed.PodcastType),
			ItunesExplicit: feed.Explicit.ITunesValue(),
			ItunesAuthor:   feed.Author,
			LastBuildDate:  time.Now().UTC().Format(time.RFC1123Z),
			Generator:      generator,
			TTL:            60,
		},
	}

	if feed.AuthorEmail != "" || feed.Author != "" {
		doc.Channel.ItunesOwner = &itunesOwner{Name: feed.Author, Email: feed.AuthorEmail}
	}
	if feed.ImageExt != "" {
		doc.Channel.ItunesImage = &itunesImage{Href: pathmanager.FeedImageURL(baseURL, feed.ID, feed.ImageExt)}
	}
	if len(feed.Category) > 0 {
		main := feed.Category[0]
		doc.Channel.Category = &xmlCategory{Text: categoryText(main)}
		ic := &itunesCategory{Text: main.Main}
		if main.Sub != "" {
			ic.Sub = &itunesSubcategory{Text: main.Sub}
		}
		doc.Channel.ItunesCategory = ic
	}

	for _, dl := range downloads {
		doc.Channel.Items = append(doc.Channel.Items, g.renderItem(baseURL, feed.ID, dl))
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperrors.NewRSSGenerationError(feed.ID, "marshaling RSS XML", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func (g *Generator) renderItem(baseURL, feedID string, dl *model.Download) item {
	description := dl.Description
	if description == "" {
		description = dl.Title
	}

	it := item{
		GUID:          guid{Text: dl.SourceURL, IsPermaLink: true},
		Title:         dl.Title,
		ItunesTitle:   dl.Title,
		Description:   description,
		ItunesSummary: description,
		Enclosure: enclosure{
			URL:    pathmanager.MediaURL(baseURL, feedID, dl.ID, dl.Ext),
			Length: dl.Filesize,
			Type:   dl.MimeType,
		},
		Link:              dl.SourceURL,
		PubDate:           dl.Published.UTC().Format(time.RFC1123Z),
		Source:            &source{URL: dl.SourceURL, Text: dl.SourceURL},
		ItunesDuration:    formatDuration(dl.Duration),
		ItunesEpisodeType: "full",
	}

	if dl.ThumbnailExt != nil && *dl.ThumbnailExt != "" {
		it.ItunesImage = &itunesImage{Href: pathmanager.DownloadImageURL(baseURL, feedID, dl.ID)}
	}

	return it
}

func categoryText(c model.Category) string {
	if c.Sub == "" {
		return c.Main
	}
	return fmt.Sprintf("%s/%s", c.Main, c.Sub)
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
