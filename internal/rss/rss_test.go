package rss

import (
	"strings"
	"testing"
	"time"

	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
)

func TestGenerator_Render_ProducesValidDocument(t *testing.T) {
	g := New(pathmanager.New(t.TempDir()))

	feed := &model.Feed{
		ID: "f1", Title: "My Feed", Description: "A test feed", Language: "en",
		SourceURL: "https://example.com/f1", Author: "Author Name", AuthorEmail: "author@example.com",
		PodcastType: model.PodcastTypeEpisodic, Explicit: model.ExplicitNo,
		Category: []model.Category{{Main: "Technology", Sub: "Software"}},
	}

	published := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	thumbExt := "jpg"
	downloads := []*model.Download{
		{
			FeedID: "f1", ID: "v1", Title: "Episode 1", Description: "First episode",
			SourceURL: "https://example.com/v1", Published: published,
			Ext: "mp4", MimeType: "video/mp4", Filesize: 12345, Duration: 125,
			Status: model.StatusDownloaded, ThumbnailExt: &thumbExt,
		},
	}

	out, err := g.Render("https://pod.example.com", feed, downloads)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	doc := string(out)
	if !strings.Contains(doc, "<?xml") {
		t.Errorf("missing xml header: %s", doc)
	}
	if !strings.Contains(doc, "<title>My Feed</title>") {
		t.Errorf("missing channel title: %s", doc)
	}
	if !strings.Contains(doc, "Episode 1") {
		t.Errorf("missing item title: %s", doc)
	}
	if !strings.Contains(doc, "https://pod.example.com/media/f1/v1.mp4") {
		t.Errorf("missing enclosure url: %s", doc)
	}
	if !strings.Contains(doc, `length="12345"`) {
		t.Errorf("missing enclosure length: %s", doc)
	}
	if !strings.Contains(doc, "00:02:05") {
		t.Errorf("missing formatted duration: %s", doc)
	}
	if !strings.Contains(doc, "https://pod.example.com/images/f1/downloads/v1.jpg") {
		t.Errorf("missing item image url: %s", doc)
	}
}

func TestGenerator_Render_NoItems(t *testing.T) {
	g := New(pathmanager.New(t.TempDir()))
	feed := &model.Feed{ID: "f1", Title: "Empty Feed", Language: "en", PodcastType: model.PodcastTypeEpisodic, Explicit: model.ExplicitNo}

	out, err := g.Render("https://pod.example.com", feed, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(string(out), "<item>") {
		t.Errorf("expected no items, got: %s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3725, "01:02:05"},
		{-5, "00:00:00"},
	}
	for _, c := range cases {
		if got := formatDuration(c.seconds); got != c.want {
			t.Errorf("formatDuration(%d) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
