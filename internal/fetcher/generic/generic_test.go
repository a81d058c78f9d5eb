package generic

import (
	"testing"

	"github.com/thurstonsan/anypod/internal/fetcher/ytdlp"
)

func TestMatches_AlwaysTrue(t *testing.T) {
	h := New()
	cases := []string{
		"https://example.com/video",
		"https://vimeo.com/12345",
		"not a url at all",
		"",
	}
	for _, url := range cases {
		if !h.Matches(url) {
			t.Errorf("Matches(%q) = false, want true", url)
		}
	}
}

func TestToItem(t *testing.T) {
	e := ytdlp.Entry{
		ID:         "abc",
		Title:      "A video",
		WebpageURL: "https://example.com/abc",
		UploadDate: "20210605",
		Ext:        "webm",
		Filesize:   500,
		Duration:   12.5,
	}
	item, err := toItem(e)
	if err != nil {
		t.Fatalf("toItem() error = %v", err)
	}
	if item.ID != "abc" || item.Ext != "webm" || item.MimeType != "video/webm" {
		t.Errorf("toItem() = %+v, unexpected fields", item)
	}
	if item.Duration != 12 {
		t.Errorf("Duration = %d, want 12", item.Duration)
	}
}

func TestToItem_DefaultsExtWhenMissing(t *testing.T) {
	e := ytdlp.Entry{ID: "abc", WebpageURL: "https://example.com/abc", UploadDate: "20210605"}
	item, err := toItem(e)
	if err != nil {
		t.Fatalf("toItem() error = %v", err)
	}
	if item.Ext != "live" {
		t.Errorf("Ext = %q, want sentinel 'live'", item.Ext)
	}
}

func TestToItem_MissingPublishedErrors(t *testing.T) {
	if _, err := toItem(ytdlp.Entry{ID: "abc"}); err == nil {
		t.Fatal("expected error when no published timestamp can be resolved")
	}
}
