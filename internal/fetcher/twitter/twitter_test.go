package twitter

import (
	"testing"

	"github.com/thurstonsan/anypod/internal/fetcher/ytdlp"
)

func TestMatches(t *testing.T) {
	h := New()
	cases := map[string]bool{
		"https://twitter.com/someuser/status/123": true,
		"https://x.com/someuser/status/123":       true,
		"https://www.x.com/someuser/status/123":   true,
		"https://www.youtube.com/watch?v=abc":     false,
		"not a url \x7f":                           false,
	}
	for url, want := range cases {
		if got := h.Matches(url); got != want {
			t.Errorf("Matches(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestToItem(t *testing.T) {
	e := ytdlp.Entry{
		ID:         "123",
		Title:      "A post",
		WebpageURL: "https://x.com/someuser/status/123",
		UploadDate: "20210605",
		Ext:        "mp4",
		Filesize:   100,
		Duration:   42.0,
	}
	item, err := toItem(e)
	if err != nil {
		t.Fatalf("toItem() error = %v", err)
	}
	if item.ID != "123" {
		t.Errorf("ID = %q, want 123", item.ID)
	}
	if item.Ext != "mp4" {
		t.Errorf("Ext = %q, want mp4", item.Ext)
	}
	if item.Duration != 42 {
		t.Errorf("Duration = %d, want 42", item.Duration)
	}
}

func TestToItem_MissingPublishedErrors(t *testing.T) {
	if _, err := toItem(ytdlp.Entry{ID: "1"}); err == nil {
		t.Fatal("expected error when no published timestamp can be resolved")
	}
}
