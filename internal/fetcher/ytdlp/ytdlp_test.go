package ytdlp

import (
	"testing"
	"time"

	"github.com/thurstonsan/anypod/internal/model"
)

func TestEntry_Published(t *testing.T) {
	cases := []struct {
		name    string
		entry   Entry
		want    time.Time
		wantErr bool
	}{
		{"release timestamp wins", Entry{ReleaseTimestamp: 1000, Timestamp: 2000, UploadDate: "20200101"}, time.Unix(1000, 0).UTC(), false},
		{"timestamp fallback", Entry{Timestamp: 1000, UploadDate: "20200101"}, time.Unix(1000, 0).UTC(), false},
		{"upload date fallback", Entry{UploadDate: "20200315"}, time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"nothing set", Entry{}, time.Time{}, true},
		{"malformed upload date", Entry{UploadDate: "not-a-date"}, time.Time{}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.entry.Published()
			if c.wantErr {
				if err == nil {
					t.Fatalf("Published() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Published() error = %v", err)
			}
			if !got.Equal(c.want) {
				t.Errorf("Published() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestEntry_Status(t *testing.T) {
	cases := map[string]model.DownloadStatus{
		"is_upcoming": model.StatusUpcoming,
		"is_live":     model.StatusUpcoming,
		"was_live":    model.StatusQueued,
		"":            model.StatusQueued,
	}
	for liveStatus, want := range cases {
		got := Entry{LiveStatus: liveStatus}.Status()
		if got != want {
			t.Errorf("Status() for LiveStatus=%q = %v, want %v", liveStatus, got, want)
		}
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"m4a":     "audio/mp4",
		"mp3":     "audio/mpeg",
		"flac":    "audio/flac",
		"ogg":     "audio/ogg",
		"opus":    "audio/ogg",
		"webm":    "video/webm",
		"mp4":     "video/mp4",
		"m4v":     "video/mp4",
		"unknown": model.SentinelMimeType,
	}
	for ext, want := range cases {
		if got := MimeType(ext); got != want {
			t.Errorf("MimeType(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestEntry_DurationCandidateURLs(t *testing.T) {
	e := Entry{
		RequestedDownloads: []RequestedDownload{{URL: "https://rd.example/1"}},
		URL:                "https://top.example/1",
		Formats: []Format{
			{URL: "https://fmt.example/1", ManifestURL: "https://fmt.example/manifest"},
		},
	}
	got := e.DurationCandidateURLs()
	want := []string{"https://rd.example/1", "https://top.example/1", "https://fmt.example/1", "https://fmt.example/manifest"}
	if len(got) != len(want) {
		t.Fatalf("len(candidates) = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEntry_DurationCandidateURLs_Empty(t *testing.T) {
	got := Entry{}.DurationCandidateURLs()
	if len(got) != 0 {
		t.Errorf("DurationCandidateURLs() = %v, want empty", got)
	}
}

func TestEntry_FilesizeOrSentinel(t *testing.T) {
	if got := (Entry{Filesize: 500}).FilesizeOrSentinel(); got != 500 {
		t.Errorf("FilesizeOrSentinel() = %d, want 500", got)
	}
	if got := (Entry{FilesizeApprox: 600}).FilesizeOrSentinel(); got != 600 {
		t.Errorf("FilesizeOrSentinel() = %d, want 600", got)
	}
	if got := (Entry{}).FilesizeOrSentinel(); got != model.SentinelFilesize {
		t.Errorf("FilesizeOrSentinel() = %d, want sentinel", got)
	}
}

func TestParseThumbnail(t *testing.T) {
	if got := ParseThumbnail(""); got != nil {
		t.Errorf("ParseThumbnail(\"\") = %v, want nil", got)
	}
	got := ParseThumbnail("https://example.com/thumb.jpg")
	if got == nil || *got != "https://example.com/thumb.jpg" {
		t.Errorf("ParseThumbnail() = %v, want pointer to url", got)
	}
}
