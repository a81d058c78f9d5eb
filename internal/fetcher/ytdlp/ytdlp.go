// Package ytdlp wraps the yt-dlp binary's JSON-dump output, shared by every
// per-host fetcher handler.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/fetcher/procutil"
	"github.com/thurstonsan/anypod/internal/model"
)

const binary = "yt-dlp"

// RequestedDownload is one entry of yt-dlp's requested_downloads array.
type RequestedDownload struct {
	URL string `json:"url"`
}

// Format is one entry of yt-dlp's formats array.
type Format struct {
	URL         string `json:"url"`
	ManifestURL string `json:"manifest_url"`
}

// Entry is the subset of yt-dlp's info-dict this daemon reads. Field names
// mirror yt-dlp's own JSON keys.
type Entry struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	WebpageURL         string              `json:"webpage_url"`
	URL                string              `json:"url"`
	Ext                string              `json:"ext"`
	UploadDate         string              `json:"upload_date"`
	Timestamp          float64             `json:"timestamp"`
	ReleaseTimestamp   float64             `json:"release_timestamp"`
	LiveStatus         string              `json:"live_status"`
	IsLive             bool                `json:"is_live"`
	WasLive            bool                `json:"was_live"`
	Duration           float64             `json:"duration"`
	Filesize           int64               `json:"filesize"`
	FilesizeApprox     int64               `json:"filesize_approx"`
	Thumbnail          string              `json:"thumbnail"`
	Description        string              `json:"description"`
	Type               string              `json:"_type"`
	IEKey              string              `json:"ie_key"`
	RequestedDownloads []RequestedDownload `json:"requested_downloads"`
	Formats            []Format            `json:"formats"`
	PlaylistIndex      int                 `json:"playlist_index"`
}

// DumpJSON invokes `yt-dlp --dump-json [--flat-playlist] <extraArgs> <url>`
// and returns the raw entries, one per printed JSON line.
func DumpJSON(ctx context.Context, url string, extraArgs []string, cookiesPath string, flat bool) ([]Entry, error) {
	args := []string{"--dump-json", "--no-warnings", "--ignore-errors"}
	if flat {
		args = append(args, "--flat-playlist")
	}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	args = append(args, extraArgs...)
	args = append(args, url)

	res, err := procutil.Run(ctx, binary, args...)
	if err != nil && res == nil {
		return nil, apperrors.NewYtdlpAPIError("yt-dlp invocation failed", err)
	}

	var entries []Entry
	for _, line := range bytes.Split(bytes.TrimSpace(res.Stdout), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e Entry
		if jsonErr := json.Unmarshal(line, &e); jsonErr != nil {
			return nil, apperrors.NewYtdlpDataError("malformed yt-dlp JSON line", jsonErr)
		}
		entries = append(entries, e)
	}

	if err != nil {
		// yt-dlp returned a non-zero exit but we still parsed some entries
		// (--ignore-errors); surface the failure only if nothing usable came out.
		if len(entries) == 0 {
			return nil, apperrors.NewYtdlpAPIError("yt-dlp returned no usable entries", err)
		}
	}
	return entries, nil
}

// Published resolves an Entry's publish time from whichever field yt-dlp
// populated, preferring the most precise.
func (e Entry) Published() (time.Time, error) {
	if e.ReleaseTimestamp > 0 {
		return time.Unix(int64(e.ReleaseTimestamp), 0).UTC(), nil
	}
	if e.Timestamp > 0 {
		return time.Unix(int64(e.Timestamp), 0).UTC(), nil
	}
	if e.UploadDate != "" {
		t, err := time.Parse("20060102", e.UploadDate)
		if err != nil {
			return time.Time{}, apperrors.NewYtdlpFieldMissingError("upload_date")
		}
		return t.UTC(), nil
	}
	return time.Time{}, apperrors.NewYtdlpFieldMissingError("published")
}

// Status classifies the entry as UPCOMING (live/scheduled, no VOD yet) or
// QUEUED (a downloadable VOD), per spec §4.2/§4.3.
func (e Entry) Status() model.DownloadStatus {
	switch e.LiveStatus {
	case "is_upcoming", "is_live":
		return model.StatusUpcoming
	default:
		return model.StatusQueued
	}
}

// MimeType maps a yt-dlp/ffmpeg container extension to its MIME type.
func MimeType(ext string) string {
	switch ext {
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "ogg", "opus":
		return "audio/ogg"
	case "webm":
		return "video/webm"
	case "mp4", "m4v":
		return "video/mp4"
	default:
		return model.SentinelMimeType
	}
}

// DurationCandidateURLs returns the exact fallback order the Patreon handler
// probes for duration via ffprobe (spec §9 open question, preserved literally):
// requested_downloads[0].url -> top-level url -> first format's url/manifest_url.
func (e Entry) DurationCandidateURLs() []string {
	var out []string
	if len(e.RequestedDownloads) > 0 && e.RequestedDownloads[0].URL != "" {
		out = append(out, e.RequestedDownloads[0].URL)
	}
	if e.URL != "" {
		out = append(out, e.URL)
	}
	if len(e.Formats) > 0 {
		if e.Formats[0].URL != "" {
			out = append(out, e.Formats[0].URL)
		}
		if e.Formats[0].ManifestURL != "" {
			out = append(out, e.Formats[0].ManifestURL)
		}
	}
	return out
}

// FilesizeOrSentinel returns Filesize, falling back to FilesizeApprox, then
// the UPCOMING sentinel when neither is known.
func (e Entry) FilesizeOrSentinel() int64 {
	if e.Filesize > 0 {
		return e.Filesize
	}
	if e.FilesizeApprox > 0 {
		return e.FilesizeApprox
	}
	return model.SentinelFilesize
}

// ParseThumbnail returns a pointer to the thumbnail URL, or nil if absent.
func ParseThumbnail(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}
