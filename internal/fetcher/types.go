// Package fetcher defines the FetcherAdapter contract over yt-dlp (spec
// §2 "FetcherAdapter") and dispatches to a per-host Handler: YouTube,
// Patreon, Twitter/X, or a generic default.
package fetcher

import (
	"context"
	"time"

	"github.com/thurstonsan/anypod/internal/model"
)

// Item is one piece of upstream metadata, parsed from a yt-dlp info dict
// into the shape the Enqueuer/Downloader/ManualSubmissionService need.
type Item struct {
	ID        string
	SourceURL string
	Title     string
	Published time.Time

	// Status is either StatusUpcoming (live/scheduled, not yet a VOD) or
	// StatusQueued (ready to download). Any other value is a handler bug.
	Status model.DownloadStatus

	Ext      string
	MimeType string
	Filesize int64
	Duration int64

	Description        string
	RemoteThumbnailURL *string
	PlaylistIndex      *int
	QualityInfo        string
}

// MediaResult is the outcome of downloading one item's media to a scratch path.
type MediaResult struct {
	TempPath string
	Ext      string
	MimeType string
	Filesize int64
	Duration int64 // 0 if the handler could not determine it; caller probes
	Logs     string
}

// TranscriptResult is the outcome of downloading one item's transcript.
type TranscriptResult struct {
	TempPath string
	Ext      string
	Lang     string
	Source   model.TranscriptSource
}

// DiscoverOptions parameterizes a discovery/re-check call.
type DiscoverOptions struct {
	YtArgs      []string
	CookiesPath string
}

// Handler is the per-host implementation of FetcherAdapter's contract
// (spec §2's row: "discovery, playlist enumeration, per-item metadata,
// media download, thumbnail download, subtitle download").
type Handler interface {
	// Matches reports whether this handler owns sourceURL.
	Matches(sourceURL string) bool

	// Discover enumerates items at resolvedURL published on/after since (day
	// floor), returning the resolved URL discovery settled on (e.g. a
	// channel's /videos tab) alongside the items.
	Discover(ctx context.Context, sourceURL string, since time.Time, opts DiscoverOptions) (resolvedURL string, items []Item, err error)

	// FetchMetadata re-fetches metadata for a single known URL (UPCOMING
	// re-check, or ManualSubmissionService's single-video mode). May return
	// more than one Item if sourceURL is ambiguous; callers match by ID.
	FetchMetadata(ctx context.Context, sourceURL string, opts DiscoverOptions) ([]Item, error)

	// DownloadMedia fetches item's media into a scratch file under tmpDir.
	DownloadMedia(ctx context.Context, item Item, tmpDir string, opts DiscoverOptions) (*MediaResult, error)

	// DownloadThumbnail fetches the thumbnail at url to destPath, writing the
	// fetched bytes as they are; the image is not converted to JPG. A no-op
	// returning nil if url is empty.
	DownloadThumbnail(ctx context.Context, url, destPath string) error

	// DownloadTranscript fetches a transcript for item in the first available
	// language/source from priority, or (nil, nil) if none is available.
	DownloadTranscript(ctx context.Context, item Item, lang string, priority []model.TranscriptSource, tmpDir string) (*TranscriptResult, error)
}
