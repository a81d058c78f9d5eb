package model

import "time"

// Sentinel values held by UPCOMING rows until real media metadata is known
// (spec §3.2).
const (
	SentinelExt      = "live"
	SentinelMimeType = "application/octet-stream"
	SentinelFilesize = int64(1)
	SentinelDuration = int64(1)
)

// Download is the durable record described in spec §3.2, keyed by
// (FeedID, ID).
type Download struct {
	FeedID string
	ID     string

	SourceURL string
	Title     string
	Published time.Time

	Ext      string
	MimeType string
	Filesize int64
	Duration int64

	Status DownloadStatus

	DiscoveredAt  time.Time
	UpdatedAt     time.Time
	DownloadedAt  *time.Time

	RemoteThumbnailURL *string
	ThumbnailExt       *string

	Description  string
	QualityInfo  string

	Retries   int
	LastError *string

	DownloadLogs *string

	PlaylistIndex *int

	TranscriptExt    *string
	TranscriptLang   *string
	TranscriptSource *TranscriptSource
}

// NewUpcoming builds an UPCOMING row with the sentinel media descriptors.
func NewUpcoming(feedID, id, sourceURL, title string, published time.Time) *Download {
	return &Download{
		FeedID:    feedID,
		ID:        id,
		SourceURL: sourceURL,
		Title:     title,
		Published: published,
		Ext:       SentinelExt,
		MimeType:  SentinelMimeType,
		Filesize:  SentinelFilesize,
		Duration:  SentinelDuration,
		Status:    StatusUpcoming,
	}
}

// NewQueued builds a QUEUED row with real media descriptors already known.
func NewQueued(feedID, id, sourceURL, title string, published time.Time, ext, mimeType string, filesize, duration int64) *Download {
	return &Download{
		FeedID:    feedID,
		ID:        id,
		SourceURL: sourceURL,
		Title:     title,
		Published: published,
		Ext:       ext,
		MimeType:  mimeType,
		Filesize:  filesize,
		Duration:  duration,
		Status:    StatusQueued,
	}
}
