package model

import "time"

// EpochMin is the sentinel "beginning of time" watermark used when a feed has
// no explicit `since` and has never synced successfully.
var EpochMin = time.Unix(0, 0).UTC()

// Feed is the durable record described in spec §3.1.
type Feed struct {
	ID        string
	IsEnabled bool

	SourceType   SourceType
	SourceURL    string
	ResolvedURL  string

	LastSuccessfulSync  time.Time
	LastFailedSync      *time.Time
	ConsecutiveFailures int
	LastError           *string

	LastRSSGeneration *time.Time

	Since     *time.Time
	KeepLast  *int

	// TotalDownloads is trigger/transaction-maintained; callers never set it.
	TotalDownloads int

	Title           string
	Subtitle        string
	Description     string
	Language        string
	Author          string
	AuthorEmail     string
	RemoteImageURL  string
	ImageExt        string
	Category        []Category
	PodcastType     PodcastType
	Explicit        PodcastExplicit

	IsManual bool
	Schedule string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is a single (main, optional sub) Apple Podcasts category pairing.
type Category struct {
	Main string
	Sub  string // empty when there is no subcategory
}
