package model

import "time"

// GlobalStateID is the single row's primary key in the app_state table (spec §3.3).
const GlobalStateID = "global"

// AppState is the single-row table holding process-wide watermarks.
type AppState struct {
	ID              string
	LastYtDlpUpdate *time.Time
}

// BumpRetriesResult is the return value of Downloader/Enqueuer retry bumps,
// per spec §4.2's bump_retries contract.
type BumpRetriesResult struct {
	NewRetries       int
	FinalStatus      DownloadStatus
	TransitionedToError bool
}
