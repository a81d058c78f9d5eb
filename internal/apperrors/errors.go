// Package apperrors implements anypod's single-rooted error hierarchy
// (spec §7). Each layer wraps the errors it can meaningfully translate with
// its own Kind, preserving the cause chain via Unwrap.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error the way the table in spec §7 does.
type Kind string

const (
	KindConfigLoad            Kind = "config_load"
	KindDatabaseOperation      Kind = "database_operation"
	KindDownloadNotFound       Kind = "download_not_found"
	KindFeedNotFound           Kind = "feed_not_found"
	KindFileOperation          Kind = "file_operation"
	KindEnqueue                Kind = "enqueue"
	KindDownloader             Kind = "downloader"
	KindPrune                  Kind = "prune"
	KindRSSGeneration          Kind = "rss_generation"
	KindYtdlpAPI               Kind = "ytdlp_api"
	KindYtdlpData              Kind = "ytdlp_data"
	KindYtdlpFieldMissing      Kind = "ytdlp_field_missing"
	KindFFProbe                Kind = "ffprobe"
	KindFFmpeg                 Kind = "ffmpeg"
	KindImageDownload          Kind = "image_download"
	KindStateReconciliation    Kind = "state_reconciliation"
	KindManualSubmission       Kind = "manual_submission"
	KindManualSubmissionUnsupported Kind = "manual_submission_unsupported"
	KindManualSubmissionUnavailable Kind = "manual_submission_unavailable"
	KindScheduler              Kind = "scheduler"
)

// Error is anypod's concrete error type. Every constructor below returns one.
type Error struct {
	Kind       Kind
	Message    string
	FeedID     string
	DownloadID string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.FeedID != "" && e.DownloadID != "":
		return fmt.Sprintf("[%s] feed=%s download=%s: %s", e.Kind, e.FeedID, e.DownloadID, e.causeMsg())
	case e.FeedID != "":
		return fmt.Sprintf("[%s] feed=%s: %s", e.Kind, e.FeedID, e.causeMsg())
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.causeMsg())
	}
}

func (e *Error) causeMsg() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind, the way the teacher's IndexerError does.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, feedID, downloadID, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, FeedID: feedID, DownloadID: downloadID, Cause: cause}
}

func NewConfigLoadError(message string, cause error) *Error {
	return newErr(KindConfigLoad, "", "", message, cause)
}

func NewDatabaseOperationError(feedID, downloadID, message string, cause error) *Error {
	return newErr(KindDatabaseOperation, feedID, downloadID, message, cause)
}

func NewDownloadNotFoundError(feedID, downloadID string) *Error {
	return newErr(KindDownloadNotFound, feedID, downloadID, "download not found", nil)
}

func NewFeedNotFoundError(feedID string) *Error {
	return newErr(KindFeedNotFound, feedID, "", "feed not found", nil)
}

func NewFileOperationError(feedID, downloadID, message string, cause error) *Error {
	return newErr(KindFileOperation, feedID, downloadID, message, cause)
}

func NewEnqueueError(feedID, message string, cause error) *Error {
	return newErr(KindEnqueue, feedID, "", message, cause)
}

func NewDownloaderError(feedID, downloadID, message string, cause error) *Error {
	return newErr(KindDownloader, feedID, downloadID, message, cause)
}

func NewPruneError(feedID, message string, cause error) *Error {
	return newErr(KindPrune, feedID, "", message, cause)
}

func NewRSSGenerationError(feedID, message string, cause error) *Error {
	return newErr(KindRSSGeneration, feedID, "", message, cause)
}

func NewYtdlpAPIError(message string, cause error) *Error {
	return newErr(KindYtdlpAPI, "", "", message, cause)
}

func NewYtdlpDataError(message string, cause error) *Error {
	return newErr(KindYtdlpData, "", "", message, cause)
}

func NewYtdlpFieldMissingError(field string) *Error {
	return newErr(KindYtdlpFieldMissing, "", "", "missing or invalid field: "+field, nil)
}

func NewFFProbeError(message string, cause error) *Error {
	return newErr(KindFFProbe, "", "", message, cause)
}

func NewFFmpegError(message string, cause error) *Error {
	return newErr(KindFFmpeg, "", "", message, cause)
}

func NewImageDownloadError(feedID, downloadID, message string, cause error) *Error {
	return newErr(KindImageDownload, feedID, downloadID, message, cause)
}

func NewStateReconciliationError(feedID, message string, cause error) *Error {
	return newErr(KindStateReconciliation, feedID, "", message, cause)
}

func NewManualSubmissionError(message string, cause error) *Error {
	return newErr(KindManualSubmission, "", "", message, cause)
}

func NewManualSubmissionUnsupportedURL(url string) *Error {
	return newErr(KindManualSubmissionUnsupported, "", "", "unsupported URL: "+url, nil)
}

func NewManualSubmissionUnavailable(message string) *Error {
	return newErr(KindManualSubmissionUnavailable, "", "", message, nil)
}

func NewSchedulerError(feedID, message string, cause error) *Error {
	return newErr(KindScheduler, feedID, "", message, cause)
}

// KindOf extracts the Kind from err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
