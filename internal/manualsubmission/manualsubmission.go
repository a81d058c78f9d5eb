// Package manualsubmission implements ManualSubmissionService (spec §4.8):
// single-URL ingestion for manual feeds.
package manualsubmission

import (
	"context"
	"fmt"
	"strings"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/scheduler"
	"github.com/thurstonsan/anypod/internal/store"
)

// Result is submit's return contract: download id, final status, whether
// the row is new, and a human-readable message.
type Result struct {
	DownloadID  string
	FinalStatus model.DownloadStatus
	WasNew      bool
	Message     string
}

type Service struct {
	feeds       *store.FeedStore
	downloads   *store.DownloadStore
	registry    *fetcher.Registry
	runner      *scheduler.ManualRunner
	cookiesPath string
}

func New(feeds *store.FeedStore, downloads *store.DownloadStore, registry *fetcher.Registry, runner *scheduler.ManualRunner, cookiesPath string) *Service {
	return &Service{feeds: feeds, downloads: downloads, registry: registry, runner: runner, cookiesPath: cookiesPath}
}

// Submit ingests a single URL into a manual feed.
func (s *Service) Submit(ctx context.Context, feedID string, cfg config.FeedConfig, rawURL string) (Result, error) {
	normalized := normalizeURL(rawURL)

	handler, err := s.registry.Resolve(normalized)
	if err != nil {
		return Result{}, apperrors.NewManualSubmissionUnsupportedURL(normalized)
	}

	opts := fetcher.DiscoverOptions{YtArgs: cfg.YtArgs, CookiesPath: s.cookiesPath}
	items, err := handler.FetchMetadata(ctx, normalized, opts)
	if err != nil || len(items) == 0 {
		return Result{}, apperrors.NewManualSubmissionUnsupportedURL(normalized)
	}
	item := items[0]

	if item.Status == model.StatusUpcoming {
		return Result{}, apperrors.NewManualSubmissionUnavailable(fmt.Sprintf("%q is not yet available (scheduled or live)", normalized))
	}

	existing, err := s.downloads.GetDownload(ctx, feedID, item.ID)
	if err != nil && !apperrors.IsKind(err, apperrors.KindDownloadNotFound) {
		return Result{}, apperrors.NewManualSubmissionError("looking up existing download", err)
	}

	var wasNew bool
	var message string
	finalStatus := model.StatusQueued

	switch {
	case existing == nil:
		dl := &model.Download{
			FeedID: feedID, ID: item.ID, SourceURL: item.SourceURL, Title: item.Title,
			Published: item.Published, Ext: item.Ext, MimeType: item.MimeType,
			Filesize: item.Filesize, Duration: item.Duration, Status: model.StatusQueued,
			Description: item.Description, RemoteThumbnailURL: item.RemoteThumbnailURL,
		}
		if err := s.downloads.UpsertDownload(ctx, dl); err != nil {
			return Result{}, apperrors.NewManualSubmissionError("inserting submitted download", err)
		}
		wasNew = true
		message = "submitted for download"

	case existing.Status == model.StatusDownloaded:
		message = "already downloaded"
		finalStatus = model.StatusDownloaded

	default:
		if _, err := s.downloads.RequeueDownloads(ctx, feedID, []string{item.ID}, nil); err != nil {
			return Result{}, apperrors.NewManualSubmissionError("requeuing submitted download", err)
		}
		message = "re-queued for download"
	}

	if wasNew || message == "re-queued for download" {
		s.runner.Trigger(feedID, cfg)
	}

	return Result{DownloadID: item.ID, FinalStatus: finalStatus, WasNew: wasNew, Message: message}, nil
}

func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}
