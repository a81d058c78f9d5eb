// Package enqueuer implements the Enqueuer phase (spec §4.3): it
// reconciles UPCOMING rows against the upstream source, then discovers new
// items, leaving every QUEUE-worthy item in QUEUED status for the
// Downloader to pick up.
package enqueuer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/store"
)

// Result is the Enqueuer's phase outcome: the count of items newly in
// QUEUED status, plus any non-fatal per-item errors encountered along the way.
type Result struct {
	NewlyQueued int
	Errors      []error
}

type Enqueuer struct {
	feeds       *store.FeedStore
	downloads   *store.DownloadStore
	registry    *fetcher.Registry
	cookiesPath string
	logger      zerolog.Logger
}

func New(feeds *store.FeedStore, downloads *store.DownloadStore, registry *fetcher.Registry, cookiesPath string, logger zerolog.Logger) *Enqueuer {
	return &Enqueuer{feeds: feeds, downloads: downloads, registry: registry, cookiesPath: cookiesPath, logger: logger}
}

// Run executes both phases for one feed against its resolved URL.
// lastSuccessfulSync is the feed's current watermark (spec §3.1): discovery
// only looks for items published since it, so repeat ticks don't re-walk the
// whole upstream history.
func (e *Enqueuer) Run(ctx context.Context, feedID string, cfg config.FeedConfig, resolvedURL string, lastSuccessfulSync time.Time) (Result, error) {
	handler, err := e.registry.Resolve(resolvedURL)
	if err != nil {
		return Result{}, apperrors.NewEnqueueError(feedID, "no handler for resolved URL", err)
	}
	opts := fetcher.DiscoverOptions{YtArgs: cfg.YtArgs, CookiesPath: e.cookiesPath}

	result := Result{}

	recheckCount, recheckErrs := e.recheckUpcoming(ctx, feedID, cfg, handler, opts)
	result.NewlyQueued += recheckCount
	result.Errors = append(result.Errors, recheckErrs...)

	since := e.watermark(cfg, lastSuccessfulSync)
	discoverCount, err := e.discoverNew(ctx, feedID, resolvedURL, since, handler, opts)
	if err != nil {
		return result, apperrors.NewEnqueueError(feedID, "discovery failed", err)
	}
	result.NewlyQueued += discoverCount

	return result, nil
}

// watermark derives the "fetch since" lower bound: the feed's watermark
// advances it on every successful run, while cfg.Since acts only as a floor
// that the watermark may never fall below (e.g. right after an operator
// raises the retention cutoff in feeds.yaml).
func (e *Enqueuer) watermark(cfg config.FeedConfig, lastSuccessfulSync time.Time) time.Time {
	since := lastSuccessfulSync
	if since.IsZero() {
		since = model.EpochMin
	}
	if cfg.Since != nil && cfg.Since.After(since) {
		since = *cfg.Since
	}
	return since
}

// recheckUpcoming implements spec §4.3 step 1.
func (e *Enqueuer) recheckUpcoming(ctx context.Context, feedID string, cfg config.FeedConfig, handler fetcher.Handler, opts fetcher.DiscoverOptions) (int, []error) {
	upcoming, err := e.downloads.ListByStatus(ctx, feedID, model.StatusUpcoming)
	if err != nil {
		return 0, []error{apperrors.NewEnqueueError(feedID, "listing upcoming downloads", err)}
	}

	var transitioned int
	var errs []error

	for _, dl := range upcoming {
		items, fetchErr := handler.FetchMetadata(ctx, dl.SourceURL, opts)
		if fetchErr != nil {
			e.bumpOrLog(ctx, feedID, dl.ID, cfg.MaxErrors, "re-check fetch failed: "+fetchErr.Error(), &errs)
			continue
		}

		match := matchByID(items, dl.ID)
		if match == nil {
			e.bumpOrLog(ctx, feedID, dl.ID, cfg.MaxErrors, "re-check returned no matching item", &errs)
			continue
		}
		if match.Status != model.StatusQueued {
			continue // still upcoming; nothing to do this tick
		}

		ok, err := e.downloads.TransitionUpcomingToQueued(ctx, feedID, dl.ID, match.Ext, match.MimeType, match.Filesize, match.Duration)
		if err != nil {
			errs = append(errs, apperrors.NewEnqueueError(feedID, "transitioning upcoming to queued", err))
			continue
		}
		if ok {
			transitioned++
		}
	}

	return transitioned, errs
}

func (e *Enqueuer) bumpOrLog(ctx context.Context, feedID, downloadID string, maxErrors int, message string, errs *[]error) {
	res, err := e.downloads.BumpRetries(ctx, feedID, downloadID, message, maxErrors)
	if err != nil {
		*errs = append(*errs, apperrors.NewEnqueueError(feedID, "bump_retries failed", err))
		return
	}
	if res.TransitionedToError {
		e.logger.Warn().Str("feedID", feedID).Str("downloadID", downloadID).Msg("upcoming item exhausted retries, moved to error")
	}
}

func matchByID(items []fetcher.Item, id string) *fetcher.Item {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

// discoverNew implements spec §4.3 step 2.
func (e *Enqueuer) discoverNew(ctx context.Context, feedID, resolvedURL string, since time.Time, handler fetcher.Handler, opts fetcher.DiscoverOptions) (int, error) {
	_, items, err := handler.Discover(ctx, resolvedURL, since, opts)
	if err != nil {
		return 0, err
	}

	var newlyQueued int
	for _, item := range items {
		transitioned, err := e.upsertDiscovered(ctx, feedID, item)
		if err != nil {
			e.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", item.ID).Msg("discover upsert failed")
			continue
		}
		if transitioned {
			newlyQueued++
		}
	}
	return newlyQueued, nil
}

func (e *Enqueuer) upsertDiscovered(ctx context.Context, feedID string, item fetcher.Item) (bool, error) {
	existing, err := e.downloads.GetDownload(ctx, feedID, item.ID)
	if err != nil && !apperrors.IsKind(err, apperrors.KindDownloadNotFound) {
		return false, err
	}

	if existing == nil {
		dl := itemToDownload(feedID, item)
		if err := e.downloads.UpsertDownload(ctx, dl); err != nil {
			return false, err
		}
		return item.Status == model.StatusQueued, nil
	}

	switch {
	case existing.Status == model.StatusDownloaded:
		return false, nil // never regress a downloaded item
	case existing.Status == model.StatusUpcoming && item.Status == model.StatusQueued:
		ok, err := e.downloads.TransitionUpcomingToQueued(ctx, feedID, item.ID, item.Ext, item.MimeType, item.Filesize, item.Duration)
		return ok, err
	default:
		dl := itemToDownload(feedID, item)
		dl.Status = existing.Status
		if err := e.downloads.UpsertDownload(ctx, dl); err != nil {
			return false, err
		}
		return false, nil
	}
}

func itemToDownload(feedID string, item fetcher.Item) *model.Download {
	return &model.Download{
		FeedID:             feedID,
		ID:                 item.ID,
		SourceURL:          item.SourceURL,
		Title:              item.Title,
		Published:          item.Published,
		Ext:                item.Ext,
		MimeType:           item.MimeType,
		Filesize:           item.Filesize,
		Duration:           item.Duration,
		Status:             item.Status,
		Description:        item.Description,
		RemoteThumbnailURL: item.RemoteThumbnailURL,
		QualityInfo:        item.QualityInfo,
		PlaylistIndex:      item.PlaylistIndex,
	}
}
