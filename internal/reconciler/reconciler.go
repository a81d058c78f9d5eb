// Package reconciler implements StateReconciler (spec §4.6): at startup,
// diffs the declarative feed configuration against persisted feed rows,
// archives feeds dropped from config, and restores ARCHIVED downloads when
// a feed's retention policy loosens.
package reconciler

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pruner"
	"github.com/thurstonsan/anypod/internal/store"
)

type Reconciler struct {
	feeds     *store.FeedStore
	downloads *store.DownloadStore
	prunerP   *pruner.Pruner
	logger    zerolog.Logger
}

func New(feeds *store.FeedStore, downloads *store.DownloadStore, prunerP *pruner.Pruner, logger zerolog.Logger) *Reconciler {
	return &Reconciler{feeds: feeds, downloads: downloads, prunerP: prunerP, logger: logger}
}

// Reconcile runs the full startup algorithm and returns the feed ids
// eligible for scheduling (config-present AND enabled).
func (r *Reconciler) Reconcile(ctx context.Context, feedConfigs map[string]config.FeedConfig) ([]string, error) {
	dbFeeds, err := r.feeds.ListFeeds(ctx)
	if err != nil {
		return nil, apperrors.NewStateReconciliationError("", "listing persisted feeds", err)
	}
	byID := make(map[string]*model.Feed, len(dbFeeds))
	for _, f := range dbFeeds {
		byID[f.ID] = f
	}

	var ready []string

	for feedID, cfg := range feedConfigs {
		existing, ok := byID[feedID]
		if !ok {
			if err := r.insertNewFeed(ctx, feedID, cfg); err != nil {
				return nil, err
			}
			if cfg.Enabled {
				ready = append(ready, feedID)
			}
			continue
		}

		if err := r.reconcileExisting(ctx, existing, cfg); err != nil {
			return nil, err
		}
		if cfg.Enabled {
			ready = append(ready, feedID)
		}
	}

	for feedID, existing := range byID {
		if _, inConfig := feedConfigs[feedID]; inConfig {
			continue
		}
		if !existing.IsEnabled {
			continue
		}
		if _, err := r.prunerP.ArchiveFeed(ctx, feedID); err != nil {
			r.logger.Warn().Err(err).Str("feedID", feedID).Msg("archiving dropped feed failed")
			continue
		}
		disabled := *existing
		disabled.IsEnabled = false
		if err := r.feeds.UpdateFeed(ctx, &disabled); err != nil {
			r.logger.Warn().Err(err).Str("feedID", feedID).Msg("disabling dropped feed failed")
		}
	}

	return ready, nil
}

func (r *Reconciler) insertNewFeed(ctx context.Context, feedID string, cfg config.FeedConfig) error {
	lastSuccessfulSync := model.EpochMin
	if cfg.Since != nil {
		lastSuccessfulSync = *cfg.Since
	}

	feed := &model.Feed{
		ID:                 feedID,
		IsEnabled:          cfg.Enabled,
		SourceType:         model.SourceUnknown,
		SourceURL:          cfg.URL,
		ResolvedURL:        cfg.URL,
		LastSuccessfulSync: lastSuccessfulSync,
		Since:              cfg.Since,
		KeepLast:           cfg.KeepLast,
		Title:              cfg.Metadata.Title,
		Subtitle:           cfg.Metadata.Subtitle,
		Description:        cfg.Metadata.Description,
		Language:           cfg.Metadata.Language,
		Author:             cfg.Metadata.Author,
		AuthorEmail:        cfg.Metadata.AuthorEmail,
		RemoteImageURL:     cfg.Metadata.ImageURL,
		Category:           cfg.Metadata.Category,
		PodcastType:        cfg.Metadata.PodcastType,
		Explicit:           cfg.Metadata.Explicit,
		IsManual:           cfg.IsManual,
		Schedule:           cfg.Schedule,
	}
	if err := r.feeds.InsertFeed(ctx, feed); err != nil {
		return apperrors.NewStateReconciliationError(feedID, "inserting new feed", err)
	}
	return nil
}

func (r *Reconciler) reconcileExisting(ctx context.Context, existing *model.Feed, cfg config.FeedConfig) error {
	diffed := diff(existing, cfg)
	if diffed == nil {
		return nil
	}

	if err := r.feeds.UpdateFeed(ctx, diffed); err != nil {
		return apperrors.NewStateReconciliationError(existing.ID, "updating feed from config diff", err)
	}

	if err := r.restoreOnLoosenedRetention(ctx, existing, cfg); err != nil {
		return err
	}
	return nil
}

// diff computes the mutable fields a config change should write, or nil if
// nothing changed.
func diff(existing *model.Feed, cfg config.FeedConfig) *model.Feed {
	changed := false
	updated := *existing

	if updated.IsEnabled != cfg.Enabled {
		updated.IsEnabled = cfg.Enabled
		changed = true
	}
	if updated.SourceURL != cfg.URL {
		updated.SourceURL = cfg.URL
		updated.ResolvedURL = cfg.URL
		changed = true
	}
	if !equalTimePtr(updated.Since, cfg.Since) {
		updated.Since = cfg.Since
		changed = true
	}
	if !equalIntPtr(updated.KeepLast, cfg.KeepLast) {
		updated.KeepLast = cfg.KeepLast
		changed = true
	}
	if updated.Title != cfg.Metadata.Title || updated.Description != cfg.Metadata.Description ||
		updated.Author != cfg.Metadata.Author || updated.Language != cfg.Metadata.Language {
		updated.Title = cfg.Metadata.Title
		updated.Description = cfg.Metadata.Description
		updated.Author = cfg.Metadata.Author
		updated.Language = cfg.Metadata.Language
		changed = true
	}
	if updated.Subtitle != cfg.Metadata.Subtitle {
		updated.Subtitle = cfg.Metadata.Subtitle
		changed = true
	}
	if updated.AuthorEmail != cfg.Metadata.AuthorEmail {
		updated.AuthorEmail = cfg.Metadata.AuthorEmail
		changed = true
	}
	if updated.RemoteImageURL != cfg.Metadata.ImageURL {
		updated.RemoteImageURL = cfg.Metadata.ImageURL
		changed = true
	}
	if !slices.Equal(updated.Category, cfg.Metadata.Category) {
		updated.Category = cfg.Metadata.Category
		changed = true
	}
	if updated.PodcastType != cfg.Metadata.PodcastType {
		updated.PodcastType = cfg.Metadata.PodcastType
		changed = true
	}
	if updated.Explicit != cfg.Metadata.Explicit {
		updated.Explicit = cfg.Metadata.Explicit
		changed = true
	}
	if updated.IsManual != cfg.IsManual {
		updated.IsManual = cfg.IsManual
		changed = true
	}
	if updated.Schedule != cfg.Schedule {
		updated.Schedule = cfg.Schedule
		changed = true
	}

	if !changed {
		return nil
	}
	return &updated
}

// restoreOnLoosenedRetention implements spec §4.6's restoration tables. The
// `since` table decides the date filter (or vetoes restoration outright when
// the filter got stricter); the `keep_last` table independently decides how
// many rows that filter may restore. A feed whose `keep_last` alone loosens,
// with `since` untouched, must still restore.
func (r *Reconciler) restoreOnLoosenedRetention(ctx context.Context, existing *model.Feed, cfg config.FeedConfig) error {
	sinceFilter, veto := sinceRestoreFilter(existing, cfg)
	if veto {
		return nil
	}

	limit := restorationLimit(existing, cfg)
	if limit == 0 {
		return nil
	}

	candidates, err := r.downloads.GetArchiveRestoreCandidates(ctx, existing.ID, sinceFilter, limit)
	if err != nil {
		return apperrors.NewStateReconciliationError(existing.ID, "listing archive restore candidates", err)
	}

	if len(candidates) == 0 {
		return nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}

	archived := model.StatusArchived
	if _, err := r.downloads.RequeueDownloads(ctx, existing.ID, ids, &archived); err != nil {
		return apperrors.NewStateReconciliationError(existing.ID, "restoring archived downloads", err)
	}
	return nil
}

// sinceRestoreFilter implements the `since` half of spec §4.6's table,
// returning the date floor restoration candidates must satisfy (nil = no
// floor) and whether the change alone vetoes restoration regardless of
// `keep_last`.
func sinceRestoreFilter(existing *model.Feed, cfg config.FeedConfig) (filter *time.Time, veto bool) {
	switch {
	case existing.Since == nil && cfg.Since != nil:
		return nil, true // absent -> present: stricter or equivalent
	case existing.Since != nil && cfg.Since == nil:
		return nil, false // present -> absent: unlimited (slack applied by keep_last limit)
	case existing.Since != nil && cfg.Since != nil:
		if cfg.Since.Before(*existing.Since) {
			return cfg.Since, false // present -> earlier: restore >= new_since
		}
		if cfg.Since.Equal(*existing.Since) {
			return cfg.Since, false // unchanged: keep_last alone may still loosen
		}
		return nil, true // present -> later: no restoration
	default:
		return nil, false // absent -> absent: unchanged, keep_last alone may still loosen
	}
}

// restorationLimit implements the `keep_last` half of spec §4.6's table.
// Returns 0 (no restoration) unless this change can free up slots.
func restorationLimit(existing *model.Feed, cfg config.FeedConfig) int {
	switch {
	case existing.KeepLast == nil:
		return -1 // absent -> anything: unlimited
	case cfg.KeepLast == nil:
		return -1 // present -> absent: unlimited
	case *cfg.KeepLast > existing.TotalDownloads:
		return *cfg.KeepLast - existing.TotalDownloads
	default:
		return 0
	}
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

func equalIntPtr(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
