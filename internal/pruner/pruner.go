// Package pruner implements the Pruner phase (spec §4.5): archives
// downloads that have fallen outside a feed's retention window, deleting
// their media and thumbnail files.
package pruner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/store"
)

// Result is the Pruner's phase outcome.
type Result struct {
	ArchivedIDs     []string
	FilesDeletedIDs []string
	Errors          []error
}

type Pruner struct {
	downloads *store.DownloadStore
	paths     *pathmanager.PathManager
	files     *filestore.FileStore
	logger    zerolog.Logger
}

func New(downloads *store.DownloadStore, paths *pathmanager.PathManager, files *filestore.FileStore, logger zerolog.Logger) *Pruner {
	return &Pruner{downloads: downloads, paths: paths, files: files, logger: logger}
}

// Run prunes one feed against its retention policy. Either keepLast or
// since (or both) may be unset (nil/zero); at least one is expected by the
// caller to avoid a no-op pass.
func (p *Pruner) Run(ctx context.Context, feedID string, keepLast *int, since *time.Time) (Result, error) {
	candidates := map[string]*model.Download{}

	if keepLast != nil {
		byKeepLast, err := p.downloads.GetDownloadsToPruneByKeepLast(ctx, feedID, *keepLast)
		if err != nil {
			return Result{}, apperrors.NewPruneError(feedID, "listing keep_last candidates", err)
		}
		for _, d := range byKeepLast {
			candidates[d.ID] = d
		}
	}

	if since != nil {
		bySince, err := p.downloads.GetDownloadsToPruneBySince(ctx, feedID, *since)
		if err != nil {
			return Result{}, apperrors.NewPruneError(feedID, "listing since candidates", err)
		}
		for _, d := range bySince {
			candidates[d.ID] = d
		}
	}

	result := Result{}
	for _, dl := range candidates {
		deletedFile, err := p.archiveOne(ctx, feedID, dl)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.ArchivedIDs = append(result.ArchivedIDs, dl.ID)
		if deletedFile {
			result.FilesDeletedIDs = append(result.FilesDeletedIDs, dl.ID)
		}
	}
	return result, nil
}

// ArchiveFeed implements the degenerate `archive_feed` case: archive every
// non-archived download in the feed.
func (p *Pruner) ArchiveFeed(ctx context.Context, feedID string) (Result, error) {
	downloads, err := p.downloads.ListNonArchived(ctx, feedID)
	if err != nil {
		return Result{}, apperrors.NewPruneError(feedID, "listing non-archived downloads", err)
	}

	result := Result{}
	for _, dl := range downloads {
		deletedFile, err := p.archiveOne(ctx, feedID, dl)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.ArchivedIDs = append(result.ArchivedIDs, dl.ID)
		if deletedFile {
			result.FilesDeletedIDs = append(result.FilesDeletedIDs, dl.ID)
		}
	}
	return result, nil
}

func (p *Pruner) archiveOne(ctx context.Context, feedID string, dl *model.Download) (bool, error) {
	deletedFile := false

	if dl.Status == model.StatusDownloaded {
		mediaPath := p.paths.MediaPath(feedID, dl.ID, dl.Ext)
		if err := p.files.Delete(mediaPath); err != nil {
			return false, apperrors.NewPruneError(feedID, "deleting media file", err)
		}
		deletedFile = true
	}

	if dl.ThumbnailExt != nil && *dl.ThumbnailExt != "" {
		thumbPath := p.paths.DownloadImagePath(feedID, dl.ID)
		if err := p.files.Delete(thumbPath); err != nil {
			p.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", dl.ID).Msg("thumbnail delete failed during prune")
		}
	}

	if err := p.downloads.MarkArchived(ctx, feedID, dl.ID); err != nil {
		return false, apperrors.NewPruneError(feedID, "marking archived", err)
	}
	return deletedFile, nil
}
