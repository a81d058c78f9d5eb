// Package downloader implements the Downloader phase (spec §4.4): for
// each QUEUED item, pull its media, thumbnail, and transcript to disk and
// mark it DOWNLOADED, or bump its retry counter on failure.
package downloader

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/fetcher/ffprobe"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/store"
)

const lastErrorStderrLines = 20

// Result is the Downloader's phase outcome.
type Result struct {
	SuccessCount int
	FailureCount int
	Errors       []error
}

type Downloader struct {
	downloads   *store.DownloadStore
	paths       *pathmanager.PathManager
	files       *filestore.FileStore
	registry    *fetcher.Registry
	cookiesPath string
	logger      zerolog.Logger
}

func New(downloads *store.DownloadStore, paths *pathmanager.PathManager, files *filestore.FileStore, registry *fetcher.Registry, cookiesPath string, logger zerolog.Logger) *Downloader {
	return &Downloader{downloads: downloads, paths: paths, files: files, registry: registry, cookiesPath: cookiesPath, logger: logger}
}

// Run downloads every QUEUED item in the feed, oldest published first, up
// to limit (0 = unbounded).
func (d *Downloader) Run(ctx context.Context, feedID string, cfg config.FeedConfig, limit int) (Result, error) {
	queued, err := d.downloads.ListQueuedOldestFirst(ctx, feedID, limit)
	if err != nil {
		return Result{}, apperrors.NewDownloaderError(feedID, "", "listing queued downloads", err)
	}

	result := Result{}
	for _, dl := range queued {
		if err := d.downloadOne(ctx, feedID, cfg, dl); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}

func (d *Downloader) downloadOne(ctx context.Context, feedID string, cfg config.FeedConfig, dl *model.Download) error {
	handler, err := d.registry.Resolve(dl.SourceURL)
	if err != nil {
		return d.fail(ctx, feedID, dl.ID, cfg.MaxErrors, "no handler for source url", err)
	}

	item := fetcher.Item{
		ID: dl.ID, SourceURL: dl.SourceURL, Title: dl.Title, Published: dl.Published,
		Status: dl.Status, Ext: dl.Ext, MimeType: dl.MimeType, Filesize: dl.Filesize, Duration: dl.Duration,
		RemoteThumbnailURL: dl.RemoteThumbnailURL, PlaylistIndex: dl.PlaylistIndex, QualityInfo: dl.QualityInfo,
	}
	opts := fetcher.DiscoverOptions{YtArgs: cfg.YtArgs, CookiesPath: d.cookiesPath}

	tmpDir := d.paths.TmpDir(feedID)
	media, err := handler.DownloadMedia(ctx, item, tmpDir, opts)
	if err != nil {
		return d.fail(ctx, feedID, dl.ID, cfg.MaxErrors, "media download failed", err)
	}
	defer d.files.RemoveTmp(media.TempPath)

	duration := media.Duration
	if duration <= 0 {
		if probed, probeErr := ffprobe.ProbeDuration(ctx, media.TempPath, ""); probeErr == nil {
			duration = probed
		}
	}

	finalPath := d.paths.MediaPath(feedID, dl.ID, media.Ext)
	if err := d.files.CommitAtomic(media.TempPath, finalPath); err != nil {
		return d.fail(ctx, feedID, dl.ID, cfg.MaxErrors, "committing media file", err)
	}

	if dl.RemoteThumbnailURL != nil && *dl.RemoteThumbnailURL != "" {
		thumbPath := d.paths.DownloadImagePath(feedID, dl.ID)
		if err := handler.DownloadThumbnail(ctx, *dl.RemoteThumbnailURL, thumbPath); err != nil {
			d.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", dl.ID).Msg("thumbnail download failed")
		} else if err := d.downloads.SetThumbnail(ctx, feedID, dl.ID, "jpg"); err != nil {
			d.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", dl.ID).Msg("recording thumbnail failed")
		}
	}

	if cfg.TranscriptSourcePriority != nil {
		transcript, err := handler.DownloadTranscript(ctx, item, cfg.TranscriptLang, cfg.TranscriptSourcePriority, tmpDir)
		if err != nil {
			d.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", dl.ID).Msg("transcript download failed")
		} else if transcript != nil {
			defer d.files.RemoveTmp(transcript.TempPath)
			if err := d.downloads.SetTranscript(ctx, feedID, dl.ID, transcript.Ext, transcript.Lang, transcript.Source); err != nil {
				d.logger.Warn().Err(err).Str("feedID", feedID).Str("downloadID", dl.ID).Msg("recording transcript failed")
			}
		}
	}

	if err := d.downloads.MarkDownloaded(ctx, feedID, dl.ID, media.Ext, media.Filesize, duration); err != nil {
		return d.fail(ctx, feedID, dl.ID, cfg.MaxErrors, "marking downloaded", err)
	}

	return nil
}

func (d *Downloader) fail(ctx context.Context, feedID, downloadID string, maxErrors int, message string, cause error) error {
	full := message + ": " + cause.Error()
	if len(full) > 4096 {
		full = full[len(full)-4096:]
	}
	_, bumpErr := d.downloads.BumpRetries(ctx, feedID, downloadID, lastLines(full, lastErrorStderrLines), maxErrors)
	if bumpErr != nil {
		return apperrors.NewDownloaderError(feedID, downloadID, "bump_retries failed after "+message, bumpErr)
	}
	return apperrors.NewDownloaderError(feedID, downloadID, message, cause)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
