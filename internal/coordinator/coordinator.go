// Package coordinator implements the FeedCoordinator (spec §4.1): it
// composes Enqueuer -> Downloader -> Pruner -> RSSGenerator for one feed
// and rolls their outcomes into a ProcessingResult.
package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/downloader"
	"github.com/thurstonsan/anypod/internal/enqueuer"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/pruner"
	"github.com/thurstonsan/anypod/internal/rss"
	"github.com/thurstonsan/anypod/internal/store"
)

// PhaseResult records one phase's outcome and timing.
type PhaseResult struct {
	Success  bool
	Count    int
	Errors   []error
	Duration time.Duration
}

// ProcessingResult rolls up a full feed run.
type ProcessingResult struct {
	FeedID          string
	OverallSuccess  bool
	Enqueue         PhaseResult
	Download        PhaseResult
	Prune           PhaseResult
	RSS             PhaseResult
	TotalDuration   time.Duration
	FatalError      error
	FeedSyncUpdated bool
}

type Coordinator struct {
	feeds     *store.FeedStore
	downloads *store.DownloadStore
	enqueuer  *enqueuer.Enqueuer
	downloadr *downloader.Downloader
	prunerP   *pruner.Pruner
	rssGen    *rss.Generator
	paths     *pathmanager.PathManager
	baseURL   string
	logger    zerolog.Logger
}

func New(
	feeds *store.FeedStore,
	downloads *store.DownloadStore,
	enq *enqueuer.Enqueuer,
	dl *downloader.Downloader,
	pr *pruner.Pruner,
	rssGen *rss.Generator,
	paths *pathmanager.PathManager,
	baseURL string,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		feeds: feeds, downloads: downloads, enqueuer: enq, downloadr: dl,
		prunerP: pr, rssGen: rssGen, paths: paths, baseURL: baseURL, logger: logger,
	}
}

// Process runs the full four-phase pipeline for one feed.
func (c *Coordinator) Process(ctx context.Context, feedID string, cfg config.FeedConfig) ProcessingResult {
	start := time.Now()
	result := ProcessingResult{FeedID: feedID}

	feed, err := c.feeds.GetFeed(ctx, feedID)
	if err != nil {
		result.FatalError = err
		result.TotalDuration = time.Since(start)
		return result
	}

	enqStart := time.Now()
	enqResult, err := c.enqueuer.Run(ctx, feedID, cfg, feed.ResolvedURL, feed.LastSuccessfulSync)
	result.Enqueue = PhaseResult{
		Success:  err == nil,
		Count:    enqResult.NewlyQueued,
		Errors:   enqResult.Errors,
		Duration: time.Since(enqStart),
	}
	if err != nil {
		result.FatalError = err
		_ = c.feeds.MarkSyncFailure(ctx, feedID, err.Error())
		result.TotalDuration = time.Since(start)
		return result
	}

	downloadedBefore, _ := c.downloads.CountDownloaded(ctx, feedID)

	dlStart := time.Now()
	dlResult, dlErr := c.downloadr.Run(ctx, feedID, cfg, 0)
	result.Download = PhaseResult{
		Success:  dlErr == nil,
		Count:    dlResult.SuccessCount,
		Errors:   dlResult.Errors,
		Duration: time.Since(dlStart),
	}

	if cfg.KeepLast != nil || cfg.Since != nil {
		prStart := time.Now()
		prResult, prErr := c.prunerP.Run(ctx, feedID, cfg.KeepLast, cfg.Since)
		result.Prune = PhaseResult{
			Success:  prErr == nil,
			Count:    len(prResult.ArchivedIDs),
			Errors:   append(append([]error{}, prResult.Errors...), errIfNotNil(prErr)...),
			Duration: time.Since(prStart),
		}
	}

	downloadedAfter, _ := c.downloads.CountDownloaded(ctx, feedID)
	_, statErr := os.Stat(c.paths.FeedXMLPath(feedID))
	noPriorXML := os.IsNotExist(statErr)

	if downloadedAfter != downloadedBefore || noPriorXML {
		rssStart := time.Now()
		rssErr := c.regenerate(ctx, feed)
		result.RSS = PhaseResult{
			Success:  rssErr == nil,
			Count:    downloadedAfter,
			Errors:   errIfNotNil(rssErr),
			Duration: time.Since(rssStart),
		}
	} else {
		result.RSS = PhaseResult{Success: true, Count: downloadedAfter}
	}

	if result.Enqueue.Success && result.RSS.Success {
		if err := c.feeds.MarkSyncSuccess(ctx, feedID); err == nil {
			result.FeedSyncUpdated = true
		}
	}

	result.OverallSuccess = result.FatalError == nil && result.RSS.Success
	result.TotalDuration = time.Since(start)
	return result
}

// RegenerateRSS is a standalone entry point that runs only the RSS phase,
// used after a manual delete.
func (c *Coordinator) RegenerateRSS(ctx context.Context, feedID string) error {
	feed, err := c.feeds.GetFeed(ctx, feedID)
	if err != nil {
		return err
	}
	return c.regenerate(ctx, feed)
}

func (c *Coordinator) regenerate(ctx context.Context, feed *model.Feed) error {
	downloads, err := c.downloads.ListDownloadedNewestFirst(ctx, feed.ID)
	if err != nil {
		return apperrors.NewRSSGenerationError(feed.ID, "listing downloaded items", err)
	}

	xmlBytes, err := c.rssGen.Render(c.baseURL, feed, downloads)
	if err != nil {
		return err
	}

	xmlPath := c.paths.FeedXMLPath(feed.ID)
	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		return apperrors.NewRSSGenerationError(feed.ID, "creating feed xml directory", err)
	}
	if err := os.WriteFile(xmlPath, xmlBytes, 0o644); err != nil {
		return apperrors.NewRSSGenerationError(feed.ID, "writing feed xml", err)
	}

	if err := c.feeds.SetLastRSSGeneration(ctx, feed.ID, time.Now().UTC()); err != nil {
		return apperrors.NewRSSGenerationError(feed.ID, "recording rss generation time", err)
	}
	return nil
}

func errIfNotNil(err error) []error {
	if err == nil {
		return nil
	}
	return []error{err}
}
