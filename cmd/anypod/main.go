// Command anypod is the daemon entrypoint: it loads configuration, runs
// startup state reconciliation, and serves the scheduler and HTTP surface
// until signaled to stop (spec §4, §6.1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/coordinator"
	"github.com/thurstonsan/anypod/internal/database"
	"github.com/thurstonsan/anypod/internal/downloader"
	"github.com/thurstonsan/anypod/internal/enqueuer"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/fetcher/generic"
	"github.com/thurstonsan/anypod/internal/fetcher/patreon"
	"github.com/thurstonsan/anypod/internal/fetcher/twitter"
	"github.com/thurstonsan/anypod/internal/fetcher/youtube"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/httpapi"
	"github.com/thurstonsan/anypod/internal/logger"
	"github.com/thurstonsan/anypod/internal/manualsubmission"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/pruner"
	"github.com/thurstonsan/anypod/internal/reconciler"
	"github.com/thurstonsan/anypod/internal/rss"
	"github.com/thurstonsan/anypod/internal/scheduler"
	"github.com/thurstonsan/anypod/internal/selfupdate"
	"github.com/thurstonsan/anypod/internal/store"
)

// maxConcurrentFeeds bounds how many feeds the scheduler and manual runner
// may process simultaneously (spec §5's shared semaphore capacity N). The
// spec leaves N unconfigured, so this is a fixed, conservative default.
const maxConcurrentFeeds = 4

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "anypod:", err)
		os.Exit(1)
	}
}

func run() error {
	globalCfg, err := config.LoadGlobal()
	if err != nil {
		return fmt.Errorf("loading global config: %w", err)
	}

	lg := logger.New(logger.Config{
		Level:             globalCfg.LogLevel,
		Format:            globalCfg.LogFormat,
		IncludeStacktrace: globalCfg.LogIncludeStacktrace,
	})
	defer lg.Close()
	zl := lg.Logger

	feedCfgs, err := config.LoadFeeds(globalCfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading feed config: %w", err)
	}

	paths := pathmanager.New(globalCfg.DataDir)
	if err := paths.EnsureRootDirs(); err != nil {
		return fmt.Errorf("preparing data directory: %w", err)
	}

	db, err := database.New(paths.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	feeds := store.NewFeedStore(db.Conn())
	downloads := store.NewDownloadStore(db.Conn())
	appState := store.NewAppStateStore(db.Conn())

	registry := fetcher.NewRegistry(
		youtube.New(),
		patreon.New(),
		twitter.New(),
		generic.New(),
	)

	files := filestore.New(&zl)
	prunerP := pruner.New(downloads, paths, files, zl)

	rc := reconciler.New(feeds, downloads, prunerP, zl)
	readyFeedIDs, err := rc.Reconcile(context.Background(), feedCfgs)
	if err != nil {
		return fmt.Errorf("reconciling feed state: %w", err)
	}

	enq := enqueuer.New(feeds, downloads, registry, globalCfg.CookiesPath, zl)
	dl := downloader.New(downloads, paths, files, registry, globalCfg.CookiesPath, zl)
	rssGen := rss.New(paths)
	coord := coordinator.New(feeds, downloads, enq, dl, prunerP, rssGen, paths, globalCfg.BaseURL, zl)

	sched, err := scheduler.New(coord.Process, maxConcurrentFeeds, zl)
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	for _, feedID := range readyFeedIDs {
		cfg := feedCfgs[feedID]
		if cfg.IsManual {
			continue
		}
		if err := sched.Register(feedID, cfg); err != nil {
			return fmt.Errorf("registering feed %q: %w", feedID, err)
		}
	}
	updater := selfupdate.New(appState, zl)
	if err := sched.RegisterMaintenance("ytdlp-self-update", globalCfg.YtDlpUpdateSchedule, updater.Run); err != nil {
		return fmt.Errorf("scheduling yt-dlp self-update: %w", err)
	}
	sched.Start()

	runner := scheduler.NewManualRunner(coord.Process, sched.Semaphore(), zl)
	submission := manualsubmission.New(feeds, downloads, registry, runner, globalCfg.CookiesPath)

	server := httpapi.New(httpapi.Deps{
		DB:          db.Conn(),
		Feeds:       feeds,
		Downloads:   downloads,
		Paths:       paths,
		Coordinator: coord,
		Runner:      runner,
		Submission:  submission,
		FeedConfigs: feedCfgs,
		Logger:      zl,
	})

	serverErrs := make(chan error, 1)
	go func() {
		serverErrs <- server.Start(globalCfg.Address())
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		zl.Info().Msg("shutdown signal received")
	case err := <-serverErrs:
		if err != nil {
			zl.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runner.Shutdown()
	if err := sched.Stop(); err != nil {
		zl.Warn().Err(err).Msg("scheduler stop reported an error")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn().Err(err).Msg("http server shutdown reported an error")
	}

	return nil
}
