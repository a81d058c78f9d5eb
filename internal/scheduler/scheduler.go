// Package scheduler cron-dispatches FeedCoordinator.Process for every
// ready feed (spec §4.7), de-duplicating overlapping runs per feed and
// bounding total concurrency jointly with the ManualRunner.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/coordinator"
)

// ProcessFunc runs one feed's pipeline.
type ProcessFunc func(ctx context.Context, feedID string, cfg config.FeedConfig) coordinator.ProcessingResult

type feedEntry struct {
	cfg config.FeedConfig
	job gocron.Job
}

// Scheduler owns the cron-triggered path; ManualRunner shares its semaphore.
type Scheduler struct {
	gocron  gocron.Scheduler
	process ProcessFunc
	sem     *semaphore.Weighted
	logger  zerolog.Logger

	mu    sync.RWMutex
	feeds map[string]*feedEntry
}

// New constructs a Scheduler bounded to maxConcurrency simultaneous feed runs.
func New(process ProcessFunc, maxConcurrency int64, logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron:  gs,
		process: process,
		sem:     semaphore.NewWeighted(maxConcurrency),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		feeds:   make(map[string]*feedEntry),
	}, nil
}

// Semaphore exposes the shared concurrency gate for the ManualRunner.
func (s *Scheduler) Semaphore() *semaphore.Weighted { return s.sem }

// Register adds a cron job for one ready feed. coalesce+max_instances=1 is
// approximated via gocron's reschedule-mode singleton: a still-running
// instance absorbs any trigger that lands while it is in flight rather
// than queuing a second concurrent run.
func (s *Scheduler) Register(feedID string, cfg config.FeedConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feeds[feedID]; exists {
		return fmt.Errorf("feed %q already scheduled", feedID)
	}

	job, err := s.gocron.NewJob(
		gocron.CronJob(cfg.Schedule, hasSecondsField(cfg.Schedule)),
		gocron.NewTask(func() { s.run(feedID) }),
		gocron.WithName("feed:"+feedID),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling feed %q: %w", feedID, err)
	}

	s.feeds[feedID] = &feedEntry{cfg: cfg, job: job}
	return nil
}

func (s *Scheduler) run(feedID string) {
	s.mu.RLock()
	entry, ok := s.feeds[feedID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	ctx := context.Background()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.logger.Warn().Err(err).Str("feedID", feedID).Msg("semaphore acquire failed, skipping run")
		return
	}
	defer s.sem.Release(1)

	result := s.process(ctx, feedID, entry.cfg)
	if result.FatalError != nil {
		s.logger.Error().Err(result.FatalError).Str("feedID", feedID).Msg("scheduled feed run failed")
		return
	}
	s.logger.Info().
		Str("feedID", feedID).
		Bool("success", result.OverallSuccess).
		Dur("duration", result.TotalDuration).
		Int("enqueued", result.Enqueue.Count).
		Int("downloaded", result.Download.Count).
		Msg("scheduled feed run completed")
}

// Start begins dispatching registered jobs.
func (s *Scheduler) Start() {
	s.logger.Info().Int("feedCount", len(s.feeds)).Msg("starting scheduler")
	s.gocron.Start()
}

// Stop drains in-flight jobs before returning (spec §4.7's
// stop(wait_for_jobs=True)).
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("stopping scheduler")
	return s.gocron.Shutdown()
}

// RegisterMaintenance schedules a standalone cron job outside the per-feed
// pipeline (e.g. yt-dlp's own self-update), sharing no state with Register's
// feed bookkeeping.
func (s *Scheduler) RegisterMaintenance(name, schedule string, task func()) error {
	_, err := s.gocron.NewJob(
		gocron.CronJob(schedule, hasSecondsField(schedule)),
		gocron.NewTask(task),
		gocron.WithName("maintenance:"+name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling maintenance job %q: %w", name, err)
	}
	return nil
}

// hasSecondsField reports whether cron is the 6-field form (spec §6.6
// allows both 5- and 6-field crontabs).
func hasSecondsField(cron string) bool {
	fields := 1
	for _, r := range cron {
		if r == ' ' {
			fields++
		}
	}
	return fields == 6
}
