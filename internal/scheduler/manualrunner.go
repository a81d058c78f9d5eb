package scheduler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/thurstonsan/anypod/internal/config"
)

// ManualRunner runs alongside the Scheduler for manual-only feeds and
// admin-triggered refreshes, sharing the Scheduler's concurrency semaphore
// (spec §4.7) and de-duplicating concurrent triggers per feed, the same
// per-key locking shape as the daemon's own grab-lock guard.
type ManualRunner struct {
	process ProcessFunc
	sem     *semaphore.Weighted
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

func NewManualRunner(process ProcessFunc, sem *semaphore.Weighted, logger zerolog.Logger) *ManualRunner {
	return &ManualRunner{
		process:  process,
		sem:      sem,
		logger:   logger.With().Str("component", "manual_runner").Logger(),
		inFlight: make(map[string]context.CancelFunc),
	}
}

// Trigger starts a coordinator run for feedID unless one is already pending
// (queued on, or not yet past, the shared semaphore). "Pending" ends as soon
// as the semaphore is acquired, not when the run finishes, so a trigger that
// arrives while a run is actively processing queues behind the semaphore and
// still executes rather than being dropped as a duplicate.
func (m *ManualRunner) Trigger(feedID string, cfg config.FeedConfig) {
	m.mu.Lock()
	if _, pending := m.inFlight[feedID]; pending {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.inFlight[feedID] = cancel
	m.mu.Unlock()

	go m.run(ctx, feedID, cfg)
}

func (m *ManualRunner) run(ctx context.Context, feedID string, cfg config.FeedConfig) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.mu.Lock()
		delete(m.inFlight, feedID)
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("feedID", feedID).Msg("manual trigger canceled before acquiring semaphore")
		return
	}

	// Clear the in-flight marker as soon as the semaphore is held, not after
	// process finishes: a trigger arriving while this run is still working
	// should queue behind the semaphore and still execute, rather than being
	// dropped as a duplicate of a run that's already past the dedup window.
	m.mu.Lock()
	delete(m.inFlight, feedID)
	m.mu.Unlock()
	defer m.sem.Release(1)

	result := m.process(ctx, feedID, cfg)
	if result.FatalError != nil {
		m.logger.Error().Err(result.FatalError).Str("feedID", feedID).Msg("manual feed run failed")
		return
	}
	m.logger.Info().Str("feedID", feedID).Bool("success", result.OverallSuccess).Msg("manual feed run completed")
}

// Shutdown cancels all pending tasks.
func (m *ManualRunner) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.inFlight {
		cancel()
	}
	m.inFlight = make(map[string]context.CancelFunc)
}
