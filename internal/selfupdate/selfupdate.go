// Package selfupdate runs yt-dlp's own self-update (`yt-dlp -U`) on a cron
// schedule and records the last successful run in the app_state table (spec
// §3.3), so extractor fixes for upstream site changes reach the daemon
// without an image rebuild.
package selfupdate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/fetcher/procutil"
	"github.com/thurstonsan/anypod/internal/store"
)

// Updater wraps the app_state watermark and invokes yt-dlp's self-update.
type Updater struct {
	state  *store.AppStateStore
	logger zerolog.Logger
}

func New(state *store.AppStateStore, logger zerolog.Logger) *Updater {
	return &Updater{state: state, logger: logger.With().Str("component", "selfupdate").Logger()}
}

// Run invokes `yt-dlp -U` and, on success, stamps app_state.last_yt_dlp_update.
func (u *Updater) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := procutil.Run(ctx, "yt-dlp", "-U")
	if err != nil {
		u.logger.Warn().Err(err).Msg("yt-dlp self-update failed")
		return
	}
	if res != nil {
		u.logger.Info().Str("output", string(res.Stdout)).Msg("yt-dlp self-update completed")
	}
	if err := u.state.SetLastYtDlpUpdate(ctx, time.Now()); err != nil {
		u.logger.Warn().Err(err).Msg("recording yt-dlp self-update watermark failed")
	}
}
