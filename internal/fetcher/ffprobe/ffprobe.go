// Package ffprobe wraps the ffprobe binary to recover duration when a
// source (notably Patreon) omits it from its own metadata.
package ffprobe

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/fetcher/procutil"
)

const binary = "ffprobe"

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration runs `ffprobe -show_format -print_format json <mediaURL>`
// against a remote or local media reference, optionally with a Referer
// header, and returns the duration in whole seconds.
func ProbeDuration(ctx context.Context, mediaURL, referer string) (int64, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format"}
	if referer != "" {
		args = append(args, "-headers", "Referer: "+referer+"\r\n")
	}
	args = append(args, mediaURL)

	res, err := procutil.Run(ctx, binary, args...)
	if err != nil {
		return 0, apperrors.NewFFProbeError("ffprobe invocation failed", err)
	}

	var out probeOutput
	if jsonErr := json.Unmarshal(res.Stdout, &out); jsonErr != nil {
		return 0, apperrors.NewFFProbeError("malformed ffprobe JSON", jsonErr)
	}

	seconds, parseErr := strconv.ParseFloat(out.Format.Duration, 64)
	if parseErr != nil || seconds <= 0 {
		return 0, apperrors.NewFFProbeError("ffprobe returned no usable duration", parseErr)
	}
	return int64(seconds), nil
}

// ProbeDurationCandidates tries each candidate URL in order, returning the
// first successful probe. Used by the Patreon handler per the literal
// fallback order preserved from the daemon's fetch contract.
func ProbeDurationCandidates(ctx context.Context, candidates []string, referer string) (int64, error) {
	var lastErr error
	for _, c := range candidates {
		d, err := ProbeDuration(ctx, c, referer)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = apperrors.NewFFProbeError("no duration candidates provided", nil)
	}
	return 0, lastErr
}
