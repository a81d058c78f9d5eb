package procutil

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures exponential backoff for transient yt-dlp/network
// failures, adapted from the daemon's own startup-retry helper.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig returns a 5s initial delay that doubles up to a 1 minute
// cap, with at most 3 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 5 * time.Second,
		MaxDelay:     1 * time.Minute,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

// IsNetworkError reports whether err looks like a transient network failure
// worth retrying, as opposed to a data/parse error that will recur identically.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused", "no such host", "timeout", "network is unreachable",
		"no route to host", "host is down", "i/o timeout", "connection reset",
		"temporary failure in name resolution", "http error 429", "http error 5",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// WithRetry runs fn with exponential backoff, retrying only transient network
// errors; a non-network error or context cancellation returns immediately.
func WithRetry(ctx context.Context, name string, cfg RetryConfig, fn func() error, logger *zerolog.Logger) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsNetworkError(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn().Err(err).Str("operation", name).Int("attempt", attempt).Dur("nextRetryIn", delay).
			Msg("transient fetcher error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
