package logger

import (
	"context"
	"fmt"
	"time"
)

type contextIDKey struct{}

// NewContextID builds the `<feed_id>-<unix_ts>` correlation id used to tie
// together every log line emitted during one pipeline run (spec §7, §9).
func NewContextID(feedID string, now time.Time) string {
	return fmt.Sprintf("%s-%d", feedID, now.Unix())
}

// WithContextID attaches a job correlation id to ctx.
func WithContextID(ctx context.Context, contextID string) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextID)
}

// ContextIDFromContext extracts the job correlation id previously attached
// with WithContextID, if any.
func ContextIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(contextIDKey{}).(string)
	return v, ok
}

// FromContext returns l enriched with the context_id field carried on ctx,
// if present.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	if id, ok := ContextIDFromContext(ctx); ok {
		return &Logger{
			Logger:            l.Logger.With().Str("context_id", id).Logger(),
			rotator:           l.rotator,
			includeStacktrace: l.includeStacktrace,
		}
	}
	return l
}
