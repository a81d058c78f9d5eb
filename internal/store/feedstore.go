package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/model"
)

// FeedStore is the only writer of the feeds table (spec §3.1, §9).
type FeedStore struct {
	db *sql.DB
}

func NewFeedStore(db *sql.DB) *FeedStore {
	return &FeedStore{db: db}
}

const feedColumns = `id, is_enabled, source_type, source_url, resolved_url,
	last_successful_sync, last_failed_sync, consecutive_failures, last_error,
	last_rss_generation, since, keep_last, total_downloads,
	title, subtitle, description, language, author, author_email,
	remote_image_url, image_ext, category, podcast_type, explicit,
	is_manual, schedule, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*model.Feed, error) {
	var f model.Feed
	var sourceType, status string
	var lastFailedSync, lastRSSGeneration, since sql.NullString
	var keepLast sql.NullInt64
	var lastError sql.NullString
	var categoryRaw string
	var podcastType, explicit string
	var createdAt, updatedAt, lastSuccessfulSync string

	if err := row.Scan(
		&f.ID, &f.IsEnabled, &sourceType, &f.SourceURL, &f.ResolvedURL,
		&lastSuccessfulSync, &lastFailedSync, &f.ConsecutiveFailures, &lastError,
		&lastRSSGeneration, &since, &keepLast, &f.TotalDownloads,
		&f.Title, &f.Subtitle, &f.Description, &f.Language, &f.Author, &f.AuthorEmail,
		&f.RemoteImageURL, &f.ImageExt, &categoryRaw, &podcastType, &explicit,
		&f.IsManual, &f.Schedule, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	_ = status

	var err error
	f.SourceType = model.SourceType(sourceType)
	f.PodcastType = model.PodcastType(podcastType)
	f.Explicit = model.PodcastExplicit(explicit)
	f.LastError = scanNullString(lastError)

	if f.LastSuccessfulSync, err = parseTime(lastSuccessfulSync); err != nil {
		return nil, fmt.Errorf("parsing last_successful_sync: %w", err)
	}
	if f.LastFailedSync, err = scanNullTime(lastFailedSync); err != nil {
		return nil, err
	}
	if f.LastRSSGeneration, err = scanNullTime(lastRSSGeneration); err != nil {
		return nil, err
	}
	if f.Since, err = scanNullTime(since); err != nil {
		return nil, err
	}
	f.KeepLast = scanNullInt(keepLast)

	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	f.Category = parseCategories(categoryRaw)

	return &f, nil
}

// GetFeed returns the feed by id, or a FeedNotFoundError if absent.
func (s *FeedStore) GetFeed(ctx context.Context, feedID string) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, feedID)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewFeedNotFoundError(feedID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError(feedID, "", "get feed", err)
	}
	return f, nil
}

// ListFeeds returns every feed row, in no particular order.
func (s *FeedStore) ListFeeds(ctx context.Context) ([]*model.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds`)
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError("", "", "list feeds", err)
	}
	defer rows.Close()

	var out []*model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseOperationError("", "", "scan feed", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertFeed creates a new feed row. Callers set every field except
// TotalDownloads (trigger-maintained) and CreatedAt/UpdatedAt (defaulted).
func (s *FeedStore) InsertFeed(ctx context.Context, f *model.Feed) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (
			id, is_enabled, source_type, source_url, resolved_url,
			last_successful_sync, last_failed_sync, consecutive_failures, last_error,
			last_rss_generation, since, keep_last,
			title, subtitle, description, language, author, author_email,
			remote_image_url, image_ext, category, podcast_type, explicit,
			is_manual, schedule
		) VALUES (?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?,?,?, ?,?,?,?,?, ?,?)`,
		f.ID, f.IsEnabled, string(f.SourceType), f.SourceURL, f.ResolvedURL,
		formatTime(f.LastSuccessfulSync), nullTime(f.LastFailedSync), f.ConsecutiveFailures, nullString(f.LastError),
		nullTime(f.LastRSSGeneration), nullTime(f.Since), nullInt(f.KeepLast),
		f.Title, f.Subtitle, f.Description, f.Language, f.Author, f.AuthorEmail,
		f.RemoteImageURL, f.ImageExt, serializeCategories(f.Category), string(f.PodcastType), string(f.Explicit),
		f.IsManual, f.Schedule,
	)
	if err != nil {
		return apperrors.NewDatabaseOperationError(f.ID, "", "insert feed", err)
	}
	return nil
}

// UpdateFeed overwrites every mutable field of an existing feed row. Used by
// the StateReconciler's diff-and-write step (spec §4.6).
func (s *FeedStore) UpdateFeed(ctx context.Context, f *model.Feed) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET
			is_enabled=?, source_type=?, source_url=?, resolved_url=?,
			since=?, keep_last=?,
			title=?, subtitle=?, description=?, language=?, author=?, author_email=?,
			remote_image_url=?, image_ext=?, category=?, podcast_type=?, explicit=?,
			is_manual=?, schedule=?
		WHERE id=?`,
		f.IsEnabled, string(f.SourceType), f.SourceURL, f.ResolvedURL,
		nullTime(f.Since), nullInt(f.KeepLast),
		f.Title, f.Subtitle, f.Description, f.Language, f.Author, f.AuthorEmail,
		f.RemoteImageURL, f.ImageExt, serializeCategories(f.Category), string(f.PodcastType), string(f.Explicit),
		f.IsManual, f.Schedule,
		f.ID,
	)
	if err != nil {
		return apperrors.NewDatabaseOperationError(f.ID, "", "update feed", err)
	}
	return requireRowAffected(res, apperrors.NewFeedNotFoundError(f.ID))
}

// MarkSyncSuccess sets last_successful_sync=now and clears the failure streak.
func (s *FeedStore) MarkSyncSuccess(ctx context.Context, feedID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_successful_sync=?, consecutive_failures=0, last_error=NULL
		WHERE id=?`, formatTime(time.Now()), feedID)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, "", "mark sync success", err)
	}
	return requireRowAffected(res, apperrors.NewFeedNotFoundError(feedID))
}

// MarkSyncFailure records a failed enqueue phase without moving the
// last_successful_sync watermark (spec §4.1).
func (s *FeedStore) MarkSyncFailure(ctx context.Context, feedID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE feeds SET last_failed_sync=?, consecutive_failures=consecutive_failures+1, last_error=?
		WHERE id=?`, formatTime(time.Now()), message, feedID)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, "", "mark sync failure", err)
	}
	return requireRowAffected(res, apperrors.NewFeedNotFoundError(feedID))
}

// SetLastRSSGeneration records the timestamp of the most recent RSS regeneration.
func (s *FeedStore) SetLastRSSGeneration(ctx context.Context, feedID string, t time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE feeds SET last_rss_generation=? WHERE id=?`, formatTime(t), feedID)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, "", "set last rss generation", err)
	}
	return requireRowAffected(res, apperrors.NewFeedNotFoundError(feedID))
}

func requireRowAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// serializeCategories encodes up to two categories as "Main > Sub;Main2",
// the inverse of parseCategories.
func serializeCategories(cats []model.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		if c.Sub != "" {
			parts[i] = c.Main + " > " + c.Sub
		} else {
			parts[i] = c.Main
		}
	}
	return strings.Join(parts, ";")
}

func parseCategories(raw string) []model.Category {
	if raw == "" {
		return nil
	}
	var out []model.Category
	for _, part := range strings.Split(raw, ";") {
		main, sub, hasSub := strings.Cut(part, " > ")
		if hasSub {
			out = append(out, model.Category{Main: main, Sub: sub})
		} else {
			out = append(out, model.Category{Main: part})
		}
	}
	return out
}
