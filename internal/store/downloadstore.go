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

// DownloadStore is the only writer of the downloads table. Every status
// transition in spec §4.2's table is implemented as exactly one method here.
type DownloadStore struct {
	db *sql.DB
}

func NewDownloadStore(db *sql.DB) *DownloadStore {
	return &DownloadStore{db: db}
}

const downloadColumns = `feed_id, id, source_url, title, published, ext, mime_type,
	filesize, duration, status, discovered_at, updated_at, downloaded_at,
	remote_thumbnail_url, thumbnail_ext, description, quality_info, retries,
	last_error, download_logs, playlist_index, transcript_ext, transcript_lang, transcript_source`

func scanDownload(row interface{ Scan(...any) error }) (*model.Download, error) {
	var d model.Download
	var published, discoveredAt, updatedAt string
	var downloadedAt, remoteThumbnailURL, thumbnailExt, lastError, downloadLogs sql.NullString
	var transcriptExt, transcriptLang, transcriptSource sql.NullString
	var playlistIndex sql.NullInt64
	var status string

	if err := row.Scan(
		&d.FeedID, &d.ID, &d.SourceURL, &d.Title, &published, &d.Ext, &d.MimeType,
		&d.Filesize, &d.Duration, &status, &discoveredAt, &updatedAt, &downloadedAt,
		&remoteThumbnailURL, &thumbnailExt, &d.Description, &d.QualityInfo, &d.Retries,
		&lastError, &downloadLogs, &playlistIndex, &transcriptExt, &transcriptLang, &transcriptSource,
	); err != nil {
		return nil, err
	}

	var err error
	if d.Published, err = parseTime(published); err != nil {
		return nil, fmt.Errorf("parsing published: %w", err)
	}
	if d.DiscoveredAt, err = parseTime(discoveredAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if d.DownloadedAt, err = scanNullTime(downloadedAt); err != nil {
		return nil, err
	}
	d.Status, err = model.ParseDownloadStatus(status)
	if err != nil {
		return nil, err
	}
	d.RemoteThumbnailURL = scanNullString(remoteThumbnailURL)
	d.ThumbnailExt = scanNullString(thumbnailExt)
	d.LastError = scanNullString(lastError)
	d.DownloadLogs = scanNullString(downloadLogs)
	d.PlaylistIndex = scanNullInt(playlistIndex)
	d.TranscriptExt = scanNullString(transcriptExt)
	d.TranscriptLang = scanNullString(transcriptLang)
	if transcriptSource.Valid {
		ts := model.TranscriptSource(transcriptSource.String)
		d.TranscriptSource = &ts
	}
	return &d, nil
}

// GetDownload returns one download, or DownloadNotFoundError if absent.
func (s *DownloadStore) GetDownload(ctx context.Context, feedID, id string) (*model.Download, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM downloads WHERE feed_id=? AND id=?`, feedID, id)
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDownloadNotFoundError(feedID, id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError(feedID, id, "get download", err)
	}
	return d, nil
}

// ListByStatus returns every download in the feed matching one of statuses,
// oldest published first.
func (s *DownloadStore) ListByStatus(ctx context.Context, feedID string, statuses ...model.DownloadStatus) ([]*model.Download, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, feedID)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE feed_id=? AND status IN (` + strings.Join(placeholders, ",") + `) ORDER BY published ASC`
	return s.queryDownloads(ctx, feedID, query, args...)
}

// ListDownloadedNewestFirst returns every DOWNLOADED item in the feed,
// published DESC, for RSS generation (spec §6.4).
func (s *DownloadStore) ListDownloadedNewestFirst(ctx context.Context, feedID string) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE feed_id=? AND status=? ORDER BY published DESC`
	return s.queryDownloads(ctx, feedID, query, feedID, string(model.StatusDownloaded))
}

// ListQueuedOldestFirst returns QUEUED items for downloading, oldest first,
// capped at limit (0 = unbounded) per spec §4.4.
func (s *DownloadStore) ListQueuedOldestFirst(ctx context.Context, feedID string, limit int) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE feed_id=? AND status=? ORDER BY published ASC`
	args := []any{feedID, string(model.StatusQueued)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDownloads(ctx, feedID, query, args...)
}

func (s *DownloadStore) queryDownloads(ctx context.Context, feedID, query string, args ...any) ([]*model.Download, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError(feedID, "", "query downloads", err)
	}
	defer rows.Close()

	var out []*model.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseOperationError(feedID, "", "scan download", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDownload inserts d, or if (feed_id, id) already exists overwrites its
// metadata columns without touching status/retries/downloaded_at — the
// "upsert for metadata consistency" case in spec §4.3 step 2.
func (s *DownloadStore) UpsertDownload(ctx context.Context, d *model.Download) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (
			feed_id, id, source_url, title, published, ext, mime_type, filesize, duration, status,
			remote_thumbnail_url, description, quality_info, playlist_index
		) VALUES (?,?,?,?,?,?,?,?,?,?, ?,?,?,?)
		ON CONFLICT (feed_id, id) DO UPDATE SET
			source_url=excluded.source_url,
			title=excluded.title,
			published=excluded.published,
			remote_thumbnail_url=excluded.remote_thumbnail_url,
			description=excluded.description,
			quality_info=excluded.quality_info,
			playlist_index=excluded.playlist_index`,
		d.FeedID, d.ID, d.SourceURL, d.Title, formatTime(d.Published), d.Ext, d.MimeType, d.Filesize, d.Duration, string(d.Status),
		nullString(d.RemoteThumbnailURL), d.Description, d.QualityInfo, nullInt(d.PlaylistIndex),
	)
	if err != nil {
		return apperrors.NewDatabaseOperationError(d.FeedID, d.ID, "upsert download", err)
	}
	return nil
}

// TransitionUpcomingToQueued moves an UPCOMING row to QUEUED once the
// re-check finds the item is now a VOD (spec §4.2, §4.3 step 1), setting the
// now-known media descriptors in place of the sentinels.
func (s *DownloadStore) TransitionUpcomingToQueued(ctx context.Context, feedID, id, ext, mimeType string, filesize, duration int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status=?, ext=?, mime_type=?, filesize=?, duration=?
		WHERE feed_id=? AND id=? AND status=?`,
		string(model.StatusQueued), ext, mimeType, filesize, duration,
		feedID, id, string(model.StatusUpcoming),
	)
	if err != nil {
		return false, apperrors.NewDatabaseOperationError(feedID, id, "transition upcoming to queued", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkDownloaded transitions QUEUED -> DOWNLOADED: resets retries/last_error
// and sets the real ext/filesize/duration (duration may have been resolved
// late via an ffprobe fallback the fetcher itself could not supply).
// downloaded_at and total_downloads are trigger-maintained.
func (s *DownloadStore) MarkDownloaded(ctx context.Context, feedID, id, ext string, filesize, duration int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status=?, retries=0, last_error=NULL, ext=?, filesize=?, duration=?
		WHERE feed_id=? AND id=?`,
		string(model.StatusDownloaded), ext, filesize, duration, feedID, id,
	)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, id, "mark downloaded", err)
	}
	return requireDownloadRowAffected(res, feedID, id)
}

// SetThumbnail records the downloaded thumbnail extension (spec §4.4 step 5).
func (s *DownloadStore) SetThumbnail(ctx context.Context, feedID, id, ext string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE downloads SET thumbnail_ext=? WHERE feed_id=? AND id=?`, ext, feedID, id)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, id, "set thumbnail", err)
	}
	return requireDownloadRowAffected(res, feedID, id)
}

// SetTranscript records the downloaded transcript's extension/language/source.
func (s *DownloadStore) SetTranscript(ctx context.Context, feedID, id, ext, lang string, source model.TranscriptSource) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET transcript_ext=?, transcript_lang=?, transcript_source=?
		WHERE feed_id=? AND id=?`, ext, lang, string(source), feedID, id)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, id, "set transcript", err)
	}
	return requireDownloadRowAffected(res, feedID, id)
}

// BumpRetries implements spec §4.2's bump_retries contract inside a single
// transaction: increments retries, and transitions to ERROR only if the new
// count reaches max_allowed_errors and the item is not already DOWNLOADED.
func (s *DownloadStore) BumpRetries(ctx context.Context, feedID, id, errMessage string, maxAllowedErrors int) (model.BumpRetriesResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.BumpRetriesResult{}, apperrors.NewDatabaseOperationError(feedID, id, "bump retries begin", err)
	}
	defer tx.Rollback()

	var currentRetries int
	var currentStatus string
	err = tx.QueryRowContext(ctx, `SELECT retries, status FROM downloads WHERE feed_id=? AND id=?`, feedID, id).Scan(&currentRetries, &currentStatus)
	if err == sql.ErrNoRows {
		return model.BumpRetriesResult{}, apperrors.NewDownloadNotFoundError(feedID, id)
	}
	if err != nil {
		return model.BumpRetriesResult{}, apperrors.NewDatabaseOperationError(feedID, id, "bump retries lookup", err)
	}

	newRetries := currentRetries + 1
	finalStatus := model.DownloadStatus(currentStatus)
	transitioned := false
	if finalStatus != model.StatusDownloaded && newRetries >= maxAllowedErrors {
		finalStatus = model.StatusError
		transitioned = true
	}

	if _, err := tx.ExecContext(ctx, `UPDATE downloads SET retries=?, last_error=?, status=? WHERE feed_id=? AND id=?`,
		newRetries, errMessage, string(finalStatus), feedID, id); err != nil {
		return model.BumpRetriesResult{}, apperrors.NewDatabaseOperationError(feedID, id, "bump retries update", err)
	}

	if err := tx.Commit(); err != nil {
		return model.BumpRetriesResult{}, apperrors.NewDatabaseOperationError(feedID, id, "bump retries commit", err)
	}

	return model.BumpRetriesResult{NewRetries: newRetries, FinalStatus: finalStatus, TransitionedToError: transitioned}, nil
}

// RequeueDownloads implements spec §4.2/§4.2's requeue_downloads contract:
// resets retries=0, last_error=null, status=QUEUED.
//
// ids=nil requires fromStatus set and bulk-updates every matching row (a
// no-op, not an error, if none match). A non-empty ids updates just those
// rows; with fromStatus set only rows currently in that status move, and if
// fromStatus is nil a missing id is an error.
func (s *DownloadStore) RequeueDownloads(ctx context.Context, feedID string, ids []string, fromStatus *model.DownloadStatus) (int, error) {
	if len(ids) == 0 {
		if fromStatus == nil {
			return 0, fmt.Errorf("requeue_downloads: from_status required when ids is nil")
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE downloads SET status=?, retries=0, last_error=NULL
			WHERE feed_id=? AND status=?`, string(model.StatusQueued), feedID, string(*fromStatus))
		if err != nil {
			return 0, apperrors.NewDatabaseOperationError(feedID, "", "requeue downloads bulk", err)
		}
		n, err := res.RowsAffected()
		return int(n), err
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(model.StatusQueued), feedID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := `UPDATE downloads SET status=?, retries=0, last_error=NULL WHERE feed_id=? AND id IN (` + strings.Join(placeholders, ",") + `)`
	if fromStatus != nil {
		query += ` AND status=?`
		args = append(args, string(*fromStatus))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewDatabaseOperationError(feedID, "", "requeue downloads", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if fromStatus == nil && int(n) != len(ids) {
		return int(n), apperrors.NewDownloadNotFoundError(feedID, strings.Join(ids, ","))
	}
	return int(n), nil
}

// MarkSkipped transitions any non-ARCHIVED download to SKIPPED, preserving
// retries and last_error (spec §4.2).
func (s *DownloadStore) MarkSkipped(ctx context.Context, feedID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status=? WHERE feed_id=? AND id=? AND status != ?`,
		string(model.StatusSkipped), feedID, id, string(model.StatusArchived))
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, id, "mark skipped", err)
	}
	return requireDownloadRowAffected(res, feedID, id)
}

// GetDownloadsToPruneByKeepLast returns rows beyond the keepLast newest,
// excluding ARCHIVED and SKIPPED (spec §4.5 candidate set A).
func (s *DownloadStore) GetDownloadsToPruneByKeepLast(ctx context.Context, feedID string, keepLast int) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads
		WHERE feed_id=? AND status NOT IN (?, ?)
		ORDER BY published DESC
		LIMIT -1 OFFSET ?`
	return s.queryDownloads(ctx, feedID, query, feedID, string(model.StatusArchived), string(model.StatusSkipped), keepLast)
}

// GetDownloadsToPruneBySince returns rows published before since, excluding
// ARCHIVED and SKIPPED (spec §4.5 candidate set B).
func (s *DownloadStore) GetDownloadsToPruneBySince(ctx context.Context, feedID string, since time.Time) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads
		WHERE feed_id=? AND status NOT IN (?, ?) AND published < ?`
	return s.queryDownloads(ctx, feedID, query, feedID, string(model.StatusArchived), string(model.StatusSkipped), formatTime(since))
}

// GetArchiveRestoreCandidates returns ARCHIVED rows published on/after since
// (or all, if since is nil), used by the StateReconciler's retention-loosening
// restoration logic (spec §4.6).
func (s *DownloadStore) GetArchiveRestoreCandidates(ctx context.Context, feedID string, since *time.Time, limit int) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE feed_id=? AND status=?`
	args := []any{feedID, string(model.StatusArchived)}
	if since != nil {
		query += ` AND published >= ?`
		args = append(args, formatTime(*since))
	}
	query += ` ORDER BY published DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDownloads(ctx, feedID, query, args...)
}

// MarkArchived implements the Pruner's single-update archival step (spec
// §4.5 step 4): clears thumbnail_ext, preserves retries/last_error. Media and
// thumbnail file deletion happens in the caller (FileStore), before this call.
func (s *DownloadStore) MarkArchived(ctx context.Context, feedID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE downloads SET status=?, thumbnail_ext=NULL WHERE feed_id=? AND id=?`,
		string(model.StatusArchived), feedID, id)
	if err != nil {
		return apperrors.NewDatabaseOperationError(feedID, id, "mark archived", err)
	}
	return requireDownloadRowAffected(res, feedID, id)
}

// ListNonArchived returns every download in the feed not already ARCHIVED,
// the candidate set for archive_feed's degenerate full-archival case.
func (s *DownloadStore) ListNonArchived(ctx context.Context, feedID string) ([]*model.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE feed_id=? AND status != ?`
	return s.queryDownloads(ctx, feedID, query, feedID, string(model.StatusArchived))
}

// CountDownloaded returns how many downloads in the feed currently have
// status DOWNLOADED, used by the FeedCoordinator's RSS-phase trigger (spec §4.1).
func (s *DownloadStore) CountDownloaded(ctx context.Context, feedID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloads WHERE feed_id=? AND status=?`, feedID, string(model.StatusDownloaded)).Scan(&n)
	if err != nil {
		return 0, apperrors.NewDatabaseOperationError(feedID, "", "count downloaded", err)
	}
	return n, nil
}

// DeleteDownload removes a download row outright (spec §6.9's admin delete,
// manual feeds only). Returns the row as it stood before deletion so the
// caller can unlink its media/thumbnail files; total_downloads decrements
// via trigger if the row was DOWNLOADED.
func (s *DownloadStore) DeleteDownload(ctx context.Context, feedID, id string) (*model.Download, error) {
	existing, err := s.GetDownload(ctx, feedID, id)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE feed_id=? AND id=?`, feedID, id)
	if err != nil {
		return nil, apperrors.NewDatabaseOperationError(feedID, id, "delete download", err)
	}
	if err := requireDownloadRowAffected(res, feedID, id); err != nil {
		return nil, err
	}
	return existing, nil
}

func requireDownloadRowAffected(res sql.Result, feedID, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewDownloadNotFoundError(feedID, id)
	}
	return nil
}
