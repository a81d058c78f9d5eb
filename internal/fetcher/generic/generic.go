// Package generic implements the FetcherAdapter Handler used when no
// host-specific handler claims a source URL, delegating entirely to
// yt-dlp's own site-detection logic.
package generic

import (
	"context"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/fetcher/procutil"
	"github.com/thurstonsan/anypod/internal/fetcher/ytdlp"
	"github.com/thurstonsan/anypod/internal/model"
)

type Handler struct{}

func New() *Handler { return &Handler{} }

// Matches always returns true; the generic handler is the dispatcher's
// fallback and must be registered last.
func (h *Handler) Matches(sourceURL string) bool { return true }

func (h *Handler) Discover(ctx context.Context, sourceURL string, since time.Time, opts fetcher.DiscoverOptions) (string, []fetcher.Item, error) {
	items, err := h.FetchMetadata(ctx, sourceURL, opts)
	if err != nil {
		return "", nil, err
	}
	sinceDayFloor := since.Truncate(24 * time.Hour)
	var filtered []fetcher.Item
	for _, item := range items {
		if item.Published.Before(sinceDayFloor) {
			continue
		}
		filtered = append(filtered, item)
	}
	return sourceURL, filtered, nil
}

func (h *Handler) FetchMetadata(ctx context.Context, sourceURL string, opts fetcher.DiscoverOptions) ([]fetcher.Item, error) {
	entries, err := ytdlp.DumpJSON(ctx, sourceURL, opts.YtArgs, opts.CookiesPath, false)
	if err != nil {
		return nil, apperrors.NewEnqueueError("", "generic metadata fetch", err)
	}
	items := make([]fetcher.Item, 0, len(entries))
	for _, e := range entries {
		item, convErr := toItem(e)
		if convErr != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (h *Handler) DownloadMedia(ctx context.Context, item fetcher.Item, tmpDir string, opts fetcher.DiscoverOptions) (*fetcher.MediaResult, error) {
	args := append([]string{}, opts.YtArgs...)
	if opts.CookiesPath != "" {
		args = append(args, "--cookies", opts.CookiesPath)
	}
	args = append(args, "--no-warnings", "-o", tmpDir+"/%(id)s.%(ext)s", item.SourceURL)

	res, err := procutil.Run(ctx, "yt-dlp", args...)
	logs := ""
	if res != nil {
		logs = string(res.Stderr)
	}
	if err != nil {
		return nil, apperrors.NewDownloaderError("", item.ID, "yt-dlp download failed", err)
	}

	return &fetcher.MediaResult{
		TempPath: tmpDir + "/" + item.ID + "." + item.Ext,
		Ext:      item.Ext,
		MimeType: item.MimeType,
		Filesize: item.Filesize,
		Duration: item.Duration,
		Logs:     logs,
	}, nil
}

func (h *Handler) DownloadThumbnail(ctx context.Context, thumbURL, destPath string) error {
	return fetcher.DownloadImageHTTP(ctx, thumbURL, destPath)
}

func (h *Handler) DownloadTranscript(ctx context.Context, item fetcher.Item, lang string, priority []model.TranscriptSource, tmpDir string) (*fetcher.TranscriptResult, error) {
	for _, source := range priority {
		args := []string{"--skip-download", "--no-warnings", "-o", tmpDir + "/%(id)s.%(ext)s"}
		if source == model.TranscriptSourceCreator {
			args = append(args, "--write-sub")
		} else {
			args = append(args, "--write-auto-sub")
		}
		if lang != "" {
			args = append(args, "--sub-lang", lang)
		}
		args = append(args, item.SourceURL)

		if _, err := procutil.Run(ctx, "yt-dlp", args...); err != nil {
			continue
		}
		return &fetcher.TranscriptResult{
			TempPath: tmpDir + "/" + item.ID + ".vtt",
			Ext:      "vtt",
			Lang:     lang,
			Source:   source,
		}, nil
	}
	return nil, nil
}

func toItem(e ytdlp.Entry) (fetcher.Item, error) {
	published, err := e.Published()
	if err != nil {
		return fetcher.Item{}, err
	}
	ext := e.Ext
	if ext == "" {
		ext = model.SentinelExt
	}
	return fetcher.Item{
		ID:                 e.ID,
		SourceURL:          e.WebpageURL,
		Title:              e.Title,
		Published:          published,
		Status:             e.Status(),
		Ext:                ext,
		MimeType:           ytdlp.MimeType(ext),
		Filesize:           e.FilesizeOrSentinel(),
		Duration:           int64(e.Duration),
		Description:        e.Description,
		RemoteThumbnailURL: ytdlp.ParseThumbnail(e.Thumbnail),
	}, nil
}
