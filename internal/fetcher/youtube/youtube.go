// Package youtube implements the FetcherAdapter Handler for youtube.com and
// youtu.be URLs.
package youtube

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/thurstonsan/anypod/internal/apperrors"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/fetcher/procutil"
	"github.com/thurstonsan/anypod/internal/fetcher/ytdlp"
	"github.com/thurstonsan/anypod/internal/model"
)

type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Matches(sourceURL string) bool {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return strings.HasSuffix(host, "youtube.com") || host == "youtu.be"
}

// Discover applies the "main channel page" heuristic from spec §9: a
// playlist whose every entry is itself a playlist is a channel's landing
// page, not a video list, and must be rewritten to the /videos tab.
func (h *Handler) Discover(ctx context.Context, sourceURL string, since time.Time, opts fetcher.DiscoverOptions) (string, []fetcher.Item, error) {
	resolved := sourceURL

	flat, err := ytdlp.DumpJSON(ctx, resolved, opts.YtArgs, opts.CookiesPath, true)
	if err != nil {
		return "", nil, apperrors.NewEnqueueError("", "discover listing", err)
	}
	if allSubPlaylists(flat) {
		resolved = channelVideosURL(resolved)
	}

	entries, err := ytdlp.DumpJSON(ctx, resolved, opts.YtArgs, opts.CookiesPath, false)
	if err != nil {
		return "", nil, apperrors.NewEnqueueError("", "discover metadata", err)
	}

	sinceDayFloor := since.Truncate(24 * time.Hour)
	var items []fetcher.Item
	for _, e := range entries {
		item, err := toItem(e)
		if err != nil {
			continue // per-item parse failure during discovery is skipped, not fatal
		}
		if item.Published.Before(sinceDayFloor) {
			continue
		}
		items = append(items, item)
	}
	return resolved, items, nil
}

func (h *Handler) FetchMetadata(ctx context.Context, sourceURL string, opts fetcher.DiscoverOptions) ([]fetcher.Item, error) {
	entries, err := ytdlp.DumpJSON(ctx, sourceURL, opts.YtArgs, opts.CookiesPath, false)
	if err != nil {
		return nil, err
	}
	var items []fetcher.Item
	for _, e := range entries {
		item, err := toItem(e)
		if err != nil {
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

func allSubPlaylists(entries []ytdlp.Entry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if e.Type != "playlist" && e.IEKey != "YoutubeTab" {
			return false
		}
	}
	return true
}

func channelVideosURL(raw string) string {
	return strings.TrimRight(raw, "/") + "/videos"
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
	item := fetcher.Item{
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
	}
	if item.Duration == 0 {
		item.Duration = model.SentinelDuration
	}
	if item.Status == model.StatusUpcoming {
		item.Ext = model.SentinelExt
		item.MimeType = model.SentinelMimeType
		item.Filesize = model.SentinelFilesize
		item.Duration = model.SentinelDuration
	}
	return item, nil
}
