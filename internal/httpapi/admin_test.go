package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/coordinator"
	"github.com/thurstonsan/anypod/internal/downloader"
	"github.com/thurstonsan/anypod/internal/enqueuer"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/manualsubmission"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/pruner"
	"github.com/thurstonsan/anypod/internal/rss"
	"github.com/thurstonsan/anypod/internal/scheduler"
	"github.com/thurstonsan/anypod/internal/store"
	"github.com/thurstonsan/anypod/internal/testutil"
)

type adminFakeHandler struct{}

func (adminFakeHandler) Matches(string) bool { return true }
func (adminFakeHandler) Discover(context.Context, string, time.Time, fetcher.DiscoverOptions) (string, []fetcher.Item, error) {
	return "", nil, nil
}
func (adminFakeHandler) FetchMetadata(context.Context, string, fetcher.DiscoverOptions) ([]fetcher.Item, error) {
	return []fetcher.Item{{ID: "v1", SourceURL: "https://example.com/v1", Title: "Video", Published: time.Now(), Status: model.StatusQueued, Ext: "mp4", MimeType: "video/mp4", Filesize: 1, Duration: 1}}, nil
}
func (adminFakeHandler) DownloadMedia(context.Context, fetcher.Item, string, fetcher.DiscoverOptions) (*fetcher.MediaResult, error) {
	return nil, nil
}
func (adminFakeHandler) DownloadThumbnail(context.Context, string, string) error { return nil }
func (adminFakeHandler) DownloadTranscript(context.Context, fetcher.Item, string, []model.TranscriptSource, string) (*fetcher.TranscriptResult, error) {
	return nil, nil
}

type adminHarness struct {
	feeds     *store.FeedStore
	downloads *store.DownloadStore
	paths     *pathmanager.PathManager
	echo      *echo.Echo
	feedCfgs  map[string]config.FeedConfig
}

func newAdminHarness(t *testing.T, feedCfgs map[string]config.FeedConfig) *adminHarness {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)

	feeds := store.NewFeedStore(tdb.DB.Conn())
	downloads := store.NewDownloadStore(tdb.DB.Conn())
	paths := pathmanager.New(t.TempDir())
	if err := paths.EnsureRootDirs(); err != nil {
		t.Fatalf("EnsureRootDirs() error = %v", err)
	}
	l := zerolog.Nop()
	files := filestore.New(&l)
	registry := fetcher.NewRegistry(adminFakeHandler{})

	enq := enqueuer.New(feeds, downloads, registry, "", zerolog.Nop())
	dl := downloader.New(downloads, paths, files, registry, "", zerolog.Nop())
	prunerP := pruner.New(downloads, paths, files, zerolog.Nop())
	rssGen := rss.New(paths)
	coord := coordinator.New(feeds, downloads, enq, dl, prunerP, rssGen, paths, "https://pod.example.com", zerolog.Nop())

	process := func(ctx context.Context, feedID string, cfg config.FeedConfig) coordinator.ProcessingResult {
		return coord.Process(ctx, feedID, cfg)
	}
	runner := scheduler.NewManualRunner(process, semaphore.NewWeighted(2), zerolog.Nop())
	submission := manualsubmission.New(feeds, downloads, registry, runner, "")

	admin := NewAdminHandlers(feeds, downloads, paths, coord, runner, submission, feedCfgs, zerolog.Nop())
	e := echo.New()
	admin.RegisterRoutes(e.Group("/admin"))

	return &adminHarness{feeds: feeds, downloads: downloads, paths: paths, echo: e, feedCfgs: feedCfgs}
}

func newManualFeed(id string) *model.Feed {
	return &model.Feed{
		ID: id, IsEnabled: true, SourceType: model.SourceSingleVideo, IsManual: true,
		SourceURL: "https://example.com/" + id, ResolvedURL: "https://example.com/" + id,
		LastSuccessfulSync: model.EpochMin, Title: "Manual Feed", Language: "en",
		PodcastType: model.PodcastTypeEpisodic, Explicit: model.ExplicitNo, Schedule: "0 * * * *",
	}
}

func TestAdmin_ListFeeds(t *testing.T) {
	h := newAdminHarness(t, map[string]config.FeedConfig{})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var feeds []model.Feed
	if err := json.Unmarshal(rec.Body.Bytes(), &feeds); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("len(feeds) = %d, want 1", len(feeds))
	}
}

func TestAdmin_GetFeed_NotFound(t *testing.T) {
	h := newAdminHarness(t, map[string]config.FeedConfig{})

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds/missing", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdmin_RefreshFeed_DisabledReturnsBadRequest(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: false, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})

	req := httptest.NewRequest(http.MethodPost, "/admin/feeds/f1/refresh", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdmin_RefreshFeed_UnknownReturnsNotFound(t *testing.T) {
	h := newAdminHarness(t, map[string]config.FeedConfig{})

	req := httptest.NewRequest(http.MethodPost, "/admin/feeds/nope/refresh", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdmin_SubmitDownload_RequiresURL(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, IsManual: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})

	req := httptest.NewRequest(http.MethodPost, "/admin/feeds/f1/downloads", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAdmin_DeleteDownload_NonManualFeedRejected(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, IsManual: false, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/feeds/f1/downloads/v1", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdmin_DeleteDownload_ManualFeedDeletesRowAndRegenRSS(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, IsManual: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()

	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}
	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := h.downloads.UpsertDownload(ctx, d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/feeds/f1/downloads/v1", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", rec.Code, rec.Body.String())
	}

	if _, err := h.downloads.GetDownload(ctx, "f1", "v1"); err == nil {
		t.Fatalf("expected download row to be gone after delete")
	}
	if _, err := os.Stat(h.paths.FeedXMLPath("f1")); err != nil {
		t.Fatalf("expected feed XML regenerated after delete: %v", err)
	}
}

func TestAdmin_ListDownloads_FiltersByStatus(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	queued := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := h.downloads.UpsertDownload(ctx, queued); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}
	upcoming := model.NewUpcoming("f1", "v2", "https://example.com/v2", "Video 2", time.Now())
	if err := h.downloads.UpsertDownload(ctx, upcoming); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds/f1/downloads?status=queued", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var got []model.Download
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "v1" {
		t.Fatalf("got %+v, want only v1", got)
	}
}

func TestAdmin_ListDownloads_NoFilterReturnsAllStatuses(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	queued := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := h.downloads.UpsertDownload(ctx, queued); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}
	upcoming := model.NewUpcoming("f1", "v2", "https://example.com/v2", "Video 2", time.Now())
	if err := h.downloads.UpsertDownload(ctx, upcoming); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds/f1/downloads", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var got []model.Download
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d downloads, want 2", len(got))
	}
}

func TestAdmin_ListDownloads_InvalidStatusReturnsBadRequest(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds/f1/downloads?status=bogus", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAdmin_SkipDownload_TransitionsToSkipped(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := h.downloads.UpsertDownload(ctx, d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/feeds/f1/downloads/v1/skip", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", rec.Code, rec.Body.String())
	}

	got, err := h.downloads.GetDownload(ctx, "f1", "v1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got.Status != model.StatusSkipped {
		t.Fatalf("Status = %v, want SKIPPED", got.Status)
	}
}

func TestAdmin_SkipDownload_UnknownReturnsNotFound(t *testing.T) {
	h := newAdminHarness(t, map[string]config.FeedConfig{})

	req := httptest.NewRequest(http.MethodPost, "/admin/feeds/f1/downloads/nope/skip", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAdmin_GetDownload_FieldProjection(t *testing.T) {
	cfg := config.FeedConfig{URL: "https://example.com/f1", Enabled: true, Schedule: "0 * * * *"}
	h := newAdminHarness(t, map[string]config.FeedConfig{"f1": cfg})
	ctx := context.Background()
	if err := h.feeds.InsertFeed(ctx, newManualFeed("f1")); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := h.downloads.UpsertDownload(ctx, d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds/f1/downloads/v1?fields=title,status", nil)
	rec := httptest.NewRecorder()
	h.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d fields, want 2: %v", len(got), got)
	}
	if _, ok := got["Title"]; !ok {
		t.Errorf("missing Title field in projection: %v", got)
	}
}
