package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/pruner"
	"github.com/thurstonsan/anypod/internal/store"
	"github.com/thurstonsan/anypod/internal/testutil"
)

func newHarness(t *testing.T) (*store.FeedStore, *store.DownloadStore, *Reconciler) {
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
	prunerP := pruner.New(downloads, paths, files, zerolog.Nop())

	return feeds, downloads, New(feeds, downloads, prunerP, zerolog.Nop())
}

func baseFeedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		URL: url, Enabled: true, Schedule: "0 * * * *",
		Metadata: config.FeedMetadata{Title: "Test Feed", Language: "en"},
	}
}

func TestReconcile_InsertsNewFeed(t *testing.T) {
	feeds, _, rc := newHarness(t)
	ctx := context.Background()

	cfg := baseFeedConfig("https://example.com/f1")
	ready, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(ready) != 1 || ready[0] != "f1" {
		t.Fatalf("ready = %v, want [f1]", ready)
	}

	f, err := feeds.GetFeed(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	if f.SourceType != model.SourceUnknown {
		t.Errorf("SourceType = %v, want unknown", f.SourceType)
	}
	if !f.LastSuccessfulSync.Equal(model.EpochMin) {
		t.Errorf("LastSuccessfulSync = %v, want epoch-min", f.LastSuccessfulSync)
	}
}

func TestReconcile_InsertsNewFeedWithSince(t *testing.T) {
	feeds, _, rc := newHarness(t)
	ctx := context.Background()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := baseFeedConfig("https://example.com/f1")
	cfg.Since = &since

	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	f, err := feeds.GetFeed(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	if !f.LastSuccessfulSync.Equal(since) {
		t.Errorf("LastSuccessfulSync = %v, want %v", f.LastSuccessfulSync, since)
	}
}

func TestReconcile_DisabledFeedNotReady(t *testing.T) {
	_, _, rc := newHarness(t)
	ctx := context.Background()

	cfg := baseFeedConfig("https://example.com/f1")
	cfg.Enabled = false

	ready, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("ready = %v, want empty", ready)
	}
}

func TestReconcile_ArchivesFeedDroppedFromConfig(t *testing.T) {
	feeds, _, rc := newHarness(t)
	ctx := context.Background()

	cfg := baseFeedConfig("https://example.com/f1")
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("initial Reconcile() error = %v", err)
	}

	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{}); err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	f, err := feeds.GetFeed(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	if f.IsEnabled {
		t.Errorf("IsEnabled = true, want false after archival")
	}
}

func TestReconcile_UpdatesDiffedFields(t *testing.T) {
	feeds, _, rc := newHarness(t)
	ctx := context.Background()

	cfg := baseFeedConfig("https://example.com/f1")
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("initial Reconcile() error = %v", err)
	}

	cfg.Metadata.Title = "Renamed Feed"
	cfg.Metadata.Subtitle = "New Subtitle"
	cfg.Metadata.AuthorEmail = "host@example.com"
	cfg.Metadata.ImageURL = "https://example.com/art.png"
	cfg.Metadata.Category = []model.Category{{Main: "Arts", Sub: "Books"}}
	cfg.Metadata.PodcastType = model.PodcastTypeSerial
	cfg.Metadata.Explicit = model.ExplicitYes
	cfg.IsManual = true
	cfg.Schedule = "0 */6 * * *"
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	f, err := feeds.GetFeed(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFeed() error = %v", err)
	}
	if f.Title != "Renamed Feed" {
		t.Errorf("Title = %q, want %q", f.Title, "Renamed Feed")
	}
	if f.Schedule != "0 */6 * * *" {
		t.Errorf("Schedule = %q, want %q", f.Schedule, "0 */6 * * *")
	}
	if f.Subtitle != "New Subtitle" {
		t.Errorf("Subtitle = %q, want %q", f.Subtitle, "New Subtitle")
	}
	if f.AuthorEmail != "host@example.com" {
		t.Errorf("AuthorEmail = %q, want %q", f.AuthorEmail, "host@example.com")
	}
	if f.RemoteImageURL != "https://example.com/art.png" {
		t.Errorf("RemoteImageURL = %q, want %q", f.RemoteImageURL, "https://example.com/art.png")
	}
	if len(f.Category) != 1 || f.Category[0] != (model.Category{Main: "Arts", Sub: "Books"}) {
		t.Errorf("Category = %v, want [{Arts Books}]", f.Category)
	}
	if f.PodcastType != model.PodcastTypeSerial {
		t.Errorf("PodcastType = %q, want %q", f.PodcastType, model.PodcastTypeSerial)
	}
	if f.Explicit != model.ExplicitYes {
		t.Errorf("Explicit = %q, want %q", f.Explicit, model.ExplicitYes)
	}
	if !f.IsManual {
		t.Error("IsManual = false, want true")
	}
}

func archivedDownload(feedID, id string, published time.Time) *model.Download {
	d := model.NewQueued(feedID, id, "https://example.com/"+id, "Title "+id, published, "mp4", "video/mp4", 100, 60)
	d.Status = model.StatusArchived
	return d
}

func TestReconcile_RestoresOnSincePresentToAbsent(t *testing.T) {
	feeds, downloads, rc := newHarness(t)
	ctx := context.Background()

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := baseFeedConfig("https://example.com/f1")
	cfg.Since = &since
	if err := feeds.InsertFeed(ctx, &model.Feed{
		ID: "f1", IsEnabled: true, SourceType: model.SourceChannel,
		SourceURL: cfg.URL, ResolvedURL: cfg.URL, LastSuccessfulSync: model.EpochMin,
		Since: &since, Title: "Test Feed", Language: "en", Schedule: cfg.Schedule,
	}); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := downloads.UpsertDownload(ctx, archivedDownload("f1", "v1", old)); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	cfg.Since = nil
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	dl, err := downloads.GetDownload(ctx, "f1", "v1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if dl.Status != model.StatusQueued {
		t.Errorf("Status = %v, want QUEUED (restored)", dl.Status)
	}
}

func TestReconcile_NoRestoreWhenSinceGetsStricter(t *testing.T) {
	feeds, downloads, rc := newHarness(t)
	ctx := context.Background()

	since := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := baseFeedConfig("https://example.com/f1")
	cfg.Since = &since
	if err := feeds.InsertFeed(ctx, &model.Feed{
		ID: "f1", IsEnabled: true, SourceType: model.SourceChannel,
		SourceURL: cfg.URL, ResolvedURL: cfg.URL, LastSuccessfulSync: model.EpochMin,
		Since: &since, Title: "Test Feed", Language: "en", Schedule: cfg.Schedule,
	}); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	published := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := downloads.UpsertDownload(ctx, archivedDownload("f1", "v1", published)); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	later := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg.Since = &later
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	dl, err := downloads.GetDownload(ctx, "f1", "v1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if dl.Status != model.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED (no restore on stricter since)", dl.Status)
	}
}

func TestReconcile_RestoresOnKeepLastIncreaseAloneWithSinceUnchanged(t *testing.T) {
	feeds, downloads, rc := newHarness(t)
	ctx := context.Background()

	keepLast := 1
	cfg := baseFeedConfig("https://example.com/f1")
	cfg.KeepLast = &keepLast
	if err := feeds.InsertFeed(ctx, &model.Feed{
		ID: "f1", IsEnabled: true, SourceType: model.SourceChannel,
		SourceURL: cfg.URL, ResolvedURL: cfg.URL, LastSuccessfulSync: model.EpochMin,
		KeepLast: &keepLast, Title: "Test Feed", Language: "en", Schedule: cfg.Schedule,
	}); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := downloads.UpsertDownload(ctx, d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}
	if err := downloads.MarkDownloaded(ctx, "f1", "v1", "mp4", 100, 60); err != nil {
		t.Fatalf("MarkDownloaded() error = %v", err)
	}
	if err := downloads.UpsertDownload(ctx, archivedDownload("f1", "v2", time.Now())); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	newKeepLast := 2
	cfg.KeepLast = &newKeepLast
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	dl, err := downloads.GetDownload(ctx, "f1", "v2")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if dl.Status != model.StatusQueued {
		t.Errorf("Status = %v, want QUEUED (keep_last alone loosened)", dl.Status)
	}
}

func TestReconcile_NoRestoreWhenKeepLastUnchangedAndBelowTotal(t *testing.T) {
	feeds, downloads, rc := newHarness(t)
	ctx := context.Background()

	keepLast := 1
	cfg := baseFeedConfig("https://example.com/f1")
	cfg.KeepLast = &keepLast
	if err := feeds.InsertFeed(ctx, &model.Feed{
		ID: "f1", IsEnabled: true, SourceType: model.SourceChannel,
		SourceURL: cfg.URL, ResolvedURL: cfg.URL, LastSuccessfulSync: model.EpochMin,
		KeepLast: &keepLast, Title: "Test Feed", Language: "en", Schedule: cfg.Schedule,
	}); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := downloads.UpsertDownload(ctx, d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}
	if err := downloads.MarkDownloaded(ctx, "f1", "v1", "mp4", 100, 60); err != nil {
		t.Fatalf("MarkDownloaded() error = %v", err)
	}
	if err := downloads.UpsertDownload(ctx, archivedDownload("f1", "v2", time.Now())); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	cfg.Metadata.Title = "Renamed to force a diff"
	if _, err := rc.Reconcile(ctx, map[string]config.FeedConfig{"f1": cfg}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	dl, err := downloads.GetDownload(ctx, "f1", "v2")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if dl.Status != model.StatusArchived {
		t.Errorf("Status = %v, want ARCHIVED (keep_last unchanged, at capacity)", dl.Status)
	}
}
