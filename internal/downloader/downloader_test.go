package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/thurstonsan/anypod/internal/config"
	"github.com/thurstonsan/anypod/internal/fetcher"
	"github.com/thurstonsan/anypod/internal/filestore"
	"github.com/thurstonsan/anypod/internal/model"
	"github.com/thurstonsan/anypod/internal/pathmanager"
	"github.com/thurstonsan/anypod/internal/store"
	"github.com/thurstonsan/anypod/internal/testutil"
)

var errDownloadFailed = errors.New("simulated media download failure")

func zeroLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeHandler struct {
	mediaErr   error
	thumbErr   error
	mediaBytes []byte
}

func (f *fakeHandler) Matches(string) bool { return true }
func (f *fakeHandler) Discover(context.Context, string, time.Time, fetcher.DiscoverOptions) (string, []fetcher.Item, error) {
	return "", nil, nil
}
func (f *fakeHandler) FetchMetadata(context.Context, string, fetcher.DiscoverOptions) ([]fetcher.Item, error) {
	return nil, nil
}

func (f *fakeHandler) DownloadMedia(_ context.Context, item fetcher.Item, tmpDir string, _ fetcher.DiscoverOptions) (*fetcher.MediaResult, error) {
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(tmpDir, item.ID+".tmp")
	if err := os.WriteFile(path, f.mediaBytes, 0o640); err != nil {
		return nil, err
	}
	return &fetcher.MediaResult{TempPath: path, Ext: "mp4", MimeType: "video/mp4", Filesize: int64(len(f.mediaBytes)), Duration: 42}, nil
}

func (f *fakeHandler) DownloadThumbnail(_ context.Context, url, destPath string) error {
	if f.thumbErr != nil {
		return f.thumbErr
	}
	if url == "" {
		return nil
	}
	return os.WriteFile(destPath, []byte("thumb"), 0o640)
}

func (f *fakeHandler) DownloadTranscript(context.Context, fetcher.Item, string, []model.TranscriptSource, string) (*fetcher.TranscriptResult, error) {
	return nil, nil
}

func TestDownloader_Run_Success(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	dataDir := t.TempDir()

	ds := store.NewDownloadStore(tdb.DB.Conn())
	paths := pathmanager.New(dataDir)
	if err := paths.EnsureRootDirs(); err != nil {
		t.Fatalf("EnsureRootDirs() error = %v", err)
	}
	files := filestore.New(zeroLogger())

	feed := &model.Feed{ID: "f1", IsEnabled: true, SourceType: model.SourceChannel, SourceURL: "https://example.com/f1", LastSuccessfulSync: model.EpochMin}
	if err := store.NewFeedStore(tdb.DB.Conn()).InsertFeed(context.Background(), feed); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := ds.UpsertDownload(context.Background(), d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	handler := &fakeHandler{mediaBytes: []byte("hello world")}
	registry := fetcher.NewRegistry(handler)
	dl := New(ds, paths, files, registry, "", zerolog.Nop())

	result, err := dl.Run(context.Background(), "f1", config.FeedConfig{MaxErrors: 3}, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1", result.SuccessCount)
	}

	got, err := ds.GetDownload(context.Background(), "f1", "v1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got.Status != model.StatusDownloaded {
		t.Fatalf("Status = %v, want DOWNLOADED", got.Status)
	}

	if _, err := os.Stat(paths.MediaPath("f1", "v1", "mp4")); err != nil {
		t.Fatalf("expected media file committed: %v", err)
	}
}

func TestDownloader_Run_MediaFailureBumpsRetries(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	dataDir := t.TempDir()

	ds := store.NewDownloadStore(tdb.DB.Conn())
	paths := pathmanager.New(dataDir)
	if err := paths.EnsureRootDirs(); err != nil {
		t.Fatalf("EnsureRootDirs() error = %v", err)
	}
	files := filestore.New(zeroLogger())

	feed := &model.Feed{ID: "f1", IsEnabled: true, SourceType: model.SourceChannel, SourceURL: "https://example.com/f1", LastSuccessfulSync: model.EpochMin}
	if err := store.NewFeedStore(tdb.DB.Conn()).InsertFeed(context.Background(), feed); err != nil {
		t.Fatalf("InsertFeed() error = %v", err)
	}

	d := model.NewQueued("f1", "v1", "https://example.com/v1", "Video 1", time.Now(), "mp4", "video/mp4", 100, 60)
	if err := ds.UpsertDownload(context.Background(), d); err != nil {
		t.Fatalf("UpsertDownload() error = %v", err)
	}

	handler := &fakeHandler{mediaErr: errDownloadFailed}
	registry := fetcher.NewRegistry(handler)
	dl := New(ds, paths, files, registry, "", zerolog.Nop())

	result, err := dl.Run(context.Background(), "f1", config.FeedConfig{MaxErrors: 3}, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FailureCount != 1 {
		t.Fatalf("FailureCount = %d, want 1", result.FailureCount)
	}

	got, err := ds.GetDownload(context.Background(), "f1", "v1")
	if err != nil {
		t.Fatalf("GetDownload() error = %v", err)
	}
	if got.Status != model.StatusQueued {
		t.Fatalf("Status = %v, want still QUEUED after one failure", got.Status)
	}
	if got.Retries != 1 {
		t.Fatalf("Retries = %d, want 1", got.Retries)
	}
}
