// Package pathmanager maps feed and download identifiers to the on-disk
// layout under DATA_DIR (spec §6.2) and to the public URLs the RSS generator
// and HTTP surface serve them at.
package pathmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathManager resolves every filesystem location anypod owns.
type PathManager struct {
	dataDir string
}

func New(dataDir string) *PathManager {
	return &PathManager{dataDir: dataDir}
}

// EnsureRootDirs creates the top-level directories the daemon owns exclusively.
func (p *PathManager) EnsureRootDirs() error {
	for _, dir := range []string{p.dbDir(), p.mediaRoot(), p.imagesRoot(), p.feedsRoot(), p.tmpRoot()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func (p *PathManager) dbDir() string     { return filepath.Join(p.dataDir, "db") }
func (p *PathManager) mediaRoot() string { return filepath.Join(p.dataDir, "media") }
func (p *PathManager) imagesRoot() string { return filepath.Join(p.dataDir, "images") }
func (p *PathManager) feedsRoot() string { return filepath.Join(p.dataDir, "feeds") }
func (p *PathManager) tmpRoot() string   { return filepath.Join(p.dataDir, "tmp") }

// DBPath is the SQLite database file location.
func (p *PathManager) DBPath() string {
	return filepath.Join(p.dbDir(), "anypod.db")
}

// MediaDir is the directory holding one feed's downloaded media files.
func (p *PathManager) MediaDir(feedID string) string {
	return filepath.Join(p.mediaRoot(), feedID)
}

// MediaPath is the final (post-rename) location of one download's media file.
func (p *PathManager) MediaPath(feedID, downloadID, ext string) string {
	return filepath.Join(p.MediaDir(feedID), downloadID+"."+ext)
}

// FeedImagePath is the feed-level artwork file.
func (p *PathManager) FeedImagePath(feedID, ext string) string {
	return filepath.Join(p.imagesRoot(), feedID+"."+ext)
}

// DownloadImageDir holds per-download thumbnails for a feed.
func (p *PathManager) DownloadImageDir(feedID string) string {
	return filepath.Join(p.imagesRoot(), feedID, "downloads")
}

// DownloadImagePath is one download's thumbnail. The file name always ends in
// .jpg; the file holds the bytes as fetched, whatever their image format.
func (p *PathManager) DownloadImagePath(feedID, downloadID string) string {
	return filepath.Join(p.DownloadImageDir(feedID), downloadID+".jpg")
}

// FeedXMLPath is the generated RSS document for a feed.
func (p *PathManager) FeedXMLPath(feedID string) string {
	return filepath.Join(p.feedsRoot(), feedID+".xml")
}

// TmpDir is the scratch directory for one feed's in-flight work.
func (p *PathManager) TmpDir(feedID string) string {
	return filepath.Join(p.tmpRoot(), feedID)
}

// NewTmpPath returns a fresh scratch file path under TmpDir(feedID), creating
// the directory if needed. The caller writes to this path and then asks
// FileStore to atomically rename it into its final location.
func (p *PathManager) NewTmpPath(feedID string) (string, error) {
	dir := p.TmpDir(feedID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating tmp dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "tmp_*")
	if err != nil {
		return "", fmt.Errorf("creating tmp file: %w", err)
	}
	path := f.Name()
	f.Close()
	return path, nil
}

// MediaURL builds the public URL for a download's media file (spec §6.3).
func MediaURL(baseURL, feedID, downloadID, ext string) string {
	return fmt.Sprintf("%s/media/%s/%s.%s", strings.TrimRight(baseURL, "/"), feedID, downloadID, ext)
}

// FeedImageURL builds the public URL for a feed's artwork.
func FeedImageURL(baseURL, feedID, ext string) string {
	return fmt.Sprintf("%s/images/%s.%s", strings.TrimRight(baseURL, "/"), feedID, ext)
}

// DownloadImageURL builds the public URL for a download's thumbnail.
func DownloadImageURL(baseURL, feedID, downloadID string) string {
	return fmt.Sprintf("%s/images/%s/downloads/%s.jpg", strings.TrimRight(baseURL, "/"), feedID, downloadID)
}

// FeedXMLURL builds the public URL for a feed's RSS document.
func FeedXMLURL(baseURL, feedID string) string {
	return fmt.Sprintf("%s/feeds/%s.xml", strings.TrimRight(baseURL, "/"), feedID)
}
