package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore() *FileStore {
	logger := zerolog.New(zerolog.NewTestWriter(nil)).Level(zerolog.Disabled)
	return New(&logger)
}

func TestFileStore_CommitAtomic(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "scratch")
	if err := os.WriteFile(tmp, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	fs := newTestStore()
	final := filepath.Join(dir, "media", "f1", "v1.mp4")
	if err := fs.CommitAtomic(tmp, final); err != nil {
		t.Fatalf("CommitAtomic() error = %v", err)
	}

	if !fs.Exists(final) {
		t.Fatalf("Exists(%s) = false, want true", final)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("scratch file still present after commit")
	}

	data, err := os.ReadFile(final)
	if err != nil || string(data) != "hello" {
		t.Errorf("final file contents = %q, %v", data, err)
	}
}

func TestFileStore_Delete_MissingIsNotError(t *testing.T) {
	fs := newTestStore()
	if err := fs.Delete(filepath.Join(t.TempDir(), "ghost")); err != nil {
		t.Errorf("Delete() on missing file error = %v, want nil", err)
	}
}

func TestFileStore_Exists(t *testing.T) {
	dir := t.TempDir()
	fs := newTestStore()
	path := filepath.Join(dir, "present")

	if fs.Exists(path) {
		t.Errorf("Exists() before creation = true, want false")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if !fs.Exists(path) {
		t.Errorf("Exists() after creation = false, want true")
	}
}
