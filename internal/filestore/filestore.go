// Package filestore implements anypod's atomic write/delete/read primitives
// for media and image files under DATA_DIR, adapted from the teacher's
// library/organizer file-operations helpers.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

var ErrCrossDevice = errors.New("cross-device rename not supported")

// FileStore is the sole owner of reads/writes under DATA_DIR (spec §6.2,
// §5 "File writes use the .incomplete + rename pattern").
type FileStore struct {
	logger *zerolog.Logger
}

func New(logger *zerolog.Logger) *FileStore {
	return &FileStore{logger: logger}
}

// CommitAtomic moves a scratch file into its final location: ensures the
// destination directory exists, then renames. Falls back to copy+remove when
// the scratch and destination directories live on different filesystems.
func (fs *FileStore) CommitAtomic(tmpPath, finalPath string) error {
	if err := fs.ensureDestDir(finalPath); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err == nil {
		return nil
	} else if !isCrossDeviceError(err) {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, finalPath, err)
	}

	fs.logger.Debug().Str("tmp", tmpPath).Str("final", finalPath).Msg("cross-device rename, falling back to copy")
	if err := fs.copyFile(tmpPath, finalPath); err != nil {
		return fmt.Errorf("%w: %w", ErrCrossDevice, err)
	}
	if err := os.Remove(tmpPath); err != nil {
		fs.logger.Warn().Err(err).Str("path", tmpPath).Msg("failed to remove scratch file after copy")
	}
	return nil
}

// Delete removes a file if present. Spec §4.5: missing files on prune are a
// warning, not an error.
func (fs *FileStore) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			fs.logger.Warn().Str("path", path).Msg("file already absent on delete")
			return nil
		}
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names a regular, already-final file. Per spec
// §5, readers may open a file iff its final-name path exists.
func (fs *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open returns a read handle to a final-location file.
func (fs *FileStore) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// RemoveTmp cleans up a scratch artifact after a failed step (spec §4.4 step 8).
func (fs *FileStore) RemoveTmp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fs.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp artifact")
	}
}

func (fs *FileStore) ensureDestDir(destPath string) error {
	destDir := filepath.Dir(destPath)
	if info, err := os.Stat(destDir); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("creating destination directory %s: %w", destDir, err)
	}
	return nil
}

func (fs *FileStore) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".copy-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Rename(out.Name(), dst)
}

func isCrossDeviceError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	switch runtime.GOOS {
	case "linux", "darwin":
		return strings.Contains(errStr, "cross-device") || strings.Contains(errStr, "invalid cross-device link")
	case "windows":
		return strings.Contains(errStr, "not on the same disk")
	default:
		return strings.Contains(errStr, "cross-device")
	}
}
