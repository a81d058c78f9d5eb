package httpapi

import (
	"os"
	"path/filepath"
	"strings"
)

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// fileExistsUnder guards against path traversal: name must resolve to a
// direct child of dir with no directory separators of its own.
func fileExistsUnder(dir, name string) bool {
	if !safeSegment(name) {
		return false
	}
	return fileExists(filepath.Join(dir, name))
}

// safeSegment rejects any path segment that could escape its parent
// directory once joined with filepath.Join.
func safeSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/\\") && !strings.Contains(s, "..")
}
