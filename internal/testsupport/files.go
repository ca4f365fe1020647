package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteMedia creates path (and its parent) holding size placeholder bytes.
// Media validation only inspects extension, size and, for video, ffprobe, so
// the content never needs to be a real image or clip. size <= 0 writes one byte.
func WriteMedia(t testing.TB, path string, size int) string {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'m'}, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
