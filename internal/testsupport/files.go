package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// Payload returns size bytes of a repeating pattern seeded by fill, so two
// payloads with different seeds hash differently.
func Payload(size int, fill byte) []byte {
	if size <= 0 {
		size = 1
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fill + byte(i%7)
	}
	return buf
}

// WriteFile writes a Payload of the requested size to path.
func WriteFile(t testing.TB, path string, size int, fill byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, Payload(size, fill), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
