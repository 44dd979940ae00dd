package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFileHashDeterministic(t *testing.T) {
	p := writeTemp(t, "hello")
	h1 := FileHash(p)
	h2 := FileHash(p)
	if h1 == NoHash {
		t.Fatal("expected a hash, got NoHash")
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars (32-byte digest), got %d", len(h1))
	}
	if strings.ToLower(h1) != h1 {
		t.Errorf("expected lowercase hex, got %q", h1)
	}
}

func TestFileHashDiffersOnContentChange(t *testing.T) {
	p := writeTemp(t, "hello")
	h1 := FileHash(p)
	if err := os.WriteFile(p, []byte("hello!"), 0o644); err != nil {
		t.Fatal(err)
	}
	h2 := FileHash(p)
	if h1 == h2 {
		t.Error("expected different hashes for different content")
	}
}

func TestFileHashMissingFile(t *testing.T) {
	if got := FileHash(filepath.Join(t.TempDir(), "nope.txt")); got != NoHash {
		t.Errorf("expected NoHash for missing file, got %q", got)
	}
}

func TestSHA256Fallback(t *testing.T) {
	p := writeTemp(t, "hello")
	h := New(Algorithm("unknown-algo")).File(p)
	want := New(SHA256).File(p)
	if h != want {
		t.Errorf("unknown algorithm should fall back to sha256: got %q want %q", h, want)
	}
}
