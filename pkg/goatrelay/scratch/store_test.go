package scratch

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "scratch"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestStore_CreateWriteRead(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Create(PurposeMedia, "Some Video Title", "mp4")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Discard()

	if _, err := f.Write([]byte("payload")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	size, err := f.Size()
	if err != nil || size != int64(len("payload")) {
		t.Errorf("Size() = (%d, %v), want (%d, nil)", size, err, len("payload"))
	}

	r, err := f.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "payload" {
		t.Errorf("read back %q, want %q", data, "payload")
	}
}

func TestStore_UniqueNames(t *testing.T) {
	s := newTestStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		f, err := s.Create(PurposeThumbnail, "same stem", "jpg")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if seen[f.Path()] {
			t.Fatalf("duplicate scratch path %s", f.Path())
		}
		seen[f.Path()] = true
		f.Discard()
	}
}

func TestFile_DiscardIdempotent(t *testing.T) {
	s := newTestStore(t)
	f, err := s.Create(PurposeMedia, "", "mp4")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.Write([]byte("x"))

	f.Discard()
	if !f.Discarded() {
		t.Error("Discarded() = false after Discard()")
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Errorf("file still exists after Discard(): %v", err)
	}
	// Second discard must be a no-op.
	f.Discard()
}

func TestStore_Sweep(t *testing.T) {
	s := newTestStore(t)

	old, err := s.Create(PurposeThumbnail, "old", "jpg")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	old.Write([]byte("x"))
	old.Close()
	stale := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old.Path(), stale, stale); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	fresh, err := s.Create(PurposeMedia, "fresh", "mp4")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fresh.Write([]byte("y"))
	fresh.Close()
	defer fresh.Discard()

	if n := s.Sweep(30 * time.Minute); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := os.Stat(old.Path()); !os.IsNotExist(err) {
		t.Error("old file should have been swept")
	}
	if _, err := os.Stat(fresh.Path()); err != nil {
		t.Errorf("fresh file should survive sweep: %v", err)
	}
}

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Funny Cats 2024", "Funny_Cats_2024"},
		{"a/b\\c:d", "abcd"},
		{"", ""},
		{strings.Repeat("x", 100), strings.Repeat("x", 30)},
		{"___", ""},
	}
	for _, tt := range tests {
		if got := sanitizeStem(tt.in); got != tt.want {
			t.Errorf("sanitizeStem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
