// Package scratch provides the shared temporary-file area used by the
// download pipeline. Thumbnails and media payloads are written here while
// they wait for delivery, then released.
//
// Every creator of a File owns it until delivery and must call Discard on
// every terminal path. A periodic Sweep acts as a backstop for files that
// slip through (e.g. the process died mid-download).
package scratch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Purpose namespaces scratch files by what they hold.
type Purpose string

const (
	PurposeThumbnail Purpose = "thumbnail"
	PurposeMedia     Purpose = "media"
)

// Store is a namespaced temporary-file area rooted at a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the store root and one subdirectory per purpose.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger.With("component", "scratch")}
	for _, p := range []Purpose{PurposeThumbnail, PurposeMedia} {
		if err := os.MkdirAll(filepath.Join(dir, string(p)), 0o755); err != nil {
			return nil, fmt.Errorf("creating scratch dir: %w", err)
		}
	}
	return s, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Create opens a new scratch file. Filenames embed a UUID, so concurrent
// workflows never collide; stem is a human hint only (a sanitized title
// fragment). The caller owns the returned File.
func (s *Store) Create(purpose Purpose, stem, ext string) (*File, error) {
	name := string(purpose) + "_" + uuid.New().String()
	if stem = sanitizeStem(stem); stem != "" {
		name += "_" + stem
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.dir, string(purpose), name+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating scratch file: %w", err)
	}
	return &File{store: s, path: path, f: f}, nil
}

// Sweep removes files older than maxAge across all purposes and returns
// how many were deleted. Deletion failures are logged and skipped; a
// failed cleanup never affects anything else.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, p := range []Purpose{PurposeThumbnail, PurposeMedia} {
		entries, err := os.ReadDir(filepath.Join(s.dir, string(p)))
		if err != nil {
			s.logger.Warn("sweep: reading scratch dir failed", "purpose", p, "error", err)
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(s.dir, string(p), e.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn("sweep: removing scratch file failed", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("swept scratch files", "removed", removed)
	}
	return removed
}

// File is a scratch file handle. Write into it, Close it, then either hand
// its contents off with Open or drop it with Discard. Discard is safe to
// defer on every path: it is idempotent and tolerates an already-delivered
// file.
type File struct {
	store     *Store
	path      string
	f         *os.File
	discarded atomic.Bool
}

// Path returns the absolute path of the file.
func (f *File) Path() string { return f.path }

// Write appends to the file. Implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	if f.f == nil {
		return 0, fmt.Errorf("scratch file %s is closed", f.path)
	}
	return f.f.Write(p)
}

// Close flushes and closes the write handle.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

// Size returns the current size in bytes.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Open reopens the file for reading after writing has finished.
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Discard closes and deletes the file. Idempotent; failures are logged and
// swallowed, never propagated to the workflow that triggered them.
func (f *File) Discard() {
	if !f.discarded.CompareAndSwap(false, true) {
		return
	}
	_ = f.Close()
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		f.store.logger.Warn("discarding scratch file failed", "path", f.path, "error", err)
	}
}

// Discarded reports whether Discard has run.
func (f *File) Discarded() bool { return f.discarded.Load() }

// sanitizeStem keeps only filename-safe runes and bounds the length.
func sanitizeStem(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
		if b.Len() >= 30 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
