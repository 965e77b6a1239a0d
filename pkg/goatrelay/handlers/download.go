package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

// minValidSize is the sanity threshold: a completed download smaller than
// this is treated as corrupted.
const minValidSize = 1024

// ErrCorruptedDownload means the completed transfer failed the size
// sanity check.
var ErrCorruptedDownload = errors.New("downloaded file is corrupted")

// fetchToScratch streams streamURL into a new media scratch file and
// verifies the result. On every failure path the partial file is deleted
// before the error is returned; on success the caller owns the file and
// must Discard it when done.
func fetchToScratch(ctx context.Context, client *ytdl.Client, store *scratch.Store,
	title, streamURL string) (*scratch.File, int64, error) {

	f, err := store.Create(scratch.PurposeMedia, title, "mp4")
	if err != nil {
		return nil, 0, err
	}

	if _, err := client.Fetch(ctx, streamURL, f); err != nil {
		f.Discard()
		return nil, 0, err
	}
	if err := f.Close(); err != nil {
		f.Discard()
		return nil, 0, fmt.Errorf("finishing download: %w", err)
	}

	size, err := f.Size()
	if err != nil {
		f.Discard()
		return nil, 0, fmt.Errorf("checking download: %w", err)
	}
	if size < minValidSize {
		f.Discard()
		return nil, 0, ErrCorruptedDownload
	}
	return f, size, nil
}

// failureMessage maps a pipeline error onto the single plain-language
// message the user sees.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ytdl.ErrNoStreams):
		return "No downloadable streams were found for this video."
	case errors.Is(err, ytdl.ErrDownloadTimeout):
		return "The download timed out. The file is likely too large or the connection too slow — try a shorter video."
	case errors.Is(err, ytdl.ErrDownloadTooLarge):
		return "The video exceeds the size limit. Try a lower quality or a shorter video."
	case errors.Is(err, ytdl.ErrLinkExpired):
		return "The download link expired. Please run the search again."
	case errors.Is(err, ErrCorruptedDownload):
		return "The downloaded file appears to be corrupted. Please try another video."
	default:
		return "A network or API error occurred. Please try again in a few moments."
	}
}

// formatSize renders a byte count for captions.
func formatSize(n int64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
