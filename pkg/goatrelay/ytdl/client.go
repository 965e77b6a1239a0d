// Package ytdl is the client for the upstream video search and download
// REST API. The wire formats are opaque upstream services; this package
// hides them behind Search, Qualities, ResolveDirect and the bounded
// streaming Fetch.
package ytdl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Failure classifications surfaced to the command layer. Each one maps to
// a distinct user-visible message.
var (
	// ErrNoStreams means the resolver returned no usable variants.
	ErrNoStreams = errors.New("no streams available")

	// ErrLinkExpired means the resolved stream URL answered 404.
	ErrLinkExpired = errors.New("download link expired")

	// ErrDownloadTimeout means the transfer exceeded its wall-clock bound.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrDownloadTooLarge means the transfer exceeded its byte ceiling.
	ErrDownloadTooLarge = errors.New("download exceeds size limit")
)

// Config holds endpoint URLs and transfer bounds.
type Config struct {
	// SearchURL is the search endpoint; the query is passed as ?query=.
	SearchURL string `yaml:"search_url"`

	// ResolveURL is the quality-resolution endpoint; ?url= selects the video.
	ResolveURL string `yaml:"resolve_url"`

	// DirectURL is the all-downloader endpoint used by autolink; ?url=.
	DirectURL string `yaml:"direct_url"`

	// SearchTimeout bounds search and thumbnail requests.
	SearchTimeout time.Duration `yaml:"search_timeout"`

	// ResolveTimeout bounds quality resolution.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// DownloadTimeout is the wall-clock bound on one media transfer.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// MaxDownloadBytes is the byte ceiling on one media transfer.
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`
}

// DefaultConfig returns the stock endpoints and bounds.
func DefaultConfig() Config {
	return Config{
		SearchURL:        "https://aminul-youtube-downloader.vercel.app/search",
		ResolveURL:       "https://aminul-youtube-downloader.vercel.app/api/ytdl",
		DirectURL:        "https://aminul-rest-api-three.vercel.app/downloader/alldownloader",
		SearchTimeout:    10 * time.Second,
		ResolveTimeout:   15 * time.Second,
		DownloadTimeout:  5 * time.Minute,
		MaxDownloadBytes: 150 * 1024 * 1024,
	}
}

// Client talks to the upstream API. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client. Timeouts are enforced per call, not on the shared
// http.Client, because downloads and searches have very different bounds.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger.With("component", "ytdl"),
	}
}

// Search queries the search endpoint and returns the raw candidate list.
// An empty list is returned as-is; the caller decides how to report it.
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()

	u := c.cfg.SearchURL + "?query=" + url.QueryEscape(query)
	var candidates []Candidate
	if err := c.getJSON(ctx, u, &candidates); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return candidates, nil
}

// Qualities resolves the downloadable variants for a video URL. Returns
// ErrNoStreams when the API answers with no usable data.
func (c *Client) Qualities(ctx context.Context, sourceURL string) ([]QualityOption, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()

	u := c.cfg.ResolveURL + "?url=" + url.QueryEscape(sourceURL)
	var resp qualitiesResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("resolving qualities: %w", err)
	}
	if !resp.Result || len(resp.Data) == 0 {
		return nil, ErrNoStreams
	}
	return resp.Data, nil
}

// ResolveDirect asks the all-downloader endpoint for a direct link to any
// supported platform URL. Returns ErrNoStreams when nothing downloadable
// comes back.
func (c *Client) ResolveDirect(ctx context.Context, pageURL string) (*DirectLink, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()

	u := c.cfg.DirectURL + "?url=" + url.QueryEscape(pageURL)
	var resp directResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("resolving direct link: %w", err)
	}
	if resp.Data.Data.URL() == "" {
		return nil, ErrNoStreams
	}
	link := resp.Data.Data
	return &link, nil
}

// FetchThumbnail streams a thumbnail into w under the search timeout.
func (c *Client) FetchThumbnail(ctx context.Context, thumbURL string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()
	_, err := c.stream(ctx, thumbURL, w, 0)
	return err
}

// Fetch streams a media payload into w under both transfer bounds: the
// configured wall-clock timeout and the byte ceiling. Exceeding them
// yields ErrDownloadTimeout and ErrDownloadTooLarge respectively; a 404
// on the URL yields ErrLinkExpired.
func (c *Client) Fetch(ctx context.Context, streamURL string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()
	return c.stream(ctx, streamURL, w, c.cfg.MaxDownloadBytes)
}

// stream is the shared bounded GET-and-copy.
func (c *Client) stream(ctx context.Context, rawURL string, w io.Writer, maxBytes int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, classifyTransfer(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrLinkExpired
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		// Read one byte past the ceiling so overflow is detectable.
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := io.Copy(w, body)
	if err != nil {
		return n, classifyTransfer(err)
	}
	if maxBytes > 0 && n > maxBytes {
		return n, ErrDownloadTooLarge
	}
	return n, nil
}

// getJSON performs a GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyTransfer maps low-level transfer errors onto the package
// taxonomy. Deadline overruns become ErrDownloadTimeout; everything else
// passes through as a transient network error.
func classifyTransfer(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return ErrDownloadTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrDownloadTimeout
	}
	return err
}

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
