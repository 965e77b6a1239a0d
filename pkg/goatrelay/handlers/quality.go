package handlers

import (
	"strings"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

// defaultQuality is used when the user gives no quality hint.
const defaultQuality = "360p"

// qualityFallbacks are tried in order when the preferred quality is not
// offered.
var qualityFallbacks = [...]string{"360p", "480p", "720p"}

// resolveQuality picks one downloadable variant. The chain, first match
// wins: the preferred label (case-insensitive substring), then each fixed
// fallback, then any variant that is not audio-only. Returns false only
// when nothing matches; it never returns an empty option with ok=true.
func resolveQuality(options []ytdl.QualityOption, preferred string) (ytdl.QualityOption, bool) {
	if opt, ok := matchQuality(options, preferred); ok {
		return opt, true
	}
	for _, label := range qualityFallbacks {
		if opt, ok := matchQuality(options, label); ok {
			return opt, true
		}
	}
	for _, opt := range options {
		if opt.Label != "" && !strings.Contains(strings.ToLower(opt.Label), "audio") {
			return opt, true
		}
	}
	return ytdl.QualityOption{}, false
}

// matchQuality returns the first option whose label contains wanted,
// case-insensitively.
func matchQuality(options []ytdl.QualityOption, wanted string) (ytdl.QualityOption, bool) {
	wanted = strings.ToLower(strings.TrimSpace(wanted))
	if wanted == "" {
		return ytdl.QualityOption{}, false
	}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), wanted) {
			return opt, true
		}
	}
	return ytdl.QualityOption{}, false
}

// parseQuery splits "query | quality" on the first delimiter, trimming
// both halves. An absent or empty quality half falls back to the default.
func parseQuery(raw string) (query, preferred string) {
	preferred = defaultQuality
	if i := strings.Index(raw, "|"); i >= 0 {
		if q := strings.TrimSpace(raw[i+1:]); q != "" {
			preferred = strings.ToLower(q)
		}
		raw = raw[:i]
	}
	return strings.TrimSpace(raw), preferred
}
