package ytdl

// Candidate is one search result. Immutable once returned; the yt command
// references candidates from its pending-reply payload until consumed.
type Candidate struct {
	Title        string `json:"title"`
	SourceURL    string `json:"url"`
	ThumbnailURL string `json:"thumbnail"`
	// Image is an alternate thumbnail field some API revisions use.
	Image    string `json:"image"`
	Duration struct {
		Timestamp string `json:"timestamp"`
	} `json:"duration"`
	Author struct {
		Name string `json:"name"`
	} `json:"author"`
	Ago   string `json:"ago"`
	Views int64  `json:"views"`
}

// Thumbnail returns the usable thumbnail URL, if any.
func (c Candidate) Thumbnail() string {
	if c.ThumbnailURL != "" {
		return c.ThumbnailURL
	}
	return c.Image
}

// QualityOption is one downloadable variant of a resolved video.
type QualityOption struct {
	// Label is the quality tag, e.g. "720p" or "audio".
	Label string `json:"quality"`

	// StreamURL is the direct download URL.
	StreamURL string `json:"url"`

	// ApproxSize is a human-readable size estimate, when the API knows it.
	ApproxSize string `json:"size"`
}

// qualitiesResponse is the wire shape of the quality-resolution endpoint.
type qualitiesResponse struct {
	Result bool            `json:"result"`
	Data   []QualityOption `json:"data"`
}

// DirectLink is the result of the all-downloader endpoint used by the
// autolink handler.
type DirectLink struct {
	Title string `json:"title"`
	High  string `json:"high"`
	Low   string `json:"low"`
}

// URL returns the best available direct URL.
func (d DirectLink) URL() string {
	if d.High != "" {
		return d.High
	}
	return d.Low
}

// directResponse is the (doubly nested) wire shape of the all-downloader
// endpoint.
type directResponse struct {
	Data struct {
		Data DirectLink `json:"data"`
	} `json:"data"`
}
