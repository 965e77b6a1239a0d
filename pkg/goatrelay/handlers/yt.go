// Package handlers implements the bot's chat commands: the video
// search-and-download workflow, the passive link downloader, and the small
// admin commands.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/bot"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/history"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/reply"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

// maxResults caps how many search candidates are offered.
const maxResults = 6

// YT is the two-step video command: search, then download the candidate
// the user picks by replying with its number.
type YT struct {
	client *ytdl.Client
	logger *slog.Logger
}

// NewYT creates the yt command.
func NewYT(client *ytdl.Client, logger *slog.Logger) *YT {
	if logger == nil {
		logger = slog.Default()
	}
	return &YT{client: client, logger: logger.With("command", "yt")}
}

func (y *YT) Name() string      { return "yt" }
func (y *YT) Aliases() []string { return []string{"youtube", "yts"} }

// ytPayload is the continuation state between search and selection.
type ytPayload struct {
	Query      string
	Candidates []ytdl.Candidate
	Preferred  string
	Thumbs     []*scratch.File
}

// Run is the search stage: query the API, prefetch thumbnails
// best-effort, send the numbered result list, and register the pending
// reply keyed by the sent message's ID.
func (y *YT) Run(ctx context.Context, ev *bot.Event, args []string) error {
	query, preferred := parseQuery(strings.Join(args, " "))
	if query == "" {
		_, err := ev.Reply(ctx, "Usage: yt <search term> [| quality]\nExample: yt lo-fi beats | 720p")
		return err
	}

	ev.React(ctx, "🔎")

	candidates, err := y.client.Search(ctx, query)
	if err != nil {
		y.logger.Warn("search failed", "query", query, "error", err)
		_, _ = ev.Reply(ctx, "The video search service is unavailable. Please try again in a few moments.")
		return nil
	}
	if len(candidates) == 0 {
		_, _ = ev.Reply(ctx, fmt.Sprintf("No results found for %q.", query))
		return nil
	}
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	thumbs := y.prefetchThumbnails(ctx, ev.Scratch(), candidates)

	msg := &channels.OutgoingMessage{
		Content: formatResults(query, preferred, candidates),
		ReplyTo: ev.Msg.ID,
	}
	var readers []io.ReadCloser
	for i, t := range thumbs {
		if t == nil {
			continue
		}
		r, err := t.Open()
		if err != nil {
			y.logger.Warn("opening thumbnail failed", "path", t.Path(), "error", err)
			continue
		}
		readers = append(readers, r)
		msg.Attachments = append(msg.Attachments, &channels.Attachment{
			Name:   fmt.Sprintf("result_%d.jpg", i+1),
			Reader: r,
		})
	}

	sentID, err := ev.Send(ctx, msg)
	for _, r := range readers {
		r.Close()
	}
	if err != nil {
		// Degrade to a text-only message rather than failing the search.
		y.logger.Warn("sending results with thumbnails failed, retrying text-only", "error", err)
		msg.Attachments = nil
		sentID, err = ev.Send(ctx, msg)
	}
	if err != nil {
		discardAll(thumbs)
		return fmt.Errorf("sending search results: %w", err)
	}

	ev.Registry().Register(sentID, &reply.Continuation{
		Command: y.Name(),
		Owner:   ev.Msg.From,
		ChatID:  ev.Msg.ChatID,
		Payload: &ytPayload{
			Query:      query,
			Candidates: candidates,
			Preferred:  preferred,
			Thumbs:     thumbs,
		},
	})
	return nil
}

// prefetchThumbnails fetches all candidate thumbnails concurrently into
// scratch files. Each fetch fails independently: a missing thumbnail
// yields a nil slot and never disturbs its neighbours.
func (y *YT) prefetchThumbnails(ctx context.Context, store *scratch.Store, candidates []ytdl.Candidate) []*scratch.File {
	thumbs := make([]*scratch.File, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		url := c.Thumbnail()
		if url == "" {
			continue
		}
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			f, err := store.Create(scratch.PurposeThumbnail, "", "jpg")
			if err != nil {
				y.logger.Warn("creating thumbnail file failed", "error", err)
				return
			}
			if err := y.client.FetchThumbnail(ctx, url, f); err != nil {
				y.logger.Warn("thumbnail fetch failed", "url", url, "error", err)
				f.Discard()
				return
			}
			if err := f.Close(); err != nil {
				f.Discard()
				return
			}
			thumbs[i] = f
		}(i, url)
	}
	wg.Wait()
	return thumbs
}

// HandleReply is the selection and download stage.
//
// Ownership and range are validated against the peeked continuation; it
// is consumed only once the selection is valid, so a rejected reply
// leaves it available for the rightful owner to retry.
func (y *YT) HandleReply(ctx context.Context, ev *bot.Event, cont *reply.Continuation) error {
	if ev.Msg.From != cont.Owner {
		_, _ = ev.Reply(ctx, "This download request belongs to another user.")
		return nil
	}

	payload, ok := cont.Payload.(*ytPayload)
	if !ok {
		ev.Registry().Consume(cont.Key)
		return fmt.Errorf("unexpected continuation payload %T", cont.Payload)
	}

	n, err := strconv.Atoi(strings.TrimSpace(ev.Msg.Content))
	if err != nil || n < 1 || n > len(payload.Candidates) {
		_, _ = ev.Reply(ctx, fmt.Sprintf("Please reply with a number between 1 and %d.", len(payload.Candidates)))
		return nil
	}

	// Valid selection: consume now. Losing the race to a concurrent reply
	// means someone else's download is already underway.
	if _, ok := ev.Registry().Consume(cont.Key); !ok {
		return nil
	}
	defer discardAll(payload.Thumbs)

	candidate := payload.Candidates[n-1]
	ev.React(ctx, "⏳")
	_, _ = ev.Reply(ctx, fmt.Sprintf("Resolving %q (preferred quality %s)...", candidate.Title, payload.Preferred))

	options, err := y.client.Qualities(ctx, candidate.SourceURL)
	if err != nil {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, failureMessage(err))
		return nil
	}

	chosen, ok := resolveQuality(options, payload.Preferred)
	if !ok {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, failureMessage(ytdl.ErrNoStreams))
		return nil
	}

	f, size, err := fetchToScratch(ctx, y.client, ev.Scratch(), candidate.Title, chosen.StreamURL)
	if err != nil {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, failureMessage(err))
		return nil
	}
	defer f.Discard()

	r, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening downloaded file: %w", err)
	}
	defer r.Close()

	_, err = ev.SendMedia(ctx, &channels.MediaMessage{
		Type:     channels.MessageVideo,
		Reader:   r,
		Size:     size,
		MimeType: "video/mp4",
		Filename: candidate.Title + ".mp4",
		Caption:  buildCaption(candidate.Title, chosen.Label, payload.Preferred, size),
		ReplyTo:  ev.Msg.ID,
	})
	if err != nil {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, "Sending the video failed. Please try again.")
		return fmt.Errorf("delivering video: %w", err)
	}
	ev.React(ctx, "✅")

	if h := ev.History(); h != nil {
		rec := history.Download{
			Title:       candidate.Title,
			SourceURL:   candidate.SourceURL,
			Quality:     chosen.Label,
			SizeBytes:   size,
			RequestedBy: ev.Msg.From,
			Channel:     ev.ChannelName(),
		}
		if err := h.Record(ctx, rec); err != nil {
			y.logger.Warn("recording download failed", "error", err)
		}
	}
	return nil
}

// formatResults renders the numbered candidate list.
func formatResults(query, preferred string, candidates []ytdl.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Top results for %q (preferred quality %s):\n\n", query, preferred)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Title)
		if c.Author.Name != "" {
			fmt.Fprintf(&b, "   channel: %s\n", c.Author.Name)
		}
		if c.Duration.Timestamp != "" {
			fmt.Fprintf(&b, "   duration: %s\n", c.Duration.Timestamp)
		}
		if c.Ago != "" {
			fmt.Fprintf(&b, "   uploaded: %s\n", c.Ago)
		}
	}
	fmt.Fprintf(&b, "\nReply with a number (1-%d) to download.", len(candidates))
	return b.String()
}

// buildCaption renders the delivery caption, noting when the preferred
// quality was unavailable.
func buildCaption(title, chosen, preferred string, size int64) string {
	caption := fmt.Sprintf("%s\nquality: %s | size: %s", title, chosen, formatSize(size))
	if !strings.Contains(strings.ToLower(chosen), strings.ToLower(preferred)) {
		caption += fmt.Sprintf("\nnote: %s was unavailable, using %s instead", preferred, chosen)
	}
	return caption
}

// discardAll releases a batch of scratch files, tolerating nil slots.
func discardAll(files []*scratch.File) {
	for _, f := range files {
		if f != nil {
			f.Discard()
		}
	}
}
