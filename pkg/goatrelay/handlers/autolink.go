package handlers

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/bot"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/ytdl"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// AutoLink watches every message for a video URL and downloads it through
// the all-downloader endpoint. One-shot: no pending reply involved.
type AutoLink struct {
	client *ytdl.Client
	logger *slog.Logger
}

// NewAutoLink creates the autolink handler.
func NewAutoLink(client *ytdl.Client, logger *slog.Logger) *AutoLink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoLink{client: client, logger: logger.With("command", "autolink")}
}

func (a *AutoLink) Name() string      { return "autolink" }
func (a *AutoLink) Aliases() []string { return nil }

// Run explains that the handler is passive.
func (a *AutoLink) Run(ctx context.Context, ev *bot.Event, args []string) error {
	_, err := ev.Reply(ctx, "autolink runs automatically: post a video link and I will download it.")
	return err
}

// OnMessage claims any message containing a URL and runs the one-shot
// download pipeline on it.
func (a *AutoLink) OnMessage(ctx context.Context, ev *bot.Event) (bool, error) {
	match := urlPattern.FindString(ev.Msg.Content)
	if match == "" {
		return false, nil
	}

	ev.React(ctx, "⏳")
	link, err := a.client.ResolveDirect(ctx, match)
	if err != nil {
		// Most links are not videos; stay quiet unless it looked resolvable.
		a.logger.Debug("link not resolvable", "url", match, "error", err)
		return true, nil
	}

	f, size, err := fetchToScratch(ctx, a.client, ev.Scratch(), link.Title, link.URL())
	if err != nil {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, failureMessage(err))
		return true, nil
	}
	defer f.Discard()

	r, err := f.Open()
	if err != nil {
		return true, err
	}
	defer r.Close()

	title := link.Title
	if title == "" {
		title = "video"
	}
	_, err = ev.SendMedia(ctx, &channels.MediaMessage{
		Type:     channels.MessageVideo,
		Reader:   r,
		Size:     size,
		MimeType: "video/mp4",
		Filename: title + ".mp4",
		Caption:  title,
		ReplyTo:  ev.Msg.ID,
	})
	if err != nil {
		ev.React(ctx, "❌")
		_, _ = ev.Reply(ctx, "Sending the video failed. Please try again.")
		return true, err
	}
	ev.React(ctx, "✅")
	return true, nil
}
