package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/bot"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
)

// imageAPIURL serves a random anime image as {"url": "..."}.
const imageAPIURL = "https://my-api-show.vercel.app/api/nekos?type=%s"

var imageTypes = []string{
	"hug", "kiss", "neko", "fox_girl", "cuddle", "pat",
	"waifu", "smug", "woof", "lizard", "meow", "feed",
}

// Uptime reports how long the worker has been running, decorated with a
// random image when the image API cooperates.
type Uptime struct {
	http   *http.Client
	logger *slog.Logger
}

// NewUptime creates the uptime command.
func NewUptime(logger *slog.Logger) *Uptime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uptime{
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("command", "uptime"),
	}
}

func (u *Uptime) Name() string      { return "uptime" }
func (u *Uptime) Aliases() []string { return []string{"up", "upt"} }

func (u *Uptime) Run(ctx context.Context, ev *bot.Event, args []string) error {
	text := "Bot running for " + formatDuration(ev.Uptime())

	// Image is decoration only; any failure degrades to plain text.
	f, err := u.fetchImage(ctx, ev.Scratch())
	if err != nil {
		u.logger.Debug("uptime image unavailable", "error", err)
		_, err := ev.Reply(ctx, text)
		return err
	}
	defer f.Discard()

	r, err := f.Open()
	if err != nil {
		_, err := ev.Reply(ctx, text)
		return err
	}
	defer r.Close()

	_, err = ev.Send(ctx, &channels.OutgoingMessage{
		Content: text,
		ReplyTo: ev.Msg.ID,
		Attachments: []*channels.Attachment{
			{Name: "uptime.jpg", Reader: r},
		},
	})
	return err
}

// fetchImage resolves a random image URL and downloads it into scratch.
func (u *Uptime) fetchImage(ctx context.Context, store *scratch.Store) (*scratch.File, error) {
	kind := imageTypes[rand.IntN(len(imageTypes))]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(imageAPIURL, kind), nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image API returned %s", resp.Status)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding image API response: %w", err)
	}
	if payload.URL == "" {
		return nil, fmt.Errorf("image API returned no url")
	}

	imgReq, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.URL, nil)
	if err != nil {
		return nil, err
	}
	imgResp, err := u.http.Do(imgReq)
	if err != nil {
		return nil, err
	}
	defer imgResp.Body.Close()
	if imgResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned %s", imgResp.Status)
	}

	f, err := store.Create(scratch.PurposeThumbnail, "uptime", "jpg")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, imgResp.Body); err != nil {
		f.Discard()
		return nil, err
	}
	if err := f.Close(); err != nil {
		f.Discard()
		return nil, err
	}
	return f, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := d - minutes*time.Minute

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds/time.Second)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds/time.Second)
}
