package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/bot"
)

// Restart asks the supervisor for a worker restart. Admin only: the
// worker exits with the restart sentinel and the supervisor respawns it.
type Restart struct{}

// NewRestart creates the restart command.
func NewRestart() *Restart { return &Restart{} }

func (r *Restart) Name() string      { return "restart" }
func (r *Restart) Aliases() []string { return nil }

func (r *Restart) Run(ctx context.Context, ev *bot.Event, args []string) error {
	if !ev.IsAdmin() {
		_, err := ev.Reply(ctx, "Only admins can restart the bot.")
		return err
	}
	_, _ = ev.Reply(ctx, "Restarting...")
	ev.RequestRestart()
	return nil
}

// Recent lists the latest delivered downloads from history.
type Recent struct{}

// NewRecent creates the recent command.
func NewRecent() *Recent { return &Recent{} }

func (r *Recent) Name() string      { return "recent" }
func (r *Recent) Aliases() []string { return nil }

func (r *Recent) Run(ctx context.Context, ev *bot.Event, args []string) error {
	h := ev.History()
	if h == nil {
		_, err := ev.Reply(ctx, "Download history is disabled.")
		return err
	}

	downloads, err := h.Recent(ctx, 10)
	if err != nil {
		_, _ = ev.Reply(ctx, "Could not read the download history.")
		return err
	}
	if len(downloads) == 0 {
		_, err := ev.Reply(ctx, "No downloads yet.")
		return err
	}

	var b strings.Builder
	b.WriteString("Recent downloads:\n")
	for _, d := range downloads {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", d.Title, d.Quality, formatSize(d.SizeBytes))
	}
	_, err = ev.Reply(ctx, b.String())
	return err
}
