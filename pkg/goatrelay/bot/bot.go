// Package bot wires the channel, the command set, the pending-reply
// registry and the scratch store into one worker loop.
//
// The loop reads incoming messages from the channel and dispatches each in
// its own goroutine. Workflows interleave freely; the reply registry's
// atomic consume is the only cross-workflow synchronization point.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/history"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/reply"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
)

// ErrRestartRequested is returned by Run when a command asked for a
// worker restart. The serve command maps it onto the supervisor's
// restart sentinel exit code.
var ErrRestartRequested = errors.New("restart requested")

// Options configures a Bot.
type Options struct {
	// Prefix triggers commands, e.g. "!" for "!yt".
	Prefix string

	// Admins are platform user IDs allowed to run admin commands.
	Admins []string

	// SweepInterval is how often scratch and registry janitors run.
	SweepInterval time.Duration

	// ScratchMaxAge is the age past which the sweep deletes scratch files.
	ScratchMaxAge time.Duration
}

// DefaultOptions returns the stock bot options.
func DefaultOptions() Options {
	return Options{
		Prefix:        "!",
		SweepInterval: 10 * time.Minute,
		ScratchMaxAge: 30 * time.Minute,
	}
}

// Bot is the worker: one channel, one command set, shared stores.
type Bot struct {
	opts     Options
	channel  channels.Channel
	registry *reply.Registry
	scratch  *scratch.Store
	history  *history.Store
	logger   *slog.Logger

	commands map[string]Command
	passive  []PassiveHandler

	cron    *cron.Cron
	admins  []string
	started time.Time
	restart chan struct{}
}

// New creates a Bot. history may be nil.
func New(opts Options, ch channels.Channel, registry *reply.Registry,
	store *scratch.Store, hist *history.Store, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	if opts.ScratchMaxAge <= 0 {
		opts.ScratchMaxAge = 30 * time.Minute
	}
	return &Bot{
		opts:     opts,
		channel:  ch,
		registry: registry,
		scratch:  store,
		history:  hist,
		logger:   logger.With("component", "bot"),
		commands: make(map[string]Command),
		cron:     cron.New(),
		restart:  make(chan struct{}, 1),
		admins:   opts.Admins,
	}
}

// Register adds a command under its name and aliases. PassiveHandler
// implementations additionally join the passive chain.
func (b *Bot) Register(cmd Command) {
	b.commands[strings.ToLower(cmd.Name())] = cmd
	for _, alias := range cmd.Aliases() {
		b.commands[strings.ToLower(alias)] = cmd
	}
	if p, ok := cmd.(PassiveHandler); ok {
		b.passive = append(b.passive, p)
	}
}

// Uptime reports how long the bot has been running.
func (b *Bot) Uptime() time.Duration {
	if b.started.IsZero() {
		return 0
	}
	return time.Since(b.started)
}

// Run processes incoming messages until ctx is cancelled or a restart is
// requested. Janitor jobs (scratch sweep, continuation expiry) run on the
// bot's cron scheduler for the lifetime of the loop.
func (b *Bot) Run(ctx context.Context) error {
	b.started = time.Now()

	spec := fmt.Sprintf("@every %s", b.opts.SweepInterval)
	if _, err := b.cron.AddFunc(spec, func() {
		b.scratch.Sweep(b.opts.ScratchMaxAge)
		b.registry.Expire()
	}); err != nil {
		return fmt.Errorf("scheduling janitor: %w", err)
	}
	b.cron.Start()
	defer b.cron.Stop()

	b.logger.Info("bot running",
		"channel", b.channel.Name(),
		"prefix", b.opts.Prefix,
		"commands", len(b.commands))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.restart:
			b.logger.Info("restart requested, stopping worker")
			return ErrRestartRequested
		case msg, ok := <-b.channel.Receive():
			if !ok {
				return fmt.Errorf("channel %s closed its message stream", b.channel.Name())
			}
			go b.handle(ctx, msg)
		}
	}
}

// requestRestart flags the run loop to stop with ErrRestartRequested.
// The channel buffers one request so a restart asked for while the loop
// is busy dispatching is not lost; further requests are redundant.
func (b *Bot) requestRestart() {
	select {
	case b.restart <- struct{}{}:
	default:
	}
}

// handle dispatches one message: pending-reply routing first, then prefix
// commands, then passive handlers. Handler failures are logged, never
// fatal; the worker always survives to serve the next event.
func (b *Bot) handle(ctx context.Context, msg *channels.IncomingMessage) {
	ev := &Event{Msg: msg, bot: b}

	if msg.ReplyTo != "" {
		if cont, ok := b.registry.Peek(msg.ReplyTo); ok {
			b.dispatchReply(ctx, ev, cont)
			return
		}
	}

	if name, args, ok := b.parseCommand(msg.Content); ok {
		cmd, found := b.commands[name]
		if !found {
			return
		}
		if err := cmd.Run(ctx, ev, args); err != nil {
			b.logger.Error("command failed", "command", name, "from", msg.From, "error", err)
		}
		return
	}

	for _, p := range b.passive {
		claimed, err := p.OnMessage(ctx, ev)
		if err != nil {
			b.logger.Error("passive handler failed", "error", err)
		}
		if claimed {
			return
		}
	}
}

func (b *Bot) dispatchReply(ctx context.Context, ev *Event, cont *reply.Continuation) {
	cmd, ok := b.commands[cont.Command]
	if !ok {
		b.logger.Warn("pending reply names unknown command", "command", cont.Command)
		b.registry.Consume(cont.Key)
		return
	}
	rh, ok := cmd.(ReplyHandler)
	if !ok {
		b.logger.Warn("pending reply command cannot handle replies", "command", cont.Command)
		b.registry.Consume(cont.Key)
		return
	}
	if err := rh.HandleReply(ctx, ev, cont); err != nil {
		b.logger.Error("reply handler failed", "command", cont.Command, "from", ev.Msg.From, "error", err)
	}
}

// NewEvent builds an Event for msg outside the receive loop. Used by
// tests and manual dispatch.
func (b *Bot) NewEvent(msg *channels.IncomingMessage) *Event {
	return &Event{Msg: msg, bot: b}
}

// parseCommand splits "<prefix><name> args..." into its parts.
func (b *Bot) parseCommand(content string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, b.opts.Prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.opts.Prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
