package bot

import (
	"context"
	"time"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/history"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/reply"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
)

// Command is a prefix-triggered bot command (e.g. "!yt funny cats").
type Command interface {
	// Name is the primary trigger word.
	Name() string

	// Aliases are alternative trigger words.
	Aliases() []string

	// Run handles one invocation. Failures it returns are logged; anything
	// the user should see must be sent by the command itself.
	Run(ctx context.Context, ev *Event, args []string) error
}

// ReplyHandler is implemented by commands that wait for a reply to a
// message they sent. The bot routes the reply together with the pending
// continuation it was registered under.
type ReplyHandler interface {
	Command

	HandleReply(ctx context.Context, ev *Event, cont *reply.Continuation) error
}

// PassiveHandler is implemented by commands that inspect every message
// (no prefix). Returning true claims the message.
type PassiveHandler interface {
	OnMessage(ctx context.Context, ev *Event) (bool, error)
}

// Event wraps one incoming message plus the bot facilities a handler may
// use while serving it.
type Event struct {
	Msg *channels.IncomingMessage

	bot *Bot
}

// Reply sends text to the event's chat as a reply to the triggering
// message and returns the sent message's ID.
func (e *Event) Reply(ctx context.Context, text string) (string, error) {
	return e.bot.channel.Send(ctx, e.Msg.ChatID, &channels.OutgoingMessage{
		Content: text,
		ReplyTo: e.Msg.ID,
	})
}

// Send sends an arbitrary outgoing message to the event's chat.
func (e *Event) Send(ctx context.Context, msg *channels.OutgoingMessage) (string, error) {
	return e.bot.channel.Send(ctx, e.Msg.ChatID, msg)
}

// SendMedia sends a media file to the event's chat.
func (e *Event) SendMedia(ctx context.Context, media *channels.MediaMessage) (string, error) {
	return e.bot.channel.SendMedia(ctx, e.Msg.ChatID, media)
}

// React best-effort adds a reaction to the triggering message. Channels
// without reaction support ignore it.
func (e *Event) React(ctx context.Context, emoji string) {
	if rc, ok := e.bot.channel.(channels.ReactionChannel); ok {
		_ = rc.SendReaction(ctx, e.Msg.ChatID, e.Msg.ID, emoji)
	}
}

// Registry exposes the pending-reply registry.
func (e *Event) Registry() *reply.Registry { return e.bot.registry }

// Scratch exposes the scratch store.
func (e *Event) Scratch() *scratch.Store { return e.bot.scratch }

// History exposes the download history store. May be nil when history is
// disabled.
func (e *Event) History() *history.Store { return e.bot.history }

// ChannelName returns the name of the channel the event arrived on.
func (e *Event) ChannelName() string { return e.bot.channel.Name() }

// Uptime reports how long the worker has been running.
func (e *Event) Uptime() time.Duration { return e.bot.Uptime() }

// IsAdmin reports whether the sender is in the configured admin list.
func (e *Event) IsAdmin() bool {
	for _, id := range e.bot.admins {
		if id == e.Msg.From {
			return true
		}
	}
	return false
}

// RequestRestart asks the worker to shut down with the restart sentinel
// so the supervisor respawns it.
func (e *Event) RequestRestart() { e.bot.requestRestart() }
