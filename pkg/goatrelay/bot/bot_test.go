package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/reply"
	"github.com/goatrelay/goatrelay/pkg/goatrelay/scratch"
)

type nullChannel struct {
	msgs chan *channels.IncomingMessage
}

func (n *nullChannel) Name() string                      { return "null" }
func (n *nullChannel) Connect(ctx context.Context) error { return nil }
func (n *nullChannel) Disconnect() error                 { return nil }
func (n *nullChannel) IsConnected() bool                 { return true }
func (n *nullChannel) Receive() <-chan *channels.IncomingMessage {
	return n.msgs
}
func (n *nullChannel) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) (string, error) {
	return "id", nil
}
func (n *nullChannel) SendMedia(ctx context.Context, to string, media *channels.MediaMessage) (string, error) {
	return "id", nil
}

type echoCommand struct {
	name    string
	aliases []string
	calls   int
	args    []string
}

func (e *echoCommand) Name() string      { return e.name }
func (e *echoCommand) Aliases() []string { return e.aliases }
func (e *echoCommand) Run(ctx context.Context, ev *Event, args []string) error {
	e.calls++
	e.args = args
	return nil
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := scratch.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	ch := &nullChannel{msgs: make(chan *channels.IncomingMessage, 4)}
	return New(DefaultOptions(), ch, reply.NewRegistry(0, logger), store, nil, logger)
}

func TestParseCommand(t *testing.T) {
	b := newTestBot(t)

	tests := []struct {
		name     string
		content  string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"plain command", "!yt funny cats", "yt", []string{"funny", "cats"}, true},
		{"no args", "!uptime", "uptime", nil, true},
		{"mixed case", "!YT cats", "yt", []string{"cats"}, true},
		{"leading whitespace", "  !yt cats", "yt", []string{"cats"}, true},
		{"no prefix", "yt cats", "", nil, false},
		{"prefix only", "!", "", nil, false},
		{"empty", "", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, ok := b.parseCommand(tt.content)
			if ok != tt.wantOK {
				t.Fatalf("parseCommand(%q) ok = %v, want %v", tt.content, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %q, want %q", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestRegisterAliases(t *testing.T) {
	b := newTestBot(t)
	cmd := &echoCommand{name: "yt", aliases: []string{"youtube", "YTS"}}
	b.Register(cmd)

	for _, trigger := range []string{"yt", "youtube", "yts"} {
		if _, ok := b.commands[trigger]; !ok {
			t.Errorf("trigger %q not registered", trigger)
		}
	}
}

func TestHandleDispatchesCommand(t *testing.T) {
	b := newTestBot(t)
	cmd := &echoCommand{name: "ping"}
	b.Register(cmd)

	b.handle(context.Background(), &channels.IncomingMessage{
		ID:      "m1",
		From:    "user1",
		ChatID:  "chat1",
		Content: "!ping one two",
	})

	if cmd.calls != 1 {
		t.Fatalf("calls = %d, want 1", cmd.calls)
	}
	if len(cmd.args) != 2 || cmd.args[0] != "one" {
		t.Errorf("args = %v", cmd.args)
	}
}

func TestHandleIgnoresUnknownCommand(t *testing.T) {
	b := newTestBot(t)
	cmd := &echoCommand{name: "ping"}
	b.Register(cmd)

	b.handle(context.Background(), &channels.IncomingMessage{
		ID: "m1", From: "user1", ChatID: "chat1", Content: "!nope",
	})
	if cmd.calls != 0 {
		t.Errorf("unknown command dispatched, calls = %d", cmd.calls)
	}
}

func TestRunStopsOnRestartRequest(t *testing.T) {
	b := newTestBot(t)

	// Request lands before Run reaches its select, as it does when the
	// loop is mid-dispatch. It must not be dropped.
	b.requestRestart()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Run(ctx); !errors.Is(err, ErrRestartRequested) {
		t.Fatalf("Run() = %v, want ErrRestartRequested", err)
	}
}

func TestIsAdmin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := scratch.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.Admins = []string{"admin1"}
	ch := &nullChannel{msgs: make(chan *channels.IncomingMessage)}
	b := New(opts, ch, reply.NewRegistry(0, logger), store, nil, logger)

	if !b.NewEvent(&channels.IncomingMessage{From: "admin1"}).IsAdmin() {
		t.Error("admin not recognized")
	}
	if b.NewEvent(&channels.IncomingMessage{From: "other"}).IsAdmin() {
		t.Error("non-admin recognized as admin")
	}
}
