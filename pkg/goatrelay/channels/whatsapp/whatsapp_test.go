package whatsapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	w := New(Config{}, testLogger())
	if w.Name() != "whatsapp" {
		t.Errorf("Name() = %q", w.Name())
	}
	if w.cfg.SessionPath == "" {
		t.Error("SessionPath not defaulted")
	}
	if w.IsConnected() {
		t.Error("new channel reports connected")
	}
}

func TestParseJID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare phone", "5511999999999", "5511999999999@s.whatsapp.net", false},
		{"phone with formatting", "+55 (11) 99999-9999", "5511999999999@s.whatsapp.net", false},
		{"full user jid", "5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net", false},
		{"group jid", "123456789-1234@g.us", "123456789-1234@g.us", false},
		{"empty", "", "", true},
		{"too short", "12345", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jid, err := parseJID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseJID(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseJID(%q): %v", tt.in, err)
			}
			if jid.String() != tt.want {
				t.Errorf("parseJID(%q) = %q, want %q", tt.in, jid.String(), tt.want)
			}
		})
	}
}

func TestBuildTextMessage(t *testing.T) {
	jid, err := parseJID("5511999999999")
	if err != nil {
		t.Fatal(err)
	}

	plain := buildTextMessage("hello", "", jid)
	if plain.GetConversation() != "hello" {
		t.Errorf("plain message Conversation = %q", plain.GetConversation())
	}
	if plain.ExtendedTextMessage != nil {
		t.Error("plain message should not be extended")
	}

	reply := buildTextMessage("hi back", "MSGID123", jid)
	ext := reply.ExtendedTextMessage
	if ext == nil {
		t.Fatal("reply message not extended")
	}
	if ext.GetText() != "hi back" {
		t.Errorf("reply text = %q", ext.GetText())
	}
	if ext.GetContextInfo().GetStanzaID() != "MSGID123" {
		t.Errorf("stanza ID = %q", ext.GetContextInfo().GetStanzaID())
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	w := New(Config{}, testLogger())
	w.connected.Store(true)
	ctx := context.Background()

	if _, err := w.Send(ctx, "abc", &channels.OutgoingMessage{Content: "x"}); !errors.Is(err, channels.ErrSendFailed) {
		t.Errorf("Send with bad recipient = %v, want ErrSendFailed", err)
	}
	if _, err := w.SendMedia(ctx, "abc", &channels.MediaMessage{}); !errors.Is(err, channels.ErrSendFailed) {
		t.Errorf("SendMedia with bad recipient = %v, want ErrSendFailed", err)
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	w := New(Config{}, testLogger())
	ctx := context.Background()

	if _, err := w.Send(ctx, "5511999999999", &channels.OutgoingMessage{Content: "x"}); err != channels.ErrChannelDisconnected {
		t.Errorf("Send while disconnected = %v, want ErrChannelDisconnected", err)
	}
	if _, err := w.SendMedia(ctx, "5511999999999", &channels.MediaMessage{}); err != channels.ErrChannelDisconnected {
		t.Errorf("SendMedia while disconnected = %v, want ErrChannelDisconnected", err)
	}
	if err := w.SendReaction(ctx, "5511999999999", "id", "x"); err != channels.ErrChannelDisconnected {
		t.Errorf("SendReaction while disconnected = %v, want ErrChannelDisconnected", err)
	}
}
