// Package whatsapp implements the WhatsApp channel using whatsmeow, a
// native Go WhatsApp Web API library.
//
// Features:
//   - QR code login with persistent SQLite session
//   - Send/receive text with reply quoting
//   - Media upload (images, video, documents) with captions
//   - Reactions (emoji)
//   - Automatic reconnection via whatsmeow's built-in handling
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// SessionPath is the SQLite database file for session persistence.
	SessionPath string `yaml:"session_path"`

	// DeviceName is shown in the WhatsApp linked devices list.
	DeviceName string `yaml:"device_name"`

	// RespondToGroups enables handling messages from group chats.
	RespondToGroups bool `yaml:"respond_to_groups"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionPath:     "goatrelay-session.db",
		DeviceName:      "GoatRelay",
		RespondToGroups: true,
	}
}

// WhatsApp implements channels.Channel and channels.ReactionChannel.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	messages  chan *channels.IncomingMessage
	connected atomic.Bool
	closed    atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new WhatsApp channel instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = DefaultConfig().SessionPath
	}
	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect establishes the WhatsApp Web connection. When no session
// exists the QR login flow runs and blocks until scanned or timed out.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.SessionPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("%w: creating session store: %w", channels.ErrConnectionFailed, err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		return fmt.Errorf("%w: getting device: %w", channels.ErrConnectionFailed, err)
	}

	name := w.cfg.DeviceName
	if name == "" {
		name = "GoatRelay"
	}
	store.SetOSInfo(name, [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		w.logger.Info("no existing session, QR login required")
		if err := w.loginWithQR(w.ctx); err != nil {
			return fmt.Errorf("%w: %w", channels.ErrConnectionFailed, err)
		}
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("%w: connecting: %w", channels.ErrConnectionFailed, err)
	}

	w.connected.Store(true)
	w.logger.Info("connected with existing session", "jid", w.client.Store.ID.String())
	return nil
}

// Disconnect gracefully closes the WhatsApp connection.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.closed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("disconnected")
	return nil
}

// Send sends a text message and returns its WhatsApp message ID. Image
// attachments are uploaded and sent as follow-up messages; the returned
// ID always refers to the text message so replies land on it.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) (string, error) {
	if !w.connected.Load() {
		return "", channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return "", fmt.Errorf("%w: invalid JID %q: %w", channels.ErrSendFailed, to, err)
	}

	waMsg := buildTextMessage(msg.Content, msg.ReplyTo, jid)
	resp, err := w.client.SendMessage(ctx, jid, waMsg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}

	for _, att := range msg.Attachments {
		if err := w.sendAttachment(ctx, jid, att); err != nil {
			w.logger.Warn("attachment send failed", "name", att.Name, "error", err)
		}
	}

	return string(resp.ID), nil
}

// SendMedia uploads and sends a single media file, returning the sent
// message's ID.
func (w *WhatsApp) SendMedia(ctx context.Context, to string, media *channels.MediaMessage) (string, error) {
	if !w.connected.Load() {
		return "", channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return "", fmt.Errorf("%w: invalid JID %q: %w", channels.ErrSendFailed, to, err)
	}

	data, err := io.ReadAll(media.Reader)
	if err != nil {
		return "", fmt.Errorf("reading media: %w", err)
	}

	waMsg, err := w.buildMediaMessage(ctx, media, data)
	if err != nil {
		return "", fmt.Errorf("building media message: %w", err)
	}

	resp, err := w.client.SendMessage(ctx, jid, waMsg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	return string(resp.ID), nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected reports whether WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool { return w.connected.Load() }

// SendReaction sends an emoji reaction to a message.
func (w *WhatsApp) SendReaction(ctx context.Context, chatID, messageID, emoji string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(chatID)
	if err != nil {
		return err
	}

	waMsg := w.client.BuildReaction(jid, *w.client.Store.ID, types.MessageID(messageID), emoji)
	_, err = w.client.SendMessage(ctx, jid, waMsg)
	return err
}

// getDevice retrieves an existing device or creates a new one.
func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR pairing flow, logging each code for scanning.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				w.logger.Info("scan this QR code with WhatsApp", "code", evt.Code)
			case "success":
				w.connected.Store(true)
				w.logger.Info("login successful")
				return nil
			case "timeout":
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					return fmt.Errorf("QR login error: %w", evt.Error)
				}
			}
		}
	}
}

// sendAttachment uploads and sends one image attachment.
func (w *WhatsApp) sendAttachment(ctx context.Context, jid types.JID, att *channels.Attachment) error {
	data, err := io.ReadAll(att.Reader)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}

	uploaded, err := w.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("uploading attachment: %w", err)
	}

	waMsg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			Mimetype:      proto.String("image/jpeg"),
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}
	_, err = w.client.SendMessage(ctx, jid, waMsg)
	return err
}

// buildMediaMessage uploads the media and wraps it in the right waE2E
// message type.
func (w *WhatsApp) buildMediaMessage(ctx context.Context, media *channels.MediaMessage, data []byte) (*waE2E.Message, error) {
	switch media.Type {
	case channels.MessageVideo:
		uploaded, err := w.client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("uploading video: %w", err)
		}
		return &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(orDefault(media.MimeType, "video/mp4")),
				Caption:       proto.String(media.Caption),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil

	case channels.MessageImage:
		uploaded, err := w.client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("uploading image: %w", err)
		}
		return &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(orDefault(media.MimeType, "image/jpeg")),
				Caption:       proto.String(media.Caption),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil

	default:
		uploaded, err := w.client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("uploading document: %w", err)
		}
		return &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				URL:           proto.String(uploaded.URL),
				DirectPath:    proto.String(uploaded.DirectPath),
				MediaKey:      uploaded.MediaKey,
				Mimetype:      proto.String(orDefault(media.MimeType, "application/octet-stream")),
				FileName:      proto.String(orDefault(media.Filename, "file")),
				Caption:       proto.String(media.Caption),
				FileEncSHA256: uploaded.FileEncSHA256,
				FileSHA256:    uploaded.FileSHA256,
				FileLength:    proto.Uint64(uploaded.FileLength),
			},
		}, nil
	}
}

// buildTextMessage wraps text in a Conversation or, when replying, an
// ExtendedTextMessage carrying the quoted stanza ID.
func buildTextMessage(content, replyTo string, chat types.JID) *waE2E.Message {
	if replyTo == "" {
		return &waE2E.Message{Conversation: proto.String(content)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(content),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String(replyTo),
				Participant:   proto.String(chat.String()),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("")},
			},
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseJID converts a string JID to types.JID. Accepts bare phone
// numbers, full user JIDs, and group JIDs.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*WhatsApp)(nil)
	_ channels.ReactionChannel = (*WhatsApp)(nil)
)
