// Package channels defines the interfaces and types for goatrelay
// communication channels. Each channel (WhatsApp, Discord) implements the
// Channel interface to receive and send messages in a unified way.
package channels

import (
	"context"
	"fmt"
	"io"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
)

// Channel defines the interface that every communication channel must
// implement. Send and SendMedia return the platform ID of the sent
// message; multi-step commands key their pending reply state on it.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp", "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a text message (optionally with image attachments) to the
	// given chat and returns the sent message's ID.
	Send(ctx context.Context, to string, message *OutgoingMessage) (string, error)

	// SendMedia sends a single media file and returns the sent message's ID.
	SendMedia(ctx context.Context, to string, media *MediaMessage) (string, error)

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// ReactionChannel extends Channel with message reaction support.
type ReactionChannel interface {
	Channel

	// SendReaction sends a reaction emoji to a specific message.
	SendReaction(ctx context.Context, chatID, messageID, emoji string) error
}

// IncomingMessage represents a message received from any channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the group or DM identifier.
	ChatID string

	// IsGroup indicates whether the message is from a group chat.
	IsGroup bool

	// Type is the message content type.
	Type MessageType

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// ReplyTo contains the ID of the message being replied to.
	ReplyTo string

	// QuotedContent is the text of the quoted message (if replying).
	QuotedContent string
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string

	// Attachments are images bundled with the message. Channels that cannot
	// bundle attachments send them as follow-up messages; the returned
	// message ID always refers to the text message.
	Attachments []*Attachment
}

// Attachment is an image file sent alongside an outgoing message.
type Attachment struct {
	// Name is the filename shown on the platform.
	Name string

	// Reader provides the file contents. Consumed once during send.
	Reader io.Reader
}

// MediaMessage represents a single media file to be sent.
type MediaMessage struct {
	// Type is the media type (image, video, document).
	Type MessageType

	// Reader provides the file contents. Consumed once during send.
	Reader io.Reader

	// Size is the file size in bytes, if known.
	Size int64

	// MimeType is the MIME type (e.g. "video/mp4").
	MimeType string

	// Filename is the filename shown on the platform.
	Filename string

	// Caption is the text accompanying the media.
	Caption string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
