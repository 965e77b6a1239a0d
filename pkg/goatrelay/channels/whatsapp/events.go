// Package whatsapp – events.go converts incoming whatsmeow events into
// unified IncomingMessage values.
package whatsapp

import (
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/goatrelay/goatrelay/pkg/goatrelay/channels"
)

// handleEvent is the main whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.connected.Store(true)
		w.logger.Info("connected")

	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("disconnected")

	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Error("stream replaced, another device connected")

	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Error("logged out, session invalidated", "reason", evt.Reason.String())

	case *events.KeepAliveTimeout:
		w.logger.Warn("keep-alive timeout", "error_count", evt.ErrorCount)
	}
}

// handleMessageEvt processes an incoming WhatsApp message event.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup && !w.cfg.RespondToGroups {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.String(),
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
	}

	extractContent(evt.Message, msg)
	extractQuoted(evt.Message, msg)

	w.emitMessage(msg)
}

// emitMessage forwards a message to the receive channel, dropping it if
// the buffer is full.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.closed.Load() {
		return
	}
	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("message buffer full, dropping message", "from", msg.From)
	}
}

// extractContent pulls the text content and type out of a message.
func extractContent(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	switch {
	case waMsg.Conversation != nil:
		msg.Type = channels.MessageText
		msg.Content = waMsg.GetConversation()

	case waMsg.ExtendedTextMessage != nil:
		msg.Type = channels.MessageText
		msg.Content = waMsg.ExtendedTextMessage.GetText()

	case waMsg.ImageMessage != nil:
		msg.Type = channels.MessageImage
		msg.Content = waMsg.ImageMessage.GetCaption()

	case waMsg.VideoMessage != nil:
		msg.Type = channels.MessageVideo
		msg.Content = waMsg.VideoMessage.GetCaption()

	case waMsg.DocumentMessage != nil:
		msg.Type = channels.MessageDocument
		msg.Content = waMsg.DocumentMessage.GetCaption()

	default:
		msg.Type = channels.MessageText
	}
}

// extractQuoted fills in reply context from any message type that
// supports quoting.
func extractQuoted(waMsg *waE2E.Message, msg *channels.IncomingMessage) {
	if waMsg == nil {
		return
	}

	var ctxInfo *waE2E.ContextInfo
	switch {
	case waMsg.ExtendedTextMessage != nil:
		ctxInfo = waMsg.ExtendedTextMessage.GetContextInfo()
	case waMsg.ImageMessage != nil:
		ctxInfo = waMsg.ImageMessage.GetContextInfo()
	case waMsg.VideoMessage != nil:
		ctxInfo = waMsg.VideoMessage.GetContextInfo()
	case waMsg.DocumentMessage != nil:
		ctxInfo = waMsg.DocumentMessage.GetContextInfo()
	}
	if ctxInfo == nil {
		return
	}

	if ctxInfo.StanzaID != nil {
		msg.ReplyTo = ctxInfo.GetStanzaID()
	}
	if quoted := ctxInfo.QuotedMessage; quoted != nil {
		msg.QuotedContent = quotedText(quoted)
	}
}

// quotedText gets a short text rendering of a quoted message.
func quotedText(quoted *waE2E.Message) string {
	switch {
	case quoted.Conversation != nil:
		return quoted.GetConversation()
	case quoted.ExtendedTextMessage != nil:
		return quoted.ExtendedTextMessage.GetText()
	case quoted.ImageMessage != nil:
		return "[image] " + quoted.ImageMessage.GetCaption()
	case quoted.VideoMessage != nil:
		return "[video] " + quoted.VideoMessage.GetCaption()
	case quoted.DocumentMessage != nil:
		return "[document: " + quoted.DocumentMessage.GetFileName() + "]"
	}
	return "[message]"
}
