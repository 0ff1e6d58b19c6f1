package channel

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/tidwall/gjson"
)

// Bus kinds published by the client.
const (
	KindConnected     = "channel.connected"
	KindDisconnected  = "channel.disconnected"
	KindConnectError  = "channel.connect_error"
	KindUnauthorized  = "channel.unauthorized"
	KindError         = "channel.error"
	KindQR            = "link.qr"
	KindReady         = "link.ready"
	KindAuthenticated = "link.authenticated"
	KindAuthFailure   = "link.auth_failure"
	KindLinkDown      = "link.disconnected"
	KindNewMessage    = "message.new"
	KindNotification  = "message.notification"
	KindFetchComplete = "fetch.complete"
	KindFetchError    = "fetch.error"
)

// Outbound wire events.
const (
	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
)

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: payload})
}

// decodeFrame maps a wire frame to a bus kind and typed payload.
// ok is false for frames with an unknown or missing event name.
func decodeFrame(data []byte, at time.Time) (kind string, payload any, ok bool) {
	frame := gjson.ParseBytes(data)
	d := frame.Get("data")

	switch frame.Get("event").String() {
	case "qr":
		code := d.String()
		if d.IsObject() {
			code = d.Get("qr").String()
		}
		return KindQR, model.PairingArtifact{Code: code, IssuedAt: at}, true
	case "ready":
		return KindReady, model.ReadyEvent{AccountID: accountID(d), At: at}, true
	case "authenticated":
		return KindAuthenticated, nil, true
	case "auth_failure":
		return KindAuthFailure, reason(d), true
	case "disconnected":
		return KindLinkDown, reason(d), true
	case "new_message":
		chatID := d.Get("chatId").String()
		msg := decodeMessage(d.Get("message"))
		if msg.ChatExternalID == "" {
			msg.ChatExternalID = chatID
		}
		return KindNewMessage, model.NewMessage{ChatID: chatID, Message: msg}, true
	case "new_message_notification":
		return KindNotification, model.Notification{
			SenderName:   d.Get("sender.name").String(),
			SenderAvatar: d.Get("sender.profilePicUrl").String(),
			ChatID:       d.Get("chat.id").String(),
			ChatName:     d.Get("chat.name").String(),
			IsGroup:      d.Get("chat.isGroup").Bool(),
			Preview:      d.Get("preview").String(),
		}, true
	case "fetch_messages_complete":
		return KindFetchComplete, model.FetchSummary{
			Message:       d.Get("message").String(),
			TotalChats:    d.Get("totalChats").Int(),
			TotalMessages: d.Get("totalMessages").Int(),
		}, true
	case "fetch_messages_error":
		return KindFetchError, model.FetchFailure{
			Error:   d.Get("error").String(),
			Details: d.Get("details").String(),
		}, true
	case "error":
		return KindError, reason(d), true
	default:
		return "", nil, false
	}
}

func accountID(d gjson.Result) string {
	if v := d.Get("phoneNumber"); v.Exists() {
		return v.String()
	}
	return d.Get("accountId").String()
}

// reason accepts either a bare string or an object with a reason/message field.
func reason(d gjson.Result) string {
	if !d.IsObject() {
		return d.String()
	}
	for _, key := range []string{"reason", "message", "error"} {
		if v := d.Get(key); v.Exists() {
			return v.String()
		}
	}
	return d.Raw
}

// decodeMessage reads a message record. gjson tolerates numeric fields sent
// as strings, which the server does for counters and timestamps.
func decodeMessage(m gjson.Result) model.MessageRecord {
	return model.MessageRecord{
		ChatExternalID: m.Get("chat_id").String(),
		Body:           m.Get("body").String(),
		Timestamp:      m.Get("timestamp").Int(),
		FromMe:         m.Get("from_me").Bool(),
		SenderName:     m.Get("sender_name").String(),
		Type:           m.Get("message_type").String(),
	}
}
