package model

import "time"

// ReadyEvent is pushed when the external account finished linking.
type ReadyEvent struct {
	AccountID string
	At        time.Time
}

// NewMessage is a chat-scoped new item pushed over the channel.
type NewMessage struct {
	ChatID  string
	Message MessageRecord
}

// Notification is the payload of a message notification event.
type Notification struct {
	SenderName   string
	SenderAvatar string
	ChatID       string
	ChatName     string
	IsGroup      bool
	Preview      string
}

// Subject returns the alert subject: the sender, plus the chat for groups.
func (n Notification) Subject() string {
	if n.IsGroup && n.ChatName != "" {
		return n.SenderName + " (" + n.ChatName + ")"
	}
	return n.SenderName
}

// Tag groups alerts for the same chat so they coalesce.
func (n Notification) Tag() string {
	return "whatsapp-" + n.ChatID
}

// FetchSummary is the payload of a bulk fetch completion event.
type FetchSummary struct {
	Message       string
	TotalChats    int64
	TotalMessages int64
}

// FetchFailure is the payload of a bulk fetch error event.
type FetchFailure struct {
	Error   string
	Details string
}
