// Package sync merges real-time events into the in-memory chat and message
// collections and mirrors them into the local archive.
package sync

import (
	"slices"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

// Collections is the in-memory state touched by real-time merges.
type Collections struct {
	Chats []model.ChatSummary
	// OpenChatID is the external id of the selected chat, or "".
	OpenChatID string
	// Messages belong to the open chat; index 0 is newest.
	Messages []model.MessageRecord
	// Stats is nil until loaded.
	Stats *model.Stats
}

// ApplyNewMessage merges one pushed message. The matching chat gets its
// count bumped and its last-message time set to at, and the list is
// re-sorted. Unknown chats only affect the totals.
func ApplyNewMessage(c *Collections, evt model.NewMessage, at time.Time) {
	if c.OpenChatID != "" && c.OpenChatID == evt.ChatID {
		c.Messages = slices.Insert(c.Messages, 0, evt.Message)
	}

	for i := range c.Chats {
		if c.Chats[i].ExternalChatID == evt.ChatID {
			c.Chats[i].LastMessageTime = at
			c.Chats[i].MessageCount++
			break
		}
	}
	SortChats(c.Chats)

	if c.Stats != nil {
		c.Stats.TotalMessages++
	}
}

// SortChats orders chats by last message time, newest first. Ties keep
// their previous relative order.
func SortChats(chats []model.ChatSummary) {
	slices.SortStableFunc(chats, func(a, b model.ChatSummary) int {
		return b.LastMessageTime.Compare(a.LastMessageTime)
	})
}

// ReplaceChats installs a full reload of the chat list.
func ReplaceChats(c *Collections, chats []model.ChatSummary) {
	c.Chats = slices.Clone(chats)
	SortChats(c.Chats)
}

// ResetMessages clears the open chat and its messages.
func ResetMessages(c *Collections) {
	c.OpenChatID = ""
	c.Messages = nil
}

// Clone returns a deep copy safe to hand out of the owning goroutine.
func (c *Collections) Clone() Collections {
	out := Collections{
		Chats:      slices.Clone(c.Chats),
		OpenChatID: c.OpenChatID,
		Messages:   slices.Clone(c.Messages),
	}
	if c.Stats != nil {
		s := *c.Stats
		out.Stats = &s
	}
	return out
}
