package sync

import (
	"testing"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func chat(id string, minutesAgo int, count int64) model.ChatSummary {
	return model.ChatSummary{
		ExternalChatID:  id,
		Name:            id,
		LastMessageTime: base.Add(-time.Duration(minutesAgo) * time.Minute),
		MessageCount:    count,
	}
}

func TestApplyNewMessageReordersChats(t *testing.T) {
	c := &Collections{
		Chats: []model.ChatSummary{chat("a", 1, 10), chat("b", 5, 3), chat("c", 10, 7)},
		Stats: &model.Stats{TotalChats: 3, TotalMessages: 20},
	}

	ApplyNewMessage(c, model.NewMessage{ChatID: "c", Message: model.MessageRecord{Body: "hi"}}, base)

	if c.Chats[0].ExternalChatID != "c" {
		t.Fatalf("first chat = %q, want c", c.Chats[0].ExternalChatID)
	}
	if c.Chats[0].MessageCount != 8 || !c.Chats[0].LastMessageTime.Equal(base) {
		t.Errorf("chat c = %+v", c.Chats[0])
	}
	if c.Chats[1].ExternalChatID != "a" || c.Chats[2].ExternalChatID != "b" {
		t.Errorf("order = %s,%s", c.Chats[1].ExternalChatID, c.Chats[2].ExternalChatID)
	}
	if c.Stats.TotalMessages != 21 {
		t.Errorf("total messages = %d, want 21", c.Stats.TotalMessages)
	}
	if len(c.Messages) != 0 {
		t.Errorf("messages of a closed chat were touched")
	}
}

func TestApplyNewMessagePrependsToOpenChat(t *testing.T) {
	c := &Collections{
		Chats:      []model.ChatSummary{chat("a", 1, 1)},
		OpenChatID: "a",
		Messages:   []model.MessageRecord{{Body: "old"}},
	}

	ApplyNewMessage(c, model.NewMessage{ChatID: "a", Message: model.MessageRecord{Body: "new"}}, base)

	if len(c.Messages) != 2 || c.Messages[0].Body != "new" || c.Messages[1].Body != "old" {
		t.Errorf("messages = %+v", c.Messages)
	}
}

func TestApplyNewMessageUnknownChat(t *testing.T) {
	c := &Collections{
		Chats: []model.ChatSummary{chat("a", 1, 1), chat("b", 2, 1)},
		Stats: &model.Stats{TotalMessages: 2},
	}
	before := c.Clone()

	ApplyNewMessage(c, model.NewMessage{ChatID: "zzz"}, base)

	for i := range c.Chats {
		if c.Chats[i] != before.Chats[i] {
			t.Errorf("chat %d changed: %+v", i, c.Chats[i])
		}
	}
	if c.Stats.TotalMessages != 3 {
		t.Errorf("total messages = %d, want 3", c.Stats.TotalMessages)
	}
}

func TestApplyNewMessageWithoutStats(t *testing.T) {
	c := &Collections{Chats: []model.ChatSummary{chat("a", 1, 1)}}
	ApplyNewMessage(c, model.NewMessage{ChatID: "a"}, base)
	if c.Stats != nil {
		t.Error("stats must stay unloaded")
	}
}

func TestSortChatsStable(t *testing.T) {
	same := base
	chats := []model.ChatSummary{
		{ExternalChatID: "x", LastMessageTime: same},
		{ExternalChatID: "y", LastMessageTime: same},
		{ExternalChatID: "z", LastMessageTime: same.Add(time.Second)},
	}
	SortChats(chats)
	got := chats[0].ExternalChatID + chats[1].ExternalChatID + chats[2].ExternalChatID
	if got != "zxy" {
		t.Errorf("order = %s, want zxy", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := &Collections{
		Chats:    []model.ChatSummary{chat("a", 1, 1)},
		Messages: []model.MessageRecord{{Body: "m"}},
		Stats:    &model.Stats{TotalMessages: 1},
	}
	cp := c.Clone()
	c.Chats[0].MessageCount = 99
	c.Messages[0].Body = "changed"
	c.Stats.TotalMessages = 99

	if cp.Chats[0].MessageCount != 1 || cp.Messages[0].Body != "m" || cp.Stats.TotalMessages != 1 {
		t.Errorf("clone shares memory: %+v", cp)
	}
}

func TestReplaceAndReset(t *testing.T) {
	c := &Collections{OpenChatID: "a", Messages: []model.MessageRecord{{}}}
	ReplaceChats(c, []model.ChatSummary{chat("old", 10, 0), chat("new", 1, 0)})
	if c.Chats[0].ExternalChatID != "new" {
		t.Errorf("ReplaceChats did not sort")
	}
	ResetMessages(c)
	if c.OpenChatID != "" || c.Messages != nil {
		t.Errorf("ResetMessages left %+v", c)
	}
}
