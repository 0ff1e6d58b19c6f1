package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 || result.From != 2 {
		t.Errorf("result = %+v, want from 2 to 2 (init + fts)", result)
	}
}

func TestMigrateReportsFromVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 2 {
		t.Errorf("result = %+v, want 0 -> 2 changed", result)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testDB(t)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	if err := db.UpsertChat(model.ChatSummary{ID: "1", ExternalChatID: "a@c.us", Name: "Alice", LastMessageTime: older}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(model.ChatSummary{ID: "2", ExternalChatID: "b@c.us", Name: "Bob", LastMessageTime: newer}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(model.ChatSummary{ID: "1", ExternalChatID: "a@c.us", Name: "Alice Updated", LastMessageTime: older}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].ExternalChatID != "b@c.us" {
		t.Errorf("first chat = %q, want most recent b@c.us", chats[0].ExternalChatID)
	}
	if chats[1].Name != "Alice Updated" || !chats[1].LastMessageTime.Equal(older) {
		t.Errorf("chat = %+v", chats[1])
	}
}

func TestGetChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(model.ChatSummary{ExternalChatID: "a@s", Name: "A", IsGroup: true}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat("a@s")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "A" || !c.IsGroup {
		t.Errorf("got %v, want group A", c)
	}

	c, err = db.GetChat("missing@s")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestReplaceChatsPrunesMissing(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceChats([]model.ChatSummary{{ExternalChatID: "a"}, {ExternalChatID: "b"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage("b", model.MessageRecord{Body: "gone soon", Timestamp: 5}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceChats([]model.ChatSummary{{ExternalChatID: "a", MessageCount: 3}}); err != nil {
		t.Fatal(err)
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalChats != 1 || stats.TotalMessages != 0 {
		t.Errorf("stats = %+v, want 1 chat and no messages", stats)
	}
}

func TestTouchChat(t *testing.T) {
	db := testDB(t)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if err := db.UpsertChat(model.ChatSummary{ExternalChatID: "a", MessageCount: 4}); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchChat("a", at); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchChat("new", at); err != nil {
		t.Fatal(err)
	}

	a, _ := db.GetChat("a")
	if a.MessageCount != 5 || !a.LastMessageTime.Equal(at) {
		t.Errorf("chat a = %+v", a)
	}
	n, _ := db.GetChat("new")
	if n == nil || n.MessageCount != 1 {
		t.Errorf("chat new = %+v", n)
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	msg := model.MessageRecord{Body: "hello", Type: "chat", Timestamp: 1000, SenderName: "Ana"}
	fresh, err := db.InsertMessage("chat@s", msg)
	if err != nil || !fresh {
		t.Fatalf("InsertMessage() = %v, %v", fresh, err)
	}
	fresh, err = db.InsertMessage("chat@s", msg)
	if err != nil || fresh {
		t.Fatalf("second InsertMessage() = %v, %v, want duplicate", fresh, err)
	}

	n, err := db.InsertMessages("chat@s", []model.MessageRecord{msg, {Body: "second", Timestamp: 2000}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	msgs, err := db.ListMessages("chat@s", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "second" {
		t.Fatalf("messages = %+v, want 2 newest first", msgs)
	}

	older, err := db.ListMessages("chat@s", 2000, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].Body != "hello" {
		t.Errorf("keyset page = %+v", older)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(model.ChatSummary{ExternalChatID: "chat@s", Name: "Friends"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessages("chat@s", []model.MessageRecord{
		{Body: "hello world", Timestamp: 1000},
		{Body: "goodbye world", Timestamp: 2000},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Message.Timestamp != 1000 || results[0].ChatName != "Friends" {
		t.Errorf("result = %+v", results[0])
	}

	results, err = db.SearchMessages("world", "other@s", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("chat filter ignored: %d results", len(results))
	}
}

func TestCheckpointsAndDeleteAll(t *testing.T) {
	db := testDB(t)

	v, err := db.Checkpoint("last_event_at")
	if err != nil || v != "" {
		t.Fatalf("Checkpoint() = %q, %v, want empty", v, err)
	}
	if err := db.SetCheckpoint("last_event_at", "123"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint("last_event_at", "456"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.Checkpoint("last_event_at"); v != "456" {
		t.Errorf("Checkpoint() = %q, want 456", v)
	}

	if err := db.UpsertChat(model.ChatSummary{ExternalChatID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessage("a", model.MessageRecord{Body: "x", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteAll(); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.Stats()
	if stats.TotalChats != 0 || stats.TotalMessages != 0 {
		t.Errorf("stats after DeleteAll = %+v", stats)
	}
	if v, _ := db.Checkpoint("last_event_at"); v != "" {
		t.Errorf("checkpoint survived DeleteAll: %q", v)
	}

	// FTS index must follow deletes.
	results, err := db.SearchMessages("x", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("search after DeleteAll = %d results", len(results))
	}
}
