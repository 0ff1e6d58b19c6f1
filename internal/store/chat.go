package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

const chatColumns = `chat_id, server_id, name, is_group, participant_count, message_count, last_message_at`

const upsertChatSQL = `
	INSERT INTO chats (chat_id, server_id, name, is_group, participant_count, message_count, last_message_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET
		server_id = excluded.server_id,
		name = excluded.name,
		is_group = excluded.is_group,
		participant_count = excluded.participant_count,
		message_count = excluded.message_count,
		last_message_at = excluded.last_message_at,
		updated_at = excluded.updated_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertChat(x execer, c model.ChatSummary, now int64) error {
	_, err := x.Exec(upsertChatSQL,
		c.ExternalChatID, c.ID, c.Name, c.IsGroup, c.ParticipantCount, c.MessageCount,
		toMillis(c.LastMessageTime), now)
	return err
}

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c model.ChatSummary) error {
	return upsertChat(db, c, time.Now().UnixMilli())
}

// ReplaceChats makes the chat table match a full server reload. Chats the
// server no longer reports are removed together with their messages.
func (db *DB) ReplaceChats(chats []model.ChatSummary) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	keep := make(map[string]bool, len(chats))
	for _, c := range chats {
		if err := upsertChat(tx, c, now); err != nil {
			return fmt.Errorf("upsert chat %q: %w", c.ExternalChatID, err)
		}
		keep[c.ExternalChatID] = true
	}

	rows, err := tx.Query(`SELECT chat_id FROM chats`)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
			return fmt.Errorf("prune messages of %q: %w", id, err)
		}
		if _, err := tx.Exec(`DELETE FROM chats WHERE chat_id = ?`, id); err != nil {
			return fmt.Errorf("prune chat %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// TouchChat records one live message for chatID at the given time. Unknown
// chats are created with only the id.
func (db *DB) TouchChat(chatID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, message_count, last_message_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			message_count = chats.message_count + 1,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		chatID, toMillis(at), time.Now().UnixMilli())
	return err
}

// ListChats returns chats sorted by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]model.ChatSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+chatColumns+`
		FROM chats
		ORDER BY last_message_at DESC, chat_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []model.ChatSummary
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by external id, or nil when unknown.
func (db *DB) GetChat(chatID string) (*model.ChatSummary, error) {
	row := db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE chat_id = ?`, chatID)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (model.ChatSummary, error) {
	var c model.ChatSummary
	var last int64
	err := s.Scan(&c.ExternalChatID, &c.ID, &c.Name, &c.IsGroup, &c.ParticipantCount, &c.MessageCount, &last)
	c.LastMessageTime = fromMillis(last)
	return c, err
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
