package store

import (
	"fmt"
	"math"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

const insertMessageSQL = `
	INSERT INTO messages (chat_id, sender_name, body, message_type, from_me, timestamp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_id, timestamp, from_me, sender_name, body) DO NOTHING`

// InsertMessage stores a message (idempotent on its content) and reports
// whether it was new.
func (db *DB) InsertMessage(chatID string, m model.MessageRecord) (bool, error) {
	res, err := db.Exec(insertMessageSQL,
		chatID, m.SenderName, m.Body, m.Type, m.FromMe, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertMessages stores a page of messages in one transaction and returns
// how many were new.
func (db *DB) InsertMessages(chatID string, msgs []model.MessageRecord) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	inserted := 0
	for _, m := range msgs {
		res, err := tx.Exec(insertMessageSQL,
			chatID, m.SenderName, m.Body, m.Type, m.FromMe, m.Timestamp, now)
		if err != nil {
			return 0, fmt.Errorf("insert message: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit messages: %w", err)
	}
	return inserted, nil
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]model.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = math.MaxInt64
	}
	rows, err := db.Query(`
		SELECT chat_id, sender_name, body, message_type, from_me, timestamp
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.MessageRecord
	for rows.Next() {
		var m model.MessageRecord
		if err := rows.Scan(&m.ChatExternalID, &m.SenderName, &m.Body, &m.Type, &m.FromMe, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
