package store

import (
	"fmt"

	"github.com/matheus3301/wpparchive/internal/model"
)

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of mirrored messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// Stats returns the mirror counters.
func (db *DB) Stats() (model.Stats, error) {
	chats, err := db.ChatCount()
	if err != nil {
		return model.Stats{}, fmt.Errorf("count chats: %w", err)
	}
	msgs, err := db.MessageCount()
	if err != nil {
		return model.Stats{}, fmt.Errorf("count messages: %w", err)
	}
	return model.Stats{TotalChats: chats, TotalMessages: msgs}, nil
}

// DeleteAll removes every chat, message and checkpoint.
func (db *DB) DeleteAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range []string{"messages", "chats", "sync_state"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
