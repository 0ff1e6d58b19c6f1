package store

import "github.com/matheus3301/wpparchive/internal/model"

// SearchMessages performs a full-text search on mirrored message bodies,
// newest first. An empty chatID searches every chat.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.chat_id, m.sender_name, m.body, m.message_type, m.from_me, m.timestamp,
		       COALESCE(c.name, ''),
		       snippet(messages_fts, '<<', '>>', '...', -1, 16)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		LEFT JOIN chats c ON c.chat_id = m.chat_id
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(
			&r.Message.ChatExternalID, &r.Message.SenderName, &r.Message.Body,
			&r.Message.Type, &r.Message.FromMe, &r.Message.Timestamp,
			&r.ChatName, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
