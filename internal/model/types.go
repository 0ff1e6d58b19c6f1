package model

import "time"

// LinkStatus is the authoritative state of the external account link.
// A zero AccountID or LastUsed means the value is unknown.
type LinkStatus struct {
	Connected bool      `json:"connected"`
	AccountID string    `json:"account_id,omitempty"`
	LastUsed  time.Time `json:"last_used,omitzero"`
}

// PairingArtifact is the scannable code issued while a link is being paired.
type PairingArtifact struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// ChatSummary is one entry of the chat list.
type ChatSummary struct {
	ID               string    `json:"id"`
	ExternalChatID   string    `json:"chat_id"`
	Name             string    `json:"chat_name"`
	IsGroup          bool      `json:"is_group"`
	ParticipantCount int       `json:"participant_count"`
	MessageCount     int64     `json:"message_count"`
	LastMessageTime  time.Time `json:"last_message_time"`
}

// MessageRecord is a message of the currently selected chat.
type MessageRecord struct {
	ChatExternalID string `json:"chat_id"`
	Body           string `json:"body"`
	Timestamp      int64  `json:"timestamp"` // unix millis
	FromMe         bool   `json:"from_me"`
	SenderName     string `json:"sender_name"`
	Type           string `json:"message_type"`
}

// Stats holds aggregate archive counters.
type Stats struct {
	TotalChats    int64 `json:"total_chats"`
	TotalMessages int64 `json:"total_messages"`
}

// SessionProbe is the server's answer to "does a usable link already exist".
type SessionProbe struct {
	HasSession bool   `json:"has_session"`
	IsActive   bool   `json:"is_active"`
	Connected  bool   `json:"connected"`
	AccountID  string `json:"account_id,omitempty"`
}

// Usable reports whether the probed session can be used without re-pairing.
func (p SessionProbe) Usable() bool {
	return p.HasSession && p.IsActive && p.Connected
}

// SearchResult is one full-text search hit.
type SearchResult struct {
	Message  MessageRecord `json:"message"`
	ChatName string        `json:"chat_name"`
	Snippet  string        `json:"snippet,omitempty"`
}

// FetchResult is the synchronous answer to starting a bulk fetch.
type FetchResult struct {
	Status  string `json:"status"` // "processing" or anything else for immediate completion
	Message string `json:"message,omitempty"`
}

// Processing reports whether the fetch continues in the background.
func (r FetchResult) Processing() bool {
	return r.Status == "processing"
}
