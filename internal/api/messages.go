package api

import (
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/notify"
	"github.com/matheus3301/wpparchive/internal/view"
)

// Empty is the request or response of calls without a payload.
type Empty struct{}

type ViewResponse struct {
	State  view.State  `json:"state"`
	Mirror *MirrorInfo `json:"mirror,omitempty"`
}

// MirrorInfo reports how fresh the local archive is. Zero times mean never.
type MirrorInfo struct {
	LastFullReload time.Time `json:"last_full_reload,omitzero"`
	LastEvent      time.Time `json:"last_event,omitzero"`
}

type SetCredentialRequest struct {
	// Token is the bearer credential; empty signs out.
	Token string `json:"token"`
}

type SelectChatRequest struct {
	ChatID string `json:"chat_id"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// ChatID narrows a local search to one chat.
	ChatID string `json:"chat_id,omitempty"`
}

type SearchResponse struct {
	Results []model.SearchResult `json:"results"`
}

type LocalChatsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

type LocalChatsResponse struct {
	Chats []model.ChatSummary `json:"chats"`
	Stats model.Stats         `json:"stats"`
}

type LocalMessagesRequest struct {
	ChatID   string `json:"chat_id"`
	BeforeTs int64  `json:"before_ts,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type LocalMessagesResponse struct {
	Messages []model.MessageRecord `json:"messages"`
}

type ExportRequest struct {
	Format string `json:"format,omitempty"`
}

type ExportResponse struct {
	Data []byte `json:"data"`
}

type VisibleRequest struct {
	Visible bool `json:"visible"`
}

type NotificationsRequest struct {
	Action view.NotificationAction `json:"action"`
}

// QR formats.
const (
	QRTerminal = "terminal"
	QRPNG      = "png"
)

type QRRequest struct {
	Format string `json:"format,omitempty"`
	Size   int    `json:"size,omitempty"`
}

type QRResponse struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at,omitzero"`
	// Terminal is the code drawn with block characters.
	Terminal string `json:"terminal,omitempty"`
	PNG      []byte `json:"png,omitempty"`
	// DataURL is set instead of a rendering when the server already sent an image.
	DataURL string `json:"data_url,omitempty"`
}

type LinkStatusResponse struct {
	Status model.LinkStatus `json:"status"`
}

// Watch event kinds.
const (
	WatchView        = "view"
	WatchSystemAlert = "system_alert"
	WatchSystemClose = "system_alert_closed"
)

// WatchEvent is one item of the Watch stream.
type WatchEvent struct {
	Kind  string              `json:"kind"`
	View  *view.State         `json:"view,omitempty"`
	Alert *notify.SystemAlert `json:"alert,omitempty"`
	Tag   string              `json:"tag,omitempty"`
}
