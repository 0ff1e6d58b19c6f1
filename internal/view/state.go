package view

import (
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/state"
	"github.com/matheus3301/wpparchive/internal/status"
)

// State is a consistent copy of everything a client renders.
type State struct {
	View model.View `json:"view"`
	// Checking is set while a recovery run is outstanding.
	Checking bool `json:"checking"`
	// Busy is set while a link initialization or bulk fetch is outstanding.
	Busy bool `json:"busy"`
	// Unconfirmed marks chats shown from the probe-failure fallback, not a
	// verified session.
	Unconfirmed bool `json:"unconfirmed"`

	ChannelConnected bool                   `json:"channel_connected"`
	Link             model.LinkStatus       `json:"link"`
	Pairing          status.State           `json:"pairing"`
	Artifact         *model.PairingArtifact `json:"artifact,omitempty"`

	Chats         []model.ChatSummary   `json:"chats"`
	SelectedChat  *model.ChatSummary    `json:"selected_chat,omitempty"`
	Messages      []model.MessageRecord `json:"messages"`
	HasMore       bool                  `json:"has_more"`
	Stats         *model.Stats          `json:"stats,omitempty"`
	SearchQuery   string                `json:"search_query,omitempty"`
	SearchResults []model.SearchResult  `json:"search_results,omitempty"`

	Job          model.JobHandle  `json:"job"`
	Alerts       []model.Alert    `json:"alerts"`
	Title        string           `json:"title"`
	NotifyBanner bool             `json:"notify_banner"`
	Permission   state.Permission `json:"permission"`
}
