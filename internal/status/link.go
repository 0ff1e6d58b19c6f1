package status

import (
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
)

// Source identifies where a link status update came from.
type Source string

const (
	// SourcePush is a channel event (ready, disconnected).
	SourcePush Source = "push"
	// SourcePoll is a REST probe result.
	SourcePoll Source = "poll"
)

// Link is the reduced link status plus the bookkeeping needed to order updates.
type Link struct {
	Status     model.LinkStatus
	LastPushAt time.Time
}

// Update is a candidate link status observed at At.
// For polls, At is the time the request was issued.
type Update struct {
	Status model.LinkStatus
	Source Source
	At     time.Time
}

// Merge applies an update to the current link status. Push updates always
// apply. A poll update is discarded when it was issued before the last push,
// so a probe that raced a ready/disconnected event never reverts it.
func Merge(current Link, u Update) (Link, bool) {
	switch u.Source {
	case SourcePush:
		return Link{Status: u.Status, LastPushAt: u.At}, true
	case SourcePoll:
		if !current.LastPushAt.IsZero() && u.At.Before(current.LastPushAt) {
			return current, false
		}
		return Link{Status: u.Status, LastPushAt: current.LastPushAt}, true
	default:
		return current, false
	}
}
