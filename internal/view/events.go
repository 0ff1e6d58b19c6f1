package view

import (
	"context"
	"strings"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/channel"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/recovery"
	intsync "github.com/matheus3301/wpparchive/internal/sync"
	"go.uber.org/zap"
)

const connectionAlertKey = "connection"

// handleEvent applies one bus event. It reports whether the view changed.
// Caller holds c.mu.
func (c *Controller) handleEvent(evt bus.Event) bool {
	switch evt.Kind {
	case channel.KindConnected:
		c.channelConnected = true
		c.alerts.Clear(connectionAlertKey)
		c.startRecovery()
	case channel.KindDisconnected:
		c.channelConnected = false
		c.checking = false
		c.recovery.OnDisconnected()
	case channel.KindConnectError:
		c.alerts.SetPersistent(connectionAlertKey, model.AlertError, "Connection error. Please refresh the page.")
	case channel.KindUnauthorized:
		c.channelConnected = false
		if c.onUnauth != nil {
			// Dropping the credential tears down the channel, whose reader
			// may be waiting on this loop.
			go c.onUnauth()
		}
		c.alerts.Error("Session expired. Please sign in again.")
	case channel.KindError:
		c.alerts.Error("An error occurred. Please try again.")

	case channel.KindQR:
		a, ok := evt.Payload.(model.PairingArtifact)
		if !ok {
			return false
		}
		c.tracker.HandleQR(a)
	case channel.KindReady:
		r, ok := evt.Payload.(model.ReadyEvent)
		if !ok {
			return false
		}
		c.tracker.HandleReady(r)
		c.view = model.ViewChats
		c.unconfirmed = false
		c.initializing = false
		c.reload(nil)
	case channel.KindAuthenticated:
		c.tracker.HandleAuthenticated()
	case channel.KindAuthFailure:
		reason, _ := evt.Payload.(string)
		c.initializing = false
		c.tracker.HandleAuthFailure(reason)
	case channel.KindLinkDown:
		reason, _ := evt.Payload.(string)
		c.tracker.HandleDisconnected(reason, evt.Timestamp)

	case channel.KindNewMessage:
		m, ok := evt.Payload.(model.NewMessage)
		if !ok {
			return false
		}
		intsync.ApplyNewMessage(&c.coll, m, evt.Timestamp)
	case channel.KindNotification:
		n, ok := evt.Payload.(model.Notification)
		if !ok {
			return false
		}
		c.notifier.Notify(n)

	case channel.KindFetchComplete:
		s, _ := evt.Payload.(model.FetchSummary)
		if !c.jobs.Complete(s) {
			c.logger.Debug("fetch completion without a processing job")
			return false
		}
		text := s.Message
		if text == "" {
			text = "Messages fetched successfully"
		}
		c.alerts.Success("✅ " + text)
		c.reload(nil)
	case channel.KindFetchError:
		f, _ := evt.Payload.(model.FetchFailure)
		if !c.jobs.Fail(f) {
			c.logger.Debug("fetch error without a processing job")
			return false
		}
		c.alerts.Error(fetchErrorText(f))

	default:
		return false
	}
	return true
}

func fetchErrorText(f model.FetchFailure) string {
	var b strings.Builder
	b.WriteString("❌ ")
	if f.Error != "" {
		b.WriteString(f.Error)
	} else {
		b.WriteString("Message fetching failed")
	}
	if f.Details != "" {
		b.WriteString(": ")
		b.WriteString(f.Details)
	}
	return b.String()
}

// startRecovery launches the once-per-connect recovery run. Caller holds c.mu.
func (c *Controller) startRecovery() {
	a := c.recovery.OnConnected(c.ctx)
	if a == nil {
		return
	}
	c.checking = true
	c.async(func(context.Context) func() {
		out := c.recovery.Run(a)
		return func() { c.applyOutcome(a, out) }
	})
}

// applyOutcome installs a recovery result. Caller holds c.mu.
func (c *Controller) applyOutcome(a *recovery.Attempt, out recovery.Outcome) {
	if out.Kind == recovery.Cancelled || !c.recovery.IsCurrent(a) {
		c.logger.Debug("discarding stale recovery outcome", zap.Uint64("gen", a.Gen))
		return
	}
	defer func() { c.checking = false }()

	if out.ProbeErr == nil {
		c.tracker.MergeProbe(out.Probe, out.IssuedAt)
	}

	switch out.Kind {
	case recovery.Synced:
		c.view = model.ViewChats
		c.unconfirmed = false
		c.installLoaded(out.Chats, out.ChatsErr, out.Stats)
		if out.Probe.AccountID != "" {
			c.alerts.Success("Welcome back! Connected as " + out.Probe.AccountID)
		} else {
			c.alerts.Success("Welcome back!")
		}
	case recovery.Reinitializing:
		if out.AlreadyLinked {
			return
		}
		c.alerts.Info("Reconnecting to your WhatsApp session...")
		if out.InitErr != nil {
			c.logger.Warn("link reinitialization failed", zap.Error(out.InitErr))
			c.alerts.Error("Failed to initialize WhatsApp")
		} else {
			c.alerts.Success("WhatsApp initialization started")
		}
	case recovery.NoSession:
		if !c.tracker.Snapshot().Link.Connected {
			c.view = model.ViewSetup
		}
	case recovery.Degraded:
		c.view = model.ViewChats
		c.unconfirmed = true
		c.installLoaded(out.Chats, nil, out.Stats)
		c.alerts.Warning("Found existing chat data. Please reconnect WhatsApp if needed.")
	}
}

// installLoaded replaces chats and stats from a load. Caller holds c.mu.
func (c *Controller) installLoaded(chats []model.ChatSummary, chatsErr error, stats *model.Stats) {
	if chatsErr != nil {
		c.logger.Warn("loading chats failed", zap.Error(chatsErr))
		c.alerts.Error("Failed to load chats")
	} else {
		intsync.ReplaceChats(&c.coll, chats)
		c.mirrorChats(c.coll.Chats)
	}
	if stats != nil {
		s := *stats
		c.coll.Stats = &s
	}
}

func (c *Controller) mirrorChats(chats []model.ChatSummary) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.MirrorChats(chats); err != nil {
		c.logger.Warn("mirroring chats failed", zap.Error(err))
	}
}
