package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wpparchive/internal/jobs"
	"github.com/matheus3301/wpparchive/internal/model"
	intsync "github.com/matheus3301/wpparchive/internal/sync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownChat is returned by SelectChat for an id not in the chat list.
var ErrUnknownChat = errors.New("view: unknown chat")

// MinSearchLength is the shortest query sent to the server.
const MinSearchLength = 2

// reload fetches chats and stats concurrently. Only the latest reload is
// applied. onDone, if set, runs on the loop right after a reload installs,
// this one or a newer one that superseded it. Caller holds c.mu.
func (c *Controller) reload(onDone func()) {
	c.reloadGen++
	gen := c.reloadGen
	if onDone != nil {
		c.reloadWaiters = append(c.reloadWaiters, onDone)
	}
	c.async(func(ctx context.Context) func() {
		var (
			chats    []model.ChatSummary
			stats    model.Stats
			chatsErr error
			statsErr error
		)
		var g errgroup.Group
		g.Go(func() error {
			chats, chatsErr = c.backend.ListChats(ctx)
			return nil
		})
		g.Go(func() error {
			stats, statsErr = c.backend.Stats(ctx)
			return nil
		})
		_ = g.Wait()
		if ctx.Err() != nil {
			return nil
		}
		return func() {
			if gen != c.reloadGen {
				return
			}
			var sp *model.Stats
			if statsErr != nil {
				c.logger.Warn("loading stats failed", zap.Error(statsErr))
			} else {
				sp = &stats
			}
			c.installLoaded(chats, chatsErr, sp)
			c.flushReloadWaiters()
		}
	})
}

// flushReloadWaiters runs the callbacks of reloads that will not install
// anything newer. Caller holds c.mu.
func (c *Controller) flushReloadWaiters() {
	waiters := c.reloadWaiters
	c.reloadWaiters = nil
	for _, fn := range waiters {
		fn()
	}
}

// Reload refreshes chats and stats.
func (c *Controller) Reload(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.reload(nil)
		return nil
	})
}

// SelectChat opens a chat by id and loads its newest page of messages.
// A load for a chat that is no longer selected is discarded.
func (c *Controller) SelectChat(ctx context.Context, id string) error {
	return c.call(ctx, func() error {
		chat, ok := c.findChat(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChat, id)
		}
		var prevRoom string
		if c.selected != nil {
			prevRoom = c.selected.ExternalChatID
		}
		c.selected = &chat
		intsync.ResetMessages(&c.coll)
		c.coll.OpenChatID = chat.ExternalChatID
		c.offset = 0
		c.hasMore = false
		c.loadingMore = false
		c.selectGen++
		gen := c.selectGen

		c.async(func(ctx context.Context) func() {
			if prevRoom != "" && prevRoom != chat.ExternalChatID {
				if err := c.channel.LeaveRoom(ctx, prevRoom); err != nil {
					c.logger.Debug("leave room failed", zap.String("room", prevRoom), zap.Error(err))
				}
			}
			if err := c.channel.JoinRoom(ctx, chat.ExternalChatID); err != nil {
				c.logger.Debug("join room failed", zap.String("room", chat.ExternalChatID), zap.Error(err))
			}
			return nil
		})
		c.loadPage(gen, chat, 0)
		return nil
	})
}

// LoadMore appends the next page of the selected chat's messages.
func (c *Controller) LoadMore(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.selected == nil || !c.hasMore || c.loadingMore {
			return nil
		}
		c.loadingMore = true
		c.loadPage(c.selectGen, *c.selected, c.offset)
		return nil
	})
}

// loadPage loads one page at offset. Caller holds c.mu.
func (c *Controller) loadPage(gen uint64, chat model.ChatSummary, offset int) {
	c.async(func(ctx context.Context) func() {
		msgs, err := c.backend.ListMessages(ctx, chat.ID, PageSize, offset)
		if ctx.Err() != nil {
			return nil
		}
		return func() {
			if gen != c.selectGen {
				return
			}
			c.loadingMore = false
			if err != nil {
				c.logger.Warn("loading messages failed", zap.String("chat", chat.ID), zap.Error(err))
				c.alerts.Error("Failed to load messages")
				return
			}
			if offset == 0 {
				c.coll.Messages = msgs
			} else {
				c.coll.Messages = append(c.coll.Messages, msgs...)
			}
			c.offset = offset + len(msgs)
			c.hasMore = len(msgs) == PageSize
			if c.mirror != nil {
				if err := c.mirror.MirrorMessages(chat.ExternalChatID, msgs); err != nil {
					c.logger.Warn("mirroring messages failed", zap.Error(err))
				}
			}
		}
	})
}

func (c *Controller) findChat(id string) (model.ChatSummary, bool) {
	for _, ch := range c.coll.Chats {
		if ch.ID == id || ch.ExternalChatID == id {
			return ch, true
		}
	}
	return model.ChatSummary{}, false
}

// Search runs a server-side search and stores the results in the view.
// Queries shorter than MinSearchLength clear the results.
func (c *Controller) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		err := c.call(ctx, func() error {
			c.searchQuery = query
			c.searchResults = nil
			return nil
		})
		return nil, err
	}

	results, err := c.backend.Search(ctx, query, limit)
	postErr := c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("search failed", zap.Error(err))
			c.alerts.Error("Search failed")
			return nil
		}
		c.searchQuery = query
		c.searchResults = results
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, postErr
}

// FetchAll starts a bulk message fetch.
func (c *Controller) FetchAll(ctx context.Context) error {
	if err := c.call(ctx, c.jobs.Begin); err != nil {
		return err
	}

	res, err := c.backend.FetchMessages(ctx)
	return c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("bulk fetch failed to start", zap.Error(err))
			c.jobs.Abort(err.Error())
			c.alerts.Error("Failed to start message fetching")
			return nil
		}
		if c.jobs.Accept(res) {
			// The job stays busy until the refreshed chats and stats are in.
			c.reload(func() {
				c.jobs.Finish()
				c.alerts.Success("Messages fetched successfully")
			})
			return nil
		}
		c.alerts.Info("Message fetching started! You will be notified when complete.")
		return nil
	})
}

// InitializeLink asks the server to start pairing.
func (c *Controller) InitializeLink(ctx context.Context) error {
	err := c.call(ctx, func() error {
		if c.initializing {
			return jobs.ErrActive
		}
		c.initializing = true
		return nil
	})
	if err != nil {
		return err
	}

	initErr := c.backend.InitializeLink(ctx)
	return c.settle(ctx, func() error {
		if initErr != nil {
			c.initializing = false
			c.logger.Warn("link initialization failed", zap.Error(initErr))
			c.alerts.Error("Failed to initialize WhatsApp")
			return nil
		}
		c.alerts.Success("WhatsApp initialization started")
		return nil
	})
}

// Export downloads the archive in format.
func (c *Controller) Export(ctx context.Context, format string) ([]byte, error) {
	if format == "" {
		format = "json"
	}
	data, err := c.backend.Export(ctx, format)
	postErr := c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("export failed", zap.Error(err))
			c.alerts.Error("Failed to export data")
			return nil
		}
		c.alerts.Success("Data exported successfully")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, postErr
}

// DeleteAll removes every archived chat and message.
func (c *Controller) DeleteAll(ctx context.Context) error {
	err := c.backend.DeleteAll(ctx)
	postErr := c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("delete all failed", zap.Error(err))
			c.alerts.Error("Failed to delete data")
			return nil
		}
		c.coll = intsync.Collections{}
		c.selected = nil
		c.offset = 0
		c.hasMore = false
		c.searchQuery = ""
		c.searchResults = nil
		c.reloadGen++
		c.selectGen++
		// In-flight reloads are discarded; the cleared state is what they
		// were waiting for.
		c.flushReloadWaiters()
		if c.mirror != nil {
			if err := c.mirror.Clear(); err != nil {
				c.logger.Warn("clearing mirror failed", zap.Error(err))
			}
		}
		c.alerts.Success("All data deleted successfully")
		return nil
	})
	if err != nil {
		return err
	}
	return postErr
}

// DisconnectLink logs the external account out and returns to setup.
func (c *Controller) DisconnectLink(ctx context.Context) error {
	err := c.backend.Disconnect(ctx)
	postErr := c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("disconnect failed", zap.Error(err))
			c.alerts.Error("Failed to disconnect")
			return nil
		}
		c.resetLinkLocked()
		c.alerts.Success("WhatsApp disconnected")
		return nil
	})
	if err != nil {
		return err
	}
	return postErr
}

// DeleteSession discards the server-side link session.
func (c *Controller) DeleteSession(ctx context.Context) error {
	err := c.backend.DeleteSession(ctx)
	postErr := c.settle(ctx, func() error {
		if err != nil {
			c.logger.Warn("delete session failed", zap.Error(err))
			c.alerts.Error("Failed to delete session")
			return nil
		}
		c.resetLinkLocked()
		c.alerts.Success("Session deleted")
		return nil
	})
	if err != nil {
		return err
	}
	return postErr
}

// resetLinkLocked marks the link down locally and returns to setup. The
// server's own disconnect push, if any, merges on top.
func (c *Controller) resetLinkLocked() {
	c.tracker.MergeProbe(model.SessionProbe{}, time.Now())
	c.view = model.ViewSetup
	c.unconfirmed = false
	c.initializing = false
	c.selected = nil
	intsync.ResetMessages(&c.coll)
	c.selectGen++
}

// Focus marks the client as focused, resetting the unread counter.
func (c *Controller) Focus(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.notifier.Focus()
		return nil
	})
}

// Visible records whether the client is showing. Becoming visible resets
// the unread counter like Focus; going hidden leaves it as is.
func (c *Controller) Visible(ctx context.Context, visible bool) error {
	return c.call(ctx, func() error {
		c.notifier.Visible(visible)
		return nil
	})
}

// DismissArtifact hides the current pairing code.
func (c *Controller) DismissArtifact(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.tracker.DismissArtifact()
		return nil
	})
}

// NotificationAction is a response to the notification permission banner.
type NotificationAction string

const (
	NotificationsEnable  NotificationAction = "enable"
	NotificationsDecline NotificationAction = "decline"
	NotificationsLater   NotificationAction = "later"
)

// Notifications applies a permission banner action.
func (c *Controller) Notifications(ctx context.Context, action NotificationAction) error {
	return c.call(ctx, func() error {
		switch action {
		case NotificationsEnable:
			_, err := c.notifier.Enable()
			return err
		case NotificationsDecline:
			return c.notifier.Decline()
		case NotificationsLater:
			c.notifier.DismissBanner()
			return nil
		default:
			return fmt.Errorf("view: unknown notification action %q", action)
		}
	})
}
