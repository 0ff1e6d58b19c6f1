package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys kept in sync_state.
const (
	CheckpointLastEvent      = "last_event_at"
	CheckpointLastFullReload = "last_full_reload_at"
)

// KindStored is published after a live message reached the mirror.
const KindStored = "mirror.stored"

// Engine mirrors messages into the local archive. It subscribes to
// "message." events on the bus; bulk loads are pushed to it directly.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new mirror engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger.Named("mirror"),
	}
}

// Start subscribes to message events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("message.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the subscriber goroutine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	if evt.Kind != "message.new" {
		return
	}
	msg, ok := evt.Payload.(model.NewMessage)
	if !ok {
		return
	}
	if err := e.IngestMessage(msg, evt.Timestamp); err != nil {
		e.logger.Error("failed to mirror message", zap.Error(err), zap.String("chat_id", msg.ChatID))
	}
}

// IngestMessage stores one live message and bumps its chat (idempotent on
// message content).
func (e *Engine) IngestMessage(msg model.NewMessage, at time.Time) error {
	fresh, err := e.db.InsertMessage(msg.ChatID, msg.Message)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if fresh {
		if err := e.db.TouchChat(msg.ChatID, at); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
	}
	if err := e.db.SetCheckpoint(CheckpointLastEvent, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      KindStored,
		Timestamp: time.Now(),
		Payload: map[string]any{
			"chat_id": msg.ChatID,
			"fresh":   fresh,
		},
	})
	return nil
}

// MirrorChats persists a full chat list reload.
func (e *Engine) MirrorChats(chats []model.ChatSummary) error {
	if err := e.db.ReplaceChats(chats); err != nil {
		return fmt.Errorf("replace chats: %w", err)
	}
	if err := e.db.SetCheckpoint(CheckpointLastFullReload, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	e.logger.Debug("chats mirrored", zap.Int("count", len(chats)))
	return nil
}

// MirrorMessages persists one loaded page of a chat.
func (e *Engine) MirrorMessages(chatID string, msgs []model.MessageRecord) error {
	n, err := e.db.InsertMessages(chatID, msgs)
	if err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	e.logger.Debug("messages mirrored", zap.String("chat_id", chatID), zap.Int("new", n))
	return nil
}

// Search runs a full-text search over the mirror.
func (e *Engine) Search(query, chatID string, limit int) ([]model.SearchResult, error) {
	return e.db.SearchMessages(query, chatID, limit)
}

// Chats lists mirrored chats, newest first.
func (e *Engine) Chats(limit, offset int) ([]model.ChatSummary, error) {
	return e.db.ListChats(limit, offset)
}

// Messages lists mirrored messages of a chat older than beforeTs (0 for
// the newest page), newest first.
func (e *Engine) Messages(chatID string, beforeTs int64, limit int) ([]model.MessageRecord, error) {
	return e.db.ListMessages(chatID, beforeTs, limit)
}

// Stats counts what the mirror holds.
func (e *Engine) Stats() (model.Stats, error) {
	return e.db.Stats()
}

// Clear empties the mirror.
func (e *Engine) Clear() error {
	return e.db.DeleteAll()
}

// LastFullReload returns when the chat list was last reloaded in full, or
// the zero time.
func (e *Engine) LastFullReload() (time.Time, error) {
	return e.checkpointTime(CheckpointLastFullReload)
}

// LastEvent returns the time of the last mirrored live message.
func (e *Engine) LastEvent() (time.Time, error) {
	return e.checkpointTime(CheckpointLastEvent)
}

func (e *Engine) checkpointTime(key string) (time.Time, error) {
	v, err := e.db.Checkpoint(key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("checkpoint %s: %w", key, err)
	}
	return time.UnixMilli(ms), nil
}
