// Package view owns the client view state. A single goroutine applies bus
// events and the results of asynchronous operations in receipt order.
package view

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/jobs"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/notify"
	"github.com/matheus3301/wpparchive/internal/recovery"
	"github.com/matheus3301/wpparchive/internal/status"
	intsync "github.com/matheus3301/wpparchive/internal/sync"
	"go.uber.org/zap"
)

// KindChanged is published with a State payload after every applied change.
const KindChanged = "view.changed"

// PageSize is the number of messages loaded per page.
const PageSize = 50

// ErrStopped is returned by operations once the controller stopped.
var ErrStopped = errors.New("view: controller stopped")

// Channel is the event channel handle.
type Channel interface {
	Connected() bool
	JoinRoom(ctx context.Context, room string) error
	LeaveRoom(ctx context.Context, room string) error
}

// Backend is the REST surface used by the view.
type Backend interface {
	recovery.Backend
	ListMessages(ctx context.Context, chatID string, limit, offset int) ([]model.MessageRecord, error)
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	FetchMessages(ctx context.Context) (model.FetchResult, error)
	Export(ctx context.Context, format string) ([]byte, error)
	DeleteAll(ctx context.Context) error
	Disconnect(ctx context.Context) error
	DeleteSession(ctx context.Context) error
}

// Mirror receives what the view loads so it can be kept locally.
type Mirror interface {
	MirrorChats(chats []model.ChatSummary) error
	MirrorMessages(chatID string, msgs []model.MessageRecord) error
	Clear() error
}

// Options wires a Controller.
type Options struct {
	Bus      *bus.Bus
	Channel  Channel
	Backend  Backend
	Mirror   Mirror
	Recovery *recovery.Protocol
	Tracker  *status.Tracker
	Jobs     *jobs.Tracker
	Alerts   *notify.Center
	Notifier *notify.Dispatcher
	// OnUnauthorized runs when the channel rejects the credential.
	OnUnauthorized func()
	Logger         *zap.Logger
}

// Controller is the view state owner.
type Controller struct {
	bus      *bus.Bus
	channel  Channel
	backend  Backend
	mirror   Mirror
	recovery *recovery.Protocol
	tracker  *status.Tracker
	jobs     *jobs.Tracker
	alerts   *notify.Center
	notifier *notify.Dispatcher
	onUnauth func()
	logger   *zap.Logger

	posts  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu               sync.Mutex
	view             model.View
	checking         bool
	initializing     bool
	unconfirmed      bool
	channelConnected bool
	coll             intsync.Collections
	selected         *model.ChatSummary
	offset           int
	hasMore          bool
	loadingMore      bool
	selectGen        uint64
	reloadGen        uint64
	reloadWaiters    []func()
	searchQuery      string
	searchResults    []model.SearchResult
}

// New creates a controller in the setup view.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Alerts == nil {
		opts.Alerts = notify.NewCenter(opts.Bus, 0)
	}
	if opts.Jobs == nil {
		opts.Jobs = jobs.NewTracker()
	}
	if opts.Tracker == nil {
		opts.Tracker = status.NewTracker(opts.Bus, opts.Alerts, opts.Logger)
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewDispatcher(notify.Options{Center: opts.Alerts})
	}
	if opts.Recovery == nil {
		tracker := opts.Tracker
		opts.Recovery = recovery.New(recovery.Options{
			Backend:       opts.Backend,
			LinkConnected: func() bool { return tracker.Snapshot().Link.Connected },
			Logger:        opts.Logger,
		})
	}
	return &Controller{
		bus:      opts.Bus,
		channel:  opts.Channel,
		backend:  opts.Backend,
		mirror:   opts.Mirror,
		recovery: opts.Recovery,
		tracker:  opts.Tracker,
		jobs:     opts.Jobs,
		alerts:   opts.Alerts,
		notifier: opts.Notifier,
		onUnauth: opts.OnUnauthorized,
		logger:   opts.Logger.Named("view"),
		posts:    make(chan func(), 64),
		view:     model.ViewSetup,
	}
}

// inboxKinds are the bus namespaces the loop consumes. The loop publishes
// view, alert and pairing kinds itself and never listens to them.
var inboxKinds = []string{"channel.", "link.", "message.", "fetch."}

// Start subscribes to the bus and runs the event loop until ctx is done or
// Stop is called. Start before opening the channel so no event is missed.
// The subscription is reliable: a slow loop holds back the channel reader
// instead of losing its events.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.SubscribeReliable(256, inboxKinds...)

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.dispatch(evt)
			case fn := <-c.posts:
				c.apply(fn)
			case <-c.ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and cancels in-flight work.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	c.recovery.Stop()
	c.cancel()
	<-c.done
}

// Snapshot returns a deep copy of the current view state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	pairing := c.tracker.Snapshot()
	coll := c.coll.Clone()

	v := c.view
	if pairing.Link.Connected {
		v = model.ViewChats
	}
	s := State{
		View:             v,
		Checking:         c.checking,
		Busy:             c.initializing || c.jobs.Busy(),
		Unconfirmed:      c.unconfirmed,
		ChannelConnected: c.channelConnected,
		Link:             pairing.Link,
		Pairing:          pairing.State,
		Artifact:         pairing.Artifact,
		Chats:            coll.Chats,
		Messages:         coll.Messages,
		HasMore:          c.hasMore,
		Stats:            coll.Stats,
		SearchQuery:      c.searchQuery,
		SearchResults:    slices.Clone(c.searchResults),
		Job:              c.jobs.Handle(),
		Alerts:           c.alerts.Active(time.Now()),
		Title:            c.notifier.Title(),
		NotifyBanner:     c.notifier.ShowBanner(),
		Permission:       c.notifier.Permission(),
	}
	if c.selected != nil {
		sel := *c.selected
		s.SelectedChat = &sel
	}
	return s
}

func (c *Controller) dispatch(evt bus.Event) {
	c.mu.Lock()
	changed := c.handleEvent(evt)
	var snap State
	if changed {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if changed {
		c.publish(snap)
	}
}

func (c *Controller) apply(fn func()) {
	c.mu.Lock()
	fn()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) publish(s State) {
	c.bus.Publish(bus.Event{Kind: KindChanged, Timestamp: time.Now(), Payload: s})
}

// post hands fn to the loop. It gives up once the controller stopped.
func (c *Controller) post(fn func()) {
	select {
	case c.posts <- fn:
	case <-c.ctx.Done():
	}
}

// call runs fn on the loop and waits for its result. ctx only bounds the
// wait for the loop to accept fn; once accepted, fn's result is returned
// even if ctx ends meanwhile, so callers know whether fn ran.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	if c.ctx == nil {
		return ErrStopped
	}
	res := make(chan error, 1)
	select {
	case c.posts <- func() { res <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-c.ctx.Done():
		return ErrStopped
	}
}

// settle runs fn on the loop whatever the state of ctx. Operations use it
// to close out state an earlier call opened, after a backend request that
// may have failed because ctx ended.
func (c *Controller) settle(ctx context.Context, fn func() error) error {
	return c.call(context.WithoutCancel(ctx), fn)
}

// async runs work off the loop and applies the closure it returns on the loop.
func (c *Controller) async(work func(ctx context.Context) func()) {
	ctx := c.ctx
	go func() {
		if fn := work(ctx); fn != nil {
			c.post(fn)
		}
	}()
}
