// Package recovery decides, once per channel connect, whether an existing
// link can be reused, and loads the data the view needs for that decision.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSettleDelay  = 200 * time.Millisecond
	DefaultProbeTimeout = 10 * time.Second
)

// Backend is the subset of the REST API recovery needs.
type Backend interface {
	CheckSession(ctx context.Context) (model.SessionProbe, error)
	InitializeLink(ctx context.Context) error
	ListChats(ctx context.Context) ([]model.ChatSummary, error)
	Stats(ctx context.Context) (model.Stats, error)
}

// Kind is the branch a recovery run ended in.
type Kind int

const (
	Cancelled Kind = iota
	Synced
	Reinitializing
	NoSession
	Degraded
)

func (k Kind) String() string {
	switch k {
	case Synced:
		return "synced"
	case Reinitializing:
		return "reinitializing"
	case NoSession:
		return "no_session"
	case Degraded:
		return "degraded"
	default:
		return "cancelled"
	}
}

// Outcome is the result of one run. Only non-cancelled outcomes of the
// current attempt may be applied.
type Outcome struct {
	Kind     Kind
	Probe    model.SessionProbe
	IssuedAt time.Time
	ProbeErr error

	Chats    []model.ChatSummary
	ChatsErr error
	Stats    *model.Stats
	StatsErr error

	InitErr error

	// AlreadyLinked is set on a Reinitializing outcome when the link came
	// up while the probe was in flight, so no re-pairing was requested.
	AlreadyLinked bool
}

// Attempt is one recovery run bound to a connect cycle.
type Attempt struct {
	Gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	prev   <-chan struct{}
	done   chan struct{}
}

// Done is closed when Run for this attempt returned.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Options configures a Protocol.
type Options struct {
	Backend      Backend
	SettleDelay  time.Duration
	ProbeTimeout time.Duration

	// LinkConnected reports whether a ready push already marked the link
	// as up. Nil means never.
	LinkConnected func() bool
	Logger        *zap.Logger
}

// Protocol runs at most one recovery per connect cycle and at most one
// probe at any time.
type Protocol struct {
	backend       Backend
	settleDelay   time.Duration
	probeTimeout  time.Duration
	linkConnected func() bool
	logger        *zap.Logger

	mu      sync.Mutex
	gen     uint64
	current *Attempt
	// checked is set once the current connect cycle started an attempt.
	checked bool
}

// New creates a protocol. Zero durations use the defaults.
func New(opts Options) *Protocol {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LinkConnected == nil {
		opts.LinkConnected = func() bool { return false }
	}
	return &Protocol{
		backend:       opts.Backend,
		settleDelay:   opts.SettleDelay,
		probeTimeout:  opts.ProbeTimeout,
		linkConnected: opts.LinkConnected,
		logger:        opts.Logger.Named("recovery"),
	}
}

// OnConnected starts an attempt for this connect cycle. It returns nil if
// the cycle already has one.
func (p *Protocol) OnConnected(parent context.Context) *Attempt {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked {
		return nil
	}
	p.checked = true

	var prev <-chan struct{}
	if p.current != nil {
		p.current.cancel()
		prev = p.current.done
	}
	p.gen++
	ctx, cancel := context.WithCancel(parent)
	a := &Attempt{
		Gen:    p.gen,
		ctx:    ctx,
		cancel: cancel,
		prev:   prev,
		done:   make(chan struct{}),
	}
	p.current = a
	p.logger.Debug("recovery attempt started", zap.Uint64("gen", a.Gen))
	return a
}

// OnDisconnected cancels the running attempt and re-arms the guard for the
// next connect.
func (p *Protocol) OnDisconnected() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checked = false
	if p.current != nil {
		p.current.cancel()
	}
}

// Stop cancels the running attempt for teardown.
func (p *Protocol) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.cancel()
	}
}

// IsCurrent reports whether a is the latest attempt and still live.
func (p *Protocol) IsCurrent(a *Attempt) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return a != nil && a == p.current && a.ctx.Err() == nil
}

// Run executes the attempt. It blocks and must run off the event loop.
func (p *Protocol) Run(a *Attempt) Outcome {
	defer close(a.done)
	ctx := a.ctx
	cancelled := Outcome{Kind: Cancelled}

	timer := time.NewTimer(p.settleDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return cancelled
	case <-timer.C:
	}

	if a.prev != nil {
		select {
		case <-ctx.Done():
			return cancelled
		case <-a.prev:
		}
	}

	out := Outcome{IssuedAt: time.Now()}
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	probe, err := p.backend.CheckSession(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return cancelled
	}

	if err != nil {
		p.logger.Warn("session probe failed, trying chat fallback", zap.Error(err))
		out.ProbeErr = err
		return p.fallback(ctx, out)
	}

	out.Probe = probe
	switch {
	case probe.Usable():
		out.Kind = Synced
		p.loadAll(ctx, &out)
	case probe.HasSession && !probe.IsActive:
		out.Kind = Reinitializing
		if p.linkConnected() {
			p.logger.Info("link came up during the session check, skipping reinitialization")
			out.AlreadyLinked = true
			break
		}
		out.InitErr = p.backend.InitializeLink(ctx)
	default:
		out.Kind = NoSession
	}
	if ctx.Err() != nil {
		return cancelled
	}
	p.logger.Info("recovery finished", zap.Uint64("gen", a.Gen), zap.Stringer("outcome", out.Kind))
	return out
}

func (p *Protocol) fallback(ctx context.Context, out Outcome) Outcome {
	chats, err := p.backend.ListChats(ctx)
	if ctx.Err() != nil {
		return Outcome{Kind: Cancelled}
	}
	if err != nil || len(chats) == 0 {
		out.Kind = NoSession
		out.ChatsErr = err
		return out
	}
	out.Kind = Degraded
	out.Chats = chats
	stats, err := p.backend.Stats(ctx)
	if ctx.Err() != nil {
		return Outcome{Kind: Cancelled}
	}
	if err != nil {
		out.StatsErr = err
	} else {
		out.Stats = &stats
	}
	return out
}

// loadAll fetches chats and stats concurrently. Failures are recorded on
// the outcome; neither load cancels the other.
func (p *Protocol) loadAll(ctx context.Context, out *Outcome) {
	var g errgroup.Group
	g.Go(func() error {
		out.Chats, out.ChatsErr = p.backend.ListChats(ctx)
		return nil
	})
	g.Go(func() error {
		stats, err := p.backend.Stats(ctx)
		if err != nil {
			out.StatsErr = err
			return nil
		}
		out.Stats = &stats
		return nil
	})
	_ = g.Wait()
}
